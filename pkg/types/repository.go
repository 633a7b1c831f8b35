package types

import "context"

// Repository is the port through which the connectivity model reads and
// writes records. Every relationship query is a live lookup against the
// store; callers keep no adjacency lists.
type Repository interface {
	Editor

	// Schema returns the field layout of class.
	// Returns ErrClassNotFound if the class is not defined.
	Schema(ctx context.Context, class string) (*ClassSchema, error)

	// DefineClass creates or replaces a class layout.
	DefineClass(ctx context.Context, schema ClassSchema) error

	// DefineRelation creates or replaces a relation class.
	DefineRelation(ctx context.Context, rel RelationClass) error

	// Get retrieves a record by class and ID.
	// Returns ErrNotFound if no such record exists.
	Get(ctx context.Context, class, id string) (*Record, error)

	// Insert stores a new record and assigns its ID when empty.
	// Requires an active edit operation.
	Insert(ctx context.Context, rec *Record) (string, error)

	// Store persists in-place field and shape writes to an existing record.
	// Requires an active edit operation.
	Store(ctx context.Context, rec *Record) error

	// Delete removes the record and every relation row that references it.
	// Requires an active edit operation.
	Delete(ctx context.Context, rec *Record) error

	// UpdateCursor iterates the records of class matching filter. The
	// cursor supports in-place writes followed by Cursor.Update.
	UpdateCursor(ctx context.Context, class string, filter Filter) (Cursor, error)

	// Related returns the records related to rec through relation, with rec
	// as the origin. Returns ErrRelationNotFound for an undefined relation.
	Related(ctx context.Context, rec *Record, relation string) ([]*Record, error)

	// RelatedCount returns the number of records related to rec through
	// relation.
	RelatedCount(ctx context.Context, rec *Record, relation string) (int, error)

	// OpenRelation returns a handle for creating and removing relation rows.
	OpenRelation(ctx context.Context, relation string) (RelationHandle, error)
}

// Editor is the edit transaction surface of a Repository. Exactly one
// operation may be active inside exactly one edit session.
type Editor interface {
	// BeginEdit opens an edit session.
	// Returns ErrTransactionState if a session is already open.
	BeginEdit(ctx context.Context) error

	// BeginOperation opens an edit operation inside the session.
	// Returns ErrTransactionState without a session or with an operation
	// already active.
	BeginOperation(ctx context.Context) error

	// EndOperation keeps the operation's writes in the session.
	EndOperation(ctx context.Context) error

	// AbortOperation undoes every write made since BeginOperation.
	AbortOperation(ctx context.Context) error

	// EndEdit closes the session, committing or discarding its writes.
	// Committing with an operation still active returns
	// ErrTransactionState; discarding drops the operation too.
	EndEdit(ctx context.Context, commit bool) error

	// IsEditing reports whether an edit session is open.
	IsEditing() bool

	// InOperation reports whether an edit operation is active.
	InOperation() bool
}

// Cursor iterates records of one class. Record returns the current record;
// writes made to it are persisted by Update.
type Cursor interface {
	Next() bool
	Record() *Record
	Update(ctx context.Context) error
	Err() error
	Close() error
}

// RelationClass is a named association from records of one class to
// records of another.
type RelationClass struct {
	Name        string
	Origin      string
	Destination string
}

// RelationHandle creates and removes rows of one relation class.
type RelationHandle interface {
	// Name returns the relation class name.
	Name() string

	// Relate adds a row from origin to dest. Relating the same pair twice
	// is a no-op. Returns ErrArgument when either record is not of the
	// relation's class. Requires an active edit operation.
	Relate(ctx context.Context, origin, dest *Record) error

	// Unrelate removes the row from origin to dest.
	// Returns ErrNotFound if no such row exists.
	Unrelate(ctx context.Context, origin, dest *Record) error
}
