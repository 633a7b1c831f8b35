// Package sqlite implements the SQLite backend for the fiber plant
// repository. JSONL files in the data directory are the source of truth and
// are loaded into a fresh SQLite database on attach.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/fiberplant/internal/logging"
	"github.com/mesh-intelligence/fiberplant/pkg/types"
)

// dbFileName is the query database inside the data directory. It is
// rebuilt from JSONL on every Attach.
const dbFileName = "fiberplant.db"

// savepointName names the savepoint that backs an edit operation.
const savepointName = "edit_operation"

// Backend implements types.Repository using SQLite as the query engine and
// JSONL files as the source of truth. An edit session is one SQL
// transaction; an edit operation is a savepoint inside it.
type Backend struct {
	mu       sync.Mutex
	attached bool
	config   types.Config
	dataDir  string
	db       *sql.DB
	log      *slog.Logger

	tx   *sql.Tx // open edit session, nil outside one
	inOp bool    // savepoint active

	schemas map[string]*types.ClassSchema // keyed by lower-case class name
}

var _ types.Backend = (*Backend)(nil)

// Option configures a Backend.
type Option func(*Backend)

// WithLogger sets the backend's logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Backend) {
		if l != nil {
			b.log = l
		}
	}
}

// NewBackend creates a new SQLite backend instance.
// The backend is not attached; call Attach with a Config to initialize.
func NewBackend(opts ...Option) *Backend {
	b := &Backend{
		log:     logging.Discard(),
		schemas: make(map[string]*types.ClassSchema),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Attach initializes the backend with the given configuration. It creates
// DataDir if needed, recreates the SQLite database, and loads the JSONL
// files into it. Returns ErrAlreadyAttached if already attached.
func (b *Backend) Attach(config types.Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attached {
		return types.ErrAlreadyAttached
	}
	if err := config.Validate(); err != nil {
		return err
	}

	dataDir := config.DataDir
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return err
	}

	dbPath := filepath.Join(dataDir, dbFileName)
	// JSONL is the source of truth; start from an empty query database.
	_ = os.Remove(dbPath)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return err
	}
	// One connection keeps the edit transaction and every read on the same
	// SQLite handle.
	db.SetMaxOpenConns(1)

	for _, ddl := range append(append([]string{}, schemaDDL...), indexDDL...) {
		if _, err := db.Exec(ddl); err != nil {
			db.Close()
			return fmt.Errorf("creating schema: %w", err)
		}
	}

	if err := initJSONLFiles(dataDir); err != nil {
		db.Close()
		return err
	}
	if err := loadAllJSONL(db, dataDir); err != nil {
		db.Close()
		return fmt.Errorf("load JSONL: %w", err)
	}

	b.db = db
	b.config = config
	b.dataDir = dataDir
	b.attached = true
	b.schemas = make(map[string]*types.ClassSchema)

	b.log.Debug("repository attached", "data_dir", dataDir)
	return nil
}

// Detach releases all resources held by the backend. An open edit session
// is rolled back. Detach is idempotent.
func (b *Backend) Detach() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return nil
	}

	if b.tx != nil {
		_ = b.tx.Rollback()
		b.tx = nil
		b.inOp = false
		b.log.Warn("open edit session discarded on detach")
	}

	if b.db != nil {
		if err := b.db.Close(); err != nil {
			return err
		}
		b.db = nil
	}

	b.attached = false
	b.schemas = make(map[string]*types.ClassSchema)
	return nil
}

// Config returns the configuration the backend was attached with.
func (b *Backend) Config() types.Config {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.config
}

// BeginEdit opens an edit session backed by a SQL transaction.
func (b *Backend) BeginEdit(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return types.ErrDetached
	}
	if b.tx != nil {
		return fmt.Errorf("%w: edit session already open", types.ErrTransactionState)
	}
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning edit session: %w", err)
	}
	b.tx = tx
	b.log.Debug("edit session started")
	return nil
}

// BeginOperation opens an edit operation as a savepoint.
func (b *Backend) BeginOperation(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return types.ErrDetached
	}
	if b.tx == nil {
		return fmt.Errorf("%w: no edit session", types.ErrTransactionState)
	}
	if b.inOp {
		return fmt.Errorf("%w: edit operation already active", types.ErrTransactionState)
	}
	if _, err := b.tx.ExecContext(ctx, "SAVEPOINT "+savepointName); err != nil {
		return fmt.Errorf("beginning edit operation: %w", err)
	}
	b.inOp = true
	return nil
}

// EndOperation releases the savepoint, keeping its writes in the session.
func (b *Backend) EndOperation(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return types.ErrDetached
	}
	if !b.inOp {
		return types.ErrTransactionState
	}
	if _, err := b.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+savepointName); err != nil {
		return fmt.Errorf("ending edit operation: %w", err)
	}
	b.inOp = false
	return nil
}

// AbortOperation rolls back to the savepoint and releases it.
func (b *Backend) AbortOperation(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return types.ErrDetached
	}
	if !b.inOp {
		return types.ErrTransactionState
	}
	// A failed statement inside the savepoint must not leave inOp set.
	b.inOp = false
	if _, err := b.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+savepointName); err != nil {
		return fmt.Errorf("aborting edit operation: %w", err)
	}
	if _, err := b.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+savepointName); err != nil {
		return fmt.Errorf("releasing aborted operation: %w", err)
	}
	// Class layouts defined inside the operation may be gone.
	b.schemas = make(map[string]*types.ClassSchema)
	return nil
}

// EndEdit closes the edit session. With commit, the transaction commits and
// the JSONL files are rewritten; otherwise every write is discarded. Saving
// while an operation is active returns ErrTransactionState and leaves the
// session and the operation open.
func (b *Backend) EndEdit(ctx context.Context, commit bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return types.ErrDetached
	}
	if b.tx == nil {
		return fmt.Errorf("%w: no edit session", types.ErrTransactionState)
	}
	if commit && b.inOp {
		return fmt.Errorf("%w: edit operation still active", types.ErrTransactionState)
	}

	tx := b.tx
	b.tx = nil
	b.inOp = false

	if !commit {
		b.schemas = make(map[string]*types.ClassSchema)
		if err := tx.Rollback(); err != nil {
			return fmt.Errorf("discarding edit session: %w", err)
		}
		b.log.Debug("edit session discarded")
		return nil
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing edit session: %w", err)
	}
	// The database is committed; a failed write leaves the previous JSONL
	// in place and the next Attach reloads it.
	if err := persistAllJSONL(ctx, b.db, b.dataDir); err != nil {
		return fmt.Errorf("persisting JSONL: %w", err)
	}
	b.log.Debug("edit session committed")
	return nil
}

// IsEditing reports whether an edit session is open.
func (b *Backend) IsEditing() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tx != nil
}

// InOperation reports whether an edit operation is active.
func (b *Backend) InOperation() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inOp
}

// q returns the handle reads and writes go through. The caller must hold
// b.mu.
func (b *Backend) q() querier {
	if b.tx != nil {
		return b.tx
	}
	return b.db
}

// checkWritable returns an error unless the backend is attached and an edit
// operation is active. The caller must hold b.mu.
func (b *Backend) checkWritable() error {
	if !b.attached {
		return types.ErrDetached
	}
	if !b.inOp {
		return types.ErrTransactionState
	}
	return nil
}

// newUUID generates a UUID v7 string for record and link IDs.
func newUUID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}
