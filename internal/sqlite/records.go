// This file implements class definitions and record CRUD.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mesh-intelligence/fiberplant/pkg/types"
)

// recordColumns is the column list every record query selects, in scan order.
const recordColumns = "record_id, class_name, attrs, shape, created_at, updated_at"

// Schema returns the field layout of class.
func (b *Backend) Schema(ctx context.Context, class string) (*types.ClassSchema, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return nil, types.ErrDetached
	}
	return b.schemaLocked(ctx, class)
}

// schemaLocked returns a cached or freshly loaded class layout. The caller
// must hold b.mu.
func (b *Backend) schemaLocked(ctx context.Context, class string) (*types.ClassSchema, error) {
	key := strings.ToLower(class)
	if s, ok := b.schemas[key]; ok {
		return s, nil
	}

	var name, fieldsJSON, geometry string
	err := b.q().QueryRowContext(ctx,
		"SELECT class_name, fields, geometry FROM classes WHERE class_name = ?", class).
		Scan(&name, &fieldsJSON, &geometry)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", types.ErrClassNotFound, class)
	}
	if err != nil {
		return nil, fmt.Errorf("loading class %s: %w", class, err)
	}

	s := &types.ClassSchema{Name: name, Geometry: geometry}
	if err := json.Unmarshal([]byte(fieldsJSON), &s.Fields); err != nil {
		return nil, fmt.Errorf("decoding fields of class %s: %w", class, err)
	}
	b.schemas[key] = s
	return s, nil
}

// DefineClass creates or replaces a class layout. Defining classes does not
// require an edit operation; inside an edit session it joins the session's
// transaction.
func (b *Backend) DefineClass(ctx context.Context, schema types.ClassSchema) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return types.ErrDetached
	}
	if schema.Name == "" {
		return fmt.Errorf("%w: class name is empty", types.ErrArgument)
	}
	geometry := schema.Geometry
	switch geometry {
	case "":
		geometry = types.GeometryNone
	case types.GeometryNone, types.GeometryPoint, types.GeometryPolyline:
	default:
		return fmt.Errorf("%w: unknown geometry %q", types.ErrArgument, geometry)
	}

	fields := schema.Fields
	if fields == nil {
		fields = []string{}
	}
	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encoding fields: %w", err)
	}

	_, err = b.q().ExecContext(ctx, `
		INSERT INTO classes (class_name, fields, geometry) VALUES (?, ?, ?)
		ON CONFLICT(class_name) DO UPDATE SET
			fields = excluded.fields,
			geometry = excluded.geometry`,
		schema.Name, string(fieldsJSON), geometry)
	if err != nil {
		return fmt.Errorf("defining class %s: %w", schema.Name, err)
	}
	delete(b.schemas, strings.ToLower(schema.Name))
	return nil
}

// DefineRelation creates or replaces a relation class. Both classes must be
// defined.
func (b *Backend) DefineRelation(ctx context.Context, rel types.RelationClass) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return types.ErrDetached
	}
	if rel.Name == "" {
		return fmt.Errorf("%w: relation name is empty", types.ErrArgument)
	}
	origin, err := b.schemaLocked(ctx, rel.Origin)
	if err != nil {
		return err
	}
	dest, err := b.schemaLocked(ctx, rel.Destination)
	if err != nil {
		return err
	}

	_, err = b.q().ExecContext(ctx, `
		INSERT INTO relations (relation_name, origin_class, dest_class) VALUES (?, ?, ?)
		ON CONFLICT(relation_name) DO UPDATE SET
			origin_class = excluded.origin_class,
			dest_class = excluded.dest_class`,
		rel.Name, origin.Name, dest.Name)
	if err != nil {
		return fmt.Errorf("defining relation %s: %w", rel.Name, err)
	}
	return nil
}

// Get retrieves a record by class and ID.
func (b *Backend) Get(ctx context.Context, class, id string) (*types.Record, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty record ID", types.ErrArgument)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return nil, types.ErrDetached
	}
	schema, err := b.schemaLocked(ctx, class)
	if err != nil {
		return nil, err
	}

	row := b.q().QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM records WHERE record_id = ? AND class_name = ?", id, schema.Name)
	rec, err := scanRecord(row, schema)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	return rec, err
}

// Insert stores a new record. An empty ID is replaced with a UUID v7.
func (b *Backend) Insert(ctx context.Context, rec *types.Record) (string, error) {
	if rec == nil {
		return "", fmt.Errorf("%w: nil record", types.ErrArgument)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkWritable(); err != nil {
		return "", err
	}
	schema, err := b.schemaLocked(ctx, rec.Class)
	if err != nil {
		return "", err
	}
	if len(rec.Values) != len(schema.Fields) {
		return "", fmt.Errorf("%w: record has %d values, class %s has %d fields",
			types.ErrArgument, len(rec.Values), schema.Name, len(schema.Fields))
	}

	attrs, err := encodeAttrs(schema, rec.Values)
	if err != nil {
		return "", err
	}
	shape, err := encodeShape(rec.Shape)
	if err != nil {
		return "", err
	}

	if rec.ID == "" {
		rec.ID = newUUID()
	}
	now := time.Now()
	rec.Class = schema.Name
	rec.CreatedAt = now
	rec.UpdatedAt = now

	_, err = b.tx.ExecContext(ctx,
		"INSERT INTO records ("+recordColumns+") VALUES (?, ?, ?, ?, ?, ?)",
		rec.ID, rec.Class, attrs, shape, formatTime(now), formatTime(now))
	if err != nil {
		return "", fmt.Errorf("inserting %s record: %w", rec.Class, err)
	}
	return rec.ID, nil
}

// Store persists a record's current values and shape.
func (b *Backend) Store(ctx context.Context, rec *types.Record) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("%w: record without ID", types.ErrArgument)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkWritable(); err != nil {
		return err
	}
	return b.storeLocked(ctx, rec)
}

// storeLocked writes rec back to its row. The caller must hold b.mu with an
// active operation.
func (b *Backend) storeLocked(ctx context.Context, rec *types.Record) error {
	schema, err := b.schemaLocked(ctx, rec.Class)
	if err != nil {
		return err
	}
	attrs, err := encodeAttrs(schema, rec.Values)
	if err != nil {
		return err
	}
	shape, err := encodeShape(rec.Shape)
	if err != nil {
		return err
	}

	now := time.Now()
	res, err := b.tx.ExecContext(ctx,
		"UPDATE records SET attrs = ?, shape = ?, updated_at = ? WHERE record_id = ? AND class_name = ?",
		attrs, shape, formatTime(now), rec.ID, schema.Name)
	if err != nil {
		return fmt.Errorf("storing %s record: %w", schema.Name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("storing %s record: %w", schema.Name, err)
	}
	if n == 0 {
		return types.ErrNotFound
	}
	rec.UpdatedAt = now
	return nil
}

// Delete removes a record and every link where it is origin or destination.
// Records on the other side of those links are untouched.
func (b *Backend) Delete(ctx context.Context, rec *types.Record) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("%w: record without ID", types.ErrArgument)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkWritable(); err != nil {
		return err
	}

	var exists int
	if err := b.tx.QueryRowContext(ctx,
		"SELECT 1 FROM records WHERE record_id = ?", rec.ID).Scan(&exists); err == sql.ErrNoRows {
		return types.ErrNotFound
	} else if err != nil {
		return fmt.Errorf("checking record: %w", err)
	}

	if _, err := b.tx.ExecContext(ctx,
		"DELETE FROM links WHERE from_id = ? OR to_id = ?", rec.ID, rec.ID); err != nil {
		return fmt.Errorf("deleting record links: %w", err)
	}
	if _, err := b.tx.ExecContext(ctx,
		"DELETE FROM records WHERE record_id = ?", rec.ID); err != nil {
		return fmt.Errorf("deleting record: %w", err)
	}
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanRecord reads one record row selected with recordColumns.
func scanRecord(row rowScanner, schema *types.ClassSchema) (*types.Record, error) {
	var (
		rec                  types.Record
		attrs                string
		shape                sql.NullString
		createdAt, updatedAt string
	)
	if err := row.Scan(&rec.ID, &rec.Class, &attrs, &shape, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scanning record: %w", err)
	}

	values, err := decodeAttrs(schema, attrs)
	if err != nil {
		return nil, fmt.Errorf("record %s: %w", rec.ID, err)
	}
	rec.Values = values

	var shapePtr *string
	if shape.Valid {
		shapePtr = &shape.String
	}
	if rec.Shape, err = decodeShape(shapePtr); err != nil {
		return nil, fmt.Errorf("record %s: %w", rec.ID, err)
	}

	rec.Class = schema.Name
	rec.CreatedAt = parseTime(createdAt)
	rec.UpdatedAt = parseTime(updatedAt)
	return &rec, nil
}
