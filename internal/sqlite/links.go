// This file implements relationship lookups and relation handles over the
// links table.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/mesh-intelligence/fiberplant/pkg/types"
)

// relationLocked loads a relation class. The caller must hold b.mu.
func (b *Backend) relationLocked(ctx context.Context, name string) (types.RelationClass, error) {
	var rel types.RelationClass
	err := b.q().QueryRowContext(ctx,
		"SELECT relation_name, origin_class, dest_class FROM relations WHERE relation_name = ?", name).
		Scan(&rel.Name, &rel.Origin, &rel.Destination)
	if err == sql.ErrNoRows {
		return rel, fmt.Errorf("%w: %s", types.ErrRelationNotFound, name)
	}
	if err != nil {
		return rel, fmt.Errorf("loading relation %s: %w", name, err)
	}
	return rel, nil
}

// Related returns the destination records of relation rows whose origin is
// rec, oldest link first.
func (b *Backend) Related(ctx context.Context, rec *types.Record, relation string) ([]*types.Record, error) {
	if rec == nil || rec.ID == "" {
		return nil, fmt.Errorf("%w: record without ID", types.ErrArgument)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return nil, types.ErrDetached
	}
	rel, err := b.relationLocked(ctx, relation)
	if err != nil {
		return nil, err
	}
	schema, err := b.schemaLocked(ctx, rel.Destination)
	if err != nil {
		return nil, err
	}

	rows, err := b.q().QueryContext(ctx, `
		SELECT r.record_id, r.class_name, r.attrs, r.shape, r.created_at, r.updated_at
		FROM links l JOIN records r ON r.record_id = l.to_id
		WHERE l.link_type = ? AND l.from_id = ?
		ORDER BY l.created_at, l.link_id`,
		rel.Name, rec.ID)
	if err != nil {
		return nil, fmt.Errorf("finding %s records: %w", rel.Name, err)
	}
	defer rows.Close()

	results := []*types.Record{}
	for rows.Next() {
		r, err := scanRecord(rows, schema)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// RelatedCount returns the number of relation rows whose origin is rec.
func (b *Backend) RelatedCount(ctx context.Context, rec *types.Record, relation string) (int, error) {
	if rec == nil || rec.ID == "" {
		return 0, fmt.Errorf("%w: record without ID", types.ErrArgument)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return 0, types.ErrDetached
	}
	rel, err := b.relationLocked(ctx, relation)
	if err != nil {
		return 0, err
	}

	var n int
	if err := b.q().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM links WHERE link_type = ? AND from_id = ?", rel.Name, rec.ID).
		Scan(&n); err != nil {
		return 0, fmt.Errorf("counting %s records: %w", rel.Name, err)
	}
	return n, nil
}

// OpenRelation returns a handle for the named relation class.
func (b *Backend) OpenRelation(ctx context.Context, relation string) (types.RelationHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return nil, types.ErrDetached
	}
	rel, err := b.relationLocked(ctx, relation)
	if err != nil {
		return nil, err
	}
	return &relationHandle{b: b, rel: rel}, nil
}

// relationHandle implements types.RelationHandle for one relation class.
type relationHandle struct {
	b   *Backend
	rel types.RelationClass
}

func (h *relationHandle) Name() string {
	return h.rel.Name
}

// check verifies that origin and dest belong to the relation's classes.
func (h *relationHandle) check(origin, dest *types.Record) error {
	if origin == nil || dest == nil || origin.ID == "" || dest.ID == "" {
		return fmt.Errorf("%w: relation endpoints must be saved records", types.ErrArgument)
	}
	if !strings.EqualFold(origin.Class, h.rel.Origin) {
		return fmt.Errorf("%w: %s origin must be %s, got %s", types.ErrArgument, h.rel.Name, h.rel.Origin, origin.Class)
	}
	if !strings.EqualFold(dest.Class, h.rel.Destination) {
		return fmt.Errorf("%w: %s destination must be %s, got %s", types.ErrArgument, h.rel.Name, h.rel.Destination, dest.Class)
	}
	return nil
}

// Relate adds the row origin -> dest. An existing row is kept.
func (h *relationHandle) Relate(ctx context.Context, origin, dest *types.Record) error {
	if err := h.check(origin, dest); err != nil {
		return err
	}
	h.b.mu.Lock()
	defer h.b.mu.Unlock()

	if err := h.b.checkWritable(); err != nil {
		return err
	}
	_, err := h.b.tx.ExecContext(ctx, `
		INSERT INTO links (link_id, link_type, from_id, to_id, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(link_type, from_id, to_id) DO NOTHING`,
		newUUID(), h.rel.Name, origin.ID, dest.ID, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("relating %s: %w", h.rel.Name, err)
	}
	return nil
}

// Unrelate removes the row origin -> dest.
func (h *relationHandle) Unrelate(ctx context.Context, origin, dest *types.Record) error {
	if err := h.check(origin, dest); err != nil {
		return err
	}
	h.b.mu.Lock()
	defer h.b.mu.Unlock()

	if err := h.b.checkWritable(); err != nil {
		return err
	}
	res, err := h.b.tx.ExecContext(ctx,
		"DELETE FROM links WHERE link_type = ? AND from_id = ? AND to_id = ?",
		h.rel.Name, origin.ID, dest.ID)
	if err != nil {
		return fmt.Errorf("unrelating %s: %w", h.rel.Name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("unrelating %s: %w", h.rel.Name, err)
	}
	if n == 0 {
		return types.ErrNotFound
	}
	return nil
}
