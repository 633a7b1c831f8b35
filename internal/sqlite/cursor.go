// This file implements update cursors over the records of one class.
package sqlite

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mesh-intelligence/fiberplant/pkg/types"
)

// cursorPageSize bounds the rows read per page. Pages are read with the
// result set closed before the caller writes, so updates can interleave with
// iteration inside one transaction.
const cursorPageSize = 256

// cursor implements types.Cursor with keyset paging on record_id.
type cursor struct {
	b      *Backend
	ctx    context.Context
	schema *types.ClassSchema
	where  string
	args   []any

	page   []*types.Record
	pos    int
	lastID string
	done   bool
	cur    *types.Record
	err    error
	closed bool
}

// UpdateCursor iterates the records of class whose fields equal the filter
// values. A nil filter value matches null fields.
func (b *Backend) UpdateCursor(ctx context.Context, class string, filter types.Filter) (types.Cursor, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return nil, types.ErrDetached
	}
	schema, err := b.schemaLocked(ctx, class)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	conditions := []string{"class_name = ?"}
	args := []any{schema.Name}
	for _, k := range keys {
		i := schema.FieldIndex(k)
		if i < 0 {
			return nil, &types.FieldError{Class: schema.Name, Field: k}
		}
		path := fmt.Sprintf(`$."%s"`, schema.Fields[i])
		if filter[k] == nil {
			conditions = append(conditions, "json_extract(attrs, ?) IS NULL")
			args = append(args, path)
			continue
		}
		conditions = append(conditions, "json_extract(attrs, ?) = ?")
		args = append(args, path, filter[k])
	}

	return &cursor{
		b:      b,
		ctx:    ctx,
		schema: schema,
		where:  strings.Join(conditions, " AND "),
		args:   args,
	}, nil
}

// Next advances to the next record, reading a new page when needed.
func (c *cursor) Next() bool {
	if c.closed || c.err != nil {
		return false
	}
	if c.pos >= len(c.page) {
		if c.done {
			c.cur = nil
			return false
		}
		if err := c.fetch(); err != nil {
			c.err = err
			c.cur = nil
			return false
		}
		if len(c.page) == 0 {
			c.cur = nil
			return false
		}
	}
	c.cur = c.page[c.pos]
	c.pos++
	return true
}

// fetch reads the page after lastID.
func (c *cursor) fetch() error {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()

	if !c.b.attached {
		return types.ErrDetached
	}

	query := "SELECT " + recordColumns + " FROM records WHERE " + c.where +
		" AND record_id > ? ORDER BY record_id LIMIT ?"
	args := append(append([]any{}, c.args...), c.lastID, cursorPageSize)

	rows, err := c.b.q().QueryContext(c.ctx, query, args...)
	if err != nil {
		return fmt.Errorf("reading %s records: %w", c.schema.Name, err)
	}
	defer rows.Close()

	c.page = c.page[:0]
	c.pos = 0
	for rows.Next() {
		rec, err := scanRecord(rows, c.schema)
		if err != nil {
			return err
		}
		c.page = append(c.page, rec)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("reading %s records: %w", c.schema.Name, err)
	}
	if len(c.page) < cursorPageSize {
		c.done = true
	}
	if len(c.page) > 0 {
		c.lastID = c.page[len(c.page)-1].ID
	}
	return nil
}

// Record returns the current record, or nil before Next or after the end.
func (c *cursor) Record() *types.Record {
	return c.cur
}

// Update persists in-place writes to the current record. Requires an
// active edit operation.
func (c *cursor) Update(ctx context.Context) error {
	if c.cur == nil {
		return fmt.Errorf("%w: cursor has no current record", types.ErrArgument)
	}
	c.b.mu.Lock()
	defer c.b.mu.Unlock()

	if err := c.b.checkWritable(); err != nil {
		return err
	}
	return c.b.storeLocked(ctx, c.cur)
}

// Err returns the first error met while iterating.
func (c *cursor) Err() error {
	return c.err
}

// Close releases the cursor. Close is idempotent.
func (c *cursor) Close() error {
	c.closed = true
	c.page = nil
	c.cur = nil
	return nil
}
