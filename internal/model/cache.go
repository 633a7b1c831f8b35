// Package model provides typed views over the raw records of a fiber plant:
// cables, devices, splice closures, and the splices and connections that
// join them. Field positions are resolved by name through a FieldCache that
// lives for one edit session.
package model

import (
	"context"
	"fmt"
	"strings"

	"github.com/mesh-intelligence/fiberplant/pkg/types"
)

// SchemaSource looks up class layouts. types.Repository satisfies it.
type SchemaSource interface {
	Schema(ctx context.Context, class string) (*types.ClassSchema, error)
}

// FieldCache resolves field positions once per class and field name. A
// workspace may change layouts between sessions, so a cache must not
// outlive the session it was built for.
type FieldCache struct {
	src     SchemaSource
	names   types.SchemaConfig
	schemas map[string]*types.ClassSchema
	indices map[fieldKey]int
}

type fieldKey struct {
	class string
	field string
}

// NewFieldCache creates an empty cache reading layouts from src.
func NewFieldCache(src SchemaSource, names types.SchemaConfig) *FieldCache {
	c := &FieldCache{src: src, names: names}
	c.Invalidate()
	return c
}

// Names returns the configured class, field, and relation names.
func (c *FieldCache) Names() types.SchemaConfig {
	return c.names
}

// Invalidate drops every cached layout and index.
func (c *FieldCache) Invalidate() {
	c.schemas = make(map[string]*types.ClassSchema)
	c.indices = make(map[fieldKey]int)
}

// Schema returns the layout of class. An undefined class is an argument
// error: the record refers to something the workspace does not have.
func (c *FieldCache) Schema(ctx context.Context, class string) (*types.ClassSchema, error) {
	if class == "" {
		return nil, fmt.Errorf("%w: record has no class", types.ErrArgument)
	}
	key := strings.ToLower(class)
	if s, ok := c.schemas[key]; ok {
		return s, nil
	}
	s, err := c.src.Schema(ctx, class)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrArgument, err)
	}
	c.schemas[key] = s
	return s, nil
}

// Index returns the position of field in class. It returns a *FieldError
// when the class lacks the field.
func (c *FieldCache) Index(ctx context.Context, class, field string) (int, error) {
	key := fieldKey{strings.ToLower(class), strings.ToLower(field)}
	if i, ok := c.indices[key]; ok {
		return i, nil
	}
	s, err := c.Schema(ctx, class)
	if err != nil {
		return -1, err
	}
	i := s.FieldIndex(field)
	if i < 0 {
		return -1, &types.FieldError{Class: s.Name, Field: field}
	}
	c.indices[key] = i
	return i, nil
}

// resolve looks up several fields of class at once.
func (c *FieldCache) resolve(ctx context.Context, class string, fields ...string) ([]int, error) {
	out := make([]int, len(fields))
	for n, f := range fields {
		i, err := c.Index(ctx, class, f)
		if err != nil {
			return nil, err
		}
		out[n] = i
	}
	return out, nil
}

// CheckRecord validates rec against the layout of its class and returns
// that layout.
func (c *FieldCache) CheckRecord(ctx context.Context, rec *types.Record) (*types.ClassSchema, error) {
	if rec == nil {
		return nil, fmt.Errorf("%w: nil record", types.ErrArgument)
	}
	s, err := c.Schema(ctx, rec.Class)
	if err != nil {
		return nil, err
	}
	if len(rec.Values) != len(s.Fields) {
		return nil, fmt.Errorf("%w: %s record has %d values, class has %d fields",
			types.ErrArgument, s.Name, len(rec.Values), len(s.Fields))
	}
	return s, nil
}
