package types

import (
	"strings"
	"time"
)

// Geometry kinds a class may carry.
const (
	GeometryNone     = "none"
	GeometryPoint    = "point"
	GeometryPolyline = "polyline"
)

// Point is a location in the workspace's shared coordinate space. Points are
// compared by exact equality on the stored values.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ClassSchema describes the field layout of one record class.
type ClassSchema struct {
	// Name is the class name (e.g. FiberCable).
	Name string

	// Fields is the ordered field list; Record.Values is parallel to it.
	Fields []string

	// Geometry is one of the Geometry constants.
	Geometry string
}

// FieldIndex returns the position of the named field, matching names
// case-insensitively, or -1 when the class has no such field.
func (s *ClassSchema) FieldIndex(name string) int {
	if s == nil || name == "" {
		return -1
	}
	for i, f := range s.Fields {
		if strings.EqualFold(f, name) {
			return i
		}
	}
	return -1
}

// Record is a raw row of a record class.
type Record struct {
	// ID is a UUID v7, generated on insert.
	ID string

	// Class is the record class name.
	Class string

	// Values holds field values parallel to the class's Fields. A nil entry
	// is a null field.
	Values []any

	// Shape holds the vertices of a linear feature, a single point for point
	// features, and nothing for table records.
	Shape []Point

	// CreatedAt is the timestamp of creation.
	CreatedAt time.Time

	// UpdatedAt is the timestamp of the last store.
	UpdatedAt time.Time
}

// NewRecord returns an unsaved record with a null value for every field of
// schema.
func NewRecord(schema *ClassSchema) *Record {
	return &Record{
		Class:  schema.Name,
		Values: make([]any, len(schema.Fields)),
	}
}

// Value returns the value at index i, or nil when i is out of range.
func (r *Record) Value(i int) any {
	if r == nil || i < 0 || i >= len(r.Values) {
		return nil
	}
	return r.Values[i]
}

// SetValue writes v at index i. It returns ErrArgument when i is out of
// range.
func (r *Record) SetValue(i int, v any) error {
	if r == nil || i < 0 || i >= len(r.Values) {
		return ErrArgument
	}
	r.Values[i] = v
	return nil
}

// From returns the first vertex of the record's shape.
func (r *Record) From() (Point, bool) {
	if r == nil || len(r.Shape) == 0 {
		return Point{}, false
	}
	return r.Shape[0], true
}

// To returns the last vertex of the record's shape.
func (r *Record) To() (Point, bool) {
	if r == nil || len(r.Shape) == 0 {
		return Point{}, false
	}
	return r.Shape[len(r.Shape)-1], true
}

// Filter selects records by field equality. Keys are field names; an empty
// filter selects every record of the class.
type Filter map[string]any
