// This file converts between typed records and their JSON columns.
package sqlite

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mesh-intelligence/fiberplant/pkg/types"
)

// encodeAttrs serializes a record's positional values as a JSON object keyed
// by field name. Null values are written as JSON null.
func encodeAttrs(schema *types.ClassSchema, values []any) (string, error) {
	obj := make(map[string]any, len(schema.Fields))
	for i, f := range schema.Fields {
		var v any
		if i < len(values) {
			v = values[i]
		}
		obj[f] = v
	}
	data, err := json.Marshal(obj)
	if err != nil {
		return "", fmt.Errorf("encoding attributes: %w", err)
	}
	return string(data), nil
}

// decodeAttrs maps a JSON attribute object onto the positional layout of
// schema. Fields absent from the object are null; keys unknown to the class
// are ignored.
func decodeAttrs(schema *types.ClassSchema, attrs string) ([]any, error) {
	values := make([]any, len(schema.Fields))
	if attrs == "" {
		return values, nil
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(attrs)))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("decoding attributes: %w", err)
	}

	for key, v := range obj {
		i := schema.FieldIndex(key)
		if i < 0 {
			continue
		}
		values[i] = normalizeNumber(v)
	}
	return values, nil
}

// normalizeNumber turns json.Number into int64 when integral and float64
// otherwise.
func normalizeNumber(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}

// encodeShape serializes a shape; an empty shape is stored as NULL.
func encodeShape(shape []types.Point) (any, error) {
	if len(shape) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(shape)
	if err != nil {
		return nil, fmt.Errorf("encoding shape: %w", err)
	}
	return string(data), nil
}

// decodeShape parses a shape column.
func decodeShape(shape *string) ([]types.Point, error) {
	if shape == nil || *shape == "" {
		return nil, nil
	}
	var pts []types.Point
	if err := json.Unmarshal([]byte(*shape), &pts); err != nil {
		return nil, fmt.Errorf("decoding shape: %w", err)
	}
	return pts, nil
}

// formatTime renders a timestamp for storage.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime reads a stored timestamp; unparseable values yield the zero time.
func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
