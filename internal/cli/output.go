package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/mesh-intelligence/fiberplant/internal/model"
	"github.com/mesh-intelligence/fiberplant/pkg/types"
)

// recordView is the printed form of a record.
type recordView struct {
	ID     string         `json:"id"`
	Class  string         `json:"class"`
	Fields map[string]any `json:"fields"`
	Shape  []types.Point  `json:"shape,omitempty"`
}

func newRecordView(ctx context.Context, cache *model.FieldCache, rec *types.Record) (recordView, error) {
	schema, err := cache.Schema(ctx, rec.Class)
	if err != nil {
		return recordView{}, err
	}
	v := recordView{ID: rec.ID, Class: rec.Class, Fields: make(map[string]any, len(schema.Fields)), Shape: rec.Shape}
	for i, f := range schema.Fields {
		v.Fields[f] = rec.Value(i)
	}
	return v, nil
}

// printRecord writes rec as indented JSON in JSON mode and as one
// field per line otherwise.
func printRecord(w io.Writer, jsonMode bool, v recordView) error {
	if jsonMode {
		return printJSON(w, v)
	}
	fmt.Fprintf(w, "%s %s\n", v.Class, v.ID)
	keys := make([]string, 0, len(v.Fields))
	for k := range v.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		val := v.Fields[k]
		if val == nil {
			val = "<null>"
		}
		fmt.Fprintf(w, "  %s: %v\n", k, val)
	}
	if len(v.Shape) > 0 {
		pts := make([]string, len(v.Shape))
		for i, p := range v.Shape {
			pts[i] = fmt.Sprintf("%g,%g", p.X, p.Y)
		}
		fmt.Fprintf(w, "  shape: %s\n", strings.Join(pts, " "))
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}
