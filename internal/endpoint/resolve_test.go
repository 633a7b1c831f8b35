package endpoint

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/fiberplant/internal/model"
	"github.com/mesh-intelligence/fiberplant/pkg/types"
)

type cableSource struct{}

var cableSchema = &types.ClassSchema{
	Name:     "FiberCable",
	Fields:   []string{"ipid", "buffer_count", "fiber_count"},
	Geometry: types.GeometryPolyline,
}

func (cableSource) Schema(context.Context, string) (*types.ClassSchema, error) {
	return cableSchema, nil
}

func pt(x, y float64) types.Point { return types.Point{X: x, Y: y} }

func cable(t *testing.T, ipid string, shape ...types.Point) *model.Cable {
	t.Helper()
	cache := model.NewFieldCache(cableSource{}, types.DefaultSchema())
	rec := &types.Record{ID: ipid, Class: "FiberCable", Values: []any{ipid, int64(1), int64(12)}, Shape: shape}
	c, err := cache.WrapCable(context.Background(), rec)
	require.NoError(t, err)
	return c
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name string
		a, b []types.Point
		rule Rule
		aEnd model.End
		bEnd model.End
	}{
		{"a.to meets b.from", []types.Point{pt(0, 0), pt(1, 0)}, []types.Point{pt(1, 0), pt(2, 0)}, ToFrom, model.EndTo, model.EndFrom},
		{"from ends meet", []types.Point{pt(0, 0), pt(1, 0)}, []types.Point{pt(0, 0), pt(0, 1)}, FromFrom, model.EndFrom, model.EndFrom},
		{"to ends meet", []types.Point{pt(0, 0), pt(1, 0)}, []types.Point{pt(5, 5), pt(1, 0)}, ToTo, model.EndTo, model.EndTo},
		{"nothing meets", []types.Point{pt(0, 0), pt(1, 0)}, []types.Point{pt(5, 5), pt(6, 6)}, Unresolved, model.EndFrom, model.EndTo},
		{"a.from meets b.to only", []types.Point{pt(0, 0), pt(1, 0)}, []types.Point{pt(5, 5), pt(0, 0)}, Unresolved, model.EndFrom, model.EndTo},
		{"no tolerance", []types.Point{pt(0, 0), pt(1, 0)}, []types.Point{pt(1.0000001, 0), pt(2, 0)}, Unresolved, model.EndFrom, model.EndTo},
		{"a has no shape", nil, []types.Point{pt(0, 0), pt(1, 0)}, Unresolved, model.EndFrom, model.EndTo},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, b := cable(t, "A", tt.a...), cable(t, "B", tt.b...)
			res := Resolve(a, b)
			assert.Equal(t, tt.rule, res.Rule)
			assert.Equal(t, tt.aEnd, res.Ends.A.End)
			assert.Equal(t, tt.bEnd, res.Ends.B.End)
			assert.Same(t, a, res.Ends.A.Cable)
			assert.Same(t, b, res.Ends.B.Cable)
			assert.Equal(t, tt.rule != Unresolved, res.Resolved())
		})
	}
}

// Closed loops make every check true; the first one must win.
func TestResolvePriorityOnAmbiguousGeometry(t *testing.T) {
	loop := []types.Point{pt(0, 0), pt(1, 1), pt(0, 0)}
	res := Resolve(cable(t, "A", loop...), cable(t, "B", loop...))
	assert.Equal(t, ToFrom, res.Rule)

	// From ends and To ends both coincide, A.To != B.From.
	a := cable(t, "A", pt(0, 0), pt(1, 0))
	b := cable(t, "B", pt(0, 0), pt(1, 0))
	assert.Equal(t, FromFrom, Resolve(a, b).Rule)
}

func TestRuleString(t *testing.T) {
	assert.Equal(t, "to_from", ToFrom.String())
	assert.Equal(t, "from_from", FromFrom.String())
	assert.Equal(t, "to_to", ToTo.String())
	assert.Equal(t, "unresolved", Unresolved.String())
}
