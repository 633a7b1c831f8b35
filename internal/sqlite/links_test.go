// Tests for relation rows.
package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/fiberplant/pkg/types"
)

func insertTube(t *testing.T, b *Backend, ctx context.Context, n int64) *types.Record {
	t.Helper()
	rec := &types.Record{Class: "Tube", Values: []any{n}}
	_, err := b.Insert(ctx, rec)
	require.NoError(t, err)
	return rec
}

func TestRelateAndLookup(t *testing.T) {
	b, _ := newTestBackend(t)
	ctx := inOp(t, b)
	cable := insertCable(t, b, ctx, "C1", int64(12))
	other := insertCable(t, b, ctx, "C2", int64(12))
	t1, t2, t3 := insertTube(t, b, ctx, 1), insertTube(t, b, ctx, 2), insertTube(t, b, ctx, 3)

	h, err := b.OpenRelation(ctx, "CABLE_TUBE")
	require.NoError(t, err)
	assert.Equal(t, "cable_tube", h.Name())

	require.NoError(t, h.Relate(ctx, cable, t1))
	require.NoError(t, h.Relate(ctx, cable, t2))
	require.NoError(t, h.Relate(ctx, cable, t2), "relating twice is a no-op")
	require.NoError(t, h.Relate(ctx, other, t3))

	n, err := b.RelatedCount(ctx, cable, "cable_tube")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	related, err := b.Related(ctx, cable, "cable_tube")
	require.NoError(t, err)
	require.Len(t, related, 2)
	assert.Equal(t, "Tube", related[0].Class)
	assert.ElementsMatch(t, []string{t1.ID, t2.ID}, []string{related[0].ID, related[1].ID})

	require.NoError(t, h.Unrelate(ctx, cable, t1))
	assert.ErrorIs(t, h.Unrelate(ctx, cable, t1), types.ErrNotFound)
	n, err = b.RelatedCount(ctx, cable, "cable_tube")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// The destination side is not an origin.
	n, err = b.RelatedCount(ctx, t3, "cable_tube")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRelationErrors(t *testing.T) {
	b, _ := newTestBackend(t)
	ctx := inOp(t, b)
	cable := insertCable(t, b, ctx, "C1", int64(12))
	tube := insertTube(t, b, ctx, 1)

	_, err := b.OpenRelation(ctx, "cable_vault")
	assert.ErrorIs(t, err, types.ErrRelationNotFound)
	_, err = b.Related(ctx, cable, "cable_vault")
	assert.ErrorIs(t, err, types.ErrRelationNotFound)
	_, err = b.RelatedCount(ctx, cable, "cable_vault")
	assert.ErrorIs(t, err, types.ErrRelationNotFound)
	_, err = b.Related(ctx, &types.Record{}, "cable_tube")
	assert.ErrorIs(t, err, types.ErrArgument)

	h, err := b.OpenRelation(ctx, "cable_tube")
	require.NoError(t, err)
	assert.ErrorIs(t, h.Relate(ctx, tube, cable), types.ErrArgument, "wrong direction")
	assert.ErrorIs(t, h.Relate(ctx, cable, &types.Record{Class: "Tube"}), types.ErrArgument, "unsaved record")

	require.NoError(t, b.EndOperation(ctx))
	assert.ErrorIs(t, h.Relate(ctx, cable, tube), types.ErrTransactionState)
	assert.ErrorIs(t, h.Unrelate(ctx, cable, tube), types.ErrTransactionState)
}

func TestRelationsPersist(t *testing.T) {
	b, dir := newTestBackend(t)
	ctx := inOp(t, b)
	cable := insertCable(t, b, ctx, "C1", int64(12))
	tube := insertTube(t, b, ctx, 1)
	h, err := b.OpenRelation(ctx, "cable_tube")
	require.NoError(t, err)
	require.NoError(t, h.Relate(ctx, cable, tube))
	require.NoError(t, b.EndOperation(ctx))
	require.NoError(t, b.EndEdit(ctx, true))
	require.NoError(t, b.Detach())

	b2 := NewBackend()
	require.NoError(t, b2.Attach(types.DefaultConfig(dir)))
	defer b2.Detach()

	related, err := b2.Related(ctx, cable, "cable_tube")
	require.NoError(t, err)
	require.Len(t, related, 1)
	assert.Equal(t, tube.ID, related[0].ID)
	assert.Equal(t, []any{int64(1)}, related[0].Values)
}
