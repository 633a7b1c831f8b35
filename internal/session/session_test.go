package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/fiberplant/internal/defaults"
	"github.com/mesh-intelligence/fiberplant/internal/joins"
	"github.com/mesh-intelligence/fiberplant/internal/model"
	"github.com/mesh-intelligence/fiberplant/internal/sqlite"
	"github.com/mesh-intelligence/fiberplant/pkg/types"
)

func attach(t *testing.T, dir string) *sqlite.Backend {
	t.Helper()
	repo := sqlite.NewBackend()
	require.NoError(t, repo.Attach(types.DefaultConfig(dir)))
	t.Cleanup(func() { _ = repo.Detach() })
	return repo
}

func newSession(t *testing.T) (*Session, *sqlite.Backend, string) {
	t.Helper()
	dir := t.TempDir()
	repo := attach(t, dir)
	require.NoError(t, model.DefineLayout(context.Background(), repo, types.DefaultSchema()))

	d, err := defaults.New(defaults.StandardRules(types.DefaultSchema()))
	require.NoError(t, err)
	return New(repo, types.DefaultSchema(), WithDefaults(d)), repo, dir
}

// addCable inserts a cable with its buffer tube and fiber records.
func addCable(t *testing.T, s *Session, ipid string, buffers, fibers, tubes, strands int, shape ...types.Point) *model.Cable {
	t.Helper()
	ctx := context.Background()
	c := s.Cache()
	names := c.Names()

	schema, err := c.Schema(ctx, names.Classes.Cable)
	require.NoError(t, err)
	rec := types.NewRecord(schema)
	rec.Values[schema.FieldIndex(names.Fields.IPID)] = ipid
	rec.Values[schema.FieldIndex(names.Fields.BufferCount)] = int64(buffers)
	rec.Values[schema.FieldIndex(names.Fields.FiberCount)] = int64(fibers)
	rec.Shape = shape

	require.NoError(t, s.Insert(ctx, rec, func(cable *types.Record) error {
		if err := addChildren(ctx, s, cable, names.Classes.BufferTube, names.Relations.CableBuffer, tubes); err != nil {
			return err
		}
		return addChildren(ctx, s, cable, names.Classes.Fiber, names.Relations.CableFiber, strands)
	}))

	cable, err := c.WrapCable(ctx, rec)
	require.NoError(t, err)
	return cable
}

// addDevice inserts a device of class with four input and four output
// ports.
func addDevice(t *testing.T, s *Session, class, ipid string) *model.Device {
	t.Helper()
	ctx := context.Background()
	c := s.Cache()
	names := c.Names()

	schema, err := c.Schema(ctx, class)
	require.NoError(t, err)
	rec := types.NewRecord(schema)
	rec.Values[schema.FieldIndex(names.Fields.IPID)] = ipid
	rec.Values[schema.FieldIndex(names.Fields.InputPorts)] = int64(4)
	rec.Values[schema.FieldIndex(names.Fields.OutputPorts)] = int64(4)
	rec.Shape = []types.Point{{X: 0, Y: 0}}
	require.NoError(t, s.Insert(ctx, rec, nil))

	dev, err := c.WrapDevice(ctx, rec)
	require.NoError(t, err)
	return dev
}

func addChildren(ctx context.Context, s *Session, parent *types.Record, class, relation string, n int) error {
	schema, err := s.Cache().Schema(ctx, class)
	if err != nil {
		return err
	}
	h, err := s.repo.OpenRelation(ctx, relation)
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		child := types.NewRecord(schema)
		child.Values[0] = int64(i + 1)
		if _, err := s.repo.Insert(ctx, child); err != nil {
			return err
		}
		if err := h.Relate(ctx, parent, child); err != nil {
			return err
		}
	}
	return nil
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	s, repo, _ := newSession(t)

	assert.False(t, s.Active())
	assert.Nil(t, s.Cache())
	_, err := s.RunIntegrity(ctx)
	assert.ErrorIs(t, err, types.ErrTransactionState)
	_, err = s.NotifyDelete(ctx, &types.Record{Class: "FiberCable"})
	assert.ErrorIs(t, err, types.ErrTransactionState)
	assert.ErrorIs(t, s.End(ctx, false), types.ErrTransactionState)

	require.NoError(t, s.Begin(ctx))
	assert.True(t, s.Active())
	assert.True(t, repo.IsEditing())
	assert.ErrorIs(t, s.Begin(ctx), types.ErrTransactionState)

	first := s.Cache()
	require.NoError(t, s.End(ctx, false))
	assert.False(t, repo.IsEditing())

	require.NoError(t, s.Begin(ctx))
	assert.NotSame(t, first, s.Cache(), "every session builds its own cache")
	require.NoError(t, s.End(ctx, false))
}

func TestEndToEndIntegrityIsSaved(t *testing.T) {
	ctx := context.Background()
	s, repo, dir := newSession(t)

	require.NoError(t, s.Begin(ctx))
	cable := addCable(t, s, "C1", 2, 24, 2, 24)

	sum, err := s.RunIntegrity(ctx)
	require.NoError(t, err)
	assert.True(t, sum.DidConvert)
	assert.False(t, sum.HadBadIdentity || sum.HadBadBuffers || sum.HadBadFibers)
	require.NoError(t, s.End(ctx, true))

	// Reattach from the JSONL files.
	require.NoError(t, repo.Detach())
	repo2 := attach(t, dir)
	s2 := New(repo2, types.DefaultSchema())
	require.NoError(t, s2.Begin(ctx))

	rec, err := repo2.Get(ctx, "FiberCable", cable.ID())
	require.NoError(t, err)
	reloaded, err := s2.Cache().WrapCable(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, 12, reloaded.FiberCount())
	assert.Equal(t, "C1", reloaded.IPID())

	again, err := s2.RunIntegrity(ctx)
	require.NoError(t, err)
	assert.True(t, again.Clean())
	require.NoError(t, s2.End(ctx, false))
}

func TestDiscardedSessionLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	s, repo, _ := newSession(t)

	require.NoError(t, s.Begin(ctx))
	cable := addCable(t, s, "C1", 2, 24, 2, 24)
	require.NoError(t, s.End(ctx, false))

	_, err := repo.Get(ctx, "FiberCable", cable.ID())
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestDeleteCascades(t *testing.T) {
	ctx := context.Background()
	s, repo, _ := newSession(t)
	require.NoError(t, s.Begin(ctx))
	defer func() { _ = s.End(ctx, false) }()

	line := func(x0, x1 float64) []types.Point { return []types.Point{{X: x0}, {X: x1}} }
	a := addCable(t, s, "A", 1, 12, 1, 12, line(0, 1)...)
	b := addCable(t, s, "B", 1, 12, 1, 12, line(1, 2)...)

	res, err := s.Splice(ctx, joins.SpliceRequest{A: a, B: b, AStrand: 1, BStrand: 1})
	require.NoError(t, err)
	require.NotNil(t, res.Resolution)
	assert.True(t, res.Resolution.Resolved())

	gid, err := s.Cache().Index(ctx, "FiberSplice", model.FieldGlobalID)
	require.NoError(t, err)
	assert.NotNil(t, res.Splice.Record().Values[gid], "joins get create defaults")

	broken, err := s.Delete(ctx, a.Record())
	require.NoError(t, err)
	assert.Equal(t, 1, broken.Splices)

	_, err = repo.Get(ctx, "FiberCable", a.ID())
	assert.ErrorIs(t, err, types.ErrNotFound)
	_, err = repo.Get(ctx, "FiberSplice", res.Splice.ID())
	assert.ErrorIs(t, err, types.ErrNotFound)
	n, err := repo.RelatedCount(ctx, b.Record(), "cable_splice")
	require.NoError(t, err)
	assert.Zero(t, n)
	_, err = repo.Get(ctx, "FiberCable", b.ID())
	assert.NoError(t, err)
}

func TestDeleteDeviceBreaksItsConnections(t *testing.T) {
	ctx := context.Background()
	s, repo, _ := newSession(t)
	require.NoError(t, s.Begin(ctx))
	defer func() { _ = s.End(ctx, false) }()

	a := addCable(t, s, "A", 1, 12, 1, 12)
	dev := addDevice(t, s, "FiberDevice", "ONT-1")
	splitter := addDevice(t, s, "Splitter", "SPL-1")

	cn, err := s.Connect(ctx, joins.ConnectionRequest{
		End: model.JoinEnd{Cable: a, End: model.EndTo}, Strand: 1, Device: dev, Port: 1, PortType: model.PortInput,
	})
	require.NoError(t, err)
	sub, err := s.Connect(ctx, joins.ConnectionRequest{
		End: model.JoinEnd{Cable: a, End: model.EndTo}, Strand: 2, Device: splitter, Port: 1, PortType: model.PortInput,
	})
	require.NoError(t, err)

	res, err := s.Delete(ctx, dev.Record())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Connections)
	assert.False(t, repo.InOperation())

	_, err = repo.Get(ctx, "FiberDevice", dev.ID())
	assert.ErrorIs(t, err, types.ErrNotFound)
	_, err = repo.Get(ctx, "FiberConnection", cn.ID())
	assert.ErrorIs(t, err, types.ErrNotFound, "no connection outlives its device")
	n, err := repo.RelatedCount(ctx, a.Record(), "cable_connection")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	res, err = s.Delete(ctx, splitter.Record())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Connections)
	_, err = repo.Get(ctx, "FiberConnection", sub.ID())
	assert.ErrorIs(t, err, types.ErrNotFound)
	_, err = repo.Get(ctx, "FiberCable", a.ID())
	assert.NoError(t, err, "the cable side is never touched")
}

func TestFailedOperationIsAborted(t *testing.T) {
	ctx := context.Background()
	s, repo, _ := newSession(t)
	require.NoError(t, s.Begin(ctx))
	defer func() { _ = s.End(ctx, false) }()

	a := addCable(t, s, "A", 1, 12, 1, 12)
	_, err := s.Splice(ctx, joins.SpliceRequest{A: a, B: a, AStrand: 1, BStrand: 99})
	assert.ErrorIs(t, err, types.ErrArgument)
	assert.False(t, repo.InOperation())

	_, err = s.Delete(ctx, &types.Record{ID: "missing", Class: "Manhole"})
	assert.ErrorIs(t, err, types.ErrNotFound)
	assert.False(t, repo.InOperation())
}

func TestNotifyDeleteUsesCallerOperation(t *testing.T) {
	ctx := context.Background()
	s, repo, _ := newSession(t)
	require.NoError(t, s.Begin(ctx))
	defer func() { _ = s.End(ctx, false) }()

	a := addCable(t, s, "A", 1, 12, 1, 12)
	_, err := s.NotifyDelete(ctx, a.Record())
	assert.ErrorIs(t, err, types.ErrTransactionState)

	require.NoError(t, repo.BeginOperation(ctx))
	res, err := s.NotifyDelete(ctx, a.Record())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Splices)
	require.NoError(t, repo.EndOperation(ctx))
}

func TestUpdateStampsModifiedOn(t *testing.T) {
	ctx := context.Background()
	s, repo, _ := newSession(t)
	require.NoError(t, s.Begin(ctx))
	defer func() { _ = s.End(ctx, false) }()

	a := addCable(t, s, "A", 1, 12, 1, 12)
	i, err := s.Cache().Index(ctx, "FiberCable", model.FieldModifiedOn)
	require.NoError(t, err)
	a.Record().Values[i] = nil

	require.NoError(t, s.Update(ctx, a.Record()))
	got, err := repo.Get(ctx, "FiberCable", a.ID())
	require.NoError(t, err)
	assert.NotNil(t, got.Values[i])
}
