// Package plantest builds fiber plant fixtures on a temporary SQLite
// repository for tests.
package plantest

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/fiberplant/internal/model"
	"github.com/mesh-intelligence/fiberplant/internal/sqlite"
	"github.com/mesh-intelligence/fiberplant/pkg/types"
)

// Fixture is an attached repository with the default layout defined and an
// edit session open.
type Fixture struct {
	T     testing.TB
	Ctx   context.Context
	Repo  *sqlite.Backend
	Names types.SchemaConfig
	Cache *model.FieldCache
}

// New attaches a repository in a temporary directory, defines the default
// layout, and opens an edit session. The session is discarded and the
// repository detached on cleanup.
func New(t testing.TB) *Fixture {
	t.Helper()
	ctx := context.Background()
	cfg := types.DefaultConfig(t.TempDir())

	repo := sqlite.NewBackend()
	require.NoError(t, repo.Attach(cfg))
	t.Cleanup(func() {
		if repo.IsEditing() {
			_ = repo.EndEdit(ctx, false)
		}
		_ = repo.Detach()
	})

	require.NoError(t, model.DefineLayout(ctx, repo, cfg.Schema))
	require.NoError(t, repo.BeginEdit(ctx))

	return &Fixture{
		T:     t,
		Ctx:   ctx,
		Repo:  repo,
		Names: cfg.Schema,
		Cache: model.NewFieldCache(repo, cfg.Schema),
	}
}

// Op runs fn inside an edit operation, opening one when none is active.
func (f *Fixture) Op(fn func()) {
	f.T.Helper()
	if f.Repo.InOperation() {
		fn()
		return
	}
	require.NoError(f.T, f.Repo.BeginOperation(f.Ctx))
	fn()
	require.NoError(f.T, f.Repo.EndOperation(f.Ctx))
}

// CableSpec describes a cable fixture. Nil counts are stored as null.
type CableSpec struct {
	IPID        any
	Buffers     any
	Fibers      any
	TubeRecords int
	FiberRecs   int
	Shape       []types.Point
}

// Cable inserts a cable with TubeRecords related buffer tubes and
// FiberRecs related fibers.
func (f *Fixture) Cable(spec CableSpec) *model.Cable {
	f.T.Helper()
	var cable *model.Cable
	f.Op(func() {
		rec := f.newRecord(f.Names.Classes.Cable)
		f.set(rec, f.Names.Fields.IPID, spec.IPID)
		f.set(rec, f.Names.Fields.BufferCount, spec.Buffers)
		f.set(rec, f.Names.Fields.FiberCount, spec.Fibers)
		rec.Shape = spec.Shape
		f.insert(rec)

		f.children(rec, f.Names.Classes.BufferTube, f.Names.Relations.CableBuffer, model.FieldTubeNumber, spec.TubeRecords)
		f.children(rec, f.Names.Classes.Fiber, f.Names.Relations.CableFiber, model.FieldStrandNumber, spec.FiberRecs)

		var err error
		cable, err = f.Cache.WrapCable(f.Ctx, rec)
		require.NoError(f.T, err)
	})
	return cable
}

// Device inserts a device of the base device class.
func (f *Fixture) Device(ipid string, input, output int) *model.Device {
	f.T.Helper()
	return f.DeviceOf(f.Names.Classes.Device, ipid, input, output)
}

// DeviceOf inserts a device of class, which may be a device subtype.
func (f *Fixture) DeviceOf(class, ipid string, input, output int) *model.Device {
	f.T.Helper()
	var dev *model.Device
	f.Op(func() {
		rec := f.newRecord(class)
		f.set(rec, f.Names.Fields.IPID, ipid)
		f.set(rec, f.Names.Fields.InputPorts, int64(input))
		f.set(rec, f.Names.Fields.OutputPorts, int64(output))
		rec.Shape = []types.Point{{X: 0, Y: 0}}
		f.insert(rec)

		var err error
		dev, err = f.Cache.WrapDevice(f.Ctx, rec)
		require.NoError(f.T, err)
	})
	return dev
}

// Closure inserts a splice closure.
func (f *Fixture) Closure(ipid string) *model.SpliceClosure {
	f.T.Helper()
	var sc *model.SpliceClosure
	f.Op(func() {
		rec := f.newRecord(f.Names.Classes.SpliceClosure)
		f.set(rec, f.Names.Fields.IPID, ipid)
		f.insert(rec)

		var err error
		sc, err = f.Cache.WrapSpliceClosure(f.Ctx, rec)
		require.NoError(f.T, err)
	})
	return sc
}

// Splice inserts a splice between strand 1 of a and b, related to both
// cables and to closure when it is not nil.
func (f *Fixture) Splice(a, b *model.Cable, closure *model.SpliceClosure) *types.Record {
	f.T.Helper()
	var rec *types.Record
	f.Op(func() {
		sp, err := f.Cache.NewSplice(f.Ctx, model.PairedJoinEnds{
			A: model.JoinEnd{Cable: a, End: model.EndTo},
			B: model.JoinEnd{Cable: b, End: model.EndFrom},
		}, 1, 1, closure)
		require.NoError(f.T, err)
		rec = sp.Record()
		f.insert(rec)

		f.relate(f.Names.Relations.CableSplice, a.Record(), rec)
		f.relate(f.Names.Relations.CableSplice, b.Record(), rec)
		if closure != nil {
			f.relate(f.Names.Relations.ClosureSplice, closure.Record(), rec)
		}
	})
	return rec
}

// Connection inserts a connection from strand 1 of cable to input port 1 of
// dev.
func (f *Fixture) Connection(cable *model.Cable, dev *model.Device) *types.Record {
	f.T.Helper()
	var rec *types.Record
	f.Op(func() {
		cn, err := f.Cache.NewConnection(f.Ctx, model.JoinEnd{Cable: cable, End: model.EndFrom}, 1, dev, 1, model.PortInput)
		require.NoError(f.T, err)
		rec = cn.Record()
		f.insert(rec)

		f.relate(f.Names.Relations.CableConnection, cable.Record(), rec)
		if strings.EqualFold(dev.Record().Class, f.Names.Classes.Device) {
			f.relate(f.Names.Relations.DeviceConnection, dev.Record(), rec)
		}
	})
	return rec
}

// Count returns the number of records related to rec through relation.
func (f *Fixture) Count(rec *types.Record, relation string) int {
	f.T.Helper()
	n, err := f.Repo.RelatedCount(f.Ctx, rec, relation)
	require.NoError(f.T, err)
	return n
}

// Reload reads rec back from the repository.
func (f *Fixture) Reload(rec *types.Record) *types.Record {
	f.T.Helper()
	got, err := f.Repo.Get(f.Ctx, rec.Class, rec.ID)
	require.NoError(f.T, err)
	return got
}

func (f *Fixture) newRecord(class string) *types.Record {
	f.T.Helper()
	s, err := f.Cache.Schema(f.Ctx, class)
	require.NoError(f.T, err)
	return types.NewRecord(s)
}

func (f *Fixture) set(rec *types.Record, field string, v any) {
	f.T.Helper()
	i, err := f.Cache.Index(f.Ctx, rec.Class, field)
	require.NoError(f.T, err)
	rec.Values[i] = v
}

func (f *Fixture) insert(rec *types.Record) {
	f.T.Helper()
	_, err := f.Repo.Insert(f.Ctx, rec)
	require.NoError(f.T, err)
}

func (f *Fixture) relate(relation string, origin, dest *types.Record) {
	f.T.Helper()
	h, err := f.Repo.OpenRelation(f.Ctx, relation)
	require.NoError(f.T, err)
	require.NoError(f.T, h.Relate(f.Ctx, origin, dest))
}

func (f *Fixture) children(parent *types.Record, class, relation, numberField string, n int) {
	f.T.Helper()
	for i := 1; i <= n; i++ {
		rec := f.newRecord(class)
		f.set(rec, numberField, int64(i))
		f.insert(rec)
		f.relate(relation, parent, rec)
	}
}
