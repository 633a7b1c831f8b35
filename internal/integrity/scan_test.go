package integrity

import (
	"context"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/fiberplant/internal/metrics"
	"github.com/mesh-intelligence/fiberplant/internal/model"
	"github.com/mesh-intelligence/fiberplant/internal/plantest"
	"github.com/mesh-intelligence/fiberplant/pkg/types"
)

func scan(t *testing.T, f *plantest.Fixture, s *Scanner) Summary {
	t.Helper()
	var sum Summary
	f.Op(func() {
		var err error
		sum, err = s.Scan(f.Ctx)
		require.NoError(t, err)
	})
	return sum
}

func reload(t *testing.T, f *plantest.Fixture, c *model.Cable) *model.Cable {
	t.Helper()
	got, err := f.Cache.WrapCable(f.Ctx, f.Reload(c.Record()))
	require.NoError(t, err)
	return got
}

func outcomes(sum Summary) []Outcome {
	var out []Outcome
	for _, e := range sum.Trail {
		out = append(out, e.Outcome)
	}
	return out
}

func TestScanClassifiesOneCable(t *testing.T) {
	tests := []struct {
		name string
		spec plantest.CableSpec
		want []Outcome
	}{
		{"missing identity", plantest.CableSpec{IPID: nil, Buffers: 0, Fibers: nil}, []Outcome{BadIdentity}},
		{"blank identity", plantest.CableSpec{IPID: " ", Buffers: 2, Fibers: 12, TubeRecords: 2, FiberRecs: 24}, []Outcome{BadIdentity}},
		{"null buffers", plantest.CableSpec{IPID: "C", Buffers: nil, Fibers: 12}, []Outcome{BadBuffers}},
		{"both null", plantest.CableSpec{IPID: "C"}, []Outcome{BadBuffers, BadFibers}},
		{"zero buffers", plantest.CableSpec{IPID: "C", Buffers: 0, Fibers: 12}, []Outcome{BadBuffers}},
		{"zero fibers", plantest.CableSpec{IPID: "C", Buffers: 2, Fibers: 0}, []Outcome{BadFibers}},
		{"unreadable fibers", plantest.CableSpec{IPID: "C", Buffers: 2, Fibers: "lots", TubeRecords: 2, FiberRecs: 24}, []Outcome{BadFibers}},
		{"negative fibers", plantest.CableSpec{IPID: "C", Buffers: 2, Fibers: -5, TubeRecords: 2, FiberRecs: 24}, []Outcome{BadFibers}},
		{"negative buffers", plantest.CableSpec{IPID: "C", Buffers: -2, Fibers: 12, TubeRecords: 2, FiberRecs: 24}, []Outcome{BadBuffers}},
		{"no related records", plantest.CableSpec{IPID: "C", Buffers: 2, Fibers: 12}, []Outcome{BadBuffers, BadFibers}},
		{"no related fibers", plantest.CableSpec{IPID: "C", Buffers: 2, Fibers: 12, TubeRecords: 2}, []Outcome{BadFibers}},
		{"buffer mismatch", plantest.CableSpec{IPID: "C", Buffers: 3, Fibers: 12, TubeRecords: 2, FiberRecs: 24}, []Outcome{BadBuffers}},
		{"uneven fibers", plantest.CableSpec{IPID: "C", Buffers: 2, Fibers: 12, TubeRecords: 2, FiberRecs: 25}, []Outcome{BadFibers}},
		{"uneven fibers whatever the count", plantest.CableSpec{IPID: "C", Buffers: 2, Fibers: 25, TubeRecords: 2, FiberRecs: 25}, []Outcome{BadFibers}},
		{"single tube total", plantest.CableSpec{IPID: "C", Buffers: 1, Fibers: 12, TubeRecords: 1, FiberRecs: 12}, nil},
		{"healthy", plantest.CableSpec{IPID: "C", Buffers: 4, Fibers: 12, TubeRecords: 4, FiberRecs: 48}, nil},
		{"legacy total", plantest.CableSpec{IPID: "C", Buffers: 4, Fibers: 48, TubeRecords: 4, FiberRecs: 48}, []Outcome{Converted}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := plantest.New(t)
			f.Cable(tt.spec)

			sum := scan(t, f, New(f.Repo, f.Cache))
			assert.Equal(t, 1, sum.Scanned)
			assert.Equal(t, tt.want, outcomes(sum))
			assert.Equal(t, tt.want == nil, sum.Clean())
		})
	}
}

func TestScanConvertsLegacyTotal(t *testing.T) {
	f := plantest.New(t)
	m := metrics.New()
	c := f.Cable(plantest.CableSpec{IPID: "C4", Buffers: 4, Fibers: 48, TubeRecords: 4, FiberRecs: 48})

	sum := scan(t, f, New(f.Repo, f.Cache, WithMetrics(m)))
	assert.True(t, sum.DidConvert)
	assert.False(t, sum.HadBadIdentity || sum.HadBadBuffers || sum.HadBadFibers)
	require.Len(t, sum.Trail, 1)
	assert.Equal(t, slog.LevelInfo, sum.Trail[0].Level)
	assert.Equal(t, "C4", sum.Trail[0].IPID)
	assert.False(t, sum.Trail[0].Time.IsZero())

	assert.Equal(t, 12, reload(t, f, c).FiberCount())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Findings.WithLabelValues(metrics.OutcomeConverted)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RecordsScanned))
}

func TestScanLeavesHealthyRecordUntouched(t *testing.T) {
	f := plantest.New(t)
	c := f.Cable(plantest.CableSpec{IPID: "C4", Buffers: 4, Fibers: 12, TubeRecords: 4, FiberRecs: 48})
	before := f.Reload(c.Record())

	sum := scan(t, f, New(f.Repo, f.Cache))
	assert.True(t, sum.Clean())
	assert.Empty(t, sum.Trail)

	after := f.Reload(c.Record())
	assert.Equal(t, before.Values, after.Values)
	assert.Equal(t, before.UpdatedAt, after.UpdatedAt)
}

func TestScanEndToEnd(t *testing.T) {
	f := plantest.New(t)
	c := f.Cable(plantest.CableSpec{IPID: "C1", Buffers: 2, Fibers: 24, TubeRecords: 2, FiberRecs: 24})
	s := New(f.Repo, f.Cache)

	first := scan(t, f, s)
	assert.Equal(t, []Outcome{Converted}, outcomes(first))
	assert.Equal(t, 12, reload(t, f, c).FiberCount())

	second := scan(t, f, s)
	assert.True(t, second.Clean())
	assert.Empty(t, second.Trail)
	assert.Equal(t, 12, reload(t, f, c).FiberCount())
}

func TestScanAggregatesAcrossCables(t *testing.T) {
	f := plantest.New(t)
	f.Cable(plantest.CableSpec{Buffers: 1, Fibers: 12})
	f.Cable(plantest.CableSpec{IPID: "B", Buffers: 3, Fibers: 12, TubeRecords: 2, FiberRecs: 24})
	f.Cable(plantest.CableSpec{IPID: "F", Buffers: 2, Fibers: 12, TubeRecords: 2, FiberRecs: 23})
	f.Cable(plantest.CableSpec{IPID: "T", Buffers: 2, Fibers: 24, TubeRecords: 2, FiberRecs: 24})
	f.Cable(plantest.CableSpec{IPID: "H", Buffers: 2, Fibers: 12, TubeRecords: 2, FiberRecs: 24})

	sum := scan(t, f, New(f.Repo, f.Cache))
	assert.Equal(t, 5, sum.Scanned)
	assert.True(t, sum.HadBadIdentity)
	assert.True(t, sum.HadBadBuffers)
	assert.True(t, sum.HadBadFibers)
	assert.True(t, sum.DidConvert)
	assert.Len(t, sum.Trail, 4)
}

func TestScanRequiresOperation(t *testing.T) {
	f := plantest.New(t)
	_, err := New(f.Repo, f.Cache).Scan(f.Ctx)
	assert.ErrorIs(t, err, types.ErrTransactionState)
}

func TestScanAbortUndoesConversions(t *testing.T) {
	f := plantest.New(t)
	c := f.Cable(plantest.CableSpec{IPID: "C1", Buffers: 2, Fibers: 24, TubeRecords: 2, FiberRecs: 24})

	require.NoError(t, f.Repo.BeginOperation(f.Ctx))
	sum, err := New(f.Repo, f.Cache).Scan(f.Ctx)
	require.NoError(t, err)
	require.True(t, sum.DidConvert)
	require.NoError(t, f.Repo.AbortOperation(f.Ctx))

	assert.Equal(t, 24, reload(t, f, c).FiberCount())
}

// failingRepo fails relationship counts after the first cable.
type failingRepo struct {
	types.Repository
	calls int
}

func (r *failingRepo) RelatedCount(ctx context.Context, rec *types.Record, relation string) (int, error) {
	r.calls++
	if r.calls > 2 {
		return 0, types.ErrDetached
	}
	return r.Repository.RelatedCount(ctx, rec, relation)
}

func TestScanFaultIsReturnedAndLogged(t *testing.T) {
	f := plantest.New(t)
	f.Cable(plantest.CableSpec{IPID: "A", Buffers: 2, Fibers: 24, TubeRecords: 2, FiberRecs: 24})
	f.Cable(plantest.CableSpec{IPID: "B", Buffers: 2, Fibers: 24, TubeRecords: 2, FiberRecs: 24})

	repo := &failingRepo{Repository: f.Repo}
	require.NoError(t, f.Repo.BeginOperation(f.Ctx))
	sum, err := New(repo, f.Cache).Scan(f.Ctx)
	require.ErrorIs(t, err, types.ErrDetached)
	require.NoError(t, f.Repo.AbortOperation(f.Ctx))

	require.NotEmpty(t, sum.Trail)
	last := sum.Trail[len(sum.Trail)-1]
	assert.Equal(t, Fault, last.Outcome)
	assert.Equal(t, slog.LevelError, last.Level)
}
