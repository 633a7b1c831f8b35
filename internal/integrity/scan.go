// Package integrity audits the count fields of every cable and normalizes
// fiber counts that were entered as a cable total instead of a per-tube
// value.
package integrity

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mesh-intelligence/fiberplant/internal/logging"
	"github.com/mesh-intelligence/fiberplant/internal/metrics"
	"github.com/mesh-intelligence/fiberplant/internal/model"
	"github.com/mesh-intelligence/fiberplant/pkg/types"
)

// Outcome classifies one cable.
type Outcome int

const (
	Healthy Outcome = iota
	BadIdentity
	BadBuffers
	BadFibers
	Converted
	// Fault marks a trail entry for an error that stopped the scan.
	Fault
)

func (o Outcome) String() string {
	switch o {
	case BadIdentity:
		return metrics.OutcomeBadIdentity
	case BadBuffers:
		return metrics.OutcomeBadBuffers
	case BadFibers:
		return metrics.OutcomeBadFibers
	case Converted:
		return metrics.OutcomeConverted
	case Fault:
		return "fault"
	default:
		return "healthy"
	}
}

// Entry is one line of the scan's trail.
type Entry struct {
	Time    time.Time
	Level   slog.Level
	Outcome Outcome
	CableID string
	IPID    string
	Message string
}

// Summary is the aggregate result of a scan. It carries no per-record
// results beyond the trail.
type Summary struct {
	HadBadIdentity bool
	HadBadBuffers  bool
	HadBadFibers   bool
	DidConvert     bool

	Scanned int
	Trail   []Entry
}

// Clean reports whether the scan found nothing to flag or convert.
func (s Summary) Clean() bool {
	return !s.HadBadIdentity && !s.HadBadBuffers && !s.HadBadFibers && !s.DidConvert
}

// Scanner runs integrity scans over the cable class.
type Scanner struct {
	repo    types.Repository
	cache   *model.FieldCache
	log     *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithLogger sets the scanner's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scanner) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetrics records scan outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scanner) { s.metrics = m }
}

// New creates a Scanner over repo using the session's field cache.
func New(repo types.Repository, cache *model.FieldCache, opts ...Option) *Scanner {
	s := &Scanner{repo: repo, cache: cache, log: logging.Discard(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan visits every cable once inside the caller's edit operation. Defects
// are findings and never stop the scan; the only write is the fiber count
// of converted cables. On error the returned summary covers the cables
// visited so far and the caller is expected to abort the operation.
func (s *Scanner) Scan(ctx context.Context) (Summary, error) {
	var sum Summary
	if !s.repo.InOperation() {
		return sum, types.ErrTransactionState
	}

	cur, err := s.repo.UpdateCursor(ctx, s.cache.Names().Classes.Cable, nil)
	if err != nil {
		return sum, s.fault(ctx, &sum, nil, err)
	}
	defer cur.Close()

	for cur.Next() {
		cable, err := s.cache.WrapCable(ctx, cur.Record())
		if err != nil {
			return sum, s.fault(ctx, &sum, cur.Record(), err)
		}
		sum.Scanned++
		s.metrics.Scanned()

		if err := s.check(ctx, &sum, cur, cable); err != nil {
			return sum, s.fault(ctx, &sum, cable.Record(), err)
		}
	}
	if err := cur.Err(); err != nil {
		return sum, s.fault(ctx, &sum, nil, err)
	}

	s.log.Info("integrity scan complete",
		"scanned", sum.Scanned,
		"bad_identity", sum.HadBadIdentity,
		"bad_buffers", sum.HadBadBuffers,
		"bad_fibers", sum.HadBadFibers,
		"converted", sum.DidConvert)
	return sum, nil
}

// check classifies one cable. The first step that finds anything ends the
// evaluation; within a step both count fields are reported.
func (s *Scanner) check(ctx context.Context, sum *Summary, cur types.Cursor, cable *model.Cable) error {
	if !cable.HasIPID() {
		s.finding(ctx, sum, cable, BadIdentity, "identity is missing")
		return nil
	}

	flagged := false
	if cable.BufferTubeCountIsNull() {
		s.finding(ctx, sum, cable, BadBuffers, "buffer tube count is null")
		flagged = true
	}
	if cable.FiberCountIsNull() {
		s.finding(ctx, sum, cable, BadFibers, "fiber count is null")
		flagged = true
	}
	if flagged {
		return nil
	}

	buffers, fibers := cable.BufferTubeCount(), cable.FiberCount()
	if buffers <= 0 {
		s.finding(ctx, sum, cable, BadBuffers, fmt.Sprintf("buffer tube count is %s", countText(buffers)))
		flagged = true
	}
	if fibers <= 0 {
		s.finding(ctx, sum, cable, BadFibers, fmt.Sprintf("fiber count is %s", countText(fibers)))
		flagged = true
	}
	if flagged {
		return nil
	}

	rels := s.cache.Names().Relations
	relBuffers, err := s.repo.RelatedCount(ctx, cable.Record(), rels.CableBuffer)
	if err != nil {
		return err
	}
	relFibers, err := s.repo.RelatedCount(ctx, cable.Record(), rels.CableFiber)
	if err != nil {
		return err
	}
	if relBuffers == 0 {
		s.finding(ctx, sum, cable, BadBuffers, "no related buffer tubes")
		flagged = true
	}
	if relFibers == 0 {
		s.finding(ctx, sum, cable, BadFibers, "no related fibers")
		flagged = true
	}
	if flagged {
		return nil
	}

	if buffers != relBuffers {
		s.finding(ctx, sum, cable, BadBuffers,
			fmt.Sprintf("buffer tube count %d does not match %d related buffer tubes", buffers, relBuffers))
		return nil
	}
	if relFibers%relBuffers != 0 {
		s.finding(ctx, sum, cable, BadFibers,
			fmt.Sprintf("%d related fibers do not divide evenly into %d buffer tubes", relFibers, relBuffers))
		return nil
	}

	if fibers == relFibers && buffers > 1 {
		perTube := relFibers / buffers
		cable.SetFiberCount(perTube)
		if err := cur.Update(ctx); err != nil {
			return err
		}
		s.finding(ctx, sum, cable, Converted,
			fmt.Sprintf("fiber count converted from total %d to %d per tube", fibers, perTube))
	}
	return nil
}

// countText describes a count that is not positive. Negative and
// non-numeric values are both flagged: neither can describe a cable.
func countText(n int) string {
	if n < 0 {
		return "negative or unreadable"
	}
	return "zero"
}

// finding records one classification in the summary, the trail, the log,
// and the metrics.
func (s *Scanner) finding(ctx context.Context, sum *Summary, cable *model.Cable, o Outcome, msg string) {
	level := slog.LevelWarn
	switch o {
	case BadIdentity:
		sum.HadBadIdentity = true
	case BadBuffers:
		sum.HadBadBuffers = true
	case BadFibers:
		sum.HadBadFibers = true
	case Converted:
		sum.DidConvert = true
		level = slog.LevelInfo
	}

	e := Entry{
		Time:    s.now(),
		Level:   level,
		Outcome: o,
		CableID: cable.ID(),
		IPID:    cable.IPID(),
		Message: msg,
	}
	sum.Trail = append(sum.Trail, e)
	s.metrics.Finding(o.String())
	s.log.Log(ctx, level, msg, "cable", e.CableID, "ipid", e.IPID, "outcome", o.String())
}

// fault records err in the trail and log and returns it.
func (s *Scanner) fault(ctx context.Context, sum *Summary, rec *types.Record, err error) error {
	e := Entry{
		Time:    s.now(),
		Level:   slog.LevelError,
		Outcome: Fault,
		Message: err.Error(),
	}
	if rec != nil {
		e.CableID = rec.ID
	}
	sum.Trail = append(sum.Trail, e)
	s.log.Log(ctx, slog.LevelError, "integrity scan failed", "cable", e.CableID, "error", err)
	return fmt.Errorf("integrity scan: %w", err)
}
