// Package joins creates splices between two cables and connections between
// a cable and a device port. Choosing which strand or port to join is the
// caller's business.
package joins

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mesh-intelligence/fiberplant/internal/defaults"
	"github.com/mesh-intelligence/fiberplant/internal/endpoint"
	"github.com/mesh-intelligence/fiberplant/internal/logging"
	"github.com/mesh-intelligence/fiberplant/internal/metrics"
	"github.com/mesh-intelligence/fiberplant/internal/model"
	"github.com/mesh-intelligence/fiberplant/pkg/types"
)

// Joiner writes joins inside the caller's edit operation.
type Joiner struct {
	repo     types.Repository
	cache    *model.FieldCache
	defaults *defaults.Service
	log      *slog.Logger
	metrics  *metrics.Metrics
}

// Option configures a Joiner.
type Option func(*Joiner)

// WithLogger sets the joiner's logger.
func WithLogger(l *slog.Logger) Option {
	return func(j *Joiner) {
		if l != nil {
			j.log = l
		}
	}
}

// WithMetrics records endpoint resolutions on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(j *Joiner) { j.metrics = m }
}

// WithDefaults applies create-mode defaults to every new join record.
func WithDefaults(d *defaults.Service) Option {
	return func(j *Joiner) { j.defaults = d }
}

// New creates a Joiner over repo using the session's field cache.
func New(repo types.Repository, cache *model.FieldCache, opts ...Option) *Joiner {
	j := &Joiner{repo: repo, cache: cache, log: logging.Discard()}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// SpliceRequest describes a splice between strand AStrand of A and strand
// BStrand of B. Ends, when set, fixes the polarity; otherwise the endpoint
// resolver picks it from the cable geometry.
type SpliceRequest struct {
	A, B             *model.Cable
	AStrand, BStrand int
	Closure          *model.SpliceClosure
	Ends             *model.PairedJoinEnds
}

// SpliceResult is a stored splice. Resolution is nil when the caller
// supplied the polarity.
type SpliceResult struct {
	Splice     *model.Splice
	Resolution *endpoint.Resolution
}

// CreateSplice stores a splice and relates it to both cables and, when
// given, the closure.
func (j *Joiner) CreateSplice(ctx context.Context, req SpliceRequest) (SpliceResult, error) {
	var res SpliceResult
	if req.A == nil || req.B == nil {
		return res, fmt.Errorf("%w: splice needs two cables", types.ErrArgument)
	}
	if !j.repo.InOperation() {
		return res, types.ErrTransactionState
	}
	if err := checkStrand(req.A, req.AStrand); err != nil {
		return res, err
	}
	if err := checkStrand(req.B, req.BStrand); err != nil {
		return res, err
	}

	var ends model.PairedJoinEnds
	if req.Ends != nil {
		ends = model.PairedJoinEnds{
			A: model.JoinEnd{Cable: req.A, End: req.Ends.A.End},
			B: model.JoinEnd{Cable: req.B, End: req.Ends.B.End},
		}
	} else {
		r := endpoint.Resolve(req.A, req.B)
		j.metrics.Resolved(r.Rule.String())
		if !r.Resolved() {
			j.log.Warn("cable ends do not meet, using default orientation",
				"a", req.A.String(), "b", req.B.String())
		}
		ends = r.Ends
		res.Resolution = &r
	}

	sp, err := j.cache.NewSplice(ctx, ends, req.AStrand, req.BStrand, req.Closure)
	if err != nil {
		return res, err
	}
	if err := j.insert(ctx, sp.Record()); err != nil {
		return res, err
	}

	rels := j.cache.Names().Relations
	if err := j.relate(ctx, rels.CableSplice, req.A.Record(), sp.Record()); err != nil {
		return res, err
	}
	if err := j.relate(ctx, rels.CableSplice, req.B.Record(), sp.Record()); err != nil {
		return res, err
	}
	if req.Closure != nil {
		if err := j.relate(ctx, rels.ClosureSplice, req.Closure.Record(), sp.Record()); err != nil {
			return res, err
		}
	}

	j.log.Debug("splice created", "splice", sp.ID(),
		"a", req.A.String(), "a_end", ends.A.End, "b", req.B.String(), "b_end", ends.B.End)
	res.Splice = sp
	return res, nil
}

// MoveSplice rehouses sp in closure, or takes it out of any closure when
// closure is nil. The closure_splice row of the previous closure is
// removed; a previous closure that no longer exists is ignored.
func (j *Joiner) MoveSplice(ctx context.Context, sp *model.Splice, closure *model.SpliceClosure) error {
	if sp == nil {
		return fmt.Errorf("%w: nil splice", types.ErrArgument)
	}
	if !j.repo.InOperation() {
		return types.ErrTransactionState
	}
	names := j.cache.Names()
	h, err := j.repo.OpenRelation(ctx, names.Relations.ClosureSplice)
	if err != nil {
		return err
	}

	from := sp.ClosureID()
	if from != "" {
		old, err := j.repo.Get(ctx, names.Classes.SpliceClosure, from)
		switch {
		case errors.Is(err, types.ErrNotFound):
		case err != nil:
			return err
		default:
			if err := h.Unrelate(ctx, old, sp.Record()); err != nil && !errors.Is(err, types.ErrNotFound) {
				return err
			}
		}
	}

	sp.SetClosure(closure)
	if err := j.defaults.Apply(ctx, j.cache, sp.Record(), defaults.Change); err != nil {
		return err
	}
	if err := j.repo.Store(ctx, sp.Record()); err != nil {
		return err
	}
	if closure != nil {
		if err := h.Relate(ctx, closure.Record(), sp.Record()); err != nil {
			return err
		}
	}

	j.log.Debug("splice moved", "splice", sp.ID(), "from", from, "to", sp.ClosureID())
	return nil
}

// ConnectionRequest describes a connection from a strand at one end of a
// cable to a device port.
type ConnectionRequest struct {
	End      model.JoinEnd
	Strand   int
	Device   *model.Device
	Port     int
	PortType string
}

// CreateConnection stores a connection and relates it to the cable and
// device.
func (j *Joiner) CreateConnection(ctx context.Context, req ConnectionRequest) (*model.Connection, error) {
	if req.End.Cable == nil || req.Device == nil {
		return nil, fmt.Errorf("%w: connection needs a cable and a device", types.ErrArgument)
	}
	if !j.repo.InOperation() {
		return nil, types.ErrTransactionState
	}
	if err := checkStrand(req.End.Cable, req.Strand); err != nil {
		return nil, err
	}
	portType := strings.ToLower(req.PortType)
	ports := req.Device.Ports(portType)
	if ports < 0 {
		return nil, fmt.Errorf("%w: device %s has no known %q port count", types.ErrArgument, req.Device.ID(), req.PortType)
	}
	if req.Port < 1 || req.Port > ports {
		return nil, fmt.Errorf("%w: %s port %d outside 1..%d", types.ErrArgument, portType, req.Port, ports)
	}

	cn, err := j.cache.NewConnection(ctx, req.End, req.Strand, req.Device, req.Port, portType)
	if err != nil {
		return nil, err
	}
	if err := j.insert(ctx, cn.Record()); err != nil {
		return nil, err
	}

	names := j.cache.Names()
	if err := j.relate(ctx, names.Relations.CableConnection, req.End.Cable.Record(), cn.Record()); err != nil {
		return nil, err
	}
	// Subtype devices are referenced by the connection's device field only;
	// the relation class is defined on the base device class.
	if strings.EqualFold(req.Device.Record().Class, names.Classes.Device) {
		if err := j.relate(ctx, names.Relations.DeviceConnection, req.Device.Record(), cn.Record()); err != nil {
			return nil, err
		}
	}

	j.log.Debug("connection created", "connection", cn.ID(),
		"cable", req.End.Cable.String(), "end", req.End.End, "device", req.Device.ID(), "port", req.Port)
	return cn, nil
}

func checkStrand(c *model.Cable, strand int) error {
	n := c.StrandCount()
	if n <= 0 {
		return fmt.Errorf("%w: cable %s has unknown strand count", types.ErrArgument, c.String())
	}
	if strand < 1 || strand > n {
		return fmt.Errorf("%w: strand %d outside 1..%d of cable %s", types.ErrArgument, strand, n, c.String())
	}
	return nil
}

func (j *Joiner) insert(ctx context.Context, rec *types.Record) error {
	if err := j.defaults.Apply(ctx, j.cache, rec, defaults.Create); err != nil {
		return err
	}
	if _, err := j.repo.Insert(ctx, rec); err != nil {
		return err
	}
	return nil
}

func (j *Joiner) relate(ctx context.Context, relation string, origin, dest *types.Record) error {
	h, err := j.repo.OpenRelation(ctx, relation)
	if err != nil {
		return err
	}
	return h.Relate(ctx, origin, dest)
}
