// Package cascade removes the splices and connections that depend on a cable
// or splice closure before the record itself is deleted.
package cascade

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mesh-intelligence/fiberplant/internal/logging"
	"github.com/mesh-intelligence/fiberplant/internal/metrics"
	"github.com/mesh-intelligence/fiberplant/internal/model"
	"github.com/mesh-intelligence/fiberplant/pkg/types"
)

// Result counts the joins a cascade broke.
type Result struct {
	Splices     int
	Connections int
}

// Coordinator breaks dependent joins inside the caller's edit operation.
// Breaking a join deletes the splice or connection record; the cables,
// devices, and closures on its other side are never touched.
type Coordinator struct {
	repo    types.Repository
	cache   *model.FieldCache
	log     *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the coordinator's logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.log = l
		}
	}
}

// WithMetrics records broken joins on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// New creates a Coordinator over repo using the session's field cache.
func New(repo types.Repository, cache *model.FieldCache, opts ...Option) *Coordinator {
	c := &Coordinator{repo: repo, cache: cache, log: logging.Discard()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dispatch runs the cascade matching the class of a record about to be
// deleted. Classes other than the cable and splice closure classes are
// ignored.
func (c *Coordinator) Dispatch(ctx context.Context, rec *types.Record) (Result, error) {
	if rec == nil {
		return Result{}, fmt.Errorf("%w: nil record", types.ErrArgument)
	}
	names := c.cache.Names()
	switch {
	case names.IsCableClass(rec.Class):
		cable, err := c.cache.WrapCable(ctx, rec)
		if err != nil {
			return Result{}, err
		}
		return c.OnCableDeleted(ctx, cable)
	case names.IsSpliceClosureClass(rec.Class):
		closure, err := c.cache.WrapSpliceClosure(ctx, rec)
		if err != nil {
			return Result{}, err
		}
		return c.OnSpliceClosureDeleted(ctx, closure)
	default:
		return Result{}, nil
	}
}

// OnCableDeleted breaks every splice and connection referencing cable.
// A cable without dependents is a no-op.
func (c *Coordinator) OnCableDeleted(ctx context.Context, cable *model.Cable) (Result, error) {
	if cable == nil {
		return Result{}, fmt.Errorf("%w: nil cable", types.ErrArgument)
	}
	if !c.repo.InOperation() {
		return Result{}, types.ErrTransactionState
	}
	rels := c.cache.Names().Relations

	var res Result
	var err error
	if res.Splices, err = c.breakAll(ctx, cable.Record(), rels.CableSplice); err != nil {
		return res, err
	}
	c.metrics.Broken(metrics.KindSplice, res.Splices)

	if res.Connections, err = c.breakAll(ctx, cable.Record(), rels.CableConnection); err != nil {
		return res, err
	}
	c.metrics.Broken(metrics.KindConnection, res.Connections)

	c.log.Info("cable joins broken",
		"cable", cable.String(), "splices", res.Splices, "connections", res.Connections)
	return res, nil
}

// OnSpliceClosureDeleted breaks every splice housed in closure.
func (c *Coordinator) OnSpliceClosureDeleted(ctx context.Context, closure *model.SpliceClosure) (Result, error) {
	if closure == nil {
		return Result{}, fmt.Errorf("%w: nil splice closure", types.ErrArgument)
	}
	if !c.repo.InOperation() {
		return Result{}, types.ErrTransactionState
	}

	n, err := c.breakAll(ctx, closure.Record(), c.cache.Names().Relations.ClosureSplice)
	if err != nil {
		return Result{Splices: n}, err
	}
	c.metrics.Broken(metrics.KindSplice, n)

	c.log.Info("closure splices broken", "closure", closure.ID(), "ipid", closure.IPID(), "splices", n)
	return Result{Splices: n}, nil
}

// OnDeviceDeleted breaks every connection to dev. Connections are found by
// their device field, which also covers subtype devices that carry no
// device_connection rows.
func (c *Coordinator) OnDeviceDeleted(ctx context.Context, dev *model.Device) (Result, error) {
	if dev == nil {
		return Result{}, fmt.Errorf("%w: nil device", types.ErrArgument)
	}
	if !c.repo.InOperation() {
		return Result{}, types.ErrTransactionState
	}

	cur, err := c.repo.UpdateCursor(ctx, c.cache.Names().Classes.Connection, types.Filter{model.ConnDevice: dev.ID()})
	if err != nil {
		return Result{}, fmt.Errorf("finding connections of device %s: %w", dev.ID(), err)
	}
	var conns []*types.Record
	for cur.Next() {
		conns = append(conns, cur.Record())
	}
	err = cur.Err()
	if closeErr := cur.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return Result{}, fmt.Errorf("finding connections of device %s: %w", dev.ID(), err)
	}

	for i, cn := range conns {
		if err := c.repo.Delete(ctx, cn); err != nil {
			return Result{Connections: i}, fmt.Errorf("breaking connection %s: %w", cn.ID, err)
		}
		c.log.Debug("join broken", "connection", cn.ID, "device", dev.ID())
	}
	c.metrics.Broken(metrics.KindConnection, len(conns))

	c.log.Info("device connections broken", "device", dev.ID(), "ipid", dev.IPID(), "connections", len(conns))
	return Result{Connections: len(conns)}, nil
}

// breakAll deletes every record related to origin through relation and
// returns how many were removed.
func (c *Coordinator) breakAll(ctx context.Context, origin *types.Record, relation string) (int, error) {
	joins, err := c.repo.Related(ctx, origin, relation)
	if err != nil {
		return 0, fmt.Errorf("finding %s joins of %s: %w", relation, origin.ID, err)
	}
	for i, j := range joins {
		if err := c.repo.Delete(ctx, j); err != nil {
			return i, fmt.Errorf("breaking %s join %s: %w", relation, j.ID, err)
		}
		c.log.Debug("join broken", "relation", relation, "join", j.ID, "origin", origin.ID)
	}
	return len(joins), nil
}
