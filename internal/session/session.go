// Package session is the editing boundary of the connectivity model. The
// editing shell calls Begin, then any number of deletes, joins, and
// integrity runs, then End. Nothing here is global; every session owns its
// field cache.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mesh-intelligence/fiberplant/internal/cascade"
	"github.com/mesh-intelligence/fiberplant/internal/defaults"
	"github.com/mesh-intelligence/fiberplant/internal/integrity"
	"github.com/mesh-intelligence/fiberplant/internal/joins"
	"github.com/mesh-intelligence/fiberplant/internal/logging"
	"github.com/mesh-intelligence/fiberplant/internal/metrics"
	"github.com/mesh-intelligence/fiberplant/internal/model"
	"github.com/mesh-intelligence/fiberplant/pkg/types"
)

// Session drives one edit session on a repository.
type Session struct {
	repo     types.Repository
	names    types.SchemaConfig
	log      *slog.Logger
	metrics  *metrics.Metrics
	defaults *defaults.Service

	cache   *model.FieldCache // nil outside an edit session
	cascade *cascade.Coordinator
	scanner *integrity.Scanner
	joiner  *joins.Joiner
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger handed to every component.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetrics sets the metrics handed to every component.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithDefaults applies d to records created or changed through the session.
func WithDefaults(d *defaults.Service) Option {
	return func(s *Session) { s.defaults = d }
}

// New returns an inactive session over repo.
func New(repo types.Repository, names types.SchemaConfig, opts ...Option) *Session {
	s := &Session{repo: repo, names: names, log: logging.Discard()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Begin opens an edit session and builds a fresh field cache.
func (s *Session) Begin(ctx context.Context) error {
	if s.cache != nil {
		return fmt.Errorf("%w: session already active", types.ErrTransactionState)
	}
	if err := s.repo.BeginEdit(ctx); err != nil {
		return err
	}
	s.cache = model.NewFieldCache(s.repo, s.names)
	s.cascade = cascade.New(s.repo, s.cache, cascade.WithLogger(s.log), cascade.WithMetrics(s.metrics))
	s.scanner = integrity.New(s.repo, s.cache, integrity.WithLogger(s.log), integrity.WithMetrics(s.metrics))
	s.joiner = joins.New(s.repo, s.cache,
		joins.WithLogger(s.log), joins.WithMetrics(s.metrics), joins.WithDefaults(s.defaults))
	s.log.Debug("session started")
	return nil
}

// Active reports whether the session is between Begin and End.
func (s *Session) Active() bool {
	return s.cache != nil
}

// Cache returns the session's field cache, or nil when inactive.
func (s *Session) Cache() *model.FieldCache {
	return s.cache
}

// End closes the edit session, saving or discarding its writes, and drops
// the field cache.
func (s *Session) End(ctx context.Context, save bool) error {
	if s.cache == nil {
		return fmt.Errorf("%w: no active session", types.ErrTransactionState)
	}
	s.cache.Invalidate()
	s.cache, s.cascade, s.scanner, s.joiner = nil, nil, nil, nil
	if err := s.repo.EndEdit(ctx, save); err != nil {
		return err
	}
	s.log.Debug("session ended", "saved", save)
	return nil
}

// NotifyDelete breaks the joins that depend on rec, which the caller is
// about to delete inside its current edit operation.
func (s *Session) NotifyDelete(ctx context.Context, rec *types.Record) (cascade.Result, error) {
	if s.cache == nil {
		return cascade.Result{}, fmt.Errorf("%w: no active session", types.ErrTransactionState)
	}
	return s.cascade.Dispatch(ctx, rec)
}

// Delete removes rec and the joins that depend on it in one edit
// operation. A device takes its connections with it; cables and closures
// go through the cascade dispatch.
func (s *Session) Delete(ctx context.Context, rec *types.Record) (cascade.Result, error) {
	var res cascade.Result
	err := s.operation(ctx, func() error {
		var err error
		if rec != nil && s.names.IsDeviceClass(rec.Class) {
			res, err = s.deleteDeviceJoins(ctx, rec)
		} else {
			res, err = s.cascade.Dispatch(ctx, rec)
		}
		if err != nil {
			return err
		}
		return s.repo.Delete(ctx, rec)
	})
	return res, err
}

func (s *Session) deleteDeviceJoins(ctx context.Context, rec *types.Record) (cascade.Result, error) {
	dev, err := s.cache.WrapDevice(ctx, rec)
	if err != nil {
		return cascade.Result{}, err
	}
	return s.cascade.OnDeviceDeleted(ctx, dev)
}

// RunIntegrity scans every cable in one edit operation. If the scan fails
// the operation is aborted and no conversion survives.
func (s *Session) RunIntegrity(ctx context.Context) (integrity.Summary, error) {
	var sum integrity.Summary
	err := s.operation(ctx, func() error {
		var err error
		sum, err = s.scanner.Scan(ctx)
		return err
	})
	return sum, err
}

// Splice creates a splice in one edit operation.
func (s *Session) Splice(ctx context.Context, req joins.SpliceRequest) (joins.SpliceResult, error) {
	var res joins.SpliceResult
	err := s.operation(ctx, func() error {
		var err error
		res, err = s.joiner.CreateSplice(ctx, req)
		return err
	})
	return res, err
}

// MoveSplice rehouses a splice in one edit operation.
func (s *Session) MoveSplice(ctx context.Context, sp *model.Splice, closure *model.SpliceClosure) error {
	return s.operation(ctx, func() error {
		return s.joiner.MoveSplice(ctx, sp, closure)
	})
}

// Connect creates a connection in one edit operation.
func (s *Session) Connect(ctx context.Context, req joins.ConnectionRequest) (*model.Connection, error) {
	var cn *model.Connection
	err := s.operation(ctx, func() error {
		var err error
		cn, err = s.joiner.CreateConnection(ctx, req)
		return err
	})
	return cn, err
}

// Insert applies create-mode defaults to rec and stores it, followed by
// relate, which may add relation rows for the new record in the same
// operation. relate may be nil.
func (s *Session) Insert(ctx context.Context, rec *types.Record, relate func(*types.Record) error) error {
	return s.operation(ctx, func() error {
		if err := s.defaults.Apply(ctx, s.cache, rec, defaults.Create); err != nil {
			return err
		}
		if _, err := s.repo.Insert(ctx, rec); err != nil {
			return err
		}
		if relate != nil {
			return relate(rec)
		}
		return nil
	})
}

// Update applies change-mode defaults to rec and stores it.
func (s *Session) Update(ctx context.Context, rec *types.Record) error {
	return s.operation(ctx, func() error {
		if err := s.defaults.Apply(ctx, s.cache, rec, defaults.Change); err != nil {
			return err
		}
		return s.repo.Store(ctx, rec)
	})
}

// operation runs fn inside one edit operation, aborting it when fn fails.
func (s *Session) operation(ctx context.Context, fn func() error) error {
	if s.cache == nil {
		return fmt.Errorf("%w: no active session", types.ErrTransactionState)
	}
	if err := s.repo.BeginOperation(ctx); err != nil {
		return err
	}
	if err := fn(); err != nil {
		s.log.Error("edit operation aborted", "error", err)
		if abortErr := s.repo.AbortOperation(ctx); abortErr != nil {
			return errors.Join(err, abortErr)
		}
		return err
	}
	return s.repo.EndOperation(ctx)
}
