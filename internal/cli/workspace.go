package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/mesh-intelligence/fiberplant/internal/defaults"
	"github.com/mesh-intelligence/fiberplant/internal/metrics"
	"github.com/mesh-intelligence/fiberplant/internal/model"
	"github.com/mesh-intelligence/fiberplant/internal/paths"
	"github.com/mesh-intelligence/fiberplant/internal/session"
	"github.com/mesh-intelligence/fiberplant/internal/sqlite"
	"github.com/mesh-intelligence/fiberplant/pkg/types"
)

// workspace is an attached repository plus the services a command needs.
type workspace struct {
	cfg     types.Config
	repo    *sqlite.Backend
	log     *slog.Logger
	metrics *metrics.Metrics
	session *session.Session
}

// open resolves the data directory and attaches the repository. The caller
// must call close.
func (a *app) open() (*workspace, error) {
	dataDir, err := paths.ResolveDataDir(a.flags.dataDir, a.settings.DataDir)
	if err != nil {
		return nil, fmt.Errorf("resolve data dir: %w", err)
	}
	cfg := types.Config{
		Backend: a.settings.Backend,
		DataDir: dataDir,
		Schema:  a.settings.Schema,
	}

	rules := a.settings.Rules
	if rules == nil {
		rules = defaults.StandardRules(cfg.Schema)
	}
	svc, err := defaults.New(rules, defaults.WithLogger(a.log))
	if err != nil {
		return nil, err
	}

	repo := sqlite.NewBackend(sqlite.WithLogger(a.log))
	if err := repo.Attach(cfg); err != nil {
		return nil, fmt.Errorf("attach backend: %w", err)
	}

	m := metrics.New()
	return &workspace{
		cfg:     cfg,
		repo:    repo,
		log:     a.log,
		metrics: m,
		session: session.New(repo, cfg.Schema,
			session.WithLogger(a.log), session.WithMetrics(m), session.WithDefaults(svc)),
	}, nil
}

func (w *workspace) close() error {
	return w.repo.Detach()
}

// edit runs fn in one edit session, saving it when fn succeeds and
// discarding it otherwise.
func (w *workspace) edit(ctx context.Context, fn func(s *session.Session) error) error {
	if err := w.session.Begin(ctx); err != nil {
		return err
	}
	if err := fn(w.session); err != nil {
		if endErr := w.session.End(ctx, false); endErr != nil {
			return errors.Join(err, endErr)
		}
		return err
	}
	return w.session.End(ctx, true)
}

// names returns the workspace's schema names.
func (w *workspace) names() types.SchemaConfig {
	return w.cfg.Schema
}

// find loads the record id from the first of classes that holds it.
func (w *workspace) find(ctx context.Context, id string, classes ...string) (*types.Record, error) {
	for _, class := range classes {
		rec, err := w.repo.Get(ctx, class, id)
		if err == nil {
			return rec, nil
		}
		if !errors.Is(err, types.ErrNotFound) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: %s (%s)", types.ErrNotFound, id, strings.Join(classes, ", "))
}

func (w *workspace) cable(ctx context.Context, cache *model.FieldCache, id string) (*model.Cable, error) {
	rec, err := w.find(ctx, id, w.names().Classes.Cable)
	if err != nil {
		return nil, err
	}
	return cache.WrapCable(ctx, rec)
}

func (w *workspace) device(ctx context.Context, cache *model.FieldCache, id string) (*model.Device, error) {
	classes := append([]string{w.names().Classes.Device}, w.names().Classes.DeviceSubtypes...)
	rec, err := w.find(ctx, id, classes...)
	if err != nil {
		return nil, err
	}
	return cache.WrapDevice(ctx, rec)
}

func (w *workspace) closure(ctx context.Context, cache *model.FieldCache, id string) (*model.SpliceClosure, error) {
	rec, err := w.find(ctx, id, w.names().Classes.SpliceClosure)
	if err != nil {
		return nil, err
	}
	return cache.WrapSpliceClosure(ctx, rec)
}

// parsePoint reads "x,y".
func parsePoint(s string) (types.Point, error) {
	xs, ys, ok := strings.Cut(strings.TrimSpace(s), ",")
	if !ok {
		return types.Point{}, usageErrorf("point %q is not x,y", s)
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(xs), 64)
	if err != nil {
		return types.Point{}, usageErrorf("point %q: %v", s, err)
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(ys), 64)
	if err != nil {
		return types.Point{}, usageErrorf("point %q: %v", s, err)
	}
	return types.Point{X: x, Y: y}, nil
}

// parseShape reads vertices separated by spaces or semicolons.
func parseShape(s string) ([]types.Point, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ';' || r == ' ' })
	shape := make([]types.Point, 0, len(fields))
	for _, f := range fields {
		p, err := parsePoint(f)
		if err != nil {
			return nil, err
		}
		shape = append(shape, p)
	}
	return shape, nil
}

// parseEnd reads "from" or "to".
func parseEnd(s string) (model.End, error) {
	switch strings.ToLower(s) {
	case "from":
		return model.EndFrom, nil
	case "to":
		return model.EndTo, nil
	default:
		return model.EndFrom, usageErrorf("end %q must be from or to", s)
	}
}
