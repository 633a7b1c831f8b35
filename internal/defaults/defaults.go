// Package defaults stamps computed values onto records when they are
// created or changed.
package defaults

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/mesh-intelligence/fiberplant/internal/logging"
	"github.com/mesh-intelligence/fiberplant/internal/model"
	"github.com/mesh-intelligence/fiberplant/pkg/types"
)

// Mode says when a rule applies.
type Mode int

const (
	Create Mode = iota
	Change
)

func (m Mode) String() string {
	if m == Change {
		return ModeChange
	}
	return ModeCreate
}

// Rule kinds.
const (
	KindTimestamp = "timestamp"
	KindGUID      = "guid"
	KindConstant  = "constant"
	KindCopy      = "copy"
	KindLastValue = "last_value"
)

// Rule modes as written in configuration.
const (
	ModeCreate = "create"
	ModeChange = "change"
	ModeBoth   = "both"
)

// Rule stamps one field of one class.
type Rule struct {
	Class  string `json:"class" yaml:"class" mapstructure:"class" validate:"required"`
	Field  string `json:"field" yaml:"field" mapstructure:"field" validate:"required"`
	Kind   string `json:"kind" yaml:"kind" mapstructure:"kind" validate:"required,oneof=timestamp guid constant copy last_value"`
	Mode   string `json:"mode,omitempty" yaml:"mode,omitempty" mapstructure:"mode" validate:"omitempty,oneof=create change both"`
	Value  any    `json:"value,omitempty" yaml:"value,omitempty" mapstructure:"value"`
	Source string `json:"source,omitempty" yaml:"source,omitempty" mapstructure:"source" validate:"required_if=Kind copy"`
}

// ErrInvalidRule is returned for a rule that fails validation.
var ErrInvalidRule = errors.New("invalid defaulting rule")

var validate = validator.New()

// Validate checks the rule's fields.
func (r Rule) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: %s.%s: %v", ErrInvalidRule, r.Class, r.Field, err)
	}
	if r.Kind == KindConstant && r.Value == nil {
		return fmt.Errorf("%w: %s.%s: constant rule has no value", ErrInvalidRule, r.Class, r.Field)
	}
	return nil
}

func (r Rule) appliesTo(class string, mode Mode) bool {
	if !strings.EqualFold(r.Class, class) {
		return false
	}
	switch r.Mode {
	case ModeBoth:
		return true
	case ModeChange:
		return mode == Change
	default:
		return mode == Create
	}
}

// StandardRules stamps the bookkeeping fields of every feature class.
func StandardRules(names types.SchemaConfig) []Rule {
	var rules []Rule
	features := append([]string{names.Classes.Cable, names.Classes.Device, names.Classes.SpliceClosure},
		names.Classes.DeviceSubtypes...)
	for _, class := range features {
		rules = append(rules,
			Rule{Class: class, Field: model.FieldGlobalID, Kind: KindGUID, Mode: ModeCreate},
			Rule{Class: class, Field: model.FieldCreatedOn, Kind: KindTimestamp, Mode: ModeCreate},
			Rule{Class: class, Field: model.FieldModifiedOn, Kind: KindTimestamp, Mode: ModeBoth},
		)
	}
	for _, class := range []string{names.Classes.Splice, names.Classes.Connection} {
		rules = append(rules,
			Rule{Class: class, Field: model.FieldGlobalID, Kind: KindGUID, Mode: ModeCreate},
			Rule{Class: class, Field: model.FieldCreatedOn, Kind: KindTimestamp, Mode: ModeCreate},
		)
	}
	return rules
}

type lastKey struct {
	class string
	field string
}

// Service applies defaulting rules. Last values are remembered for the
// lifetime of the service.
type Service struct {
	rules []Rule
	last  map[lastKey]any
	log   *slog.Logger
	now   func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithClock replaces time.Now for timestamp rules.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New validates rules and returns a Service.
func New(rules []Rule, opts ...Option) (*Service, error) {
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			return nil, err
		}
	}
	s := &Service{
		rules: append([]Rule(nil), rules...),
		last:  make(map[lastKey]any),
		log:   logging.Discard(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Apply writes the values of every rule matching the record's class and
// mode. Rules naming a field the class does not have are skipped. The
// record is changed in memory only.
func (s *Service) Apply(ctx context.Context, cache *model.FieldCache, rec *types.Record, mode Mode) error {
	if rec == nil {
		return fmt.Errorf("%w: nil record", types.ErrArgument)
	}
	if s == nil {
		return nil
	}
	if _, err := cache.CheckRecord(ctx, rec); err != nil {
		return err
	}
	for _, r := range s.rules {
		if !r.appliesTo(rec.Class, mode) {
			continue
		}
		i, err := cache.Index(ctx, rec.Class, r.Field)
		if errors.Is(err, types.ErrSchema) {
			s.log.Debug("defaulting rule skipped", "class", rec.Class, "field", r.Field, "reason", "no such field")
			continue
		}
		if err != nil {
			return err
		}
		if err := s.applyRule(ctx, cache, rec, r, i); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) applyRule(ctx context.Context, cache *model.FieldCache, rec *types.Record, r Rule, i int) error {
	switch r.Kind {
	case KindTimestamp:
		rec.Values[i] = s.now().UTC().Format(time.RFC3339)
	case KindGUID:
		// A record keeps its identity once stamped.
		if rec.Values[i] == nil {
			id, err := uuid.NewV7()
			if err != nil {
				return fmt.Errorf("generating guid: %w", err)
			}
			rec.Values[i] = id.String()
		}
	case KindConstant:
		rec.Values[i] = r.Value
	case KindCopy:
		src, err := cache.Index(ctx, rec.Class, r.Source)
		if errors.Is(err, types.ErrSchema) {
			s.log.Debug("defaulting rule skipped", "class", rec.Class, "field", r.Field, "reason", "no source field")
			return nil
		}
		if err != nil {
			return err
		}
		rec.Values[i] = rec.Values[src]
	case KindLastValue:
		key := lastKey{strings.ToLower(rec.Class), strings.ToLower(r.Field)}
		if v := rec.Values[i]; v != nil {
			s.last[key] = v
		} else if v, ok := s.last[key]; ok {
			rec.Values[i] = v
		}
	}
	return nil
}
