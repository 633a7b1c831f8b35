// Package metrics counts integrity scan outcomes, cascade breaks, and
// endpoint resolutions on a private Prometheus registry.
package metrics

import (
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"
)

// Integrity outcome label values.
const (
	OutcomeBadIdentity = "bad_identity"
	OutcomeBadBuffers  = "bad_buffers"
	OutcomeBadFibers   = "bad_fibers"
	OutcomeConverted   = "converted"
)

// Cascade kind label values.
const (
	KindSplice     = "splice"
	KindConnection = "connection"
)

// Metrics holds the fiberplant collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	RecordsScanned prometheus.Counter
	Findings       *prometheus.CounterVec
	JoinsBroken    *prometheus.CounterVec
	Resolutions    *prometheus.CounterVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		RecordsScanned: f.NewCounter(prometheus.CounterOpts{
			Name: "fiberplant_integrity_records_scanned_total",
			Help: "Cable records visited by integrity scans",
		}),
		Findings: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fiberplant_integrity_findings_total",
			Help: "Integrity scan classifications by outcome",
		}, []string{"outcome"}),
		JoinsBroken: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fiberplant_cascade_joins_broken_total",
			Help: "Splices and connections removed by cascade deletion",
		}, []string{"kind"}),
		Resolutions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fiberplant_endpoint_resolutions_total",
			Help: "Endpoint resolutions by deciding rule",
		}, []string{"rule"}),
	}
}

func (m *Metrics) Scanned() {
	if m == nil {
		return
	}
	m.RecordsScanned.Inc()
}

func (m *Metrics) Finding(outcome string) {
	if m == nil {
		return
	}
	m.Findings.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Broken(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.JoinsBroken.WithLabelValues(kind).Add(float64(n))
}

func (m *Metrics) Resolved(rule string) {
	if m == nil {
		return
	}
	m.Resolutions.WithLabelValues(rule).Inc()
}

// WriteText writes every gathered family in the Prometheus text format.
func (m *Metrics) WriteText(w io.Writer) error {
	if m == nil {
		return nil
	}
	families, err := m.Registry.Gather()
	if err != nil {
		return fmt.Errorf("gathering metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("writing metrics: %w", err)
		}
	}
	return nil
}
