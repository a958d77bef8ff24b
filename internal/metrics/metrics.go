// Package metrics records ceremony and factor source activity as prometheus series.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "signer"

// Outcome labels
const (
	OutcomeSuccess = "success"
	OutcomeSilent  = "silent"
	OutcomeFailure = "failure"
)

// Metrics is the set of collectors used by the ceremony orchestrator
type Metrics struct {
	ceremonies       *prometheus.CounterVec
	ceremonyDuration *prometheus.HistogramVec
	factorBatches    *prometheus.CounterVec
	factorDuration   *prometheus.HistogramVec
	signatures       *prometheus.CounterVec
}

// New creates the collectors and registers them on reg. A nil reg leaves
// them unregistered, which is what tests that do not scrape want.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ceremonies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ceremony",
			Name:      "total",
			Help:      "Signing ceremonies by payload kind and outcome",
		}, []string{"kind", "outcome", "code"}),
		ceremonyDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ceremony",
			Name:      "duration_seconds",
			Help:      "Wall time of a signing ceremony, including user interaction",
			Buckets:   []float64{0.05, 0.25, 1, 5, 15, 60, 180},
		}, []string{"kind"}),
		factorBatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "factor_source",
			Name:      "batches_total",
			Help:      "Per factor source signing batches by factor source kind and outcome",
		}, []string{"factor_source_kind", "outcome"}),
		factorDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "factor_source",
			Name:      "batch_duration_seconds",
			Help:      "Wall time of one SignMono call",
			Buckets:   []float64{0.01, 0.1, 0.5, 2, 10, 30, 120},
		}, []string{"factor_source_kind"}),
		signatures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "factor_source",
			Name:      "signatures_total",
			Help:      "Signatures produced by factor source kind",
		}, []string{"factor_source_kind"}),
	}

	if reg != nil {
		reg.MustRegister(m.ceremonies, m.ceremonyDuration, m.factorBatches, m.factorDuration, m.signatures)
	}
	return m
}

// RecordCeremony counts a finished ceremony. code is empty on success.
func (m *Metrics) RecordCeremony(kind, outcome, code string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ceremonies.WithLabelValues(kind, outcome, code).Inc()
	m.ceremonyDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// RecordFactorBatch counts one SignMono call and the signatures it produced
func (m *Metrics) RecordFactorBatch(factorSourceKind, outcome string, signatures int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.factorBatches.WithLabelValues(factorSourceKind, outcome).Inc()
	m.factorDuration.WithLabelValues(factorSourceKind).Observe(elapsed.Seconds())
	if signatures > 0 {
		m.signatures.WithLabelValues(factorSourceKind).Add(float64(signatures))
	}
}
