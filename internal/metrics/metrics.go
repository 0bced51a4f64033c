// Package metrics exposes Prometheus instrumentation for investigations, source fetches and narrative generation.
//
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "whistleblower"

type Metrics struct {
	investigations   *prometheus.CounterVec
	investigationDur *prometheus.HistogramVec
	riskScore        prometheus.Histogram
	fetches          *prometheus.CounterVec
	fetchDur         prometheus.Histogram
	narratives       *prometheus.CounterVec
	narrativeErrors  *prometheus.CounterVec
}

// New registers the collectors with reg. Passing prometheus.DefaultRegisterer exposes them on the default handler.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		investigations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "investigation",
			Name:      "total",
			Help:      "Completed investigations by verdict and whether a deep search was requested.",
		}, []string{"verdict", "deep"}),
		investigationDur: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "investigation",
			Name:      "duration_seconds",
			Help:      "Investigation latency in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"deep"}),
		riskScore: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "investigation",
			Name:      "risk_score",
			Help:      "Distribution of computed risk scores.",
			Buckets:   []float64{0.3, 0.5, 0.7, 0.9, 0.95},
		}),
		fetches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "total",
			Help:      "Source fetch attempts by outcome (ok, http_error, failed).",
		}, []string{"outcome"}),
		fetchDur: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "duration_seconds",
			Help:      "Latency of a single source fetch in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),
		narratives: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "narrative",
			Name:      "total",
			Help:      "Narratives produced by tier.",
		}, []string{"tier"}),
		narrativeErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "narrative",
			Name:      "errors_total",
			Help:      "Narrative tier failures that fell through to the next tier.",
		}, []string{"tier"}),
	}
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// ObserveInvestigation records a completed investigation.
func (m *Metrics) ObserveInvestigation(verdict string, deep bool, risk float64, d time.Duration) {
	if m == nil {
		return
	}
	m.investigations.WithLabelValues(verdict, boolLabel(deep)).Inc()
	m.investigationDur.WithLabelValues(boolLabel(deep)).Observe(d.Seconds())
	m.riskScore.Observe(risk)
}

// ObserveFetch records the outcome and latency of a single URL fetch.
func (m *Metrics) ObserveFetch(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(outcome).Inc()
	m.fetchDur.Observe(d.Seconds())
}

// ObserveNarrative records which tier produced the narrative.
func (m *Metrics) ObserveNarrative(tier string) {
	if m == nil {
		return
	}
	m.narratives.WithLabelValues(tier).Inc()
}

func (m *Metrics) ObserveNarrativeError(tier string) {
	if m == nil {
		return
	}
	m.narrativeErrors.WithLabelValues(tier).Inc()
}
