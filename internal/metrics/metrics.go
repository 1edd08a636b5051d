// Package metrics exposes Prometheus instrumentation for the signing
// backend.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Signing tracks signing request outcomes and latency.
type Signing struct {
	outcomes *prometheus.CounterVec
	latency  prometheus.Histogram
}

// NewSigning registers the signing metrics on reg.
func NewSigning(reg prometheus.Registerer) *Signing {
	factory := promauto.With(reg)
	return &Signing{
		outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "splitwallet",
			Subsystem: "signer",
			Name:      "requests_total",
			Help:      "Signing requests by terminal outcome.",
		}, []string{"outcome"}),
		latency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "splitwallet",
			Subsystem: "signer",
			Name:      "request_duration_seconds",
			Help:      "Time from request receipt to terminal outcome.",
			// Confirmation polling dominates; budgets run up to 90s.
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
	}
}

// ObserveSigning records one terminal signing outcome.
func (m *Signing) ObserveSigning(outcome string, duration time.Duration) {
	m.outcomes.WithLabelValues(outcome).Inc()
	m.latency.Observe(duration.Seconds())
}
