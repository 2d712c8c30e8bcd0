// Package metrics holds the Prometheus instrumentation for the engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the engine.
type Metrics struct {
	// Operation outcomes per op and status (ok, validation, not_found,
	// conflict, rate_limited, upstream, decrypt, internal).
	OperationsTotal *prometheus.CounterVec

	// Degraded-path activations per component (aadhaar, aa, gst, bbps,
	// consent, jws, cache).
	DegradedTotal *prometheus.CounterVec

	// Operation latency per op.
	OperationDuration *prometheus.HistogramVec

	// Distribution of issued NovaScores.
	NovaScore prometheus.Histogram

	// Identity lockouts triggered.
	LockoutsTotal prometheus.Counter
}

// New creates and registers all engine metrics on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the metrics on the given registerer. Tests pass a fresh
// registry so packages can instantiate metrics independently.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		OperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engine_operations_total",
				Help: "Total operations handled, by operation and outcome",
			},
			[]string{"op", "status"},
		),

		DegradedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engine_degraded_total",
				Help: "Degraded-path activations, by component",
			},
			[]string{"component"},
		),

		OperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "engine_operation_duration_seconds",
				Help:    "Operation latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		),

		NovaScore: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "engine_nova_score",
				Help:    "Distribution of issued NovaScores",
				Buckets: []float64{300, 400, 500, 550, 650, 700, 750, 800, 850, 900},
			},
		),

		LockoutsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "engine_lockouts_total",
				Help: "Identity lockouts triggered by repeated OTP failures",
			},
		),
	}
}

// Handler serves the default registry for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}
