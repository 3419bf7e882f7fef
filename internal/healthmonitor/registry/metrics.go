package registry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RegistryMetrics mirrors the teacher's HistoryMetrics shape for the
// tracking-row repository's query path.
type RegistryMetrics struct {
	QueryDuration *prometheus.HistogramVec
	QueryErrors   *prometheus.CounterVec
}

// NewRegistryMetrics creates registry query metrics under the given namespace.
func NewRegistryMetrics(namespace string) *RegistryMetrics {
	return &RegistryMetrics{
		QueryDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "infra_registry",
				Name:      "query_duration_seconds",
				Help:      "Duration of model registry queries",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"operation", "status"},
		),
		QueryErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "infra_registry",
				Name:      "query_errors_total",
				Help:      "Total number of model registry query errors",
			},
			[]string{"operation"},
		),
	}
}
