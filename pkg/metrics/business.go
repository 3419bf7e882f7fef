package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BusinessMetrics contains all business-level metrics for the health monitor.
//
// Business metrics track high-level monitoring outcomes:
//   - Probes performed (by gateway, status)
//   - Circuit breaker transitions per model
//   - Incidents opened/resolved
//   - Cache publications
//
// All metrics follow the taxonomy:
// <namespace>_business_<subsystem>_<metric_name>_<unit>
//
// Example:
//
//	bm := NewBusinessMetrics("llm_health_monitor")
//	bm.ChecksTotal.WithLabelValues("openrouter", "success").Inc()
type BusinessMetrics struct {
	namespace string

	// Checks subsystem - probe outcome metrics
	ChecksTotal          *prometheus.CounterVec   // Total health checks performed
	CheckDurationSeconds *prometheus.HistogramVec // Duration of a single probe

	// Circuit breaker subsystem - per-model trip/recovery metrics
	CircuitBreakerTripsTotal     *prometheus.CounterVec // CLOSED->OPEN transitions
	CircuitBreakerRecoveryTotal  *prometheus.CounterVec // HALF_OPEN->CLOSED transitions
	CircuitBreakerStateGauge     *prometheus.GaugeVec   // Number of models per gateway in each breaker state

	// Incident subsystem
	IncidentsOpenedTotal  *prometheus.CounterVec // Incidents opened, by severity
	IncidentsResolvedTotal *prometheus.CounterVec // Incidents resolved

	// Cache publication subsystem
	CachePublishTotal          *prometheus.CounterVec   // Cache document writes, by document and status
	CachePublishDurationSeconds *prometheus.HistogramVec // Duration of a publish cycle

	// Aggregation subsystem
	AggregationRunsTotal    prometheus.Counter      // Aggregator cycles completed
	AggregationDurationSeconds prometheus.Histogram // Duration of one aggregation cycle
}

// NewBusinessMetrics creates a new BusinessMetrics instance.
func NewBusinessMetrics(namespace string) *BusinessMetrics {
	return &BusinessMetrics{
		namespace: namespace,

		ChecksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "business_checks",
				Name:      "total",
				Help:      "Total number of health checks performed",
			},
			[]string{"gateway", "status"}, // status: success|error|timeout|rate_limited|unconfigured
		),

		CheckDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "business_checks",
				Name:      "duration_seconds",
				Help:      "Duration of a single probe in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"gateway", "tier"},
		),

		CircuitBreakerTripsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "business_circuit_breaker",
				Name:      "trips_total",
				Help:      "Total number of CLOSED to OPEN transitions",
			},
			[]string{"gateway"},
		),

		CircuitBreakerRecoveryTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "business_circuit_breaker",
				Name:      "recoveries_total",
				Help:      "Total number of HALF_OPEN to CLOSED transitions",
			},
			[]string{"gateway"},
		),

		CircuitBreakerStateGauge: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "business_circuit_breaker",
				Name:      "state",
				Help:      "Current circuit breaker state per gateway (count of models in each state)",
			},
			[]string{"gateway", "state"},
		),

		IncidentsOpenedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "business_incidents",
				Name:      "opened_total",
				Help:      "Total number of incidents opened",
			},
			[]string{"gateway", "severity"},
		),

		IncidentsResolvedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "business_incidents",
				Name:      "resolved_total",
				Help:      "Total number of incidents resolved",
			},
			[]string{"gateway"},
		),

		CachePublishTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "business_cache",
				Name:      "publish_total",
				Help:      "Total number of cache document writes",
			},
			[]string{"document", "status"}, // status: success|failure
		),

		CachePublishDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "business_cache",
				Name:      "publish_duration_seconds",
				Help:      "Duration of a full cache publish cycle in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5},
			},
			[]string{"document"},
		),

		AggregationRunsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "business_aggregation",
				Name:      "runs_total",
				Help:      "Total number of aggregation cycles completed",
			},
		),

		AggregationDurationSeconds: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "business_aggregation",
				Name:      "duration_seconds",
				Help:      "Duration of one aggregation cycle in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
			},
		),
	}
}

// RecordCheck records a completed probe.
func (m *BusinessMetrics) RecordCheck(gateway, status, tier string, duration float64) {
	m.ChecksTotal.WithLabelValues(gateway, status).Inc()
	m.CheckDurationSeconds.WithLabelValues(gateway, tier).Observe(duration)
}

// RecordCircuitBreakerTrip records a CLOSED->OPEN transition.
func (m *BusinessMetrics) RecordCircuitBreakerTrip(gateway string) {
	m.CircuitBreakerTripsTotal.WithLabelValues(gateway).Inc()
}

// RecordCircuitBreakerRecovery records a HALF_OPEN->CLOSED transition.
func (m *BusinessMetrics) RecordCircuitBreakerRecovery(gateway string) {
	m.CircuitBreakerRecoveryTotal.WithLabelValues(gateway).Inc()
}

// RecordIncidentOpened records a newly opened incident.
func (m *BusinessMetrics) RecordIncidentOpened(gateway, severity string) {
	m.IncidentsOpenedTotal.WithLabelValues(gateway, severity).Inc()
}

// RecordIncidentResolved records an incident resolution.
func (m *BusinessMetrics) RecordIncidentResolved(gateway string) {
	m.IncidentsResolvedTotal.WithLabelValues(gateway).Inc()
}

// RecordCachePublish records a cache document write outcome.
func (m *BusinessMetrics) RecordCachePublish(document string, success bool, duration float64) {
	status := "success"
	if !success {
		status = "failure"
	}
	m.CachePublishTotal.WithLabelValues(document, status).Inc()
	m.CachePublishDurationSeconds.WithLabelValues(document).Observe(duration)
}

// RecordAggregationRun records one completed aggregation cycle.
func (m *BusinessMetrics) RecordAggregationRun(duration float64) {
	m.AggregationRunsTotal.Inc()
	m.AggregationDurationSeconds.Observe(duration)
}
