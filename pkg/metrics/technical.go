package metrics

// TechnicalMetrics aggregates system-internal metrics for the health monitor.
//
// Technical metrics track the mechanics of running the monitor, as opposed
// to its business outcomes:
//   - HTTP requests served by the optional status surface (prometheus.go)
//   - Retry/backoff behavior (retry.go, shared with internal/core/resilience)
//   - Scheduler and worker-lease internals
//
// Example:
//
//	tm := NewTechnicalMetrics("llm_health_monitor")
//	handler = tm.HTTP.Middleware(handler)
//	tm.Scheduler.BatchSizeGauge.Set(42)
type TechnicalMetrics struct {
	namespace string

	// HTTP subsystem - status/metrics surface request metrics
	HTTP *HTTPMetrics

	// Scheduler subsystem - batch scheduling internals
	Scheduler *SchedulerMetrics

	// Lease subsystem - distributed worker lease internals
	Lease *LeaseMetrics
}

// NewTechnicalMetrics creates a new TechnicalMetrics aggregator.
func NewTechnicalMetrics(namespace string) *TechnicalMetrics {
	return &TechnicalMetrics{
		namespace: namespace,
		HTTP:      NewHTTPMetricsWithNamespace(namespace, "technical_http"),
		Scheduler: NewSchedulerMetrics(namespace),
		Lease:     NewLeaseMetrics(namespace),
	}
}
