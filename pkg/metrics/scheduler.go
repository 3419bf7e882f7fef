package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SchedulerMetrics tracks the internals of the tiered scheduling loop.
type SchedulerMetrics struct {
	BatchSizeGauge     prometheus.Gauge       // Number of candidates picked up in the last batch
	IdleCyclesTotal    prometheus.Counter     // Cycles where no model was due
	CandidatesSkipped  *prometheus.CounterVec // Candidates skipped, by reason (lease_held)
}

// NewSchedulerMetrics creates scheduler internals metrics.
func NewSchedulerMetrics(namespace string) *SchedulerMetrics {
	return &SchedulerMetrics{
		BatchSizeGauge: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "technical_scheduler",
			Name:      "batch_size",
			Help:      "Number of candidates retained in the most recent scheduling batch",
		}),
		IdleCyclesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "technical_scheduler",
			Name:      "idle_cycles_total",
			Help:      "Total number of scheduling cycles where no model was due",
		}),
		CandidatesSkipped: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "technical_scheduler",
				Name:      "candidates_skipped_total",
				Help:      "Total number of scheduling candidates skipped before probing",
			},
			[]string{"reason"},
		),
	}
}

// LeaseMetrics tracks the distributed worker lease used for coordination.
type LeaseMetrics struct {
	AcquireTotal  *prometheus.CounterVec // Lease acquire attempts, by outcome
	ReleaseTotal  prometheus.Counter     // Lease releases
	DegradedTotal prometheus.Counter     // Acquire calls that proceeded without coordination
}

// NewLeaseMetrics creates worker-lease metrics.
func NewLeaseMetrics(namespace string) *LeaseMetrics {
	return &LeaseMetrics{
		AcquireTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "technical_lease",
				Name:      "acquire_total",
				Help:      "Total number of lease acquire attempts",
			},
			[]string{"outcome"}, // outcome: acquired|held_elsewhere
		),
		ReleaseTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "technical_lease",
			Name:      "release_total",
			Help:      "Total number of lease releases",
		}),
		DegradedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "technical_lease",
			Name:      "degraded_total",
			Help:      "Total number of lease acquire calls that proceeded without coordination (coordination disabled or Redis unavailable)",
		}),
	}
}
