// Package scheduler implements the tiered scheduling loop: select due
// models, filter by Worker Lease, fan out probes, fan in results, hand each
// result to the Result Processor.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/llm-infra/llm-health-monitor/internal/healthmonitor/domain"
	"github.com/llm-infra/llm-health-monitor/internal/healthmonitor/lease"
	"github.com/llm-infra/llm-health-monitor/internal/healthmonitor/prober"
	"github.com/llm-infra/llm-health-monitor/pkg/metrics"
)

const (
	interBatchSleep = 1 * time.Second
	idleSleep       = 60 * time.Second
)

// Registry is the read-only candidate source the Scheduler depends on.
type Registry interface {
	DueCandidates(ctx context.Context, now time.Time, batchSize int) ([]domain.TrackingRow, error)
}

// ResultProcessor is the sink the Scheduler hands completed probes to.
type ResultProcessor interface {
	Process(ctx context.Context, result *domain.HealthCheckResult) error
}

// CachePublisher is invoked at the end of every iteration, including quiet
// ones, to keep the published cache fresh.
type CachePublisher interface {
	Publish(ctx context.Context) error
}

// Scheduler runs the single per-process scheduling loop.
type Scheduler struct {
	registry  Registry
	lease     *lease.WorkerLease
	executor  *prober.Executor
	processor ResultProcessor
	publisher CachePublisher
	batchSize int
	logger    *slog.Logger
	sched     *metrics.SchedulerMetrics
}

// New creates a Scheduler.
func New(
	registry Registry,
	workerLease *lease.WorkerLease,
	executor *prober.Executor,
	processor ResultProcessor,
	publisher CachePublisher,
	batchSize int,
	logger *slog.Logger,
	sched *metrics.SchedulerMetrics,
) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		registry:  registry,
		lease:     workerLease,
		executor:  executor,
		processor: processor,
		publisher: publisher,
		batchSize: batchSize,
		logger:    logger,
		sched:     sched,
	}
}

// Run executes the scheduling loop until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		idle, err := s.runOnce(ctx)
		if err != nil {
			s.logger.Error("scheduler iteration failed", "error", err)
		}

		sleep := interBatchSleep
		if idle {
			sleep = idleSleep
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(sleep):
		}
	}
}

// runOnce executes a single scheduling iteration and reports whether the
// cycle was idle (no due candidates).
func (s *Scheduler) runOnce(ctx context.Context) (bool, error) {
	candidates, err := s.registry.DueCandidates(ctx, time.Now(), s.batchSize)
	if err != nil {
		return false, err
	}

	if len(candidates) == 0 {
		if s.sched != nil {
			s.sched.IdleCyclesTotal.Inc()
		}
		if pubErr := s.publisher.Publish(ctx); pubErr != nil {
			s.logger.Warn("cache publish failed during idle cycle", "error", pubErr)
		}
		return true, nil
	}

	retained := s.lease.FilterRetained(ctx, candidates, s.batchSize)
	if s.sched != nil {
		s.sched.BatchSizeGauge.Set(float64(len(retained)))
		if skipped := len(candidates) - len(retained); skipped > 0 {
			s.sched.CandidatesSkipped.WithLabelValues("lease_held").Add(float64(skipped))
		}
	}

	s.fanOutFanIn(ctx, retained)

	if err := s.publisher.Publish(ctx); err != nil {
		s.logger.Warn("cache publish failed", "error", err)
	}

	return false, nil
}

// fanOutFanIn spawns one goroutine per candidate (fan-out) and collects
// results from a buffered channel (fan-in), bounded by the Probe Executor's
// own semaphore rather than any per-call limit here.
func (s *Scheduler) fanOutFanIn(ctx context.Context, candidates []domain.TrackingRow) {
	resultChan := make(chan *domain.HealthCheckResult, len(candidates))
	for _, c := range candidates {
		go func(row domain.TrackingRow) {
			resultChan <- s.executor.Probe(ctx, row.Identity, row.MonitoringTier)
		}(c)
	}

	for i := 0; i < len(candidates); i++ {
		select {
		case result := <-resultChan:
			if err := s.processor.Process(ctx, result); err != nil {
				s.logger.Error("result processor failed", "provider", result.Provider, "model", result.Model, "gateway", result.Gateway, "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
