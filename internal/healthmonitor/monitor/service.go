// Package monitor implements the Lifecycle Supervisor: it owns the four
// long-running loops (monitoring, tier update, aggregate metrics, incident
// resolution) as supervised tasks and exposes the control interface used by
// the HTTP surface.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/llm-infra/llm-health-monitor/internal/healthmonitor/domain"
	"github.com/llm-infra/llm-health-monitor/internal/healthmonitor/lease"
	"github.com/llm-infra/llm-health-monitor/internal/healthmonitor/prober"
	"github.com/llm-infra/llm-health-monitor/internal/healthmonitor/processor"
	"github.com/llm-infra/llm-health-monitor/internal/healthmonitor/registry"
	"github.com/llm-infra/llm-health-monitor/internal/healthmonitor/scheduler"
)

const (
	tierUpdateInterval       = time.Hour
	aggregationInterval      = 5 * time.Minute
	incidentResolutionPeriod = 2 * time.Minute
)

// TierUpdater is the subset of tier.Updater the supervisor depends on.
type TierUpdater interface {
	Run(ctx context.Context)
}

// AggregatorRunner is the subset of aggregator.Aggregator the supervisor
// depends on.
type AggregatorRunner interface {
	Run(ctx context.Context) error
}

// IncidentResolver sweeps active incidents whose identity has recovered but
// was never closed (e.g. the inline resolve write failed, or the tracking row
// was changed outside the Result Processor). This is distinct from the Result
// Processor's inline resolution, which fires only while a probe result
// (scheduled or on-demand) is being processed — this loop is the
// reconciliation backstop for everything else.
type IncidentResolver interface {
	ReconcileActiveIncidents(ctx context.Context) (int, error)
}

// CachePublisher is the subset of cachepublisher.Publisher used directly by
// the on-demand check path (the Scheduler already calls Publish per cycle).
type CachePublisher interface {
	Publish(ctx context.Context) error
}

// HealthSummary is the in-memory snapshot returned by HealthSummary().
type HealthSummary struct {
	Running       bool      `json:"running"`
	TrackedModels int       `json:"tracked_models"`
	GeneratedAt   time.Time `json:"generated_at"`
}

// Service implements the Lifecycle Supervisor and control interface.
type Service struct {
	scheduler  *scheduler.Scheduler
	tier       TierUpdater
	aggregator AggregatorRunner
	resolver   IncidentResolver
	registry   *registry.PostgresRegistry
	executor   *prober.Executor
	lease      *lease.WorkerLease
	processor  *processor.Processor
	publisher  CachePublisher
	logger     *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// New creates a Service wiring every component the supervisor drives.
func New(
	sched *scheduler.Scheduler,
	tierUpdater TierUpdater,
	agg AggregatorRunner,
	resolver IncidentResolver,
	reg *registry.PostgresRegistry,
	executor *prober.Executor,
	workerLease *lease.WorkerLease,
	proc *processor.Processor,
	publisher CachePublisher,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		scheduler:  sched,
		tier:       tierUpdater,
		aggregator: agg,
		resolver:   resolver,
		registry:   reg,
		executor:   executor,
		lease:      workerLease,
		processor:  proc,
		publisher:  publisher,
		logger:     logger,
	}
}

// Start launches the four supervised loops. It returns once they have been
// spawned; it does not block.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	s.wg.Add(4)
	go s.runSupervised(loopCtx, "monitoring_loop", s.scheduler.Run)
	go s.runSupervised(loopCtx, "tier_update_loop", s.tierUpdateLoop)
	go s.runSupervised(loopCtx, "aggregate_metrics_loop", s.aggregateLoop)
	go s.runSupervised(loopCtx, "incident_resolution_loop", s.incidentResolutionLoop)

	s.logger.Info("lifecycle supervisor: started")
}

// Stop cancels all loops and awaits their completion. Join errors (panics
// recovered mid-loop) are logged, never propagated.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("lifecycle supervisor: stopped cleanly")
		return nil
	case <-ctx.Done():
		s.logger.Warn("lifecycle supervisor: shutdown deadline exceeded, loops may still be finishing")
		return ctx.Err()
	}
}

// runSupervised wraps a loop body with panic recovery so a crash in one
// loop cannot take down the others or the process.
func (s *Service) runSupervised(ctx context.Context, name string, body func(ctx context.Context)) {
	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("lifecycle supervisor: loop panicked", "loop", name, "panic", r)
		}
	}()
	body(ctx)
}

func (s *Service) tierUpdateLoop(ctx context.Context) {
	ticker := time.NewTicker(tierUpdateInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tier.Run(ctx)
		}
	}
}

func (s *Service) aggregateLoop(ctx context.Context) {
	ticker := time.NewTicker(aggregationInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.aggregator.Run(ctx); err != nil {
				s.logger.Warn("aggregate_metrics_loop: cycle failed", "error", err)
			}
		}
	}
}

func (s *Service) incidentResolutionLoop(ctx context.Context) {
	ticker := time.NewTicker(incidentResolutionPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			closed, err := s.resolver.ReconcileActiveIncidents(ctx)
			if err != nil {
				s.logger.Warn("incident_resolution_loop: cycle failed", "error", err)
				continue
			}
			if closed > 0 {
				s.logger.Info("incident_resolution_loop: reconciled stale incidents", "closed", closed)
			}
		}
	}
}

// CheckOnDemand forces a single synchronous probe for an identity, bypassing
// the scheduler's batching, and feeds the result through the normal Result
// Processor path. The lease is released immediately afterward so a follow-up
// scheduled probe is not blocked out for the full lease TTL.
func (s *Service) CheckOnDemand(ctx context.Context, provider, model, gatewayName string) (*domain.HealthCheckResult, error) {
	id := domain.Identity{Provider: provider, Model: model, Gateway: gatewayName}

	if !s.lease.Acquire(ctx, id) {
		return nil, fmt.Errorf("on-demand check for %s/%s/%s: lease held by another worker", provider, model, gatewayName)
	}
	defer func() {
		if err := s.lease.Release(ctx, id); err != nil {
			s.logger.Warn("on-demand check: failed to release lease", "error", err)
		}
	}()

	result := s.executor.Probe(ctx, id, domain.TierOnDemand)
	if err := s.processor.Process(ctx, result); err != nil {
		s.logger.Warn("on-demand check: result processing failed", "error", err)
	}
	return result, nil
}

// HealthSummary returns an in-memory snapshot for direct JSON exposure.
func (s *Service) HealthSummary(ctx context.Context) (*HealthSummary, error) {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	count, err := s.registry.CountEnabled(ctx)
	if err != nil {
		return nil, fmt.Errorf("health summary: %w", err)
	}

	return &HealthSummary{
		Running:       running,
		TrackedModels: count,
		GeneratedAt:   time.Now(),
	}, nil
}
