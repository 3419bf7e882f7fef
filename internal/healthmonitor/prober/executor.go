// Package prober implements the Probe Executor: a semaphore-capped runner
// that turns a (provider, model, gateway) candidate into a
// domain.HealthCheckResult, never raising to its caller.
package prober

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/llm-infra/llm-health-monitor/internal/healthmonitor/domain"
	"github.com/llm-infra/llm-health-monitor/internal/healthmonitor/gateway"
)

// Executor bounds outbound HTTP probes with a process-wide counting
// semaphore so 10k+ tracked models cannot overwhelm upstream gateways.
type Executor struct {
	adapter *gateway.Adapter
	prober  gateway.Prober
	sem     *semaphore.Weighted
}

// NewExecutor creates an Executor with the given global concurrency cap.
func NewExecutor(adapter *gateway.Adapter, prober gateway.Prober, maxConcurrentChecks int64) *Executor {
	return &Executor{
		adapter: adapter,
		prober:  prober,
		sem:     semaphore.NewWeighted(maxConcurrentChecks),
	}
}

// Probe performs a single health check for the given identity and tier.
// It always returns a HealthCheckResult; network errors, timeouts, and
// unconfigured gateways are all rendered into a result rather than an error.
func (e *Executor) Probe(ctx context.Context, id domain.Identity, tier domain.MonitoringTier) *domain.HealthCheckResult {
	checkedAt := time.Now()

	endpoint, headers, body, err := e.adapter.BuildProbe(id.Gateway, id.Model, tier)
	if err != nil {
		return &domain.HealthCheckResult{
			Identity:     id,
			Status:       domain.StatusUnconfigured,
			ErrorMessage: err.Error(),
			CheckedAt:    checkedAt,
		}
	}

	if err := e.sem.Acquire(ctx, 1); err != nil {
		return &domain.HealthCheckResult{
			Identity:     id,
			Status:       domain.StatusError,
			ErrorMessage: "probe concurrency cap unavailable: " + err.Error(),
			CheckedAt:    checkedAt,
		}
	}
	defer e.sem.Release(1)

	timeout := domain.TierTimeout(tier)
	raw, err := e.prober.Probe(ctx, endpoint, headers, body, timeout)
	if err != nil {
		return &domain.HealthCheckResult{
			Identity:     id,
			Status:       domain.StatusError,
			ErrorMessage: truncate(err.Error(), 200),
			CheckedAt:    checkedAt,
		}
	}

	status, errMsg := gateway.Classify(raw)
	result := &domain.HealthCheckResult{
		Identity:       id,
		Status:         status,
		ErrorMessage:   errMsg,
		ResponseTimeMs: &raw.ResponseTimeMs,
		CheckedAt:      checkedAt,
	}
	if raw.StatusCode != 0 {
		code := raw.StatusCode
		result.HTTPStatusCode = &code
	}
	return result
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
