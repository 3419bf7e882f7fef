// Package processor implements the Result Processor: the component that
// turns a single HealthCheckResult into mutations of the Tracking Row,
// History Record and Incident lifecycle, including the circuit breaker
// state machine.
package processor

import (
	"context"
	"log/slog"
	"time"

	"github.com/llm-infra/llm-health-monitor/internal/core/resilience"
	"github.com/llm-infra/llm-health-monitor/internal/healthmonitor/domain"
	"github.com/llm-infra/llm-health-monitor/pkg/metrics"
)

const (
	failureThreshold = 8
	successThreshold = 3
	shortenedRetry   = 300 * time.Second
)

// Processor implements the Result Processor.
type Processor struct {
	store   Store
	logger  *slog.Logger
	metrics *metrics.BusinessMetrics
	policy  *resilience.RetryPolicy
}

// New creates a Processor.
func New(store Store, logger *slog.Logger, businessMetrics *metrics.BusinessMetrics) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	policy := &resilience.RetryPolicy{
		MaxRetries:    2,
		BaseDelay:     100 * time.Millisecond,
		MaxDelay:      200 * time.Millisecond,
		Multiplier:    2.0,
		Jitter:        false,
		ErrorChecker:  retryableErrorChecker{},
		Logger:        logger,
		Metrics:       metrics.NewRetryMetrics(),
		OperationName: "result_processor_read",
	}
	return &Processor{store: store, logger: logger, metrics: businessMetrics, policy: policy}
}

// Process applies a single probe result to persisted state. It never
// returns an error to the caller: all persistence failures are logged at
// debug level and swallowed so the Scheduler keeps draining the queue.
func (p *Processor) Process(ctx context.Context, result *domain.HealthCheckResult) error {
	row, err := resilience.WithRetryFunc(ctx, p.policy, func() (*domain.TrackingRow, error) {
		return p.store.GetTrackingRow(ctx, result.Identity)
	})
	if err != nil {
		p.logger.Debug("result processor: giving up on tracking row read",
			"provider", result.Provider, "model", result.Model, "gateway", result.Gateway, "error", err)
		return nil
	}

	incident, err := resilience.WithRetryFunc(ctx, p.policy, func() (*domain.Incident, error) {
		return p.store.GetActiveIncident(ctx, result.Identity)
	})
	if err != nil {
		p.logger.Debug("result processor: giving up on active incident read",
			"provider", result.Provider, "model", result.Model, "gateway", result.Gateway, "error", err)
		return nil
	}

	updated := p.applyResult(row, result)

	if err := p.store.UpsertTrackingRow(ctx, updated); err != nil {
		p.logger.Debug("result processor: tracking row upsert failed", "error", err)
		return nil
	}
	if err := p.store.AppendHistory(ctx, historyFrom(updated, result)); err != nil {
		p.logger.Debug("result processor: history append failed", "error", err)
		return nil
	}

	p.applyIncidentLifecycle(ctx, updated, result, incident)

	if p.metrics != nil {
		p.metrics.ChecksTotal.WithLabelValues(result.Gateway, string(result.Status)).Inc()
		priorState := domain.CircuitClosed
		if row != nil {
			priorState = row.CircuitBreakerState
		}
		if updated.CircuitBreakerState == domain.CircuitOpen && priorState != domain.CircuitOpen {
			p.metrics.RecordCircuitBreakerTrip(result.Gateway)
		}
		if updated.CircuitBreakerState == domain.CircuitClosed && priorState == domain.CircuitHalfOpen {
			p.metrics.RecordCircuitBreakerRecovery(result.Gateway)
		}
	}

	return nil
}

// applyResult computes the next Tracking Row state from the prior row (nil
// for a never-before-seen identity) and the new result. It does not touch
// the store.
func (p *Processor) applyResult(prior *domain.TrackingRow, result *domain.HealthCheckResult) domain.TrackingRow {
	var row domain.TrackingRow
	if prior != nil {
		row = *prior
	} else {
		row = domain.TrackingRow{
			Identity:            result.Identity,
			MonitoringTier:      domain.TierStandard,
			CircuitBreakerState: domain.CircuitClosed,
			UptimePercentage24h: 100.0,
			UptimePercentage7d:  100.0,
			UptimePercentage30d: 100.0,
			IsEnabled:           true,
		}
	}

	isSuccess := result.Status.IsSuccess()

	row.CallCount++
	if isSuccess {
		row.SuccessCount++
		row.ConsecutiveFailures = 0
		row.ConsecutiveSuccesses++
	} else {
		row.ErrorCount++
		row.ConsecutiveFailures++
		row.ConsecutiveSuccesses = 0
	}

	if result.ResponseTimeMs != nil {
		row.AverageResponseTimeMs = runningMean(row.AverageResponseTimeMs, row.CallCount, *result.ResponseTimeMs)
	}

	row.LastStatus = result.Status
	row.LastResponseTimeMs = result.ResponseTimeMs
	row.LastErrorMessage = result.ErrorMessage
	row.HTTPStatusCode = result.HTTPStatusCode
	row.LastCalledAt = result.CheckedAt
	if isSuccess {
		t := result.CheckedAt
		row.LastSuccessAt = &t
	} else {
		t := result.CheckedAt
		row.LastFailureAt = &t
	}

	row.CircuitBreakerState = nextCircuitState(row.CircuitBreakerState, isSuccess, row.ConsecutiveFailures, row.ConsecutiveSuccesses)

	row.NextCheckAt = nextCheckAt(result.CheckedAt, row.MonitoringTier, isSuccess, row.ConsecutiveFailures)

	return row
}

// nextCircuitState implements the CLOSED/OPEN/HALF_OPEN transition table.
// The OPEN -> HALF_OPEN move is unconditional on the next processed result,
// with no added dwell timer: this is a deliberate fidelity choice, not an
// omission.
func nextCircuitState(current domain.CircuitBreakerState, isSuccess bool, consecutiveFailures, consecutiveSuccesses int) domain.CircuitBreakerState {
	switch current {
	case domain.CircuitClosed:
		if consecutiveFailures >= failureThreshold {
			return domain.CircuitOpen
		}
		return domain.CircuitClosed
	case domain.CircuitOpen:
		return domain.CircuitHalfOpen
	case domain.CircuitHalfOpen:
		if !isSuccess {
			return domain.CircuitOpen
		}
		if consecutiveSuccesses >= successThreshold {
			return domain.CircuitClosed
		}
		return domain.CircuitHalfOpen
	default:
		return domain.CircuitClosed
	}
}

// nextCheckAt computes the next scheduled probe time. A model in a failure
// streak beyond the first miss is revisited sooner than its base tier
// interval, capped at 300s, so a flapping model is re-evaluated quickly
// without falling back to aggressive per-failure polling.
func nextCheckAt(now time.Time, tier domain.MonitoringTier, isSuccess bool, consecutiveFailures int) time.Time {
	interval := domain.TierInterval(tier)
	if !isSuccess && consecutiveFailures > 1 && shortenedRetry < interval {
		interval = shortenedRetry
	}
	return now.Add(interval)
}

// runningMean folds a new sample into a running mean weighted by the total
// call count (post-increment), preserving the prior mean when the sample is
// null.
func runningMean(priorMean float64, callCountAfterIncrement int64, sample float64) float64 {
	if callCountAfterIncrement <= 1 {
		return sample
	}
	n := float64(callCountAfterIncrement)
	return priorMean + (sample-priorMean)/n
}

func historyFrom(row domain.TrackingRow, result *domain.HealthCheckResult) domain.HistoryRecord {
	return domain.HistoryRecord{
		Identity:            result.Identity,
		CheckedAt:           result.CheckedAt,
		Status:              result.Status,
		ResponseTimeMs:      result.ResponseTimeMs,
		ErrorMessage:        result.ErrorMessage,
		HTTPStatusCode:      result.HTTPStatusCode,
		CircuitBreakerState: row.CircuitBreakerState,
	}
}

// applyIncidentLifecycle opens, updates, or resolves incidents for the
// identity based on the just-applied result. Persistence errors here are
// logged and swallowed, matching the rest of the processor's failure
// semantics.
func (p *Processor) applyIncidentLifecycle(ctx context.Context, row domain.TrackingRow, result *domain.HealthCheckResult, active *domain.Incident) {
	isSuccess := result.Status.IsSuccess()

	if !isSuccess {
		if active != nil {
			active.ErrorCount++
			active.ErrorMessage = result.ErrorMessage
			active.Severity = domain.MaxSeverity(active.Severity, domain.IncidentSeverityFromFailures(row.ConsecutiveFailures))
			if err := p.store.UpdateIncident(ctx, *active); err != nil {
				p.logger.Debug("result processor: incident update failed", "error", err)
			}
			return
		}

		inc := domain.Incident{
			Identity:     result.Identity,
			IncidentType: domain.IncidentTypeFromStatus(result.Status),
			Severity:     domain.IncidentSeverityFromFailures(row.ConsecutiveFailures),
			Status:       domain.IncidentActive,
			StartedAt:    result.CheckedAt,
			ErrorCount:   1,
			ErrorMessage: result.ErrorMessage,
		}
		if err := p.store.OpenIncident(ctx, inc); err != nil {
			p.logger.Debug("result processor: incident open failed", "error", err)
			return
		}
		if p.metrics != nil {
			p.metrics.RecordIncidentOpened(result.Gateway, string(inc.Severity))
		}
		return
	}

	if row.ConsecutiveSuccesses >= successThreshold {
		if err := p.store.ResolveActiveIncidents(ctx, result.Identity, "Model recovered and passed health checks"); err != nil {
			p.logger.Debug("result processor: incident resolve failed", "error", err)
			return
		}
		if active != nil && p.metrics != nil {
			p.metrics.RecordIncidentResolved(result.Gateway)
		}
	}
}
