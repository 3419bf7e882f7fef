// Package registry is a read-through view of the tracked (provider, model,
// gateway) tuples, backed by the model_health_tracking table. Mutation
// happens exclusively through the Result Processor's upserts; this package
// only ever reads.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/llm-infra/llm-health-monitor/internal/healthmonitor/domain"
)

// PostgresRegistry implements read queries over model_health_tracking via
// raw parameterized SQL and manual row scanning, matching the teacher's
// repository style.
type PostgresRegistry struct {
	pool    *pgxpool.Pool
	logger  *slog.Logger
	metrics *RegistryMetrics
}

// NewPostgresRegistry creates a PostgresRegistry.
func NewPostgresRegistry(pool *pgxpool.Pool, logger *slog.Logger, metrics *RegistryMetrics) *PostgresRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresRegistry{pool: pool, logger: logger, metrics: metrics}
}

const dueCandidatesQuery = `
SELECT provider, model, gateway, monitoring_tier, priority_score, next_check_at,
       last_called_at, call_count, success_count, error_count,
       consecutive_failures, consecutive_successes, COALESCE(last_status, ''),
       last_response_time_ms, last_error_message, http_status_code,
       average_response_time_ms, circuit_breaker_state,
       uptime_percentage_24h, uptime_percentage_7d, uptime_percentage_30d, is_enabled
FROM model_health_tracking
WHERE is_enabled = true AND next_check_at <= $1
ORDER BY priority_score DESC, next_check_at ASC
LIMIT $2`

// DueCandidates returns rows due for checking, ordered by priority and
// staleness, limited to 2x the scheduler batch size so the caller has room
// to filter further with the Worker Lease.
func (r *PostgresRegistry) DueCandidates(ctx context.Context, now time.Time, batchSize int) ([]domain.TrackingRow, error) {
	const op = "due_candidates"
	start := time.Now()
	defer func() {
		r.metrics.QueryDuration.WithLabelValues(op, "done").Observe(time.Since(start).Seconds())
	}()

	rows, err := r.pool.Query(ctx, dueCandidatesQuery, now, batchSize*2)
	if err != nil {
		r.metrics.QueryErrors.WithLabelValues(op).Inc()
		return nil, fmt.Errorf("query due candidates: %w", err)
	}
	defer rows.Close()

	return scanTrackingRows(rows)
}

const allEnabledQuery = `
SELECT provider, model, gateway, monitoring_tier, priority_score, next_check_at,
       last_called_at, call_count, success_count, error_count,
       consecutive_failures, consecutive_successes, COALESCE(last_status, ''),
       last_response_time_ms, last_error_message, http_status_code,
       average_response_time_ms, circuit_breaker_state,
       uptime_percentage_24h, uptime_percentage_7d, uptime_percentage_30d, is_enabled
FROM model_health_tracking
WHERE is_enabled = true
ORDER BY provider, model, gateway
LIMIT $1 OFFSET $2`

// AllEnabledBatch returns one page of all enabled tracked models, used by
// the Aggregator to walk the full catalog in batches.
func (r *PostgresRegistry) AllEnabledBatch(ctx context.Context, limit, offset int) ([]domain.TrackingRow, error) {
	const op = "all_enabled_batch"
	start := time.Now()
	defer func() {
		r.metrics.QueryDuration.WithLabelValues(op, "done").Observe(time.Since(start).Seconds())
	}()

	rows, err := r.pool.Query(ctx, allEnabledQuery, limit, offset)
	if err != nil {
		r.metrics.QueryErrors.WithLabelValues(op).Inc()
		return nil, fmt.Errorf("query all enabled batch: %w", err)
	}
	defer rows.Close()

	return scanTrackingRows(rows)
}

func scanTrackingRows(rows pgx.Rows) ([]domain.TrackingRow, error) {
	var out []domain.TrackingRow
	for rows.Next() {
		var t domain.TrackingRow
		if err := rows.Scan(
			&t.Provider, &t.Model, &t.Gateway, &t.MonitoringTier, &t.PriorityScore, &t.NextCheckAt,
			&t.LastCalledAt, &t.CallCount, &t.SuccessCount, &t.ErrorCount,
			&t.ConsecutiveFailures, &t.ConsecutiveSuccesses, &t.LastStatus,
			&t.LastResponseTimeMs, &t.LastErrorMessage, &t.HTTPStatusCode,
			&t.AverageResponseTimeMs, &t.CircuitBreakerState,
			&t.UptimePercentage24h, &t.UptimePercentage7d, &t.UptimePercentage30d, &t.IsEnabled,
		); err != nil {
			return nil, fmt.Errorf("scan tracking row: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tracking rows: %w", err)
	}
	return out, nil
}

// CountEnabled returns the number of enabled tracked models, used by the
// monitor's HealthSummary.
func (r *PostgresRegistry) CountEnabled(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM model_health_tracking WHERE is_enabled = true`).Scan(&count)
	if err != nil {
		r.metrics.QueryErrors.WithLabelValues("count_enabled").Inc()
		return 0, fmt.Errorf("count enabled: %w", err)
	}
	return count, nil
}
