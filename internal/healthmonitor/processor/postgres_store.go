package processor

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/llm-infra/llm-health-monitor/internal/healthmonitor/domain"
)

// PostgresStore implements Store against model_health_tracking,
// model_health_history and model_health_incidents with raw parameterized
// SQL, matching the teacher's repository style.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const getTrackingRowQuery = `
SELECT provider, model, gateway, monitoring_tier, priority_score, next_check_at,
       last_called_at, call_count, success_count, error_count,
       consecutive_failures, consecutive_successes, last_status,
       last_response_time_ms, last_error_message, http_status_code,
       last_success_at, last_failure_at,
       average_response_time_ms, circuit_breaker_state,
       uptime_percentage_24h, uptime_percentage_7d, uptime_percentage_30d, is_enabled
FROM model_health_tracking
WHERE provider = $1 AND model = $2 AND gateway = $3`

// GetTrackingRow implements Store.
func (s *PostgresStore) GetTrackingRow(ctx context.Context, id domain.Identity) (*domain.TrackingRow, error) {
	var t domain.TrackingRow
	err := s.pool.QueryRow(ctx, getTrackingRowQuery, id.Provider, id.Model, id.Gateway).Scan(
		&t.Provider, &t.Model, &t.Gateway, &t.MonitoringTier, &t.PriorityScore, &t.NextCheckAt,
		&t.LastCalledAt, &t.CallCount, &t.SuccessCount, &t.ErrorCount,
		&t.ConsecutiveFailures, &t.ConsecutiveSuccesses, &t.LastStatus,
		&t.LastResponseTimeMs, &t.LastErrorMessage, &t.HTTPStatusCode,
		&t.LastSuccessAt, &t.LastFailureAt,
		&t.AverageResponseTimeMs, &t.CircuitBreakerState,
		&t.UptimePercentage24h, &t.UptimePercentage7d, &t.UptimePercentage30d, &t.IsEnabled,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get tracking row: %w", err)
	}
	return &t, nil
}

const upsertTrackingRowStmt = `
INSERT INTO model_health_tracking (
	provider, model, gateway, monitoring_tier, priority_score, next_check_at,
	last_called_at, call_count, success_count, error_count,
	consecutive_failures, consecutive_successes, last_status,
	last_response_time_ms, last_error_message, http_status_code,
	last_success_at, last_failure_at,
	average_response_time_ms, circuit_breaker_state,
	uptime_percentage_24h, uptime_percentage_7d, uptime_percentage_30d, is_enabled
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)
ON CONFLICT (provider, model, gateway) DO UPDATE SET
	monitoring_tier = EXCLUDED.monitoring_tier,
	priority_score = EXCLUDED.priority_score,
	next_check_at = EXCLUDED.next_check_at,
	last_called_at = EXCLUDED.last_called_at,
	call_count = EXCLUDED.call_count,
	success_count = EXCLUDED.success_count,
	error_count = EXCLUDED.error_count,
	consecutive_failures = EXCLUDED.consecutive_failures,
	consecutive_successes = EXCLUDED.consecutive_successes,
	last_status = EXCLUDED.last_status,
	last_response_time_ms = EXCLUDED.last_response_time_ms,
	last_error_message = EXCLUDED.last_error_message,
	http_status_code = EXCLUDED.http_status_code,
	last_success_at = EXCLUDED.last_success_at,
	last_failure_at = EXCLUDED.last_failure_at,
	average_response_time_ms = EXCLUDED.average_response_time_ms,
	circuit_breaker_state = EXCLUDED.circuit_breaker_state,
	uptime_percentage_24h = EXCLUDED.uptime_percentage_24h,
	uptime_percentage_7d = EXCLUDED.uptime_percentage_7d,
	uptime_percentage_30d = EXCLUDED.uptime_percentage_30d,
	is_enabled = EXCLUDED.is_enabled`

// UpsertTrackingRow implements Store.
func (s *PostgresStore) UpsertTrackingRow(ctx context.Context, t domain.TrackingRow) error {
	_, err := s.pool.Exec(ctx, upsertTrackingRowStmt,
		t.Provider, t.Model, t.Gateway, t.MonitoringTier, t.PriorityScore, t.NextCheckAt,
		t.LastCalledAt, t.CallCount, t.SuccessCount, t.ErrorCount,
		t.ConsecutiveFailures, t.ConsecutiveSuccesses, t.LastStatus,
		t.LastResponseTimeMs, t.LastErrorMessage, t.HTTPStatusCode,
		t.LastSuccessAt, t.LastFailureAt,
		t.AverageResponseTimeMs, t.CircuitBreakerState,
		t.UptimePercentage24h, t.UptimePercentage7d, t.UptimePercentage30d, t.IsEnabled,
	)
	if err != nil {
		return fmt.Errorf("upsert tracking row: %w", err)
	}
	return nil
}

const appendHistoryStmt = `
INSERT INTO model_health_history (
	provider, model, gateway, checked_at, status, response_time_ms,
	error_message, http_status_code, circuit_breaker_state
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

// AppendHistory implements Store.
func (s *PostgresStore) AppendHistory(ctx context.Context, r domain.HistoryRecord) error {
	_, err := s.pool.Exec(ctx, appendHistoryStmt,
		r.Provider, r.Model, r.Gateway, r.CheckedAt, r.Status, r.ResponseTimeMs,
		r.ErrorMessage, r.HTTPStatusCode, r.CircuitBreakerState,
	)
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

const getActiveIncidentQuery = `
SELECT id, provider, model, gateway, incident_type, severity, status,
       started_at, resolved_at, error_count, error_message, resolution_notes
FROM model_health_incidents
WHERE provider = $1 AND model = $2 AND gateway = $3 AND status = 'active'
ORDER BY started_at DESC
LIMIT 1`

// GetActiveIncident implements Store.
func (s *PostgresStore) GetActiveIncident(ctx context.Context, id domain.Identity) (*domain.Incident, error) {
	var inc domain.Incident
	err := s.pool.QueryRow(ctx, getActiveIncidentQuery, id.Provider, id.Model, id.Gateway).Scan(
		&inc.ID, &inc.Provider, &inc.Model, &inc.Gateway, &inc.IncidentType, &inc.Severity, &inc.Status,
		&inc.StartedAt, &inc.ResolvedAt, &inc.ErrorCount, &inc.ErrorMessage, &inc.ResolutionNotes,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active incident: %w", err)
	}
	return &inc, nil
}

const openIncidentStmt = `
INSERT INTO model_health_incidents (
	provider, model, gateway, incident_type, severity, status,
	started_at, error_count, error_message, resolution_notes
) VALUES ($1, $2, $3, $4, $5, 'active', $6, $7, $8, '')`

// OpenIncident implements Store.
func (s *PostgresStore) OpenIncident(ctx context.Context, inc domain.Incident) error {
	_, err := s.pool.Exec(ctx, openIncidentStmt,
		inc.Provider, inc.Model, inc.Gateway, inc.IncidentType, inc.Severity,
		inc.StartedAt, inc.ErrorCount, inc.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("open incident: %w", err)
	}
	return nil
}

const updateIncidentStmt = `
UPDATE model_health_incidents
SET error_count = $2, error_message = $3, severity = $4
WHERE id = $1`

// UpdateIncident implements Store.
func (s *PostgresStore) UpdateIncident(ctx context.Context, inc domain.Incident) error {
	_, err := s.pool.Exec(ctx, updateIncidentStmt, inc.ID, inc.ErrorCount, inc.ErrorMessage, inc.Severity)
	if err != nil {
		return fmt.Errorf("update incident: %w", err)
	}
	return nil
}

const resolveActiveIncidentsStmt = `
UPDATE model_health_incidents
SET status = 'resolved', resolved_at = now(), resolution_notes = $4
WHERE provider = $1 AND model = $2 AND gateway = $3 AND status = 'active'`

// ResolveActiveIncidents implements Store.
func (s *PostgresStore) ResolveActiveIncidents(ctx context.Context, id domain.Identity, notes string) error {
	_, err := s.pool.Exec(ctx, resolveActiveIncidentsStmt, id.Provider, id.Model, id.Gateway, notes)
	if err != nil {
		return fmt.Errorf("resolve active incidents: %w", err)
	}
	return nil
}
