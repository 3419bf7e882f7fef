package cachepublisher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// catalogTotals mirrors the system-doc source counts before the min()
// clamp described in the spec: a model in the catalog counts toward
// total_models whether or not it has ever been probed (call_count = 0).
type catalogTotals struct {
	TotalModels     int
	TrackedHealthy  int
	TrackedUnhealthy int
	AvgUptime       float64
}

const catalogTotalsQuery = `
SELECT
	count(*) AS total_models,
	count(*) FILTER (WHERE call_count > 0 AND last_status = 'success') AS tracked_healthy,
	count(*) FILTER (WHERE call_count > 0 AND last_status != 'success') AS tracked_unhealthy,
	coalesce(avg(uptime_percentage_24h) FILTER (WHERE call_count > 0), 100.0) AS avg_uptime
FROM model_health_tracking
WHERE is_enabled = true`

func queryCatalogTotals(ctx context.Context, pool *pgxpool.Pool) (catalogTotals, error) {
	var t catalogTotals
	err := pool.QueryRow(ctx, catalogTotalsQuery).Scan(&t.TotalModels, &t.TrackedHealthy, &t.TrackedUnhealthy, &t.AvgUptime)
	if err != nil {
		return catalogTotals{}, fmt.Errorf("query catalog totals: %w", err)
	}
	return t, nil
}

// providerAggregatesQuery groups by (provider, gateway), matching the
// original's providers_map keyed by f"{gateway}:{provider}".
const providerAggregatesQuery = `
SELECT
	provider,
	gateway,
	count(*) FILTER (WHERE call_count > 0) AS model_count,
	count(*) FILTER (WHERE call_count > 0 AND last_status = 'success') AS healthy_count,
	count(*) FILTER (WHERE call_count > 0 AND last_status != 'success') AS unhealthy_count,
	coalesce(avg(last_response_time_ms) FILTER (WHERE call_count > 0), 0) AS avg_response_time_ms,
	coalesce(avg(uptime_percentage_24h) FILTER (WHERE call_count > 0), 100.0) AS overall_uptime,
	max(last_called_at) FILTER (WHERE call_count > 0) AS last_checked
FROM model_health_tracking
WHERE is_enabled = true
GROUP BY provider, gateway
ORDER BY provider, gateway`

func queryProviderAggregates(ctx context.Context, pool *pgxpool.Pool) ([]ProviderAggregate, error) {
	rows, err := pool.Query(ctx, providerAggregatesQuery)
	if err != nil {
		return nil, fmt.Errorf("query provider aggregates: %w", err)
	}
	defer rows.Close()

	var out []ProviderAggregate
	for rows.Next() {
		var p ProviderAggregate
		var modelCount, healthy, unhealthy int
		var lastChecked *time.Time
		if err := rows.Scan(&p.Provider, &p.Gateway, &modelCount, &healthy, &unhealthy, &p.AvgResponseTimeMs, &p.OverallUptime, &lastChecked); err != nil {
			return nil, fmt.Errorf("scan provider aggregate: %w", err)
		}
		p.TotalModels = modelCount
		p.HealthyModels = healthy
		p.UnhealthyModels = unhealthy
		p.Status = providerStatus(healthy, unhealthy)
		if lastChecked != nil {
			p.LastChecked = *lastChecked
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// providerStatus implements: online if at least one tracked model is
// healthy; offline if more than half of tracked models are unhealthy;
// degraded otherwise.
func providerStatus(healthy, unhealthy int) ProviderStatus {
	if healthy > 0 {
		return ProviderOnline
	}
	total := healthy + unhealthy
	if total > 0 && unhealthy*2 > total {
		return ProviderOffline
	}
	return ProviderDegraded
}

const gatewayAggregatesQuery = `
SELECT
	gateway,
	count(*) FILTER (WHERE call_count > 0) AS model_count,
	count(*) FILTER (WHERE call_count > 0 AND last_status = 'success') AS healthy_count,
	coalesce(avg(last_response_time_ms) FILTER (WHERE call_count > 0), 0) AS avg_latency_ms
FROM model_health_tracking
WHERE is_enabled = true AND gateway = $1
GROUP BY gateway`

type gatewayAggregate struct {
	ModelCount   int
	HealthyCount int
	LatencyMs    float64
}

func queryGatewayAggregate(ctx context.Context, pool *pgxpool.Pool, gateway string) (gatewayAggregate, error) {
	var g gatewayAggregate
	err := pool.QueryRow(ctx, gatewayAggregatesQuery, gateway).Scan(&g.ModelCount, &g.HealthyCount, &g.LatencyMs)
	if errors.Is(err, pgx.ErrNoRows) {
		return gatewayAggregate{}, nil
	}
	if err != nil {
		return gatewayAggregate{}, fmt.Errorf("query gateway aggregate: %w", err)
	}
	return g, nil
}

const recentModelsQuery = `
SELECT model, provider, gateway, last_status, uptime_percentage_24h,
       last_response_time_ms, error_count, call_count, last_called_at
FROM model_health_tracking
WHERE is_enabled = true AND call_count > 0
ORDER BY last_called_at DESC
LIMIT $1`

func queryRecentModels(ctx context.Context, pool *pgxpool.Pool, limit int) ([]ModelEntry, error) {
	rows, err := pool.Query(ctx, recentModelsQuery, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent models: %w", err)
	}
	defer rows.Close()

	var out []ModelEntry
	for rows.Next() {
		var m ModelEntry
		var lastStatus string
		var responseTimeMs *float64
		if err := rows.Scan(&m.ModelID, &m.Provider, &m.Gateway, &lastStatus, &m.UptimePercentage, &responseTimeMs, &m.ErrorCount, &m.TotalRequests, &m.LastChecked); err != nil {
			return nil, fmt.Errorf("scan recent model: %w", err)
		}
		m.Status = healthStatusFor(lastStatus)
		// response_time_ms and avg_response_time_ms both derive from the
		// same last_response_time_ms sample, per the original.
		m.ResponseTimeMs = responseTimeMs
		m.AvgResponseTimeMs = responseTimeMs
		out = append(out, m)
	}
	return out, rows.Err()
}
