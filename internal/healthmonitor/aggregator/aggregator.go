// Package aggregator recomputes the three uptime rollups on the Tracking
// Row (24h, 7d, 30d) from the append-only history table.
package aggregator

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/llm-infra/llm-health-monitor/internal/healthmonitor/domain"
	"github.com/llm-infra/llm-health-monitor/pkg/metrics"
)

const batchSize = 50

// Registry is the subset of the model registry the Aggregator walks.
type Registry interface {
	AllEnabledBatch(ctx context.Context, limit, offset int) ([]domain.TrackingRow, error)
}

// Aggregator recomputes uptime_percentage_{24h,7d,30d} for every enabled
// model, in batches, with a small pause between batches.
type Aggregator struct {
	pool     *pgxpool.Pool
	registry Registry
	logger   *slog.Logger
	metrics  *metrics.BusinessMetrics
}

// New creates an Aggregator.
func New(pool *pgxpool.Pool, registry Registry, logger *slog.Logger, businessMetrics *metrics.BusinessMetrics) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{pool: pool, registry: registry, logger: logger, metrics: businessMetrics}
}

// uptimeWindows maps a rollup field name to its lookback window.
var uptimeWindows = []struct {
	name   string
	window time.Duration
}{
	{"24h", 24 * time.Hour},
	{"7d", 7 * 24 * time.Hour},
	{"30d", 30 * 24 * time.Hour},
}

// windowStats is the per-identity, per-window outcome of one aggregation
// query: HasAggregated distinguishes "never aggregated, defaulted to 100%"
// from "aggregated and genuinely 100%" for logging. It is not persisted.
type windowStats struct {
	UptimePercentage float64
	HasAggregated    bool
}

const windowCountQuery = `
SELECT count(*) FILTER (WHERE status = 'success'), count(*)
FROM model_health_history
WHERE provider = $1 AND model = $2 AND gateway = $3 AND checked_at >= $4`

func (a *Aggregator) computeWindow(ctx context.Context, id domain.Identity, since time.Time) (windowStats, error) {
	var success, total int64
	err := a.pool.QueryRow(ctx, windowCountQuery, id.Provider, id.Model, id.Gateway, since).Scan(&success, &total)
	if err != nil {
		return windowStats{}, err
	}
	if total == 0 {
		return windowStats{UptimePercentage: 100.0, HasAggregated: false}, nil
	}
	return windowStats{UptimePercentage: float64(success) / float64(total) * 100.0, HasAggregated: true}, nil
}

const updateUptimeStmt = `
UPDATE model_health_tracking
SET uptime_percentage_24h = $4, uptime_percentage_7d = $5, uptime_percentage_30d = $6
WHERE provider = $1 AND model = $2 AND gateway = $3`

// Run walks every enabled model in batches of 50 and recomputes its rollups.
func (a *Aggregator) Run(ctx context.Context) error {
	start := time.Now()
	offset := 0
	processed := 0

	for {
		rows, err := a.registry.AllEnabledBatch(ctx, batchSize, offset)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			break
		}

		for _, row := range rows {
			if err := a.aggregateOne(ctx, row.Identity, start); err != nil {
				a.logger.Warn("aggregator: failed to recompute uptime", "provider", row.Provider, "model", row.Model, "gateway", row.Gateway, "error", err)
				continue
			}
			processed++
		}

		offset += batchSize
		if len(rows) < batchSize {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}

	a.logger.Info("aggregator: cycle complete", "models_processed", processed, "duration", time.Since(start))
	if a.metrics != nil {
		a.metrics.RecordAggregationRun(time.Since(start).Seconds())
	}
	return nil
}

func (a *Aggregator) aggregateOne(ctx context.Context, id domain.Identity, now time.Time) error {
	results := make([]windowStats, len(uptimeWindows))
	for i, w := range uptimeWindows {
		stats, err := a.computeWindow(ctx, id, now.Add(-w.window))
		if err != nil {
			return err
		}
		results[i] = stats
		if !stats.HasAggregated {
			a.logger.Debug("aggregator: window never aggregated, defaulting to 100%", "provider", id.Provider, "model", id.Model, "gateway", id.Gateway, "window", w.name)
		}
	}

	_, err := a.pool.Exec(ctx, updateUptimeStmt,
		id.Provider, id.Model, id.Gateway,
		results[0].UptimePercentage, results[1].UptimePercentage, results[2].UptimePercentage,
	)
	return err
}
