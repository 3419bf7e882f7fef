// Package tier implements the hourly tier reassignment cycle: a single
// window-function SQL statement ranks enabled models by call_count and
// reassigns monitoring_tier by percentile, preserving any model pinned to
// on_demand.
package tier

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// reassignStmt ranks every enabled, non-on_demand model by call_count
// descending and buckets the ranking into percentiles: top 5% critical,
// next 20% popular, remainder standard. Models explicitly pinned to
// on_demand are left untouched by excluding them from the ranked set.
const reassignStmt = `
WITH ranked AS (
	SELECT provider, model, gateway,
	       percent_rank() OVER (ORDER BY call_count DESC) AS pct
	FROM model_health_tracking
	WHERE is_enabled = true AND monitoring_tier != 'on_demand'
)
UPDATE model_health_tracking t
SET monitoring_tier = CASE
	WHEN r.pct <= 0.05 THEN 'critical'
	WHEN r.pct <= 0.25 THEN 'popular'
	ELSE 'standard'
END
FROM ranked r
WHERE t.provider = r.provider AND t.model = r.model AND t.gateway = r.gateway`

// Updater runs the hourly tier reassignment.
type Updater struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New creates an Updater.
func New(pool *pgxpool.Pool, logger *slog.Logger) *Updater {
	if logger == nil {
		logger = slog.Default()
	}
	return &Updater{pool: pool, logger: logger}
}

// Run executes one reassignment cycle inside a transaction. Any SQL error
// is logged at warn level and the cycle is skipped; it never fails the
// caller, matching the supervisor's requirement that a single bad cycle
// must not bring down the process.
func (u *Updater) Run(ctx context.Context) {
	start := time.Now()

	tx, err := u.pool.Begin(ctx)
	if err != nil {
		u.logger.Warn("tier updater: failed to begin transaction, skipping cycle", "error", err)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, reassignStmt)
	if err != nil {
		u.logger.Warn("tier updater: reassignment statement failed, skipping cycle", "error", err)
		return
	}

	if err := tx.Commit(ctx); err != nil {
		u.logger.Warn("tier updater: commit failed, skipping cycle", "error", err)
		return
	}

	u.logger.Info("tier updater: cycle complete", "models_reassigned", tag.RowsAffected(), "duration", time.Since(start))
}
