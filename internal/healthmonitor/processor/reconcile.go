package processor

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Reconciler periodically sweeps active incidents for identities whose
// tracking row has since recovered (consecutive_successes >= successThreshold)
// but whose incident was never closed — a safety net for inline resolve
// writes that failed and rows mutated outside the Result Processor.
type Reconciler struct {
	pool *pgxpool.Pool
}

// NewReconciler creates a Reconciler.
func NewReconciler(pool *pgxpool.Pool) *Reconciler {
	return &Reconciler{pool: pool}
}

const reconcileStmt = `
UPDATE model_health_incidents i
SET status = 'resolved', resolved_at = now(), resolution_notes = 'Model recovered and passed health checks'
FROM model_health_tracking t
WHERE i.provider = t.provider AND i.model = t.model AND i.gateway = t.gateway
  AND i.status = 'active'
  AND t.consecutive_successes >= $1`

// ReconcileActiveIncidents resolves any active incident whose identity has
// already recovered according to the tracking row, returning the number of
// incidents closed.
func (r *Reconciler) ReconcileActiveIncidents(ctx context.Context) (int, error) {
	tag, err := r.pool.Exec(ctx, reconcileStmt, successThreshold)
	if err != nil {
		return 0, fmt.Errorf("reconcile active incidents: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
