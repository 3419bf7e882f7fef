// Package lease implements the Worker Lease: an atomic set-if-absent on
// health_check_lock:{provider}:{model}:{gateway} so multiple scheduler
// processes cooperate without double-probing the same identity.
package lease

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/llm-infra/llm-health-monitor/internal/healthmonitor/domain"
	"github.com/llm-infra/llm-health-monitor/internal/infrastructure/lock"
	"github.com/llm-infra/llm-health-monitor/pkg/metrics"
)

const leaseTTL = 60 * time.Second

// WorkerLease gates which candidates a scheduler process is allowed to
// probe. If Redis is unavailable it degrades to a no-op: every candidate is
// retained, trading duplicate probes for availability.
type WorkerLease struct {
	manager *lock.LockManager
	logger  *slog.Logger
	lease   *metrics.LeaseMetrics
	enabled bool
}

// New creates a WorkerLease. When enabled is false (redis_coordination
// disabled, or no Redis client available), Acquire always succeeds without
// touching Redis.
func New(client *redis.Client, workerID string, logger *slog.Logger, lease *metrics.LeaseMetrics, enabled bool) *WorkerLease {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := &lock.LockConfig{
		TTL:            leaseTTL,
		MaxRetries:     0,
		RetryInterval:  0,
		AcquireTimeout: 5 * time.Second,
		ReleaseTimeout: 2 * time.Second,
		ValuePrefix:    workerID,
	}
	var manager *lock.LockManager
	if client != nil {
		manager = lock.NewLockManager(client, cfg, logger)
	}
	return &WorkerLease{manager: manager, logger: logger, lease: lease, enabled: enabled && client != nil}
}

func leaseKey(id domain.Identity) string {
	return fmt.Sprintf("health_check_lock:%s:%s:%s", id.Provider, id.Model, id.Gateway)
}

// Acquire attempts to acquire the lease for an identity. The bool return
// reports whether this worker may proceed with probing it.
func (w *WorkerLease) Acquire(ctx context.Context, id domain.Identity) bool {
	if !w.enabled {
		if w.lease != nil {
			w.lease.DegradedTotal.Inc()
		}
		return true
	}

	key := leaseKey(id)
	_, err := w.manager.AcquireLock(ctx, key)
	if err != nil {
		// A failed Redis call comes back wrapped; a lease held by another
		// worker comes back as a plain error with no cause.
		if errors.Unwrap(err) != nil {
			w.logger.Warn("worker lease unavailable, probing without coordination", "key", key, "error", err)
			if w.lease != nil {
				w.lease.DegradedTotal.Inc()
			}
			return true
		}
		if w.lease != nil {
			w.lease.AcquireTotal.WithLabelValues("held_elsewhere").Inc()
		}
		return false
	}

	if w.lease != nil {
		w.lease.AcquireTotal.WithLabelValues("acquired").Inc()
	}
	return true
}

// Release releases an actively held lease immediately, used by the
// on-demand check path so a manual probe does not have to wait out the
// full 60s TTL before another worker can retry the same identity.
func (w *WorkerLease) Release(ctx context.Context, id domain.Identity) error {
	if !w.enabled {
		return nil
	}
	key := leaseKey(id)
	if err := w.manager.ReleaseLock(ctx, key); err != nil {
		return fmt.Errorf("release lease for %s: %w", key, err)
	}
	if w.lease != nil {
		w.lease.ReleaseTotal.Inc()
	}
	return nil
}

// FilterRetained acquires leases for each candidate and returns only the
// identities this worker may probe, capped at batchSize.
func (w *WorkerLease) FilterRetained(ctx context.Context, candidates []domain.TrackingRow, batchSize int) []domain.TrackingRow {
	retained := make([]domain.TrackingRow, 0, batchSize)
	for _, c := range candidates {
		if len(retained) >= batchSize {
			break
		}
		if w.Acquire(ctx, c.Identity) {
			retained = append(retained, c)
		}
	}
	return retained
}
