// Package cachepublisher implements the Cache Publisher: it renders the
// current tracking state into four read-only documents (system, providers,
// gateways, models) plus an optional compact dashboard variant, and writes
// them to Redis with TTLs aligned to the scheduler's check interval.
package cachepublisher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/llm-infra/llm-health-monitor/internal/config"
	"github.com/llm-infra/llm-health-monitor/internal/core/resilience"
	"github.com/llm-infra/llm-health-monitor/internal/healthmonitor/alertsink"
	"github.com/llm-infra/llm-health-monitor/internal/infrastructure/cache"
	"github.com/llm-infra/llm-health-monitor/pkg/metrics"
)

// Publisher implements the Cache Publisher. It also drives the Alert
// Emitter (C10): after each successful system-document publication it hands
// a snapshot to the configured alertsink.Sink.
type Publisher struct {
	pool     *pgxpool.Pool
	redis    *cache.RedisCache
	gateways map[string]config.GatewayConfig
	logger   *slog.Logger
	metrics  *metrics.BusinessMetrics
	policy   *resilience.RetryPolicy
	emitter  *alertsink.Emitter
}

// New creates a Publisher. emitter may be nil to skip alert emission.
func New(pool *pgxpool.Pool, redisCache *cache.RedisCache, gateways map[string]config.GatewayConfig, logger *slog.Logger, businessMetrics *metrics.BusinessMetrics, emitter *alertsink.Emitter) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		pool:     pool,
		redis:    redisCache,
		gateways: gateways,
		logger:   logger,
		metrics:  businessMetrics,
		emitter:  emitter,
		policy: &resilience.RetryPolicy{
			MaxRetries:    2,
			BaseDelay:     100 * time.Millisecond,
			MaxDelay:      300 * time.Millisecond,
			Multiplier:    2.0,
			Jitter:        false,
			Logger:        logger,
			Metrics:       metrics.NewRetryMetrics(),
			OperationName: "cache_publish_write",
		},
	}
}

// Publish computes and writes all cache documents. Each document write is
// independent: a failure on one does not prevent the others from being
// attempted, since the next cycle will overwrite whichever document failed.
func (p *Publisher) Publish(ctx context.Context) error {
	start := time.Now()

	totals, err := queryCatalogTotals(ctx, p.pool)
	if err != nil {
		p.logger.Warn("cache publisher: failed to query catalog totals", "error", err)
		return err
	}

	trackedModels := totals.TrackedHealthy + totals.TrackedUnhealthy
	healthyModels := minInt(totals.TrackedHealthy, totals.TotalModels)
	unhealthyModels := minInt(totals.TrackedUnhealthy, totals.TotalModels-healthyModels)

	var providers []ProviderAggregate
	providers, err = queryProviderAggregates(ctx, p.pool)
	if err != nil {
		p.logger.Warn("cache publisher: failed to query provider aggregates", "error", err)
		providers = nil
	}
	totalProviders, healthyProviders, degradedProviders, unhealthyProviders := countProviderStatuses(providers)

	gateways := p.buildGatewayRecords(ctx)
	totalGateways := len(gateways)
	healthyGateways := 0
	for _, g := range gateways {
		if g.Healthy {
			healthyGateways++
		}
	}

	system := SystemDocument{
		OverallStatus:      systemStatus(trackedModels, healthyModels, unhealthyModels),
		TotalProviders:     totalProviders,
		HealthyProviders:   healthyProviders,
		DegradedProviders:  degradedProviders,
		UnhealthyProviders: unhealthyProviders,
		TotalModels:        totals.TotalModels,
		TrackedModels:      trackedModels,
		HealthyModels:      healthyModels,
		UnhealthyModels:    unhealthyModels,
		TotalGateways:      totalGateways,
		HealthyGateways:    healthyGateways,
		SystemUptime:       totals.AvgUptime,
		LastUpdated:        start,
	}
	p.writeDocument(ctx, KeySystem, system, primaryTTL)

	if p.emitter != nil {
		snap := alertsink.SystemSnapshot{
			HealthyModels:   system.HealthyModels,
			UnhealthyModels: system.UnhealthyModels,
			TotalModels:     system.TotalModels,
			UptimePercent:   system.SystemUptime,
		}
		if err := p.emitter.Evaluate(ctx, snap); err != nil {
			p.logger.Warn("cache publisher: alert emission failed", "error", err)
		}
	}

	if providers != nil {
		p.writeDocument(ctx, KeyProviders, ProvidersDocument{Providers: providers}, primaryTTL)
	}

	p.writeDocument(ctx, KeyGateways, gateways, primaryTTL)

	models, err := queryRecentModels(ctx, p.pool, maxModelsPublished)
	if err != nil {
		p.logger.Warn("cache publisher: failed to query recent models", "error", err)
	} else {
		p.writeDocument(ctx, KeyModels, ModelsDocument{Models: models}, primaryTTL)
	}

	dashboard := DashboardDocument{
		OverallStatus: system.OverallStatus,
		TotalModels:   system.TotalModels,
		HealthyModels: system.HealthyModels,
		UptimePercent: system.SystemUptime,
		GeneratedAt:   start,
	}
	p.writeDocument(ctx, KeyDashboard, dashboard, dashboardTTL)

	return nil
}

func countProviderStatuses(providers []ProviderAggregate) (total, healthy, degraded, unhealthy int) {
	total = len(providers)
	for _, p := range providers {
		switch p.Status {
		case ProviderOnline:
			healthy++
		case ProviderOffline:
			unhealthy++
		default:
			degraded++
		}
	}
	return
}

func systemStatus(tracked, healthy, unhealthy int) OverallStatus {
	if tracked == 0 {
		return StatusUnknown
	}
	switch {
	case unhealthy == 0:
		return StatusHealthy
	case unhealthy*2 > tracked:
		return StatusUnhealthy
	default:
		return StatusDegraded
	}
}

func (p *Publisher) buildGatewayRecords(ctx context.Context) map[string]GatewayRecord {
	records := make(map[string]GatewayRecord, len(p.gateways))
	for name, gw := range p.gateways {
		rec := GatewayRecord{LastCheck: time.Now()}
		requiresKey := gw.AuthStyle != "" && gw.AuthStyle != "none"
		rec.Configured = gw.Endpoint != "" && (!requiresKey || gw.APIKey != "")

		if !rec.Configured {
			envName := gw.APIKeyEnv
			if envName == "" {
				envName = "API_KEY"
			}
			rec.Status = GatewayUnconfigured
			rec.Healthy = false
			rec.Available = false
			rec.Error = fmt.Sprintf("API key not configured. Set %s environment variable.", envName)
			records[name] = rec
			continue
		}

		agg, err := queryGatewayAggregate(ctx, p.pool, name)
		if err != nil {
			rec.Status = GatewayOffline
			rec.Healthy = false
			rec.Available = false
			rec.Error = err.Error()
			records[name] = rec
			continue
		}
		rec.TotalModels = agg.ModelCount
		rec.LatencyMs = agg.LatencyMs

		switch {
		case agg.ModelCount == 0:
			rec.Status = GatewayPending
		case agg.HealthyCount > 0:
			rec.Status = GatewayHealthy
		default:
			rec.Status = GatewayOffline
		}
		rec.Healthy = rec.Status == GatewayHealthy
		rec.Available = rec.Healthy
		records[name] = rec
	}
	return records
}

func (p *Publisher) writeDocument(ctx context.Context, key string, doc interface{}, ttl time.Duration) {
	start := time.Now()
	err := resilience.WithRetry(ctx, p.policy, func() error {
		return p.redis.Set(ctx, key, doc, ttl)
	})
	success := err == nil
	if !success {
		p.logger.Warn("cache publisher: failed to write document", "key", key, "error", err)
	}
	if p.metrics != nil {
		p.metrics.RecordCachePublish(key, success, time.Since(start).Seconds())
	}
}

// Clear removes every published health:* document, used by the maintenance
// interface to force a clean republish.
func (p *Publisher) Clear(ctx context.Context) error {
	client := p.redis.GetClient()
	keys, err := client.Keys(ctx, wildcardPattern).Result()
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return client.Del(ctx, keys...).Err()
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
