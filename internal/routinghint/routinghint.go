// Package routinghint implements the read-only consumer contract the
// request-time router uses to make health-aware routing decisions. It
// exposes exactly the two pure functions the original health_routing.py
// provided: IsModelHealthy and HealthyAlternative, both reading from the
// compact health:models document published by the Cache Publisher. Neither
// function ever blocks a request on a health-check error: both fail open.
package routinghint

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/llm-infra/llm-health-monitor/internal/infrastructure/cache"
)

const modelsCacheKey = "health:models"

// modelEntry mirrors cachepublisher.ModelEntry's wire shape without
// importing that package, keeping this consumer-facing package independent
// of the publisher's internals.
type modelEntry struct {
	ModelID          string   `json:"model_id"`
	Provider         string   `json:"provider"`
	Gateway          string   `json:"gateway"`
	Status           string   `json:"status"`
	UptimePercentage float64  `json:"uptime_percentage"`
	ResponseTimeMs   *float64 `json:"response_time_ms"`
}

// modelsDocument mirrors cachepublisher.ModelsDocument's wire shape: the
// health:models key holds an object, not a bare array.
type modelsDocument struct {
	Models []modelEntry `json:"models"`
}

func (m modelEntry) responseTimeMs() float64 {
	if m.ResponseTimeMs == nil {
		return 0
	}
	return *m.ResponseTimeMs
}

// Reader is the minimal cache dependency routinghint needs.
type Reader interface {
	Get(ctx context.Context, key string, dest interface{}) error
}

// DefaultMinUptime mirrors health_routing.py's is_model_healthy default
// threshold.
const DefaultMinUptime = 50.0

// DefaultAlternativeMinUptime mirrors get_healthy_alternative_provider's
// default threshold, stricter than the plain health check since it is
// choosing among candidates rather than just rejecting one.
const DefaultAlternativeMinUptime = 70.0

func fetchModels(ctx context.Context, reader Reader, logger *slog.Logger) ([]modelEntry, bool) {
	var doc modelsDocument
	if err := reader.Get(ctx, modelsCacheKey, &doc); err != nil {
		if !cache.IsNotFound(err) {
			logger.Warn("routinghint: failed to read published models document", "error", err)
		}
		return nil, false
	}
	return doc.Models, true
}

// IsModelHealthy reports whether a model should be routed to. It fails open
// (returns true, "") whenever health data is unavailable, the model is not
// yet tracked, or the cache read itself errors — a health-check outage must
// never block traffic.
func IsModelHealthy(ctx context.Context, reader Reader, logger *slog.Logger, provider, model string, minUptimeThreshold float64) (bool, string) {
	if logger == nil {
		logger = slog.Default()
	}

	models, ok := fetchModels(ctx, reader, logger)
	if !ok || len(models) == 0 {
		return true, ""
	}

	var found *modelEntry
	for i := range models {
		if models[i].ModelID == model && models[i].Provider == provider {
			found = &models[i]
			break
		}
	}
	if found == nil {
		return true, ""
	}

	if found.Status == "unhealthy" {
		return false, fmt.Sprintf("model %s on %s is currently unhealthy (uptime: %.1f%%)", model, provider, found.UptimePercentage)
	}
	if found.UptimePercentage < minUptimeThreshold {
		return false, fmt.Sprintf("model %s on %s has low uptime (%.1f%% < %.1f%% threshold)", model, provider, found.UptimePercentage, minUptimeThreshold)
	}
	return true, ""
}

// HealthyAlternative finds a healthy alternative provider for a model,
// preferring higher uptime and then lower response time, or "" if none
// qualifies.
func HealthyAlternative(ctx context.Context, reader Reader, logger *slog.Logger, model, currentProvider string, minUptimeThreshold float64) string {
	if logger == nil {
		logger = slog.Default()
	}

	models, ok := fetchModels(ctx, reader, logger)
	if !ok {
		return ""
	}

	var best *modelEntry
	for i := range models {
		m := &models[i]
		if m.ModelID != model || m.Provider == currentProvider || m.Status != "healthy" || m.UptimePercentage < minUptimeThreshold {
			continue
		}
		if best == nil ||
			m.UptimePercentage > best.UptimePercentage ||
			(m.UptimePercentage == best.UptimePercentage && m.responseTimeMs() < best.responseTimeMs()) {
			best = m
		}
	}
	if best == nil {
		return ""
	}
	return best.Provider
}
