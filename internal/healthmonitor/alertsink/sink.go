// Package alertsink implements the Alert Emitter's emission contract: a
// small Sink interface plus a structured-log default implementation. No
// real Sentry SDK dependency exists in this repository; Sink is the
// documented extension point for one.
package alertsink

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Severity bands an Event by how far health has degraded.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Event is a structured alert emitted when aggregate health crosses a
// threshold.
type Event struct {
	Severity        Severity
	HealthPercent   float64
	HealthyModels   int
	UnhealthyModels int
	TotalModels     int
	SystemUptime    float64
	Threshold       float64
	Tags            map[string]string
}

// Sink emits an Event to whatever error-monitoring system backs it.
type Sink interface {
	Emit(ctx context.Context, event Event) error
}

// SlogSink is the default in-repo Sink: it logs at the severity-matching
// level and increments a counter, standing in for a real Sentry-backed
// sink until one is wired.
type SlogSink struct {
	logger *slog.Logger
	events *prometheus.CounterVec
}

// NewSlogSink creates a SlogSink.
func NewSlogSink(namespace string, logger *slog.Logger) *SlogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSink{
		logger: logger,
		events: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "business_alerts",
				Name:      "emitted_total",
				Help:      "Total number of health threshold alert events emitted",
			},
			[]string{"severity"},
		),
	}
}

// Emit implements Sink.
func (s *SlogSink) Emit(_ context.Context, event Event) error {
	s.events.WithLabelValues(string(event.Severity)).Inc()

	attrs := []any{
		"health_percentage", event.HealthPercent,
		"healthy_models", event.HealthyModels,
		"unhealthy_models", event.UnhealthyModels,
		"total_models", event.TotalModels,
		"system_uptime", event.SystemUptime,
		"threshold", event.Threshold,
	}
	for k, v := range event.Tags {
		attrs = append(attrs, k, v)
	}

	switch event.Severity {
	case SeverityCritical:
		s.logger.Error("aggregate health below critical threshold", attrs...)
	case SeverityError:
		s.logger.Warn("aggregate health below warning threshold", attrs...)
	default:
		s.logger.Info("aggregate health threshold alert", attrs...)
	}
	return nil
}

// SeverityFor bands a health percentage: < 85 critical, [85, 88) error,
// [88, 90) warning. It returns warning for 90 and above as well; Evaluate
// only calls it when health_pct < 90.
func SeverityFor(healthPct float64) Severity {
	switch {
	case healthPct < 85.0:
		return SeverityCritical
	case healthPct < 88.0:
		return SeverityError
	default:
		return SeverityWarning
	}
}
