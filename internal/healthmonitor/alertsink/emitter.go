package alertsink

import "context"

// Emitter computes health_pct from a just-published system snapshot and
// emits an Event through its Sink when health has dropped below 90%.
type Emitter struct {
	sink Sink
}

// NewEmitter creates an Emitter.
func NewEmitter(sink Sink) *Emitter {
	return &Emitter{sink: sink}
}

const alertThreshold = 90.0

// SystemSnapshot is the minimal view of the system cache document the
// Emitter needs; it is duplicated here rather than imported from
// cachepublisher to avoid a dependency cycle (cachepublisher does not need
// to know about alerting).
type SystemSnapshot struct {
	HealthyModels   int
	UnhealthyModels int
	TotalModels     int
	UptimePercent   float64
}

// Evaluate computes health_pct and emits an alert if it is below threshold.
func (e *Emitter) Evaluate(ctx context.Context, snap SystemSnapshot) error {
	if snap.TotalModels == 0 {
		return nil
	}
	healthPct := float64(snap.HealthyModels) / float64(snap.TotalModels) * 100.0
	if healthPct >= alertThreshold {
		return nil
	}

	event := Event{
		Severity:        SeverityFor(healthPct),
		HealthPercent:   healthPct,
		HealthyModels:   snap.HealthyModels,
		UnhealthyModels: snap.UnhealthyModels,
		TotalModels:     snap.TotalModels,
		SystemUptime:    snap.UptimePercent,
		Threshold:       alertThreshold,
		Tags:            map[string]string{"component": "health_monitor"},
	}
	return e.sink.Emit(ctx, event)
}
