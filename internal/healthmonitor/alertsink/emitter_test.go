package alertsink

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSink struct {
	events []Event
}

func (f *fakeSink) Emit(_ context.Context, event Event) error {
	f.events = append(f.events, event)
	return nil
}

func TestEvaluate_NoAlertAboveThreshold(t *testing.T) {
	sink := &fakeSink{}
	e := NewEmitter(sink)

	err := e.Evaluate(context.Background(), SystemSnapshot{HealthyModels: 95, UnhealthyModels: 5, TotalModels: 100})
	require.NoError(t, err)
	assert.Empty(t, sink.events)
}

func TestEvaluate_ZeroTotalModelsSkipsAlert(t *testing.T) {
	sink := &fakeSink{}
	e := NewEmitter(sink)

	err := e.Evaluate(context.Background(), SystemSnapshot{})
	require.NoError(t, err)
	assert.Empty(t, sink.events)
}

func TestEvaluate_ErrorBandBetween85And88(t *testing.T) {
	sink := &fakeSink{}
	e := NewEmitter(sink)

	err := e.Evaluate(context.Background(), SystemSnapshot{HealthyModels: 87, UnhealthyModels: 13, TotalModels: 100})
	require.NoError(t, err)
	require.Len(t, sink.events, 1)
	assert.Equal(t, SeverityError, sink.events[0].Severity)
	assert.InDelta(t, 87.0, sink.events[0].HealthPercent, 0.001)
}

func TestEvaluate_CriticalBandBelow85(t *testing.T) {
	sink := &fakeSink{}
	e := NewEmitter(sink)

	err := e.Evaluate(context.Background(), SystemSnapshot{HealthyModels: 60, UnhealthyModels: 40, TotalModels: 100})
	require.NoError(t, err)
	require.Len(t, sink.events, 1)
	assert.Equal(t, SeverityCritical, sink.events[0].Severity)
}

func TestSeverityFor(t *testing.T) {
	assert.Equal(t, SeverityCritical, SeverityFor(84.9))
	assert.Equal(t, SeverityError, SeverityFor(85.0))
	assert.Equal(t, SeverityWarning, SeverityFor(89.9))
}
