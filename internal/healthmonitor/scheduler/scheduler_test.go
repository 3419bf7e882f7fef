package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llm-infra/llm-health-monitor/internal/config"
	"github.com/llm-infra/llm-health-monitor/internal/healthmonitor/domain"
	"github.com/llm-infra/llm-health-monitor/internal/healthmonitor/gateway"
	"github.com/llm-infra/llm-health-monitor/internal/healthmonitor/lease"
	"github.com/llm-infra/llm-health-monitor/internal/healthmonitor/prober"
)

type fakeRegistry struct {
	rows []domain.TrackingRow
	err  error
}

func (f *fakeRegistry) DueCandidates(_ context.Context, _ time.Time, batchSize int) ([]domain.TrackingRow, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.rows) > batchSize {
		return f.rows[:batchSize], nil
	}
	return f.rows, nil
}

type fakeProcessor struct {
	mu      sync.Mutex
	results []*domain.HealthCheckResult
}

func (f *fakeProcessor) Process(_ context.Context, result *domain.HealthCheckResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, result)
	return nil
}

func (f *fakeProcessor) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.results)
}

type fakePublisher struct {
	mu    sync.Mutex
	calls int
}

func (f *fakePublisher) Publish(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return nil
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeProber struct{}

func (fakeProber) Probe(_ context.Context, _ string, _ map[string]string, _ []byte, _ time.Duration) (*gateway.ProbeHTTPResult, error) {
	return &gateway.ProbeHTTPResult{StatusCode: 200}, nil
}

func newTestExecutor(t *testing.T) *prober.Executor {
	t.Helper()
	adapter := gateway.NewAdapter(map[string]config.GatewayConfig{
		"openrouter": {Endpoint: "https://openrouter.test", AuthStyle: "bearer", APIKey: "test-key"},
	})
	return prober.NewExecutor(adapter, fakeProber{}, 4)
}

func newTestLease(t *testing.T) *lease.WorkerLease {
	t.Helper()
	// enabled=false puts the lease into degraded (no-op) mode: every
	// candidate is retained without needing a real Redis instance.
	return lease.New(nil, lease.NewWorkerID(), nil, nil, false)
}

func TestRunOnce_IdleCyclePublishesAndReportsIdle(t *testing.T) {
	registry := &fakeRegistry{}
	processor := &fakeProcessor{}
	publisher := &fakePublisher{}

	s := New(registry, newTestLease(t), newTestExecutor(t), processor, publisher, 10, nil, nil)

	idle, err := s.runOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, idle)
	assert.Equal(t, 1, publisher.count())
	assert.Equal(t, 0, processor.count())
}

func TestRunOnce_ProbesEveryRetainedCandidate(t *testing.T) {
	registry := &fakeRegistry{rows: []domain.TrackingRow{
		{Identity: domain.Identity{Provider: "openrouter", Model: "gpt-test", Gateway: "openrouter"}, MonitoringTier: domain.TierCritical},
		{Identity: domain.Identity{Provider: "openrouter", Model: "llama-test", Gateway: "openrouter"}, MonitoringTier: domain.TierStandard},
	}}
	processor := &fakeProcessor{}
	publisher := &fakePublisher{}

	s := New(registry, newTestLease(t), newTestExecutor(t), processor, publisher, 10, nil, nil)

	idle, err := s.runOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, idle)
	assert.Equal(t, 2, processor.count())
	assert.Equal(t, 1, publisher.count())
}

func TestRunOnce_RegistryErrorPropagates(t *testing.T) {
	registry := &fakeRegistry{err: assert.AnError}
	s := New(registry, newTestLease(t), newTestExecutor(t), &fakeProcessor{}, &fakePublisher{}, 10, nil, nil)

	_, err := s.runOnce(context.Background())
	assert.ErrorIs(t, err, assert.AnError)
}
