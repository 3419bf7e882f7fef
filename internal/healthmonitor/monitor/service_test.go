package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llm-infra/llm-health-monitor/internal/config"
	"github.com/llm-infra/llm-health-monitor/internal/healthmonitor/domain"
	"github.com/llm-infra/llm-health-monitor/internal/healthmonitor/gateway"
	"github.com/llm-infra/llm-health-monitor/internal/healthmonitor/lease"
	"github.com/llm-infra/llm-health-monitor/internal/healthmonitor/processor"
	"github.com/llm-infra/llm-health-monitor/internal/healthmonitor/prober"
)

type fakeTierUpdater struct{ ran bool }

func (f *fakeTierUpdater) Run(_ context.Context) { f.ran = true }

type fakeAggregator struct{ err error }

func (f *fakeAggregator) Run(_ context.Context) error { return f.err }

type fakeResolver struct {
	closed int
	err    error
}

func (f *fakeResolver) ReconcileActiveIncidents(_ context.Context) (int, error) {
	return f.closed, f.err
}

func newTestService() *Service {
	return New(nil, &fakeTierUpdater{}, &fakeAggregator{}, &fakeResolver{}, nil, nil, nil, nil, nil, nil)
}

func TestStop_WithoutStartIsANoop(t *testing.T) {
	s := newTestService()
	err := s.Stop(context.Background())
	assert.NoError(t, err)
}

func TestRunSupervised_RecoversPanicAndSignalsDone(t *testing.T) {
	s := newTestService()
	s.wg.Add(1)

	done := make(chan struct{})
	go func() {
		s.runSupervised(context.Background(), "panicky_loop", func(_ context.Context) {
			panic("simulated loop crash")
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("runSupervised did not return after a panic")
	}

	waitDone := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
	case <-time.After(time.Second):
		t.Fatal("wg.Done() was not called after a panicking loop body")
	}
}

func TestRunSupervised_PropagatesNormalCompletion(t *testing.T) {
	s := newTestService()
	s.wg.Add(1)

	called := false
	s.runSupervised(context.Background(), "normal_loop", func(_ context.Context) {
		called = true
	})

	assert.True(t, called)
}

// fakeStore is a minimal in-memory processor.Store used only to exercise
// CheckOnDemand end to end without a real database.
type fakeStore struct {
	rows map[domain.Identity]domain.TrackingRow
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: map[domain.Identity]domain.TrackingRow{}}
}

func (f *fakeStore) GetTrackingRow(_ context.Context, id domain.Identity) (*domain.TrackingRow, error) {
	if row, ok := f.rows[id]; ok {
		return &row, nil
	}
	return nil, nil
}

func (f *fakeStore) UpsertTrackingRow(_ context.Context, row domain.TrackingRow) error {
	f.rows[row.Identity] = row
	return nil
}

func (f *fakeStore) AppendHistory(_ context.Context, _ domain.HistoryRecord) error { return nil }

func (f *fakeStore) GetActiveIncident(_ context.Context, _ domain.Identity) (*domain.Incident, error) {
	return nil, nil
}

func (f *fakeStore) OpenIncident(_ context.Context, _ domain.Incident) error  { return nil }
func (f *fakeStore) UpdateIncident(_ context.Context, _ domain.Incident) error { return nil }
func (f *fakeStore) ResolveActiveIncidents(_ context.Context, _ domain.Identity, _ string) error {
	return nil
}

type okProber struct{}

func (okProber) Probe(_ context.Context, _ string, _ map[string]string, _ []byte, _ time.Duration) (*gateway.ProbeHTTPResult, error) {
	return &gateway.ProbeHTTPResult{StatusCode: 200}, nil
}

func newOnDemandService(t *testing.T, enabled bool) *Service {
	t.Helper()
	adapter := gateway.NewAdapter(map[string]config.GatewayConfig{
		"openrouter": {Endpoint: "https://openrouter.test", AuthStyle: "bearer", APIKey: "test-key"},
	})
	executor := prober.NewExecutor(adapter, okProber{}, 4)
	workerLease := lease.New(nil, lease.NewWorkerID(), nil, nil, enabled)
	proc := processor.New(newFakeStore(), nil, nil)

	return New(nil, &fakeTierUpdater{}, &fakeAggregator{}, &fakeResolver{}, nil, executor, workerLease, proc, nil, nil)
}

func TestCheckOnDemand_ProbesAndProcessesResult(t *testing.T) {
	s := newOnDemandService(t, false)

	result, err := s.CheckOnDemand(context.Background(), "openrouter", "gpt-test", "openrouter")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "openrouter", result.Provider)
	assert.Equal(t, "gpt-test", result.Model)
}
