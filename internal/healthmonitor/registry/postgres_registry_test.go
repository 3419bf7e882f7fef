package registry

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupTestDB mirrors the migrations/00001_model_health_tracking.sql shape
// (except that last_called_at here is NOT NULL with a default of now()) so
// DueCandidates/AllEnabledBatch/CountEnabled run against the real column set
// they scan.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	ctx := context.Background()

	postgresContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("healthmonitor_test"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpassword"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %s", err)
	}

	t.Cleanup(func() {
		if err := postgresContainer.Terminate(ctx); err != nil {
			t.Fatalf("failed to terminate postgres container: %s", err)
		}
	})

	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %s", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("failed to create pool: %s", err)
	}
	t.Cleanup(pool.Close)

	schema := `
	CREATE TABLE model_health_tracking (
		provider                  TEXT NOT NULL,
		model                     TEXT NOT NULL,
		gateway                   TEXT NOT NULL,
		monitoring_tier           TEXT NOT NULL DEFAULT 'standard',
		priority_score            DOUBLE PRECISION NOT NULL DEFAULT 0,
		next_check_at             TIMESTAMPTZ NOT NULL DEFAULT now(),
		last_called_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
		call_count                BIGINT NOT NULL DEFAULT 0,
		success_count             BIGINT NOT NULL DEFAULT 0,
		error_count               BIGINT NOT NULL DEFAULT 0,
		consecutive_failures      INTEGER NOT NULL DEFAULT 0,
		consecutive_successes     INTEGER NOT NULL DEFAULT 0,
		last_status               TEXT,
		last_response_time_ms     DOUBLE PRECISION,
		last_error_message        TEXT NOT NULL DEFAULT '',
		http_status_code          INTEGER,
		last_success_at           TIMESTAMPTZ,
		last_failure_at           TIMESTAMPTZ,
		average_response_time_ms  DOUBLE PRECISION NOT NULL DEFAULT 0,
		circuit_breaker_state     TEXT NOT NULL DEFAULT 'closed',
		uptime_percentage_24h     DOUBLE PRECISION NOT NULL DEFAULT 100,
		uptime_percentage_7d      DOUBLE PRECISION NOT NULL DEFAULT 100,
		uptime_percentage_30d     DOUBLE PRECISION NOT NULL DEFAULT 100,
		is_enabled                BOOLEAN NOT NULL DEFAULT true,
		PRIMARY KEY (provider, model, gateway)
	);`
	_, err = pool.Exec(ctx, schema)
	require.NoError(t, err)

	return pool
}

func insertTracking(t *testing.T, pool *pgxpool.Pool, provider, model, gateway string, nextCheckAt time.Time, enabled bool) {
	t.Helper()
	_, err := pool.Exec(context.Background(),
		`INSERT INTO model_health_tracking (provider, model, gateway, next_check_at, is_enabled) VALUES ($1, $2, $3, $4, $5)`,
		provider, model, gateway, nextCheckAt, enabled)
	require.NoError(t, err)
}

func TestDueCandidates_ReturnsOnlyEnabledRowsPastNextCheckAt(t *testing.T) {
	pool := setupTestDB(t)
	now := time.Now()

	insertTracking(t, pool, "openrouter", "due-model", "openrouter", now.Add(-time.Minute), true)
	insertTracking(t, pool, "openrouter", "future-model", "openrouter", now.Add(time.Hour), true)
	insertTracking(t, pool, "openrouter", "disabled-model", "openrouter", now.Add(-time.Minute), false)

	r := NewPostgresRegistry(pool, nil, NewRegistryMetrics("registry_test_due"))
	rows, err := r.DueCandidates(context.Background(), now, 10)
	require.NoError(t, err)

	require.Len(t, rows, 1)
	assert.Equal(t, "due-model", rows[0].Model)
}

func TestAllEnabledBatch_PaginatesAndStopsAtTheEnd(t *testing.T) {
	pool := setupTestDB(t)
	now := time.Now()

	for i := 0; i < 3; i++ {
		insertTracking(t, pool, "openrouter", "batch-model-"+string(rune('a'+i)), "openrouter", now, true)
	}

	r := NewPostgresRegistry(pool, nil, NewRegistryMetrics("registry_test_batch"))

	first, err := r.AllEnabledBatch(context.Background(), 2, 0)
	require.NoError(t, err)
	assert.Len(t, first, 2)

	second, err := r.AllEnabledBatch(context.Background(), 2, 2)
	require.NoError(t, err)
	assert.Len(t, second, 1)

	third, err := r.AllEnabledBatch(context.Background(), 2, 4)
	require.NoError(t, err)
	assert.Empty(t, third)
}

func TestCountEnabled_CountsOnlyEnabledRows(t *testing.T) {
	pool := setupTestDB(t)
	now := time.Now()

	insertTracking(t, pool, "openrouter", "enabled-one", "openrouter", now, true)
	insertTracking(t, pool, "openrouter", "enabled-two", "openrouter", now, true)
	insertTracking(t, pool, "openrouter", "disabled-one", "openrouter", now, false)

	r := NewPostgresRegistry(pool, nil, NewRegistryMetrics("registry_test_count"))
	count, err := r.CountEnabled(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
