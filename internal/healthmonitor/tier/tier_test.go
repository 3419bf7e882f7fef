package tier

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
		provider TEXT NOT NULL,
		model TEXT NOT NULL,
		gateway TEXT NOT NULL,
		monitoring_tier TEXT NOT NULL DEFAULT 'standard',
		call_count BIGINT NOT NULL DEFAULT 0,
		is_enabled BOOLEAN NOT NULL DEFAULT true,
		PRIMARY KEY (provider, model, gateway)
	);`
	_, err = pool.Exec(ctx, schema)
	require.NoError(t, err)

	return pool
}

func insertModel(t *testing.T, pool *pgxpool.Pool, model string, callCount int64, tier string) {
	t.Helper()
	_, err := pool.Exec(context.Background(),
		`INSERT INTO model_health_tracking (provider, model, gateway, call_count, monitoring_tier) VALUES ($1, $2, $3, $4, $5)`,
		"openrouter", model, "openrouter", callCount, tier)
	require.NoError(t, err)
}

func tierOf(t *testing.T, pool *pgxpool.Pool, model string) string {
	t.Helper()
	var tier string
	err := pool.QueryRow(context.Background(), `SELECT monitoring_tier FROM model_health_tracking WHERE model = $1`, model).Scan(&tier)
	require.NoError(t, err)
	return tier
}

func TestUpdater_Run_ReassignsByCallCountPercentile(t *testing.T) {
	pool := setupTestDB(t)

	// 20 models: the top one (rank 0) falls in the top-5% bucket and
	// becomes critical; the next 4 (5%-25%) become popular; the rest stay
	// standard.
	for i := 0; i < 20; i++ {
		insertModel(t, pool, modelName(i), int64(20-i), "standard")
	}

	u := New(pool, nil)
	u.Run(context.Background())

	assert.Equal(t, "critical", tierOf(t, pool, modelName(0)))
	assert.Equal(t, "popular", tierOf(t, pool, modelName(1)))
	assert.Equal(t, "standard", tierOf(t, pool, modelName(19)))
}

func TestUpdater_Run_PreservesOnDemandPin(t *testing.T) {
	pool := setupTestDB(t)

	insertModel(t, pool, "pinned-model", 1000, "on_demand")
	for i := 0; i < 5; i++ {
		insertModel(t, pool, modelName(i), int64(5-i), "standard")
	}

	u := New(pool, nil)
	u.Run(context.Background())

	assert.Equal(t, "on_demand", tierOf(t, pool, "pinned-model"))
}

func modelName(i int) string {
	return "model-" + string(rune('a'+i))
}
