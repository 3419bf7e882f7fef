// Package main is the entry point for the LLM Health Monitor service.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/llm-infra/llm-health-monitor/internal/api"
	"github.com/llm-infra/llm-health-monitor/internal/config"
	"github.com/llm-infra/llm-health-monitor/internal/database"
	"github.com/llm-infra/llm-health-monitor/internal/database/postgres"
	"github.com/llm-infra/llm-health-monitor/internal/healthmonitor/aggregator"
	"github.com/llm-infra/llm-health-monitor/internal/healthmonitor/alertsink"
	"github.com/llm-infra/llm-health-monitor/internal/healthmonitor/cachepublisher"
	"github.com/llm-infra/llm-health-monitor/internal/healthmonitor/gateway"
	"github.com/llm-infra/llm-health-monitor/internal/healthmonitor/lease"
	"github.com/llm-infra/llm-health-monitor/internal/healthmonitor/monitor"
	"github.com/llm-infra/llm-health-monitor/internal/healthmonitor/prober"
	"github.com/llm-infra/llm-health-monitor/internal/healthmonitor/processor"
	"github.com/llm-infra/llm-health-monitor/internal/healthmonitor/registry"
	"github.com/llm-infra/llm-health-monitor/internal/healthmonitor/scheduler"
	"github.com/llm-infra/llm-health-monitor/internal/healthmonitor/tier"
	"github.com/llm-infra/llm-health-monitor/internal/infrastructure/cache"
	"github.com/llm-infra/llm-health-monitor/pkg/logger"
	"github.com/llm-infra/llm-health-monitor/pkg/metrics"
)

const (
	serviceName    = "llm-health-monitor"
	serviceVersion = "1.0.0"
)

func main() {
	var configPath = flag.String("config", "", "Path to YAML configuration file")
	var showVersion = flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s version %s\n", serviceName, serviceVersion)
		os.Exit(0)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	appLogger := logger.NewLogger(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		Filename:   cfg.Log.Filename,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	})
	slog.SetDefault(appLogger)

	appLogger.Info("starting service", "service", serviceName, "version", serviceVersion, "profile", cfg.Profile)

	ctx := context.Background()

	pgConfig := &postgres.PostgresConfig{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		Database:        cfg.Database.Database,
		User:            cfg.Database.Username,
		Password:        cfg.Database.Password,
		SSLMode:         cfg.Database.SSLMode,
		MaxConns:        int32(cfg.Database.MaxConnections),
		MinConns:        int32(cfg.Database.MinConnections),
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
		ConnectTimeout:  cfg.Database.ConnectTimeout,
	}
	pgPool := postgres.NewPostgresPool(pgConfig, appLogger)
	if err := pgPool.Connect(ctx); err != nil {
		appLogger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pgPool.Disconnect(ctx)

	if err := database.RunMigrations(ctx, pgPool, appLogger); err != nil {
		appLogger.Error("failed to run database migrations", "error", err)
		appLogger.Warn("continuing without migrations - manual intervention may be required")
	}

	var redisClient *redis.Client
	var redisCache *cache.RedisCache
	if cfg.RequiresRedis() {
		redisCache, err = cache.NewRedisCache(&cache.CacheConfig{
			Addr:            cfg.Redis.Addr,
			Password:        cfg.Redis.Password,
			DB:              cfg.Redis.DB,
			PoolSize:        cfg.Redis.PoolSize,
			MinIdleConns:    cfg.Redis.MinIdleConns,
			DialTimeout:     cfg.Redis.DialTimeout,
			ReadTimeout:     cfg.Redis.ReadTimeout,
			WriteTimeout:    cfg.Redis.WriteTimeout,
			MaxRetries:      cfg.Redis.MaxRetries,
			MinRetryBackoff: cfg.Redis.MinRetryBackoff,
			MaxRetryBackoff: cfg.Redis.MaxRetryBackoff,
		}, appLogger)
		if err != nil {
			appLogger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		redisClient = redisCache.GetClient()
	} else {
		appLogger.Warn("redis coordination disabled: worker lease and cache publication will degrade accordingly")
	}

	namespace := cfg.Metrics.Namespace
	metricsRegistry := metrics.NewMetricsRegistry(namespace)
	businessMetrics := metricsRegistry.Business()
	schedulerMetrics := metricsRegistry.Technical().Scheduler
	leaseMetrics := metricsRegistry.Technical().Lease
	registryMetrics := registry.NewRegistryMetrics(namespace)
	httpMetrics := metrics.NewHTTPMetricsWithNamespace(namespace, "status_api")

	dbExporter := postgres.NewPrometheusExporter(pgPool, metricsRegistry.Infra().DB)
	dbExporter.Start(ctx, 15*time.Second)
	defer dbExporter.Stop()

	reg := registry.NewPostgresRegistry(pgPool.Pool(), appLogger, registryMetrics)

	workerLease := lease.New(redisClient, lease.NewWorkerID(), appLogger, leaseMetrics, cfg.RequiresRedis())

	adapter := gateway.NewAdapter(cfg.Monitor.Gateways)
	httpProber := gateway.NewHTTPProber()
	executor := prober.NewExecutor(adapter, httpProber, int64(cfg.Monitor.MaxConcurrentChecks))

	store := processor.NewPostgresStore(pgPool.Pool())
	resultProcessor := processor.New(store, appLogger, businessMetrics)
	reconciler := processor.NewReconciler(pgPool.Pool())

	tierUpdater := tier.New(pgPool.Pool(), appLogger)
	agg := aggregator.New(pgPool.Pool(), reg, appLogger, businessMetrics)

	var emitter *alertsink.Emitter
	if cfg.Monitor.HealthAlertThresholdPc > 0 {
		sink := alertsink.NewSlogSink(namespace, appLogger)
		emitter = alertsink.NewEmitter(sink)
	}

	var publisher scheduler.CachePublisher
	if redisCache != nil {
		publisher = cachepublisher.New(pgPool.Pool(), redisCache, cfg.Monitor.Gateways, appLogger, businessMetrics, emitter)
	} else {
		publisher = noopPublisher{}
	}

	sched := scheduler.New(reg, workerLease, executor, resultProcessor, publisher, cfg.Monitor.BatchSize, appLogger, schedulerMetrics)

	service := monitor.New(sched, tierUpdater, agg, reconciler, reg, executor, workerLease, resultProcessor, publisher, appLogger)

	supervisorCtx, supervisorCancel := context.WithCancel(ctx)
	service.Start(supervisorCtx)

	router := api.NewRouter(service, httpMetrics, appLogger)
	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		appLogger.Info("status HTTP server starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("status HTTP server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	appLogger.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("status HTTP server forced shutdown", "error", err)
	}

	if err := service.Stop(shutdownCtx); err != nil {
		appLogger.Error("lifecycle supervisor shutdown deadline exceeded", "error", err)
	}
	supervisorCancel()

	appLogger.Info("service exited")
}

// noopPublisher stands in for the Cache Publisher when Redis coordination
// is disabled (lite profile): there is nowhere to publish to, so every
// cycle is a cheap no-op rather than a nil-pointer panic.
type noopPublisher struct{}

func (noopPublisher) Publish(_ context.Context) error { return nil }
