package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

func lookupEnv(key string) string {
	return os.Getenv(key)
}

// Config represents the application configuration.
type Config struct {
	// Profile selects which external dependencies this process requires.
	// Values: "lite" (single-node, no Redis coordination) or "standard" (Postgres+Redis, HA).
	Profile DeploymentProfile `mapstructure:"profile"`

	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Log      LogConfig      `mapstructure:"log"`
	App      AppConfig      `mapstructure:"app"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
}

// DeploymentProfile represents the deployment profile type.
type DeploymentProfile string

const (
	// ProfileLite runs a single process with Redis coordination disabled
	// (Worker Lease degrades to a no-op). Use case: local development, small catalogs.
	ProfileLite DeploymentProfile = "lite"

	// ProfileStandard runs with Postgres + Redis required, supports multiple
	// cooperating worker processes via the distributed lease.
	ProfileStandard DeploymentProfile = "standard"
)

// ServerConfig holds the optional status/debug HTTP surface configuration.
type ServerConfig struct {
	Port                    int           `mapstructure:"port"`
	Host                    string        `mapstructure:"host"`
	ReadTimeout             time.Duration `mapstructure:"read_timeout"`
	WriteTimeout            time.Duration `mapstructure:"write_timeout"`
	IdleTimeout             time.Duration `mapstructure:"idle_timeout"`
	GracefulShutdownTimeout time.Duration `mapstructure:"graceful_shutdown_timeout"`
}

// DatabaseConfig holds database-related configuration.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MinConnections  int           `mapstructure:"min_connections"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	QueryTimeout    time.Duration `mapstructure:"query_timeout"`
	URL             string        `mapstructure:"url"`
}

// RedisConfig holds Redis-related configuration, used by both the Worker
// Lease and the Cache Publisher.
type RedisConfig struct {
	Addr            string        `mapstructure:"addr"`
	Password        string        `mapstructure:"password"`
	DB              int           `mapstructure:"db"`
	PoolSize        int           `mapstructure:"pool_size"`
	MinIdleConns    int           `mapstructure:"min_idle_conns"`
	DialTimeout     time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
	MinRetryBackoff time.Duration `mapstructure:"min_retry_backoff"`
	MaxRetryBackoff time.Duration `mapstructure:"max_retry_backoff"`
}

// LogConfig holds logging-related configuration.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// AppConfig holds process-identity configuration.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
	Timezone    string `mapstructure:"timezone"`
}

// MetricsConfig holds Prometheus registry configuration.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
	Path      string `mapstructure:"path"`
}

// TierConfig holds the per-monitoring-tier interval and timeout.
type TierConfig struct {
	IntervalSeconds int `mapstructure:"interval_seconds"`
	TimeoutSeconds  int `mapstructure:"timeout_seconds"`
	MaxTokens       int `mapstructure:"max_tokens"`
}

// GatewayConfig describes one upstream gateway's probe endpoint and
// credential lookup. APIKeyEnv names the environment variable holding the
// credential; an empty value at load time marks the gateway unconfigured.
type GatewayConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AuthStyle string `mapstructure:"auth_style"` // "bearer", "x-api-key", "portkey", "none"
	APIKeyEnv string `mapstructure:"api_key_env"`
	APIKey    string `mapstructure:"-"` // resolved from APIKeyEnv at load time, never persisted
}

// MonitorConfig holds all Intelligent Health Monitor tuning knobs.
type MonitorConfig struct {
	CheckIntervalSeconds   int                      `mapstructure:"health_check_interval_seconds"`
	BatchSize              int                      `mapstructure:"batch_size"`
	MaxConcurrentChecks    int                      `mapstructure:"max_concurrent_checks"`
	RedisCoordination      bool                     `mapstructure:"redis_coordination"`
	FailureThreshold       int                      `mapstructure:"failure_threshold"`
	SuccessThreshold       int                      `mapstructure:"success_threshold"`
	HealthAlertThresholdPc float64                  `mapstructure:"health_alert_threshold_pct"`
	CacheTTLSeconds        int                      `mapstructure:"cache_ttl_seconds"`
	DashboardCacheTTLSec   int                      `mapstructure:"dashboard_cache_ttl_seconds"`
	ShortenedRetrySeconds  int                      `mapstructure:"shortened_retry_seconds"`
	AggregationIntervalMin int                      `mapstructure:"aggregation_interval_minutes"`
	TierUpdateIntervalMin  int                      `mapstructure:"tier_update_interval_minutes"`
	Tiers                  map[string]TierConfig    `mapstructure:"tiers"`
	Gateways               map[string]GatewayConfig `mapstructure:"gateways"`
}

// LoadConfig loads configuration from file and environment variables.
func LoadConfig(configPath string) (*Config, error) {
	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if configPath != "" {
		viper.SetConfigFile(configPath)
		viper.SetConfigType("yaml")

		if err := viper.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	resolveGatewayCredentials(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadConfigFromEnv loads configuration from environment variables only.
func LoadConfigFromEnv() (*Config, error) {
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	resolveGatewayCredentials(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// resolveGatewayCredentials looks up each gateway's API key from its
// configured environment variable. A gateway left without a resolvable key
// is not an error here: the Gateway Adapter classifies it as unconfigured
// at probe-build time instead of failing config load.
func resolveGatewayCredentials(cfg *Config) {
	for name, gw := range cfg.Monitor.Gateways {
		if gw.APIKeyEnv == "" {
			continue
		}
		if v := lookupEnv(gw.APIKeyEnv); v != "" {
			gw.APIKey = v
			cfg.Monitor.Gateways[name] = gw
		}
	}
}

func setDefaults() {
	viper.SetDefault("profile", "standard")

	viper.SetDefault("server.port", 8090)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.read_timeout", "15s")
	viper.SetDefault("server.write_timeout", "15s")
	viper.SetDefault("server.idle_timeout", "60s")
	viper.SetDefault("server.graceful_shutdown_timeout", "15s")

	viper.SetDefault("database.driver", "postgres")
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.database", "llm_health_monitor")
	viper.SetDefault("database.username", "dev")
	viper.SetDefault("database.password", "dev")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_connections", 25)
	viper.SetDefault("database.min_connections", 5)
	viper.SetDefault("database.max_conn_lifetime", "1h")
	viper.SetDefault("database.max_conn_idle_time", "30m")
	viper.SetDefault("database.connect_timeout", "10s")
	viper.SetDefault("database.query_timeout", "30s")

	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.pool_size", 10)
	viper.SetDefault("redis.min_idle_conns", 5)
	viper.SetDefault("redis.dial_timeout", "5s")
	viper.SetDefault("redis.read_timeout", "3s")
	viper.SetDefault("redis.write_timeout", "3s")
	viper.SetDefault("redis.max_retries", 3)
	viper.SetDefault("redis.min_retry_backoff", "100ms")
	viper.SetDefault("redis.max_retry_backoff", "500ms")

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "json")
	viper.SetDefault("log.output", "stdout")
	viper.SetDefault("log.filename", "")
	viper.SetDefault("log.max_size", 100)
	viper.SetDefault("log.max_backups", 3)
	viper.SetDefault("log.max_age", 28)
	viper.SetDefault("log.compress", true)

	viper.SetDefault("app.name", "llm-health-monitor")
	viper.SetDefault("app.version", "1.0.0")
	viper.SetDefault("app.environment", "development")
	viper.SetDefault("app.debug", false)
	viper.SetDefault("app.timezone", "UTC")

	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.namespace", "llm_health_monitor")
	viper.SetDefault("metrics.path", "/metrics")

	viper.SetDefault("monitor.health_check_interval_seconds", 300)
	viper.SetDefault("monitor.batch_size", 50)
	viper.SetDefault("monitor.max_concurrent_checks", 20)
	viper.SetDefault("monitor.redis_coordination", true)
	viper.SetDefault("monitor.failure_threshold", 8)
	viper.SetDefault("monitor.success_threshold", 3)
	viper.SetDefault("monitor.health_alert_threshold_pct", 90.0)
	viper.SetDefault("monitor.cache_ttl_seconds", 360)
	viper.SetDefault("monitor.dashboard_cache_ttl_seconds", 90)
	viper.SetDefault("monitor.shortened_retry_seconds", 300)
	viper.SetDefault("monitor.aggregation_interval_minutes", 5)
	viper.SetDefault("monitor.tier_update_interval_minutes", 60)

	viper.SetDefault("monitor.tiers.critical.interval_seconds", 300)
	viper.SetDefault("monitor.tiers.critical.timeout_seconds", 30)
	viper.SetDefault("monitor.tiers.critical.max_tokens", 10)
	viper.SetDefault("monitor.tiers.popular.interval_seconds", 1800)
	viper.SetDefault("monitor.tiers.popular.timeout_seconds", 45)
	viper.SetDefault("monitor.tiers.popular.max_tokens", 8)
	viper.SetDefault("monitor.tiers.standard.interval_seconds", 7200)
	viper.SetDefault("monitor.tiers.standard.timeout_seconds", 60)
	viper.SetDefault("monitor.tiers.standard.max_tokens", 5)
	viper.SetDefault("monitor.tiers.on_demand.interval_seconds", 14400)
	viper.SetDefault("monitor.tiers.on_demand.timeout_seconds", 60)
	viper.SetDefault("monitor.tiers.on_demand.max_tokens", 5)

	viper.SetDefault("monitor.gateways.openrouter.endpoint", "https://openrouter.ai/api/v1/chat/completions")
	viper.SetDefault("monitor.gateways.openrouter.auth_style", "bearer")
	viper.SetDefault("monitor.gateways.openrouter.api_key_env", "OPENROUTER_API_KEY")

	viper.SetDefault("monitor.gateways.fireworks.endpoint", "https://api.fireworks.ai/inference/v1/chat/completions")
	viper.SetDefault("monitor.gateways.fireworks.auth_style", "bearer")
	viper.SetDefault("monitor.gateways.fireworks.api_key_env", "FIREWORKS_API_KEY")

	viper.SetDefault("monitor.gateways.groq.endpoint", "https://api.groq.com/openai/v1/chat/completions")
	viper.SetDefault("monitor.gateways.groq.auth_style", "bearer")
	viper.SetDefault("monitor.gateways.groq.api_key_env", "GROQ_API_KEY")

	viper.SetDefault("monitor.gateways.together.endpoint", "https://api.together.xyz/v1/chat/completions")
	viper.SetDefault("monitor.gateways.together.auth_style", "bearer")
	viper.SetDefault("monitor.gateways.together.api_key_env", "TOGETHER_API_KEY")

	viper.SetDefault("monitor.gateways.deepinfra.endpoint", "https://api.deepinfra.com/v1/openai/chat/completions")
	viper.SetDefault("monitor.gateways.deepinfra.auth_style", "bearer")
	viper.SetDefault("monitor.gateways.deepinfra.api_key_env", "DEEPINFRA_API_KEY")

	viper.SetDefault("monitor.gateways.xai.endpoint", "https://api.x.ai/v1/chat/completions")
	viper.SetDefault("monitor.gateways.xai.auth_style", "bearer")
	viper.SetDefault("monitor.gateways.xai.api_key_env", "XAI_API_KEY")

	viper.SetDefault("monitor.gateways.novita.endpoint", "https://api.novita.ai/v3/openai/chat/completions")
	viper.SetDefault("monitor.gateways.novita.auth_style", "bearer")
	viper.SetDefault("monitor.gateways.novita.api_key_env", "NOVITA_API_KEY")

	viper.SetDefault("monitor.gateways.cerebras.endpoint", "https://api.cerebras.ai/v1/chat/completions")
	viper.SetDefault("monitor.gateways.cerebras.auth_style", "bearer")
	viper.SetDefault("monitor.gateways.cerebras.api_key_env", "CEREBRAS_API_KEY")

	viper.SetDefault("monitor.gateways.featherless.endpoint", "https://api.featherless.ai/v1/chat/completions")
	viper.SetDefault("monitor.gateways.featherless.auth_style", "bearer")
	viper.SetDefault("monitor.gateways.featherless.api_key_env", "FEATHERLESS_API_KEY")

	viper.SetDefault("monitor.gateways.portkey.endpoint", "https://api.portkey.ai/v1/chat/completions")
	viper.SetDefault("monitor.gateways.portkey.auth_style", "portkey")
	viper.SetDefault("monitor.gateways.portkey.api_key_env", "PORTKEY_API_KEY")

	viper.SetDefault("monitor.gateways.huggingface.endpoint", "")
	viper.SetDefault("monitor.gateways.huggingface.auth_style", "bearer")
	viper.SetDefault("monitor.gateways.huggingface.api_key_env", "HUGGINGFACE_API_KEY")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Profile != ProfileLite && c.Profile != ProfileStandard {
		return fmt.Errorf("invalid deployment profile: %s (must be 'lite' or 'standard')", c.Profile)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Profile == ProfileStandard {
		if c.Database.Driver == "" || c.Database.Host == "" || c.Database.Database == "" {
			return fmt.Errorf("database driver/host/name cannot be empty (required for standard profile)")
		}
	}

	if c.Log.Level == "" {
		return fmt.Errorf("log level cannot be empty")
	}

	if c.Monitor.FailureThreshold <= 0 {
		return fmt.Errorf("monitor.failure_threshold must be positive")
	}
	if c.Monitor.SuccessThreshold <= 0 {
		return fmt.Errorf("monitor.success_threshold must be positive")
	}
	if c.Monitor.MaxConcurrentChecks <= 0 {
		return fmt.Errorf("monitor.max_concurrent_checks must be positive")
	}
	if c.Monitor.BatchSize <= 0 {
		return fmt.Errorf("monitor.batch_size must be positive")
	}
	if len(c.Monitor.Tiers) == 0 {
		return fmt.Errorf("monitor.tiers must define at least one tier")
	}

	return nil
}

// GetDatabaseURL constructs the database URL from configuration.
func (c *Config) GetDatabaseURL() string {
	if c.Database.URL != "" {
		return c.Database.URL
	}

	sslMode := c.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	return fmt.Sprintf("%s://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.Driver,
		c.Database.Username,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		sslMode,
	)
}

// IsDevelopment returns true if the application is running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsProduction returns true if the application is running in production mode.
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsLiteProfile returns true if running without Redis coordination.
func (c *Config) IsLiteProfile() bool {
	return c.Profile == ProfileLite
}

// IsStandardProfile returns true if running with Postgres+Redis required.
func (c *Config) IsStandardProfile() bool {
	return c.Profile == ProfileStandard
}

// RequiresRedis reports whether this profile expects Redis to be reachable.
func (c *Config) RequiresRedis() bool {
	return c.Profile == ProfileStandard && c.Monitor.RedisCoordination
}
