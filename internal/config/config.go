package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration
type Config struct {
	// Database
	DatabaseHost     string `envconfig:"DATABASE_HOST" default:"localhost"`
	DatabasePort     int    `envconfig:"DATABASE_PORT" default:"5432"`
	DatabaseName     string `envconfig:"DATABASE_NAME" default:"nfl_pipeline"`
	DatabaseUser     string `envconfig:"DATABASE_USER" default:"nfl_user"`
	DatabasePassword string `envconfig:"DATABASE_PASSWORD" required:"true"`
	DatabaseSSLMode  string `envconfig:"DATABASE_SSL_MODE" default:"disable"`

	// Session behavior: bounded lock waits, unbounded statements.
	// Long aggregation scans are expected; indefinite lock waits are not.
	LockTimeout      time.Duration `envconfig:"LOCK_TIMEOUT" default:"3s"`
	StatementTimeout time.Duration `envconfig:"STATEMENT_TIMEOUT" default:"0"`

	// Namespaces
	StageSchema string `envconfig:"STAGE_SCHEMA" default:"stage"`
	ProdSchema  string `envconfig:"PROD_SCHEMA" default:"prod"`

	// Sync behavior
	SyncConfigPath  string `envconfig:"SYNC_CONFIG" default:"sync.yaml"`
	SyncParallelism int    `envconfig:"SYNC_PARALLELISM" default:"1"`

	// Redis
	RedisHost     string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	// Run status / schema cache TTLs (in seconds)
	CacheTTLRunReport int `envconfig:"CACHE_TTL_RUN_REPORT" default:"604800"` // 7 days
	CacheTTLSchema    int `envconfig:"CACHE_TTL_SCHEMA" default:"3600"`       // 1 hour

	// Application
	AppEnv   string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Scheduler
	EnableScheduler bool   `envconfig:"ENABLE_SCHEDULER" default:"true"`
	WeeklySyncCron  string `envconfig:"WEEKLY_SYNC_CRON" default:"0 6 * * 2"` // Tuesday 06:00
	InitialRun      bool   `envconfig:"INITIAL_RUN_ENABLED" default:"false"`

	// Modeling
	FirstSeason int  `envconfig:"FIRST_SEASON" default:"2016"`
	PushCovers  bool `envconfig:"PUSH_COVERS" default:"true"`

	// Monitoring
	EnableMetrics bool `envconfig:"ENABLE_METRICS" default:"true"`
	MetricsPort   int  `envconfig:"METRICS_PORT" default:"9090"`
}

// Load loads configuration from environment variables
// It first attempts to load from .env file if in development mode
func Load() (*Config, error) {
	// Try to load .env file (ignore error if doesn't exist)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.DatabasePassword == "" {
		return fmt.Errorf("DATABASE_PASSWORD is required")
	}

	if c.StageSchema == c.ProdSchema {
		return fmt.Errorf("STAGE_SCHEMA and PROD_SCHEMA must differ (both %q)", c.StageSchema)
	}

	if c.SyncParallelism < 1 {
		return fmt.Errorf("SYNC_PARALLELISM must be at least 1, got %d", c.SyncParallelism)
	}

	return nil
}

// DatabaseDSN returns the PostgreSQL connection string
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DatabaseUser,
		c.DatabasePassword,
		c.DatabaseHost,
		c.DatabasePort,
		c.DatabaseName,
		c.DatabaseSSLMode,
	)
}

// RedisAddr returns the Redis address
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// MustLoad loads configuration or panics on error
// Use this in main() where we want to fail fast
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	return cfg
}
