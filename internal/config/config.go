// Package config provides configuration management for SitePulse.
//
// Configuration is loaded from:
// 1. config.yaml file (optional)
// 2. Environment variables (standard names like DATABASE_URL, SERVER_PORT)
// 3. Default values
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration structure.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Log          LogConfig          `mapstructure:"log"`
	River        RiverConfig        `mapstructure:"river"`
	Worker       WorkerConfig       `mapstructure:"worker"`
	Cascade      CascadeConfig      `mapstructure:"cascade"`
	Sweep        SweepConfig        `mapstructure:"sweep"`
	Notification NotificationConfig `mapstructure:"notification"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// AllowedOrigins is the CORS allowlist. Empty means allow all, which is
	// only intended for local development.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// DatabaseConfig contains PostgreSQL connection settings.
// One shared pgx pool serves both the repository and River.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`

	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`

	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`

	AutoMigrate bool `mapstructure:"auto_migrate"`
}

// DSN returns the PostgreSQL connection string.
// Priority: DATABASE_URL > constructed from individual fields.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, sslmode,
	)
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

// RiverConfig contains River Queue settings.
type RiverConfig struct {
	MaxWorkers                  int           `mapstructure:"max_workers"`
	CompletedJobRetentionPeriod time.Duration `mapstructure:"completed_job_retention_period"`
}

// WorkerConfig contains worker pool settings.
type WorkerConfig struct {
	GeneralPoolSize int `mapstructure:"general_pool_size"`
	CascadePoolSize int `mapstructure:"cascade_pool_size"`
}

// CascadeConfig contains cascade engine settings.
//
// The trailing windows and score bands were carried over from the origin
// system without documented business justification, so they are configuration
// rather than invariants. Defaults match the origin behavior.
type CascadeConfig struct {
	// MaxApplyAttempts bounds optimistic-lock retries per event before the
	// conflict is surfaced as fatal.
	MaxApplyAttempts int `mapstructure:"max_apply_attempts"`

	// MaxDispatchAttempts bounds handler-failure retries before an event is
	// moved to the dead-letter state.
	MaxDispatchAttempts int `mapstructure:"max_dispatch_attempts"`

	// PollInterval is how often the outbox poller checks for pending events.
	PollInterval time.Duration `mapstructure:"poll_interval"`

	// PollBatchSize is the maximum number of outbox rows fetched per poll.
	PollBatchSize int `mapstructure:"poll_batch_size"`

	// QualityWindow is the trailing window for inspection quality scores.
	QualityWindow time.Duration `mapstructure:"quality_window"`

	// SafetyWindow is the trailing window for safety incident counts.
	SafetyWindow time.Duration `mapstructure:"safety_window"`
}

// SweepConfig contains the overdue-invoice sweep settings.
type SweepConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// NotificationConfig contains notification delivery settings.
type NotificationConfig struct {
	// MaxDeliveryAttempts bounds channel delivery retries before a
	// notification is parked as failed.
	MaxDeliveryAttempts int           `mapstructure:"max_delivery_attempts"`
	Retention           time.Duration `mapstructure:"retention"`
}

// Load reads configuration from file and environment variables.
// Standard environment variables without prefix (DATABASE_URL, SERVER_PORT,
// CASCADE_POLL_INTERVAL, ...).
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/sitepulse")

	// Maps nested config: cascade.poll_interval → CASCADE_POLL_INTERVAL
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file is optional, use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// Validate checks for critical configuration errors.
func (c *Config) Validate() error {
	if c.Cascade.MaxApplyAttempts < 1 {
		return fmt.Errorf("cascade.max_apply_attempts must be at least 1")
	}
	if c.Cascade.MaxDispatchAttempts < 1 {
		return fmt.Errorf("cascade.max_dispatch_attempts must be at least 1")
	}
	if c.Cascade.PollBatchSize < 1 {
		return fmt.Errorf("cascade.poll_batch_size must be at least 1")
	}
	if c.Notification.MaxDeliveryAttempts < 1 {
		return fmt.Errorf("notification.max_delivery_attempts must be at least 1")
	}
	if c.Sweep.Interval <= 0 {
		return fmt.Errorf("sweep.interval must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")

	// Database (shared pool)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "sitepulse")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "sitepulse")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 50)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "10m")
	v.SetDefault("database.auto_migrate", false)

	// Log
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// River
	v.SetDefault("river.max_workers", 10)
	v.SetDefault("river.completed_job_retention_period", "24h")

	// Worker pools
	v.SetDefault("worker.general_pool_size", 100)
	v.SetDefault("worker.cascade_pool_size", 50)

	// Cascade engine
	v.SetDefault("cascade.max_apply_attempts", 3)
	v.SetDefault("cascade.max_dispatch_attempts", 5)
	v.SetDefault("cascade.poll_interval", "200ms")
	v.SetDefault("cascade.poll_batch_size", 100)
	v.SetDefault("cascade.quality_window", "720h") // 30 days
	v.SetDefault("cascade.safety_window", "2160h") // 90 days

	// Overdue-invoice sweep
	v.SetDefault("sweep.interval", "1h")

	// Notification delivery
	v.SetDefault("notification.max_delivery_attempts", 5)
	v.SetDefault("notification.retention", "2160h") // 90 days
}
