// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/shelfscan/shelfscan/internal/pipeline"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig      `mapstructure:"server"`
	Fetch     FetchConfig       `mapstructure:"fetch"`
	Runner    RunnerConfig      `mapstructure:"runner"`
	DB        DBConfig          `mapstructure:"db"`
	Archive   ArchiveConfig     `mapstructure:"archive"`
	Publisher PublisherConfig   `mapstructure:"publisher"`
	Schedule  ScheduleConfig    `mapstructure:"schedule"`
	Export    ExportConfig      `mapstructure:"export"`
	Logging   LoggingConfig     `mapstructure:"logging"`
	Targets   []pipeline.Target `mapstructure:"targets"`
}

// ServerConfig controls the status HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// FetchConfig configures HTTP fetch retry behavior.
type FetchConfig struct {
	UserAgent        string `mapstructure:"user_agent"`
	TimeoutSeconds   int    `mapstructure:"timeout_seconds"`
	MaxRetries       int    `mapstructure:"max_retries"`
	BackoffInitialMs int    `mapstructure:"backoff_initial_ms"`
	BackoffFactor    int    `mapstructure:"backoff_factor"`
	BackoffMaxMs     int    `mapstructure:"backoff_max_ms"`
}

// RunnerConfig governs run coordination.
type RunnerConfig struct {
	Workers int `mapstructure:"workers"`
}

// DBConfig controls record persistence. Provider is "postgres" or
// "memory".
type DBConfig struct {
	Provider string `mapstructure:"provider"`
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int    `mapstructure:"max_conns"`
	MinConns int    `mapstructure:"min_conns"`
}

// ArchiveConfig controls snapshot persistence for unparseable pages.
// Provider is "gcs", "local", or "none".
type ArchiveConfig struct {
	Provider  string `mapstructure:"provider"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Dir       string `mapstructure:"dir"`
	Prefix    string `mapstructure:"prefix"`
}

// PublisherConfig holds run-summary notification settings. Provider is
// "pubsub" or "none".
type PublisherConfig struct {
	Provider  string `mapstructure:"provider"`
	ProjectID string `mapstructure:"project_id"`
	TopicID   string `mapstructure:"topic_id"`
}

// ScheduleConfig controls the recurring-run service mode.
type ScheduleConfig struct {
	IntervalMinutes int `mapstructure:"interval_minutes"`
}

// ExportConfig sets the default CSV export destination.
type ExportConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk and environment. Environment
// variables use the SHELFSCAN_ prefix with dots replaced by
// underscores, e.g. SHELFSCAN_DB_DSN.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SHELFSCAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("fetch.user_agent", "shelfscan-bot/0.1")
	v.SetDefault("fetch.timeout_seconds", 15)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.backoff_initial_ms", 500)
	v.SetDefault("fetch.backoff_factor", 2)
	v.SetDefault("fetch.backoff_max_ms", 8000)
	v.SetDefault("runner.workers", 2)
	v.SetDefault("db.provider", "memory")
	v.SetDefault("db.table", "listings")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("archive.provider", "none")
	v.SetDefault("archive.prefix", "snapshots")
	v.SetDefault("publisher.provider", "none")
	v.SetDefault("schedule.interval_minutes", 60)
	v.SetDefault("export.path", "listings.csv")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	if c.Fetch.MaxRetries <= 0 {
		return fmt.Errorf("fetch.max_retries must be > 0")
	}
	if c.Runner.Workers <= 0 {
		return fmt.Errorf("runner.workers must be > 0")
	}
	switch c.DB.Provider {
	case "memory":
	case "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set when db.provider is postgres")
		}
	default:
		return fmt.Errorf("db.provider must be memory or postgres, got %q", c.DB.Provider)
	}
	switch c.Archive.Provider {
	case "none":
	case "local":
		if c.Archive.Dir == "" {
			return fmt.Errorf("archive.dir must be set when archive.provider is local")
		}
	case "gcs":
		if c.Archive.GCSBucket == "" {
			return fmt.Errorf("archive.gcs_bucket must be set when archive.provider is gcs")
		}
	default:
		return fmt.Errorf("archive.provider must be none, local, or gcs, got %q", c.Archive.Provider)
	}
	switch c.Publisher.Provider {
	case "none":
	case "pubsub":
		if c.Publisher.ProjectID == "" || c.Publisher.TopicID == "" {
			return fmt.Errorf("publisher.project_id and publisher.topic_id must be set when publisher.provider is pubsub")
		}
	default:
		return fmt.Errorf("publisher.provider must be none or pubsub, got %q", c.Publisher.Provider)
	}
	if c.Schedule.IntervalMinutes <= 0 {
		return fmt.Errorf("schedule.interval_minutes must be > 0")
	}
	for i, target := range c.Targets {
		if target.Name == "" {
			return fmt.Errorf("targets[%d].name must be set", i)
		}
		if target.Type == "" {
			return fmt.Errorf("targets[%d].type must be set", i)
		}
		if len(target.URLs) == 0 {
			return fmt.Errorf("targets[%d].urls must not be empty", i)
		}
	}
	return nil
}

// FetchTimeout returns the configured per-request timeout.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// BackoffInitial returns the first retry delay.
func (c Config) BackoffInitial() time.Duration {
	return time.Duration(c.Fetch.BackoffInitialMs) * time.Millisecond
}

// BackoffMax returns the retry delay ceiling.
func (c Config) BackoffMax() time.Duration {
	return time.Duration(c.Fetch.BackoffMaxMs) * time.Millisecond
}

// Interval returns the scheduler period.
func (c Config) Interval() time.Duration {
	return time.Duration(c.Schedule.IntervalMinutes) * time.Minute
}
