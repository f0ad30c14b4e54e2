// Package config loads and validates fileops configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// FILEOPS_SERVER_PORT.
const EnvPrefix = "FILEOPS"

// Report backends.
const (
	BackendMemory = "memory"
	BackendLocal  = "local"
	BackendGCS    = "gcs"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Operations OperationsConfig `mapstructure:"operations"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Lifecycle  LifecycleConfig  `mapstructure:"lifecycle"`
	History    HistoryConfig    `mapstructure:"history"`
	Reports    ReportsConfig    `mapstructure:"reports"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                   int `mapstructure:"port"`
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// OperationsConfig tunes the search/delete/list/rename pipelines.
type OperationsConfig struct {
	// ScanBatch is the number of entries between scanning events.
	ScanBatch int `mapstructure:"scan_batch"`
	// MatchWorkers bounds the parallel match phase; 0 means GOMAXPROCS.
	MatchWorkers int `mapstructure:"match_workers"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// LifecycleConfig configures the lifecycle event hub and its sinks.
type LifecycleConfig struct {
	Enabled       bool                 `mapstructure:"enabled"`
	LogEnabled    bool                 `mapstructure:"log_enabled"`
	BufferSize    int                  `mapstructure:"buffer_size"`
	Batch         LifecycleBatchConfig `mapstructure:"batch"`
	SinkTimeoutMs int                  `mapstructure:"sink_timeout_ms"`
}

// LifecycleBatchConfig bounds a sink batch by size and age.
type LifecycleBatchConfig struct {
	MaxEvents int `mapstructure:"max_events"`
	MaxWaitMs int `mapstructure:"max_wait_ms"`
}

// HistoryConfig sizes the in-process operation history.
type HistoryConfig struct {
	Capacity int `mapstructure:"capacity"`
}

// ReportsConfig selects where exported operation reports go.
type ReportsConfig struct {
	Enabled bool              `mapstructure:"enabled"`
	Backend string            `mapstructure:"backend"`
	Bucket  string            `mapstructure:"bucket"`
	Prefix  string            `mapstructure:"prefix"`
	Local   LocalReportConfig `mapstructure:"local"`
}

// LocalReportConfig configures the filesystem report backend.
type LocalReportConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

// PubSubConfig holds metadata for completion notices.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// TracingConfig toggles the OpenTelemetry tracer provider.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
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
	cfg.Reports.Backend = strings.ToLower(strings.TrimSpace(cfg.Reports.Backend))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout_seconds", 10)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("operations.scan_batch", 50)
	v.SetDefault("operations.match_workers", 0)
	v.SetDefault("logging.development", true)
	v.SetDefault("lifecycle.enabled", true)
	v.SetDefault("lifecycle.log_enabled", true)
	v.SetDefault("lifecycle.buffer_size", 1024)
	v.SetDefault("lifecycle.batch.max_events", 256)
	v.SetDefault("lifecycle.batch.max_wait_ms", 250)
	v.SetDefault("lifecycle.sink_timeout_ms", 5000)
	v.SetDefault("history.capacity", 1000)
	v.SetDefault("reports.enabled", false)
	v.SetDefault("reports.backend", BackendMemory)
	v.SetDefault("reports.prefix", "reports")
	v.SetDefault("reports.local.base_dir", "data/reports")
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "fileops")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Operations.ScanBatch <= 0 {
		return fmt.Errorf("operations.scan_batch must be > 0")
	}
	if c.Operations.MatchWorkers < 0 {
		return fmt.Errorf("operations.match_workers must be >= 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Lifecycle.Enabled {
		if c.Lifecycle.BufferSize <= 0 {
			return fmt.Errorf("lifecycle.buffer_size must be > 0")
		}
		if c.Lifecycle.Batch.MaxEvents <= 0 || c.Lifecycle.Batch.MaxWaitMs <= 0 {
			return fmt.Errorf("lifecycle.batch limits must be > 0")
		}
	}
	if c.History.Capacity <= 0 {
		return fmt.Errorf("history.capacity must be > 0")
	}
	if c.Reports.Enabled {
		switch c.Reports.Backend {
		case BackendMemory:
		case BackendLocal:
			if c.Reports.Local.BaseDir == "" {
				return fmt.Errorf("reports.local.base_dir must be set for the local backend")
			}
		case BackendGCS:
			if c.Reports.Bucket == "" {
				return fmt.Errorf("reports.bucket must be set for the gcs backend")
			}
		default:
			return fmt.Errorf("reports.backend %q is not one of memory, local, gcs", c.Reports.Backend)
		}
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is")
	}
	return nil
}

// ShutdownTimeout is the grace period for draining HTTP requests and sinks.
func (c Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second
}

// SinkTimeout bounds a single lifecycle sink call.
func (c LifecycleConfig) SinkTimeout() time.Duration {
	return time.Duration(c.SinkTimeoutMs) * time.Millisecond
}

// MaxWait bounds how long a lifecycle batch may age before flushing.
func (c LifecycleBatchConfig) MaxWait() time.Duration {
	return time.Duration(c.MaxWaitMs) * time.Millisecond
}
