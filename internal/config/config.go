// Package config loads and validates reconciler configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Catalog    CatalogConfig    `mapstructure:"catalog"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Collection CollectionConfig `mapstructure:"collection"`
	Validation ValidationConfig `mapstructure:"validation"`
	Baseline   BaselineConfig   `mapstructure:"baseline"`
	Detection  DetectionConfig  `mapstructure:"detection"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

// CatalogConfig identifies the remote search endpoint.
type CatalogConfig struct {
	SearchURL         string `mapstructure:"search_url"`
	UserAgent         string `mapstructure:"user_agent"`
	ContainerSelector string `mapstructure:"container_selector"`
}

// HTTPConfig configures the page fetcher.
type HTTPConfig struct {
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	PreviewBytes   int     `mapstructure:"preview_bytes"`
	MaxRPS         float64 `mapstructure:"max_rps"`
	Burst          int     `mapstructure:"burst"`
}

// CollectionConfig drives interactive collection runs.
type CollectionConfig struct {
	MaxPages         int  `mapstructure:"max_pages"`
	InterPageDelayMs int  `mapstructure:"inter_page_delay_ms"`
	DetailedLogging  bool `mapstructure:"detailed_logging"`
}

// ValidationConfig holds the reconciliation thresholds, in percent.
type ValidationConfig struct {
	MinCoveragePct float64 `mapstructure:"min_coverage_pct"`
	MaxExtraPct    float64 `mapstructure:"max_extra_pct"`
}

// BaselineConfig locates the baseline document: a local path or gs://bucket/object.
type BaselineConfig struct {
	Source string `mapstructure:"source"`
}

// DetectionConfig tunes restriction detection runs.
type DetectionConfig struct {
	MaxPages         int    `mapstructure:"max_pages"`
	InterPageDelayMs int    `mapstructure:"inter_page_delay_ms"`
	BatchSize        int    `mapstructure:"batch_size"`
	BatchPauseMs     int    `mapstructure:"batch_pause_ms"`
	AllowPartial     bool   `mapstructure:"allow_partial"`
	Schedule         string `mapstructure:"schedule"`
	LockTTLSeconds   int    `mapstructure:"lock_ttl_seconds"`
}

// StorageConfig selects backends for snapshots and restriction data.
type StorageConfig struct {
	Backend      string `mapstructure:"backend"`
	Restrictions string `mapstructure:"restrictions"`
	BaseDir      string `mapstructure:"base_dir"`
	GCSBucket    string `mapstructure:"gcs_bucket"`
	Prefix       string `mapstructure:"prefix"`
}

// DatabaseConfig controls access to Postgres.
type DatabaseConfig struct {
	DSN                    string `mapstructure:"dsn"`
	MaxConns               int32  `mapstructure:"max_conns"`
	MinConns               int32  `mapstructure:"min_conns"`
	MaxConnLifetimeMinutes int    `mapstructure:"max_conn_lifetime_minutes"`
	RestrictionTable       string `mapstructure:"restriction_table"`
	ItemTable              string `mapstructure:"item_table"`
	EnsureSchema           bool   `mapstructure:"ensure_schema"`
}

// RedisConfig enables the single-flight source lock when URL is set.
type RedisConfig struct {
	URL                string `mapstructure:"url"`
	PoolSize           int    `mapstructure:"pool_size"`
	DialTimeoutSeconds int    `mapstructure:"dial_timeout_seconds"`
}

// PubSubConfig holds report publishing settings.
type PubSubConfig struct {
	ProjectID   string `mapstructure:"project_id"`
	ReportTopic string `mapstructure:"report_topic"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// TracingConfig controls OpenTelemetry tracing. Spans are exported to Cloud
// Trace when ProjectID is set.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ProjectID   string  `mapstructure:"project_id"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendLocal    = "local"
	BackendGCS      = "gcs"
	BackendPostgres = "postgres"
)

// Load builds a Config from disk/environment. Environment variables use the
// RECONCILER_ prefix with dots replaced by underscores.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("RECONCILER")
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
	v.SetDefault("catalog.search_url", "")
	v.SetDefault("catalog.user_agent", "catalog-reconciler/0.1")
	v.SetDefault("catalog.container_selector", "")
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.preview_bytes", 2048)
	v.SetDefault("http.max_rps", 0)
	v.SetDefault("http.burst", 1)
	v.SetDefault("collection.max_pages", 100)
	v.SetDefault("collection.inter_page_delay_ms", 2000)
	v.SetDefault("collection.detailed_logging", true)
	v.SetDefault("validation.min_coverage_pct", 80)
	v.SetDefault("validation.max_extra_pct", 20)
	v.SetDefault("baseline.source", "")
	v.SetDefault("detection.max_pages", 500)
	v.SetDefault("detection.inter_page_delay_ms", 1000)
	v.SetDefault("detection.batch_size", 20)
	v.SetDefault("detection.batch_pause_ms", 500)
	v.SetDefault("detection.allow_partial", false)
	v.SetDefault("detection.schedule", "")
	v.SetDefault("detection.lock_ttl_seconds", 3600)
	v.SetDefault("storage.backend", BackendMemory)
	v.SetDefault("storage.restrictions", BackendMemory)
	v.SetDefault("storage.base_dir", "")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.prefix", "snapshots")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_conns", 4)
	v.SetDefault("database.min_conns", 0)
	v.SetDefault("database.max_conn_lifetime_minutes", 30)
	v.SetDefault("database.restriction_table", "restriction_records")
	v.SetDefault("database.item_table", "catalog_items")
	v.SetDefault("database.ensure_schema", false)
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.pool_size", 4)
	v.SetDefault("redis.dial_timeout_seconds", 5)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.report_topic", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.project_id", "")
	v.SetDefault("tracing.sample_ratio", 1.0)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Catalog.SearchURL) == "" {
		return fmt.Errorf("catalog.search_url is required")
	}
	if u, err := url.Parse(c.Catalog.SearchURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("catalog.search_url must be an absolute URL")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxRPS < 0 {
		return fmt.Errorf("http.max_rps must be >= 0")
	}
	if c.Collection.MaxPages < 1 || c.Detection.MaxPages < 1 {
		return fmt.Errorf("collection.max_pages and detection.max_pages must be >= 1")
	}
	if c.Collection.InterPageDelayMs < 0 || c.Detection.InterPageDelayMs < 0 || c.Detection.BatchPauseMs < 0 {
		return fmt.Errorf("delays must be >= 0")
	}
	if c.Validation.MinCoveragePct < 0 || c.Validation.MinCoveragePct > 100 {
		return fmt.Errorf("validation.min_coverage_pct must be within [0, 100]")
	}
	if c.Validation.MaxExtraPct < 0 || c.Validation.MaxExtraPct > 100 {
		return fmt.Errorf("validation.max_extra_pct must be within [0, 100]")
	}
	if c.Detection.BatchSize < 1 {
		return fmt.Errorf("detection.batch_size must be >= 1")
	}
	if c.Detection.Schedule != "" {
		if _, err := cron.ParseStandard(c.Detection.Schedule); err != nil {
			return fmt.Errorf("detection.schedule: %w", err)
		}
	}
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendLocal:
		if c.Storage.BaseDir == "" {
			return fmt.Errorf("storage.base_dir is required for the local backend")
		}
	case BackendGCS:
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}
	switch c.Storage.Restrictions {
	case BackendMemory:
	case BackendPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres restriction store")
		}
	default:
		return fmt.Errorf("unknown storage.restrictions %q", c.Storage.Restrictions)
	}
	if c.PubSub.ReportTopic != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id is required when pubsub.report_topic is set")
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing.sample_ratio must be within [0, 1]")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	return nil
}

// RequestTimeout is the per-page HTTP timeout.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// CollectionDelay is the pause between pages of an interactive run.
func (c Config) CollectionDelay() time.Duration {
	return time.Duration(c.Collection.InterPageDelayMs) * time.Millisecond
}

// DetectionDelay is the pause between pages of a detection run.
func (c Config) DetectionDelay() time.Duration {
	return time.Duration(c.Detection.InterPageDelayMs) * time.Millisecond
}

// BatchPause is the pause between detection write batches.
func (c Config) BatchPause() time.Duration {
	return time.Duration(c.Detection.BatchPauseMs) * time.Millisecond
}

// LockTTL bounds how long a detection run may hold the source lock.
func (c Config) LockTTL() time.Duration {
	return time.Duration(c.Detection.LockTTLSeconds) * time.Second
}
