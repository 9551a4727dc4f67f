// Package config provides the unified configuration system for adsync.
// It defines a single Config structure covering the Graph API client, the
// PostgreSQL store, and per-run sync behavior.
//
// The configuration is organized into logical sections:
//   - Graph: API version, credentials, timeouts, retry policy, rate limiting
//   - Database: PostgreSQL connection settings
//   - Sync: worker counts, lookback window, mode selection
//   - Observability: metrics and logging
//
// Example usage:
//
//	cfg := config.Default()
//	if err := config.Load("adsync.yaml", cfg); err != nil {
//	    log.Fatal(err)
//	}
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"fmt"
	"time"
)

// Config is the top-level configuration for an adsync run.
type Config struct {
	Graph         GraphConfig         `yaml:"graph" json:"graph"`
	Database      DatabaseConfig      `yaml:"database" json:"database"`
	Sync          SyncConfig          `yaml:"sync" json:"sync"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

// GraphConfig contains Meta Graph API client settings.
// BaseURL is explicit so tests can point the client at a mock endpoint.
type GraphConfig struct {
	// BaseURL is the API host, e.g. https://graph.facebook.com
	BaseURL string `yaml:"base_url" json:"base_url"`
	// Version is the Graph API version, e.g. v21.0
	Version string `yaml:"version" json:"version"`
	// AccessToken is the bearer token, immutable for the run
	AccessToken string `yaml:"access_token" json:"access_token"`
	// Timeout for each HTTP request
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
	// MaxRetries is the attempt budget per request
	MaxRetries int `yaml:"max_retries" json:"max_retries"`
	// RetryDelay is the base delay between retries
	RetryDelay time.Duration `yaml:"retry_delay" json:"retry_delay"`
	// RateLimitPerSec limits requests per second (0 = unlimited)
	RateLimitPerSec int `yaml:"rate_limit_per_sec" json:"rate_limit_per_sec"`
}

// DatabaseConfig contains PostgreSQL connection settings.
type DatabaseConfig struct {
	// DSN is a pgx connection string or URL
	DSN string `yaml:"dsn" json:"dsn"`
	// MaxConns caps the pgx pool size
	MaxConns int32 `yaml:"max_conns" json:"max_conns"`
	// ConnectTimeout bounds pool creation
	ConnectTimeout time.Duration `yaml:"connect_timeout" json:"connect_timeout"`
}

// SyncConfig contains per-run sync behavior.
type SyncConfig struct {
	// EntityWorkers is the pool size for entity metadata jobs
	EntityWorkers int `yaml:"entity_workers" json:"entity_workers"`
	// InsightWorkers is the pool size for insight jobs (kept low for rate limits)
	InsightWorkers int `yaml:"insight_workers" json:"insight_workers"`
	// WindowDays is the incremental lookback window
	WindowDays int `yaml:"window_days" json:"window_days"`
	// Mode is "full", "incremental", or "" for auto (first-sync detection)
	Mode string `yaml:"mode" json:"mode"`
	// PageLimit is the page size requested from the API
	PageLimit int `yaml:"page_limit" json:"page_limit"`
	// DryRun routes upserts to the in-memory store instead of PostgreSQL
	DryRun bool `yaml:"dry_run" json:"dry_run"`
}

// ObservabilityConfig contains monitoring settings.
type ObservabilityConfig struct {
	// EnableMetrics activates the Prometheus collector
	EnableMetrics bool `yaml:"enable_metrics" json:"enable_metrics"`
	// MetricsAddr is the listen address for the /metrics endpoint
	MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr"`
	// LogLevel sets logging verbosity (debug, info, warn, error)
	LogLevel string `yaml:"log_level" json:"log_level"`
	// Development switches to console encoding with colored levels
	Development bool `yaml:"development" json:"development"`
}

// Default returns a Config with production-ready defaults. Specific runs
// override these via the YAML file and CLI flags.
func Default() *Config {
	return &Config{
		Graph: GraphConfig{
			BaseURL:         "https://graph.facebook.com",
			Version:         "v21.0",
			Timeout:         30 * time.Second,
			MaxRetries:      3,
			RetryDelay:      5 * time.Second,
			RateLimitPerSec: 0,
		},
		Database: DatabaseConfig{
			MaxConns:       10,
			ConnectTimeout: 10 * time.Second,
		},
		Sync: SyncConfig{
			EntityWorkers:  3,
			InsightWorkers: 1,
			WindowDays:     30,
			Mode:           "",
			PageLimit:      200,
		},
		Observability: ObservabilityConfig{
			EnableMetrics: true,
			MetricsAddr:   ":9090",
			LogLevel:      "info",
		},
	}
}

// Validate validates the configuration for correctness.
// Connectors should call this after loading configuration to catch errors early.
func (c *Config) Validate() error {
	if c.Graph.AccessToken == "" {
		return fmt.Errorf("graph.access_token is required")
	}
	if c.Graph.BaseURL == "" {
		return fmt.Errorf("graph.base_url is required")
	}
	if c.Graph.Version == "" {
		return fmt.Errorf("graph.version is required")
	}
	if c.Graph.MaxRetries <= 0 {
		return fmt.Errorf("graph.max_retries must be positive")
	}
	if !c.Sync.DryRun && c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.Sync.WindowDays <= 0 {
		return fmt.Errorf("sync.window_days must be positive")
	}
	if c.Sync.PageLimit <= 0 {
		return fmt.Errorf("sync.page_limit must be positive")
	}
	switch c.Sync.Mode {
	case "", "full", "incremental":
	default:
		return fmt.Errorf("sync.mode must be full, incremental, or empty for auto")
	}
	if c.Sync.EntityWorkers <= 0 || c.Sync.InsightWorkers <= 0 {
		return fmt.Errorf("worker counts must be positive")
	}
	return nil
}
