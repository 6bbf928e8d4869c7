// Package config handles loading, defaulting, and validation of the
// ProxyForge configuration.
package config

import "time"

// Config is the root configuration structure.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Pool      PoolConfig      `yaml:"pool"`
	Validator ValidatorConfig `yaml:"validator"`
	Fetcher   FetcherConfig   `yaml:"fetcher"`
	Request   RequestConfig   `yaml:"request"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	CORS      CORSConfig      `yaml:"cors"`
}

// ServerConfig configures the HTTP gateway listener.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Debug           bool          `yaml:"debug"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// PoolConfig configures the proxy pool lifecycle.
type PoolConfig struct {
	// Size is the target number of valid proxies.
	Size int `yaml:"size"`

	// UpdateInterval is the time between full revalidation cycles.
	UpdateInterval time.Duration `yaml:"update_interval"`

	// QuickStartTarget is the valid-proxy count the warm-up phase aims for
	// before the background loop takes over.
	QuickStartTarget int `yaml:"quick_start_target"`

	// RevalidateCron optionally schedules extra full revalidations using a
	// standard cron expression. Empty disables the schedule.
	RevalidateCron string `yaml:"revalidate_cron"`
}

// ValidatorConfig configures liveness probing.
type ValidatorConfig struct {
	URL         string        `yaml:"url"`
	Timeout     time.Duration `yaml:"timeout"`
	Concurrency int           `yaml:"concurrency"`
}

// FetcherConfig configures upstream listing sources.
type FetcherConfig struct {
	// MaxPages is the page hint passed to paginated sources.
	MaxPages int `yaml:"max_pages"`

	// SourceTimeout bounds a single source invocation.
	SourceTimeout time.Duration `yaml:"source_timeout"`

	// SourcesFile optionally replaces the built-in source registry with a
	// YAML file of source definitions.
	SourcesFile string `yaml:"sources_file"`

	// WatchSources reloads SourcesFile on change.
	WatchSources bool `yaml:"watch_sources"`
}

// RequestConfig configures forwarded requests.
type RequestConfig struct {
	Timeout time.Duration `yaml:"timeout"`

	// MaxRetries is the legacy knob, accepted for backward compatibility;
	// the forwarder does not read it. A request's own max_retries field is
	// used as the switch count when the request omits max_proxy_switches.
	MaxRetries int `yaml:"max_retries"`

	MaxRetriesPerProxy int `yaml:"max_retries_per_proxy"`
	MaxProxySwitches   int `yaml:"max_proxy_switches"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is the minimum log level ("debug", "info", "warn", "error").
	Level string `yaml:"level"`

	// Format is the output format ("json", "text").
	Format string `yaml:"format"`

	// File is an optional log file path; empty logs to stdout.
	File string `yaml:"file"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// CORSConfig configures cross-origin request handling.
type CORSConfig struct {
	Enabled        bool     `yaml:"enabled"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}
