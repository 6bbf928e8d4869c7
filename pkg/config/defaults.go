package config

import "time"

// Default values applied to any field left at its zero value.
const (
	DefaultHost            = "0.0.0.0"
	DefaultPort            = 8000
	DefaultPoolSize        = 100
	DefaultQuickStart      = 10
	DefaultValidationURL   = "https://httpbin.org/ip"
	DefaultMetricsPath     = "/metrics"
	DefaultMaxRetries      = 3
	DefaultRetriesPerProxy = 3
	DefaultProxySwitches   = 5
)

// ApplyDefaults fills zero-valued fields with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = DefaultHost
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultPort
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		// Forwarded requests with full retry budgets can run long.
		cfg.Server.WriteTimeout = 120 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.Pool.Size == 0 {
		cfg.Pool.Size = DefaultPoolSize
	}
	if cfg.Pool.UpdateInterval == 0 {
		cfg.Pool.UpdateInterval = time.Hour
	}
	if cfg.Pool.QuickStartTarget == 0 {
		cfg.Pool.QuickStartTarget = DefaultQuickStart
	}

	if cfg.Validator.URL == "" {
		cfg.Validator.URL = DefaultValidationURL
	}
	if cfg.Validator.Timeout == 0 {
		cfg.Validator.Timeout = 10 * time.Second
	}
	if cfg.Validator.Concurrency == 0 {
		cfg.Validator.Concurrency = 10
	}

	if cfg.Fetcher.MaxPages == 0 {
		cfg.Fetcher.MaxPages = 1
	}
	if cfg.Fetcher.SourceTimeout == 0 {
		cfg.Fetcher.SourceTimeout = 30 * time.Second
	}

	if cfg.Request.Timeout == 0 {
		cfg.Request.Timeout = 30 * time.Second
	}
	if cfg.Request.MaxRetries == 0 {
		cfg.Request.MaxRetries = DefaultMaxRetries
	}
	if cfg.Request.MaxRetriesPerProxy == 0 {
		cfg.Request.MaxRetriesPerProxy = DefaultRetriesPerProxy
	}
	if cfg.Request.MaxProxySwitches == 0 {
		cfg.Request.MaxProxySwitches = DefaultProxySwitches
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}

	if len(cfg.CORS.AllowedOrigins) == 0 {
		cfg.CORS.AllowedOrigins = []string{"*"}
	}
}

// Default returns a fully defaulted configuration, as used when no config
// file is present. Metrics and CORS are on by default, matching the original
// service's wide-open CORS posture.
func Default() *Config {
	cfg := &Config{
		Metrics: MetricsConfig{Enabled: true},
		CORS:    CORSConfig{Enabled: true},
	}
	ApplyDefaults(cfg)
	return cfg
}
