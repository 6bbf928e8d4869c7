package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file. A missing or empty path
// yields the defaults, so the service runs configured purely by environment.
// Environment variables (PROXYFORGE_*) always override file values.
//
// The loading sequence is:
//  1. Start from defaults
//  2. Overlay YAML from file (if present)
//  3. Apply environment variable overrides
//  4. Validate the final configuration
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
		}
	}

	ApplyDefaults(cfg)
	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies PROXYFORGE_* environment variables. The names
// mirror the original service's .env keys.
func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("PROXYFORGE_HOST"); val != "" {
		cfg.Server.Host = val
	}
	if val := os.Getenv("PROXYFORGE_PORT"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Server.Port = i
		}
	}
	if val := os.Getenv("PROXYFORGE_DEBUG"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Server.Debug = b
		}
	}

	if val := os.Getenv("PROXYFORGE_PROXY_POOL_SIZE"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Pool.Size = i
		}
	}
	if val := os.Getenv("PROXYFORGE_PROXY_UPDATE_INTERVAL"); val != "" {
		if d, ok := parseSecondsOrDuration(val); ok {
			cfg.Pool.UpdateInterval = d
		}
	}
	if val := os.Getenv("PROXYFORGE_PROXY_REVALIDATE_CRON"); val != "" {
		cfg.Pool.RevalidateCron = val
	}

	if val := os.Getenv("PROXYFORGE_PROXY_VALIDATION_TIMEOUT"); val != "" {
		if d, ok := parseSecondsOrDuration(val); ok {
			cfg.Validator.Timeout = d
		}
	}
	if val := os.Getenv("PROXYFORGE_PROXY_VALIDATION_URL"); val != "" {
		cfg.Validator.URL = val
	}
	if val := os.Getenv("PROXYFORGE_PROXY_VALIDATION_CONCURRENCY"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Validator.Concurrency = i
		}
	}

	if val := os.Getenv("PROXYFORGE_SOURCES_FILE"); val != "" {
		cfg.Fetcher.SourcesFile = val
	}
	if val := os.Getenv("PROXYFORGE_WATCH_SOURCES"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Fetcher.WatchSources = b
		}
	}

	if val := os.Getenv("PROXYFORGE_REQUEST_TIMEOUT"); val != "" {
		if d, ok := parseSecondsOrDuration(val); ok {
			cfg.Request.Timeout = d
		}
	}
	if val := os.Getenv("PROXYFORGE_REQUEST_MAX_RETRIES"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Request.MaxRetries = i
		}
	}
	if val := os.Getenv("PROXYFORGE_REQUEST_MAX_RETRIES_PER_PROXY"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Request.MaxRetriesPerProxy = i
		}
	}
	if val := os.Getenv("PROXYFORGE_REQUEST_MAX_PROXY_SWITCHES"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Request.MaxProxySwitches = i
		}
	}

	if val := os.Getenv("PROXYFORGE_LOG_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
	if val := os.Getenv("PROXYFORGE_LOG_FILE"); val != "" {
		cfg.Logging.File = val
	}

	if val := os.Getenv("PROXYFORGE_METRICS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Metrics.Enabled = b
		}
	}
}

// parseSecondsOrDuration accepts either a bare integer (seconds, as the
// original service's .env used) or a Go duration string.
func parseSecondsOrDuration(val string) (time.Duration, bool) {
	if i, err := strconv.Atoi(val); err == nil {
		return time.Duration(i) * time.Second, true
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d, true
	}
	return 0, false
}
