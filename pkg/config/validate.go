package config

import (
	"fmt"
	"net/url"

	"github.com/robfig/cron/v3"
)

// Validate checks the configuration for values that would make the service
// misbehave at runtime. It returns the first problem found.
func Validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", cfg.Server.Port)
	}

	if cfg.Pool.Size < 1 {
		return fmt.Errorf("pool.size must be positive, got %d", cfg.Pool.Size)
	}
	if cfg.Pool.QuickStartTarget < 1 {
		return fmt.Errorf("pool.quick_start_target must be positive, got %d", cfg.Pool.QuickStartTarget)
	}
	if cfg.Pool.UpdateInterval <= 0 {
		return fmt.Errorf("pool.update_interval must be positive, got %s", cfg.Pool.UpdateInterval)
	}
	if cfg.Pool.RevalidateCron != "" {
		if _, err := cron.ParseStandard(cfg.Pool.RevalidateCron); err != nil {
			return fmt.Errorf("pool.revalidate_cron %q is not a valid cron expression: %w", cfg.Pool.RevalidateCron, err)
		}
	}

	if cfg.Validator.Concurrency < 1 {
		return fmt.Errorf("validator.concurrency must be positive, got %d", cfg.Validator.Concurrency)
	}
	if cfg.Validator.Timeout <= 0 {
		return fmt.Errorf("validator.timeout must be positive, got %s", cfg.Validator.Timeout)
	}
	if u, err := url.Parse(cfg.Validator.URL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("validator.url %q is not an absolute URL", cfg.Validator.URL)
	}

	if cfg.Fetcher.MaxPages < 1 {
		return fmt.Errorf("fetcher.max_pages must be positive, got %d", cfg.Fetcher.MaxPages)
	}

	if cfg.Request.MaxRetriesPerProxy < 1 {
		return fmt.Errorf("request.max_retries_per_proxy must be positive, got %d", cfg.Request.MaxRetriesPerProxy)
	}
	if cfg.Request.MaxProxySwitches < 1 {
		return fmt.Errorf("request.max_proxy_switches must be positive, got %d", cfg.Request.MaxProxySwitches)
	}

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", cfg.Logging.Level)
	}
	switch cfg.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format %q is not one of json, text", cfg.Logging.Format)
	}

	return nil
}
