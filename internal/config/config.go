// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor principles.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all application configuration.
// All fields are populated from environment variables.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	// Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`

	// Counter store (Redis)
	RedisURL string `env:"REDIS_URL,required"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Rate limiting
	RateLimitEnabled bool `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	// When the counter store is unreachable, deny requests instead of
	// allowing them. Default is fail-open so an infrastructure outage
	// does not become a full outage.
	RateLimitFailClosed bool `env:"RATE_LIMIT_FAIL_CLOSED" envDefault:"false"`
	// Comma-separated CIDRs that bypass the safety-net throttle.
	// Named per-endpoint throttles still apply to these ranges.
	SafelistCIDRs string `env:"RATE_LIMIT_SAFELIST_CIDRS" envDefault:""`

	// Alerting
	AlertCooldown         time.Duration `env:"ALERT_COOLDOWN" envDefault:"1h"`
	ErrorRateThreshold    float64       `env:"ALERT_ERROR_RATE_THRESHOLD" envDefault:"0.05"`
	CacheHitRateThreshold float64       `env:"ALERT_CACHE_HIT_RATE_THRESHOLD" envDefault:"0.80"`
	JobFailuresThreshold  float64       `env:"ALERT_JOB_FAILURES_THRESHOLD" envDefault:"10"`
	// Destination for alert notifications. Empty disables dispatch.
	AlertWebhookURL string `env:"ALERT_WEBHOOK_URL" envDefault:""`

	// Retention and rollups
	MetricRetentionDays int           `env:"METRIC_RETENTION_DAYS" envDefault:"30"`
	RollupRetentionDays int           `env:"ROLLUP_RETENTION_DAYS" envDefault:"7"`
	RollupTimezone      string        `env:"ROLLUP_TIMEZONE" envDefault:"UTC"`
	CollectInterval     time.Duration `env:"METRICS_COLLECT_INTERVAL" envDefault:"5m"`
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// GetSafelistCIDRs parses the comma-separated CIDR string into a slice.
// When unset, development falls back to loopback plus the private ranges
// and test falls back to TEST-NET-1, mirroring deployment defaults.
func (c *Config) GetSafelistCIDRs() []string {
	if c.SafelistCIDRs == "" {
		switch c.AppEnv {
		case "development":
			return []string{"127.0.0.0/8", "::1/128", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"}
		case "test":
			return []string{"192.0.2.0/24"}
		default:
			return nil
		}
	}

	parts := strings.Split(c.SafelistCIDRs, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// RollupLocation resolves the configured rollup time zone.
func (c *Config) RollupLocation() (*time.Location, error) {
	loc, err := time.LoadLocation(c.RollupTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid rollup timezone %q: %w", c.RollupTimezone, err)
	}
	return loc, nil
}

// Load parses environment variables and returns a Config.
// Returns an error if required variables are missing.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}
