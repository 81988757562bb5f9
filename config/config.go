// Package config loads client configuration from defaults, an optional
// YAML file, and APIVET_ environment variables, in that order of
// precedence (later sources override earlier ones).
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the full client configuration.
type Config struct {
	Pipeline PipelineConfig `koanf:"pipeline"`
	Plugins  PluginsConfig  `koanf:"plugins"`
	Retry    RetryConfig    `koanf:"retry"`
	Breaker  BreakerConfig  `koanf:"breaker"`
}

// PipelineConfig controls interceptor execution.
type PipelineConfig struct {
	// CallTimeout bounds each interceptor invocation.
	CallTimeout time.Duration `koanf:"call_timeout"`
	// AllowDuplicates permits same-name interceptors within a phase.
	AllowDuplicates bool `koanf:"allow_duplicates"`
}

// PluginsConfig controls the plugin lifecycle manager.
type PluginsConfig struct {
	HookTimeout         time.Duration `koanf:"hook_timeout"`
	HealthCheckTimeout  time.Duration `koanf:"health_check_timeout"`
	HealthCheckInterval time.Duration `koanf:"health_check_interval"`
}

// RetryConfig controls the retry policy.
type RetryConfig struct {
	MaxRetries    int           `koanf:"max_retries"`
	RetryDelay    time.Duration `koanf:"retry_delay"`
	MinRetryDelay time.Duration `koanf:"min_retry_delay"`
	MaxRetryDelay time.Duration `koanf:"max_retry_delay"`
	BackoffFactor float64       `koanf:"backoff_factor"`
	// Strategy is one of "exponential", "linear", "fixed".
	Strategy             string  `koanf:"strategy"`
	JitterFactor         float64 `koanf:"jitter_factor"`
	RetryableStatusCodes []int   `koanf:"retryable_status_codes"`
}

// BreakerConfig controls the circuit breaker.
type BreakerConfig struct {
	FailureThreshold int           `koanf:"failure_threshold"`
	SuccessThreshold int           `koanf:"success_threshold"`
	RecoveryTimeout  time.Duration `koanf:"recovery_timeout"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			CallTimeout: 30 * time.Second,
		},
		Plugins: PluginsConfig{
			HookTimeout:         10 * time.Second,
			HealthCheckTimeout:  2 * time.Second,
			HealthCheckInterval: 30 * time.Second,
		},
		Retry: RetryConfig{
			MaxRetries:           3,
			RetryDelay:           100 * time.Millisecond,
			MinRetryDelay:        50 * time.Millisecond,
			MaxRetryDelay:        30 * time.Second,
			BackoffFactor:        2.0,
			Strategy:             "exponential",
			JitterFactor:         0.1,
			RetryableStatusCodes: []int{408, 429, 500, 502, 503, 504},
		},
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			SuccessThreshold: 2,
			RecoveryTimeout:  30 * time.Second,
		},
	}
}

// Load reads configuration from the given YAML file path (skipped when
// empty or missing) and APIVET_ environment variables. Nested keys use
// double underscores, e.g. APIVET_RETRY__MAX_RETRIES=5.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: loading %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider("APIVET_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "APIVET_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("config: loading environment: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshaling: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field ranges.
func (c *Config) Validate() error {
	if c.Pipeline.CallTimeout <= 0 {
		return fmt.Errorf("config: pipeline.call_timeout must be positive")
	}
	if c.Plugins.HookTimeout <= 0 {
		return fmt.Errorf("config: plugins.hook_timeout must be positive")
	}
	if c.Plugins.HealthCheckTimeout <= 0 {
		return fmt.Errorf("config: plugins.health_check_timeout must be positive")
	}
	if c.Plugins.HealthCheckInterval <= 0 {
		return fmt.Errorf("config: plugins.health_check_interval must be positive")
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("config: retry.max_retries cannot be negative")
	}
	if c.Retry.RetryDelay <= 0 {
		return fmt.Errorf("config: retry.retry_delay must be positive")
	}
	if c.Retry.MinRetryDelay <= 0 || c.Retry.MaxRetryDelay < c.Retry.MinRetryDelay {
		return fmt.Errorf("config: retry delay bounds are invalid")
	}
	if c.Retry.BackoffFactor < 1 {
		return fmt.Errorf("config: retry.backoff_factor must be at least 1")
	}
	switch c.Retry.Strategy {
	case "exponential", "linear", "fixed":
	default:
		return fmt.Errorf("config: unknown retry strategy %q", c.Retry.Strategy)
	}
	if c.Retry.JitterFactor < 0 || c.Retry.JitterFactor > 1 {
		return fmt.Errorf("config: retry.jitter_factor must be within [0, 1]")
	}
	if c.Breaker.FailureThreshold <= 0 {
		return fmt.Errorf("config: breaker.failure_threshold must be positive")
	}
	if c.Breaker.SuccessThreshold <= 0 {
		return fmt.Errorf("config: breaker.success_threshold must be positive")
	}
	if c.Breaker.RecoveryTimeout <= 0 {
		return fmt.Errorf("config: breaker.recovery_timeout must be positive")
	}
	return nil
}
