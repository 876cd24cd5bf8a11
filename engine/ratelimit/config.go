package ratelimit

import (
	"fmt"
	"time"

	"github.com/ulule/limiter/v3"
)

const (
	EndpointIngest = "ingest"
	EndpointQuery  = "query"
)

// Config represents rate limiting configuration
type Config struct {
	// Per-endpoint fixed-window limits
	Endpoints map[string]RateConfig `yaml:"endpoints"`

	// Options
	Prefix          string        `yaml:"prefix"`
	MaxRetry        int           `yaml:"max_retry"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// RateConfig represents a single rate limit configuration
type RateConfig struct {
	Period   time.Duration `yaml:"period"`
	Limit    int64         `yaml:"limit"`
	Disabled bool          `yaml:"disabled,omitempty"`
}

// DefaultConfig returns default rate limiting configuration
func DefaultConfig() *Config {
	return &Config{
		Endpoints: map[string]RateConfig{
			EndpointIngest: {Limit: 10, Period: time.Minute},
			EndpointQuery:  {Limit: 30, Period: time.Minute},
		},
		Prefix:          "transcripts:ratelimit:",
		MaxRetry:        3,
		CleanupInterval: 30 * time.Second,
	}
}

// ToLimiterRate converts RateConfig to limiter.Rate
func (rc RateConfig) ToLimiterRate() limiter.Rate {
	return limiter.Rate{
		Period: rc.Period,
		Limit:  rc.Limit,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	for endpoint, rate := range c.Endpoints {
		if rate.Disabled {
			continue
		}
		if rate.Limit <= 0 {
			return fmt.Errorf("rate limit for %s must be positive", endpoint)
		}
		if rate.Period <= 0 {
			return fmt.Errorf("rate limit period for %s must be positive", endpoint)
		}
	}
	return nil
}
