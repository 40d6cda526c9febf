package acquisition

import (
	"fmt"
	"time"
)

// Config holds acquisition coordinator configuration.
type Config struct {
	MaxCacheAge     time.Duration `yaml:"max_cache_age"`    // Freshness threshold for the cache
	MaxMonthsBack   int           `yaml:"max_months_back"`  // Upper bound for months_back requests
	RetryAttempts   int           `yaml:"retry_attempts"`   // Fetch attempts on transient failures
	RetryBaseDelay  time.Duration `yaml:"retry_base_delay"` // First backoff delay, doubled per attempt
	RefreshInterval time.Duration `yaml:"refresh_interval"` // Background warmer cadence
}

// Validate validates the configuration and sets defaults.
func (c *Config) Validate() error {
	if c.MaxCacheAge == 0 {
		c.MaxCacheAge = 30 * 24 * time.Hour
	}

	if c.MaxMonthsBack == 0 {
		c.MaxMonthsBack = 6
	}

	if c.RetryAttempts == 0 {
		c.RetryAttempts = 3
	}

	if c.RetryBaseDelay == 0 {
		c.RetryBaseDelay = 2 * time.Second
	}

	if c.RefreshInterval == 0 {
		c.RefreshInterval = 6 * time.Hour
	}

	if c.MaxCacheAge < time.Hour {
		return fmt.Errorf("max_cache_age must be at least 1 hour, got %v", c.MaxCacheAge)
	}

	if c.MaxMonthsBack < 1 {
		return fmt.Errorf("max_months_back must be positive, got %d", c.MaxMonthsBack)
	}

	if c.RetryAttempts < 1 {
		return fmt.Errorf("retry_attempts must be positive, got %d", c.RetryAttempts)
	}

	if c.RefreshInterval < time.Minute {
		return fmt.Errorf("refresh_interval must be at least 1 minute, got %v", c.RefreshInterval)
	}

	return nil
}
