package source

import (
	"fmt"
	"net/http"
	"time"
)

// DefaultEndpoint is the CFPB consumer-complaint Socrata dataset.
const DefaultEndpoint = "https://data.consumerfinance.gov/resource/s6ew-h6mp.json"

// Config holds source client configuration.
type Config struct {
	Endpoint       string        `yaml:"endpoint"`
	AppToken       string        `yaml:"app_token"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	PageSize       int           `yaml:"page_size"`
	ChunkDays      int           `yaml:"chunk_days"`
	ChunkWorkers   int           `yaml:"chunk_workers"`
}

// Validate validates the configuration and sets defaults.
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		c.Endpoint = DefaultEndpoint
	}

	if c.RequestTimeout == 0 {
		c.RequestTimeout = 90 * time.Second
	}

	if c.PageSize == 0 {
		c.PageSize = 25000
	}

	if c.ChunkDays == 0 {
		c.ChunkDays = 31
	}

	if c.ChunkWorkers == 0 {
		c.ChunkWorkers = 4
	}

	if c.RequestTimeout < time.Second {
		return fmt.Errorf("request_timeout must be at least 1 second, got %v", c.RequestTimeout)
	}

	if c.PageSize < 1 {
		return fmt.Errorf("page_size must be positive, got %d", c.PageSize)
	}

	if c.ChunkDays < 2 {
		return fmt.Errorf("chunk_days must be at least 2, got %d", c.ChunkDays)
	}

	if c.ChunkWorkers < 1 {
		return fmt.Errorf("chunk_workers must be positive, got %d", c.ChunkWorkers)
	}

	return nil
}

// HTTPClient returns a configured HTTP client for upstream requests.
func (c *Config) HTTPClient() *http.Client {
	return &http.Client{
		Timeout: c.RequestTimeout,
	}
}
