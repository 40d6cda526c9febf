package testutil

import (
	"github.com/rory503/complaintwatch/internal/config"
)

// NewTestConfig returns a minimal valid config for testing, with defaults
// applied.
func NewTestConfig() *config.Config {
	cfg := &config.Config{
		Server: config.ServerConfig{
			Host: "localhost",
			Port: 8080,
		},
	}

	if err := cfg.Validate(); err != nil {
		panic(err)
	}

	return cfg
}
