package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	yamlContent := `
server:
  port: 9090
  host: 127.0.0.1
  log_level: debug
environment:
  override: cloud
cache:
  backend: redis
  ttl: 720h
redis:
  address: localhost:6379
source:
  app_token: test-token
  page_size: 1000
acquisition:
  max_cache_age: 720h
  max_months_back: 6
rate_limiting:
  enabled: true
  failure_mode: fail_open
  rules:
    - name: api
      path_pattern: ^/api/
      limit: 60
      window: 1m
`

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, "cloud", cfg.Environment.Override)
	assert.Equal(t, "redis", cfg.Cache.Backend)
	assert.Equal(t, 720*time.Hour, cfg.Cache.TTL)
	assert.Equal(t, "test-token", cfg.Source.AppToken)
	assert.Equal(t, 1000, cfg.Source.PageSize)
	assert.Equal(t, 720*time.Hour, cfg.Acquisition.MaxCacheAge)
	require.Len(t, cfg.RateLimiting.Rules, 1)
	assert.Equal(t, 60, cfg.RateLimiting.Rules[0].Limit)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate_Defaults(t *testing.T) {
	cfg := &Config{}
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "info", cfg.Server.LogLevel)
	assert.Equal(t, "data", cfg.Cache.Dir)
	assert.Equal(t, 30*24*time.Hour, cfg.Acquisition.MaxCacheAge)
	assert.Equal(t, 6, cfg.Acquisition.MaxMonthsBack)
	assert.Equal(t, 25000, cfg.Source.PageSize)
}

func TestValidate_RedisDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.Redis.Address = "localhost:6379"

	require.NoError(t, cfg.Validate())

	assert.Equal(t, 5*time.Second, cfg.Redis.DialTimeout)
	assert.Equal(t, 10, cfg.Redis.PoolSize)
	assert.Equal(t, "complaintwatch:leader", cfg.Leader.LockKey)
	assert.Less(t, cfg.Leader.RenewInterval, cfg.Leader.LockTTL)
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
		errMatch string
	}{
		{
			name:     "bad port",
			mutate:   func(c *Config) { c.Server.Port = -1 },
			errMatch: "invalid server port",
		},
		{
			name:     "bad log level",
			mutate:   func(c *Config) { c.Server.LogLevel = "shouty" },
			errMatch: "invalid log level",
		},
		{
			name:     "bad environment override",
			mutate:   func(c *Config) { c.Environment.Override = "mainframe" },
			errMatch: "environment",
		},
		{
			name:     "bad cache backend",
			mutate:   func(c *Config) { c.Cache.Backend = "tape" },
			errMatch: "cache.backend",
		},
		{
			name: "bad leader intervals",
			mutate: func(c *Config) {
				c.Redis.Address = "localhost:6379"
				c.Leader.LockTTL = 5 * time.Second
				c.Leader.RenewInterval = 10 * time.Second
			},
			errMatch: "renew_interval",
		},
		{
			name: "rate limiting without rules",
			mutate: func(c *Config) {
				c.RateLimiting.Enabled = true
			},
			errMatch: "at least one rule",
		},
		{
			name: "rate limiting bad regex",
			mutate: func(c *Config) {
				c.RateLimiting.Enabled = true
				c.RateLimiting.FailureMode = "fail_open"
				c.RateLimiting.Rules = []RateLimitRule{
					{Name: "api", PathPattern: "([", Limit: 10, Window: time.Minute},
				}
			},
			errMatch: "invalid regex",
		},
		{
			name: "rate limiting bad exempt ip",
			mutate: func(c *Config) {
				c.RateLimiting.Enabled = true
				c.RateLimiting.FailureMode = "fail_open"
				c.RateLimiting.ExemptIPs = []string{"not-an-ip"}
				c.RateLimiting.Rules = []RateLimitRule{
					{Name: "api", PathPattern: "^/api/", Limit: 10, Window: time.Minute},
				}
			},
			errMatch: "invalid IP or CIDR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMatch)
		})
	}
}
