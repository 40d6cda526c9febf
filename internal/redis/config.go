package redis

import "time"

// Config holds connection settings for the shared Redis instance that backs
// the cloud cache store, the refresh leader lock, and the rate limiter.
type Config struct {
	Address      string
	Password     string //nolint:gosec // Config field, not a hardcoded secret.
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
}
