package ratelimit

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rory503/complaintwatch/internal/redis"
)

func newLimiter(t *testing.T, failureMode string) (Service, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	client := redis.NewClient(logger, redis.Config{Address: mr.Addr()})
	require.NoError(t, client.Start(context.Background()))
	t.Cleanup(func() { _ = client.Stop() })

	return NewService(logger, client, failureMode), mr
}

func TestAllow_UnderLimit(t *testing.T) {
	svc, _ := newLimiter(t, "fail_open")
	ctx := context.Background()

	limit := 5

	for i := 0; i < limit; i++ {
		allowed, remaining, resetAt, err := svc.Allow(ctx, "10.0.0.1", "api", limit, time.Minute)

		require.NoError(t, err)
		assert.True(t, allowed, "request %d should pass", i+1)
		assert.Equal(t, limit-i-1, remaining)
		assert.False(t, resetAt.IsZero())
	}
}

func TestAllow_OverLimit(t *testing.T) {
	svc, _ := newLimiter(t, "fail_open")
	ctx := context.Background()

	limit := 3

	for n := 0; n < limit; n++ {
		allowed, _, _, err := svc.Allow(ctx, "10.0.0.2", "api", limit, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed)
	}

	allowed, remaining, resetAt, err := svc.Allow(ctx, "10.0.0.2", "api", limit, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, 0, remaining)
	assert.True(t, resetAt.After(time.Now()))
}

func TestAllow_WindowExpiry(t *testing.T) {
	svc, mr := newLimiter(t, "fail_open")
	ctx := context.Background()

	limit := 2
	window := 2 * time.Second

	for n := 0; n < limit; n++ {
		allowed, _, _, err := svc.Allow(ctx, "10.0.0.3", "api", limit, window)
		require.NoError(t, err)
		assert.True(t, allowed)
	}

	allowed, _, _, err := svc.Allow(ctx, "10.0.0.3", "api", limit, window)
	require.NoError(t, err)
	assert.False(t, allowed)

	mr.FastForward(window + time.Second)

	allowed, remaining, _, err := svc.Allow(ctx, "10.0.0.3", "api", limit, window)
	require.NoError(t, err)
	assert.True(t, allowed, "fresh window after expiry")
	assert.Equal(t, limit-1, remaining)
}

func TestAllow_SeparateCounters(t *testing.T) {
	svc, _ := newLimiter(t, "fail_open")
	ctx := context.Background()

	limit := 1

	allowed, _, _, err := svc.Allow(ctx, "10.0.0.4", "complaints", limit, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)

	// Same IP, different rule.
	allowed, _, _, err = svc.Allow(ctx, "10.0.0.4", "trends", limit, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)

	// Different IP, same rule.
	allowed, _, _, err = svc.Allow(ctx, "10.0.0.5", "complaints", limit, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)

	// Original pair is now exhausted.
	allowed, _, _, err = svc.Allow(ctx, "10.0.0.4", "complaints", limit, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestAllow_RedisDown(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	mr := miniredis.RunT(t)

	client := redis.NewClient(logger, redis.Config{Address: mr.Addr()})
	require.NoError(t, client.Start(context.Background()))

	mr.Close()

	ctx := context.Background()

	t.Run("fail open allows", func(t *testing.T) {
		svc := NewService(logger, client, "fail_open")

		allowed, _, _, err := svc.Allow(ctx, "10.0.0.6", "api", 10, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("fail closed denies", func(t *testing.T) {
		svc := NewService(logger, client, "fail_closed")

		allowed, _, _, err := svc.Allow(ctx, "10.0.0.6", "api", 10, time.Minute)
		require.Error(t, err)
		assert.False(t, allowed)
	})
}

func TestAllow_Concurrent(t *testing.T) {
	svc, _ := newLimiter(t, "fail_open")
	ctx := context.Background()

	limit := 10
	attempts := 20
	results := make(chan bool, attempts)

	for n := 0; n < attempts; n++ {
		go func() {
			allowed, _, _, err := svc.Allow(ctx, "10.0.0.7", "api", limit, time.Minute)
			assert.NoError(t, err)

			results <- allowed
		}()
	}

	allowedCount := 0

	for n := 0; n < attempts; n++ {
		if <-results {
			allowedCount++
		}
	}

	assert.Equal(t, limit, allowedCount, "exactly limit requests pass")
}
