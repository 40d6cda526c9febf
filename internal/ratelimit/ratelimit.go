// Package ratelimit implements a fixed-window request limiter backed by
// Redis, shared across replicas.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rory503/complaintwatch/internal/redis"
)

// Compile-time interface compliance check.
var _ Service = (*service)(nil)

const keyPrefix = "complaintwatch:ratelimit"

// Service answers "may this caller make this request right now".
type Service interface {
	Start(ctx context.Context) error
	Stop() error
	Allow(
		ctx context.Context,
		ip, key string,
		limit int,
		window time.Duration,
	) (allowed bool, remaining int, resetAt time.Time, err error)
}

type service struct {
	redis redis.Client
	log   logrus.FieldLogger

	// Failure mode: "fail_open" or "fail_closed"
	failureMode string
}

// NewService creates a Redis-backed rate limiter.
func NewService(
	log logrus.FieldLogger,
	redisClient redis.Client,
	failureMode string,
) Service {
	return &service{
		redis:       redisClient,
		failureMode: failureMode,
		log:         log.WithField("component", "ratelimit"),
	}
}

func (s *service) Start(_ context.Context) error {
	s.log.WithField("failure_mode", s.failureMode).Info("Rate limiter started")

	return nil
}

func (s *service) Stop() error {
	s.log.Info("Rate limiter stopped")

	return nil
}

// Allow counts the request against a per-IP, per-rule window using
// INCR + EXPIRE. Counters keep incrementing past the limit so abusive
// clients do not earn a fresh window by hammering.
func (s *service) Allow(
	ctx context.Context,
	ip, key string,
	limit int,
	window time.Duration,
) (bool, int, time.Time, error) {
	counterKey := fmt.Sprintf("%s:%s:%s", keyPrefix, ip, key)

	count, err := s.redis.Incr(ctx, counterKey)
	if err != nil {
		s.log.WithError(err).Error("Rate limit counter unavailable")

		if s.failureMode == "fail_closed" {
			return false, 0, time.Time{}, fmt.Errorf("rate limiter unavailable: %w", err)
		}

		return true, 0, time.Time{}, nil
	}

	if count == 1 {
		if err := s.redis.Expire(ctx, counterKey, window); err != nil {
			s.log.WithError(err).Warn("Failed to set rate limit TTL")
		}
	}

	ttl, err := s.redis.TTL(ctx, counterKey)
	if err != nil || ttl < 0 {
		ttl = window
	}

	resetAt := time.Now().Add(ttl)

	if count > int64(limit) {
		return false, 0, resetAt, nil
	}

	return true, limit - int(count), resetAt, nil
}
