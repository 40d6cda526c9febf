package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rory503/complaintwatch/internal/complaints"
	"github.com/rory503/complaintwatch/internal/redis"
)

// Compile-time interface compliance check.
var _ Store = (*RedisStore)(nil)

const (
	redisKeyPrefix = "complaintwatch:cache:"
	metaSuffix     = ":meta"
	bodySuffix     = ":body"
)

// RedisStore keeps the cache entry in Redis for environments without
// persistent local storage. Body and sidecar live under separate keys so
// metadata reads stay cheap; both keys are written in one transaction.
type RedisStore struct {
	log   logrus.FieldLogger
	redis redis.Client
	name  string
	ttl   time.Duration
}

// NewRedisStore creates a Redis-backed store. name isolates entries when
// several caches share one Redis; ttl of zero means entries never expire.
func NewRedisStore(
	log logrus.FieldLogger,
	redisClient redis.Client,
	name string,
	ttl time.Duration,
) (*RedisStore, error) {
	if name == "" {
		return nil, fmt.Errorf("cache name cannot be empty")
	}

	return &RedisStore{
		log:   log.WithField("component", "cache_redis"),
		redis: redisClient,
		name:  name,
		ttl:   ttl,
	}, nil
}

// ReadMetadata reads the sidecar key only.
func (s *RedisStore) ReadMetadata(ctx context.Context) (*Metadata, error) {
	data, err := s.redis.Get(ctx, s.metaKey())
	if err != nil {
		if errors.Is(err, redis.ErrKeyNotFound) {
			return nil, ErrNoEntry
		}

		return nil, fmt.Errorf("%w: read sidecar: %v", ErrUnreadable, err)
	}

	var meta Metadata
	if err := json.Unmarshal([]byte(data), &meta); err != nil {
		return nil, fmt.Errorf("%w: parse sidecar: %v", ErrUnreadable, err)
	}

	if meta.FetchedAt.IsZero() {
		return nil, fmt.Errorf("%w: sidecar missing fetch timestamp", ErrUnreadable)
	}

	return &meta, nil
}

// ReadRecords loads the body key and filters to the range.
func (s *RedisStore) ReadRecords(
	ctx context.Context,
	within complaints.DateRange,
) ([]complaints.Record, error) {
	data, err := s.redis.Get(ctx, s.bodyKey())
	if err != nil {
		if errors.Is(err, redis.ErrKeyNotFound) {
			return nil, ErrNoEntry
		}

		return nil, fmt.Errorf("%w: read body: %v", ErrUnreadable, err)
	}

	var all []complaints.Record
	if err := json.Unmarshal([]byte(data), &all); err != nil {
		return nil, fmt.Errorf("%w: parse body: %v", ErrUnreadable, err)
	}

	records := make([]complaints.Record, 0, len(all))

	for _, rec := range all {
		if within.Contains(rec.Received) {
			records = append(records, rec)
		}
	}

	return records, nil
}

// Write replaces body and sidecar in a single transaction.
func (s *RedisStore) Write(ctx context.Context, dataset *complaints.Dataset) error {
	prev, err := s.ReadMetadata(ctx)
	if err != nil && !errors.Is(err, ErrNoEntry) {
		prev = nil
	}

	meta := metadataFor(dataset, prev)

	body, err := json.Marshal(dataset.Records)
	if err != nil {
		return fmt.Errorf("marshal records: %w", err)
	}

	sidecar, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal sidecar: %w", err)
	}

	err = s.redis.SetMulti(ctx, map[string]string{
		s.bodyKey(): string(body),
		s.metaKey(): string(sidecar),
	}, s.ttl)
	if err != nil {
		return fmt.Errorf("store cache entry: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"records": meta.RecordCount,
		"name":    s.name,
	}).Debug("Cache entry written")

	return nil
}

// Age returns now minus the entry's fetch timestamp.
func (s *RedisStore) Age(ctx context.Context, now time.Time) (time.Duration, error) {
	return age(ctx, s, now)
}

func (s *RedisStore) metaKey() string {
	return redisKeyPrefix + s.name + metaSuffix
}

func (s *RedisStore) bodyKey() string {
	return redisKeyPrefix + s.name + bodySuffix
}
