// Package acquisition decides, per request, whether to serve the cached
// complaint dataset, refresh it from upstream, or fail gracefully.
package acquisition

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/rory503/complaintwatch/internal/cache"
	"github.com/rory503/complaintwatch/internal/complaints"
	"github.com/rory503/complaintwatch/internal/environment"
	"github.com/rory503/complaintwatch/internal/source"
)

// Coordinator orchestrates the cache store and the source client.
//
// The resilience property it guarantees: usable-but-stale cached data is
// never discarded when the network fails. Concurrent requests against the
// same store share a single in-flight refresh instead of racing on writes.
type Coordinator struct {
	log    logrus.FieldLogger
	cfg    Config
	store  cache.Store
	client source.Client

	// sleep and now are injectable for deterministic tests.
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time

	group singleflight.Group
}

// New creates a new acquisition coordinator.
func New(
	log logrus.FieldLogger,
	cfg Config,
	store cache.Store,
	client source.Client,
) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}

	if client == nil {
		return nil, fmt.Errorf("client cannot be nil")
	}

	return &Coordinator{
		log:    log.WithField("component", "acquisition"),
		cfg:    cfg,
		store:  store,
		client: client,
		sleep:  sleepCtx,
		now:    time.Now,
	}, nil
}

// Acquire answers a "last N months of data" request.
//
// InvalidRequest is the only error return; every runtime outcome, including
// total fetch failure, is expressed as a Result status so the caller can
// tell "no data exists" apart from "no data in this window".
func (c *Coordinator) Acquire(ctx context.Context, req Request) (*Result, error) {
	if err := req.Validate(c.cfg.MaxMonthsBack); err != nil {
		return nil, err
	}

	if req.Now.IsZero() {
		req.Now = c.now()
	}

	strategy := req.Strategy
	if strategy == "" {
		strategy = environment.StrategyLocal
	}

	target := req.TargetWindow()

	c.log.WithFields(logrus.Fields{
		"months_back": req.MonthsBack,
		"window":      formatRange(target),
		"strategy":    string(strategy),
	}).Debug("Acquiring dataset")

	var result *Result

	if strategy == environment.StrategyCloud {
		result = c.acquireFetchFirst(ctx, req.Now, target)
	} else {
		result = c.acquireCacheFirst(ctx, req.Now, target)
	}

	acquisitionResults.WithLabelValues(string(result.Status)).Inc()

	c.log.WithFields(logrus.Fields{
		"status":  string(result.Status),
		"records": result.RecordCount,
		"window":  formatRange(result.EffectiveWindow),
	}).Info("Acquisition completed")

	return result, nil
}

// acquireCacheFirst is the local-strategy ladder: cache when usable,
// refresh when stale or absent, stale fallback when the refresh fails.
func (c *Coordinator) acquireCacheFirst(
	ctx context.Context,
	now time.Time,
	target complaints.DateRange,
) *Result {
	meta, err := c.store.ReadMetadata(ctx)
	if err != nil {
		if errors.Is(err, cache.ErrUnreadable) {
			c.log.WithError(err).Warn("Cache unreadable, treating as absent")
		}

		return c.refreshOrFail(ctx, now, target)
	}

	if now.Sub(meta.FetchedAt) <= c.cfg.MaxCacheAge {
		return c.serveCached(ctx, meta, target, false)
	}

	// Stale: refresh the full supported history, not just the requested
	// window, so later requests with different windows hit the same cache.
	dataset, err := c.refresh(ctx, now)
	if err != nil {
		c.log.WithError(err).Warn("Refresh failed, falling back to stale cache")

		return c.serveCached(ctx, meta, target, true)
	}

	return c.serveFresh(dataset, target)
}

/// acquireFetchFirst is the cloud-strategy ladder: refresh first, then the
// same cache ladder when the fetch fails.
func (c *Coordinator) acquireFetchFirst(
	ctx context.Context,
	now time.Time,
	target complaints.DateRange,
) *Result {
	dataset, err := c.refresh(ctx, now)
	if err == nil {
		return c.serveFresh(dataset, target)
	}

	c.log.WithError(err).Warn("Fetch-first refresh failed, consulting cache")

	meta, metaErr := c.store.ReadMetadata(ctx)
	if metaErr != nil {
		return c.failedResult(target)
	}

	stale := now.Sub(meta.FetchedAt) > c.cfg.MaxCacheAge

	return c.serveCached(ctx, meta, target, stale)
}

// refreshOrFail refreshes when no cache exists; a failure here is terminal.
func (c *Coordinator) refreshOrFail(
	ctx context.Context,
	now time.Time,
	target complaints.DateRange,
) *Result {
	dataset, err := c.refresh(ctx, now)
	if err != nil {
		c.log.WithError(err).Error("Fetch failed with no cache to fall back on")

		return c.failedResult(target)
	}

	return c.serveFresh(dataset, target)
}

// serveCached builds a result from the persisted entry. stale marks results
// produced after a failed refresh.
func (c *Coordinator) serveCached(
	ctx context.Context,
	meta *cache.Metadata,
	target complaints.DateRange,
	stale bool,
) *Result {
	coverage := meta.Coverage()
	effective := coverage.Intersect(target)

	if effective.IsEmpty() {
		// Zero overlap with everything we have. A valid, if unhelpful,
		// outcome; distinguishable from a fetch failure.
		return &Result{
			Status:          StatusPartialWindow,
			Records:         []complaints.Record{},
			RequestedWindow: target,
			Uncovered:       []complaints.DateRange{target},
			FetchedAt:       meta.FetchedAt,
			Stale:           stale,
		}
	}

	records, err := c.store.ReadRecords(ctx, effective)
	if err != nil {
		c.log.WithError(err).Error("Cache body unreadable while serving")

		return c.failedResult(target)
	}

	status := StatusCacheHit

	switch {
	case stale:
		status = StatusCacheStaleButUsed
	case !coverage.Covers(target):
		status = StatusPartialWindow
	}

	return &Result{
		Status:          status,
		Records:         records,
		RecordCount:     len(records),
		RequestedWindow: target,
		EffectiveWindow: effective,
		Uncovered:       uncoveredRanges(target, effective),
		FetchedAt:       meta.FetchedAt,
		Stale:           stale,
	}
}

// serveFresh slices a just-fetched dataset down to the requested window.
func (c *Coordinator) serveFresh(
	dataset *complaints.Dataset,
	target complaints.DateRange,
) *Result {
	effective := dataset.Coverage.Intersect(target)
	records := complaints.SliceRange(dataset.Records, effective)

	status := StatusCacheRefreshed
	if !dataset.Coverage.Covers(target) {
		// Even fresh data cannot cover the window; report the shortfall
		// rather than silently under-reporting.
		status = StatusPartialWindow
	}

	return &Result{
		Status:          status,
		Records:         records,
		RecordCount:     len(records),
		RequestedWindow: target,
		EffectiveWindow: effective,
		Uncovered:       uncoveredRanges(target, effective),
		FetchedAt:       dataset.FetchedAt,
	}
}

func (c *Coordinator) failedResult(target complaints.DateRange) *Result {
	return &Result{
		Status:          StatusFetchFailedNoCache,
		Records:         []complaints.Record{},
		RequestedWindow: target,
		Uncovered:       []complaints.DateRange{target},
	}
}

// refresh fetches the full supported history and overwrites the cache.
// Concurrent callers share one in-flight refresh via singleflight, and the
// work itself is detached from the caller's cancellation: an abandoned
// request still populates the cache for the benefit of the next one.
func (c *Coordinator) refresh(ctx context.Context, now time.Time) (*complaints.Dataset, error) {
	window := complaints.DateRange{
		Start: complaints.Day(now).AddDate(0, 0, -30*c.cfg.MaxMonthsBack),
		End:   complaints.Day(now),
	}

	value, err, shared := c.group.Do("refresh", func() (any, error) {
		fetchCtx := context.WithoutCancel(ctx)

		dataset, err := c.fetchWithRetry(fetchCtx, window)
		if err != nil {
			refreshFailures.Inc()

			return nil, err
		}

		if err := c.store.Write(fetchCtx, dataset); err != nil {
			// The fetched data is still good; serve it even if persisting
			// failed.
			c.log.WithError(err).Error("Failed to write cache entry")
		}

		return dataset, nil
	})
	if err != nil {
		return nil, err
	}

	if shared {
		c.log.Debug("Joined in-flight refresh")
	}

	dataset, ok := value.(*complaints.Dataset)
	if !ok {
		return nil, fmt.Errorf("unexpected refresh result type %T", value)
	}

	return dataset, nil
}

// fetchWithRetry runs the bounded-attempt loop: exponential backoff on
// transient failures, immediate give-up on malformed payloads.
func (c *Coordinator) fetchWithRetry(
	ctx context.Context,
	window complaints.DateRange,
) (*complaints.Dataset, error) {
	delay := c.cfg.RetryBaseDelay

	var lastErr error

	for attempt := 1; attempt <= c.cfg.RetryAttempts; attempt++ {
		refreshAttempts.Inc()

		dataset, err := c.client.Fetch(ctx, window)
		if err == nil {
			return dataset, nil
		}

		lastErr = err

		if errors.Is(err, source.ErrMalformedResponse) {
			// A parsing failure is not transient.
			return nil, err
		}

		// Timeouts are treated identically to an unavailable source.
		if attempt == c.cfg.RetryAttempts {
			break
		}

		c.log.WithFields(logrus.Fields{
			"attempt": attempt,
			"delay":   delay.String(),
			"error":   err.Error(),
		}).Warn("Fetch failed, retrying")

		if err := c.sleep(ctx, delay); err != nil {
			return nil, lastErr
		}

		delay *= 2
	}

	return nil, fmt.Errorf("fetch failed after %d attempts: %w", c.cfg.RetryAttempts, lastErr)
}

// RefreshIfStale refreshes the cache when it is absent or past the
// freshness threshold. Used by the background warmer.
func (c *Coordinator) RefreshIfStale(ctx context.Context) error {
	now := c.now()

	age, err := c.store.Age(ctx, now)
	if err == nil && age <= c.cfg.MaxCacheAge {
		return nil
	}

	if err != nil && !errors.Is(err, cache.ErrNoEntry) && !errors.Is(err, cache.ErrUnreadable) {
		return fmt.Errorf("check cache age: %w", err)
	}

	_, err = c.refresh(ctx, now)

	return err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// uncoveredRanges reports the parts of target that effective misses, so the
// caller can tell the user exactly what is absent.
func uncoveredRanges(target, effective complaints.DateRange) []complaints.DateRange {
	if effective.IsEmpty() {
		return []complaints.DateRange{target}
	}

	var gaps []complaints.DateRange

	if effective.Start.After(target.Start) {
		gaps = append(gaps, complaints.DateRange{
			Start: target.Start,
			End:   effective.Start.AddDate(0, 0, -1),
		})
	}

	if effective.End.Before(target.End) {
		gaps = append(gaps, complaints.DateRange{
			Start: effective.End.AddDate(0, 0, 1),
			End:   target.End,
		})
	}

	return gaps
}

func formatRange(r complaints.DateRange) string {
	if r.IsEmpty() {
		return "(empty)"
	}

	return r.Start.Format("2006-01-02") + ".." + r.End.Format("2006-01-02")
}
