package acquisition

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/rory503/complaintwatch/internal/cache"
	cachemocks "github.com/rory503/complaintwatch/internal/cache/mocks"
	"github.com/rory503/complaintwatch/internal/complaints"
	"github.com/rory503/complaintwatch/internal/environment"
	"github.com/rory503/complaintwatch/internal/source"
	sourcemocks "github.com/rory503/complaintwatch/internal/source/mocks"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)

	return log
}

func date(t *testing.T, s string) time.Time {
	t.Helper()

	d, err := time.Parse("2006-01-02", s)
	require.NoError(t, err)

	return d
}

func recordsOn(t *testing.T, dates ...string) []complaints.Record {
	t.Helper()

	out := make([]complaints.Record, 0, len(dates))

	for i, d := range dates {
		out = append(out, complaints.Record{
			ID:       fmt.Sprintf("c-%d", i),
			Received: date(t, d),
			Product:  "Mortgage",
			Company:  "ACME BANK",
		})
	}

	return out
}

func freshDataset(t *testing.T, fetchedAt time.Time, dates ...string) *complaints.Dataset {
	t.Helper()

	records := recordsOn(t, dates...)

	return &complaints.Dataset{
		Records:   records,
		FetchedAt: fetchedAt,
		Coverage:  complaints.CoverageOf(records),
		Source:    complaints.SourceFresh,
	}
}

// harness wires a coordinator with a temp-dir file store, a mock source
// client, a fixed clock, and a recorded no-op sleep.
type harness struct {
	coordinator *Coordinator
	store       *cache.FileStore
	client      *sourcemocks.MockClient
	delays      *[]time.Duration
	dir         string
}

func newHarness(t *testing.T, now time.Time) *harness {
	t.Helper()

	ctrl := gomock.NewController(t)
	dir := t.TempDir()

	store, err := cache.NewFileStore(testLogger(), dir)
	require.NoError(t, err)

	client := sourcemocks.NewMockClient(ctrl)

	coordinator, err := New(testLogger(), Config{}, store, client)
	require.NoError(t, err)

	delays := &[]time.Duration{}

	coordinator.now = func() time.Time { return now }
	coordinator.sleep = func(_ context.Context, d time.Duration) error {
		*delays = append(*delays, d)

		return nil
	}

	return &harness{
		coordinator: coordinator,
		store:       store,
		client:      client,
		delays:      delays,
		dir:         dir,
	}
}

// corruptSidecar scribbles over the metadata sidecar on disk.
func corruptSidecar(t *testing.T, h *harness) {
	t.Helper()

	require.NoError(t, os.WriteFile(filepath.Join(h.dir, "meta.json"), []byte("{nope"), 0o644))
}

// seedCache writes a cache entry whose coverage is derived from the dates.
func (h *harness) seedCache(t *testing.T, fetchedAt time.Time, dates ...string) {
	t.Helper()

	require.NoError(t, h.store.Write(context.Background(), freshDataset(t, fetchedAt, dates...)))
}

func TestCoordinator_InvalidRequest(t *testing.T) {
	now := date(t, "2025-11-01")

	for _, months := range []int{-1, 0, 7, 100} {
		t.Run(fmt.Sprintf("months=%d", months), func(t *testing.T) {
			h := newHarness(t, now)

			_, err := h.coordinator.Acquire(context.Background(), Request{
				MonthsBack: months,
				Now:        now,
			})

			// Rejected before any cache or network I/O: the mock client has
			// no expectations and the controller would fail on any call.
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}
}

func TestCoordinator_TargetWindow(t *testing.T) {
	now := date(t, "2025-11-01")

	req := Request{MonthsBack: 4, Now: now}
	assert.Equal(t, date(t, "2025-07-04"), req.TargetWindow().Start)
	assert.Equal(t, now, req.TargetWindow().End)

	req = Request{MonthsBack: 1, Now: now}
	assert.Equal(t, date(t, "2025-10-02"), req.TargetWindow().Start)
}

func TestCoordinator_AbsentCache_FetchSucceeds(t *testing.T) {
	now := date(t, "2025-11-01")
	h := newHarness(t, now)

	fullHistory := complaints.NewDateRange(date(t, "2025-05-05"), now)

	h.client.EXPECT().
		Fetch(gomock.Any(), fullHistory).
		Return(freshDataset(t, now, "2025-05-05", "2025-09-15", "2025-11-01"), nil).
		Times(1)

	result, err := h.coordinator.Acquire(context.Background(), Request{MonthsBack: 6, Now: now})
	require.NoError(t, err)

	assert.Equal(t, StatusCacheRefreshed, result.Status)
	assert.Equal(t, 3, result.RecordCount)

	// The refresh populated the cache.
	meta, err := h.store.ReadMetadata(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, meta.RecordCount)
}

func TestCoordinator_AbsentCache_FetchFails(t *testing.T) {
	now := date(t, "2025-11-01")
	h := newHarness(t, now)

	h.client.EXPECT().
		Fetch(gomock.Any(), gomock.Any()).
		Return(nil, source.ErrSourceUnavailable).
		Times(3)

	result, err := h.coordinator.Acquire(context.Background(), Request{MonthsBack: 3, Now: now})
	require.NoError(t, err)

	assert.Equal(t, StatusFetchFailedNoCache, result.Status)
	assert.Equal(t, 0, result.RecordCount)
	assert.Empty(t, result.Records)
	assert.True(t, result.EffectiveWindow.IsEmpty())

	// Exponential backoff between the three attempts.
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, *h.delays)
}

func TestCoordinator_CacheHit(t *testing.T) {
	now := date(t, "2025-11-01")
	h := newHarness(t, now)

	// Fresh cache covering far more than the requested month.
	h.seedCache(t, date(t, "2025-10-28"), "2025-04-15", "2025-10-05", "2025-10-31")

	result, err := h.coordinator.Acquire(context.Background(), Request{MonthsBack: 1, Now: now})
	require.NoError(t, err)

	assert.Equal(t, StatusCacheHit, result.Status)
	assert.Equal(t, 2, result.RecordCount)
	assert.Equal(t, complaints.NewDateRange(date(t, "2025-10-02"), now), result.EffectiveWindow)
	assert.Empty(t, result.Uncovered)
	assert.False(t, result.Stale)
}

func TestCoordinator_PartialWindow_Scenarios(t *testing.T) {
	// Cache fetched 2025-10-28 (age 4 days, fresh), coverage
	// [2025-05-01, 2025-10-06].
	now := date(t, "2025-11-01")

	tests := []struct {
		name            string
		monthsBack      int
		expectedStart   string
		expectedEnd     string
		expectedRecords int
	}{
		{
			name:            "four months back",
			monthsBack:      4,
			expectedStart:   "2025-07-04",
			expectedEnd:     "2025-10-06",
			expectedRecords: 2,
		},
		{
			name:            "one month back",
			monthsBack:      1,
			expectedStart:   "2025-10-02",
			expectedEnd:     "2025-10-06",
			expectedRecords: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, now)
			h.seedCache(t, date(t, "2025-10-28"),
				"2025-05-01", "2025-06-15", "2025-08-20", "2025-10-06")

			result, err := h.coordinator.Acquire(context.Background(), Request{
				MonthsBack: tt.monthsBack,
				Now:        now,
			})
			require.NoError(t, err)

			assert.Equal(t, StatusPartialWindow, result.Status)
			assert.Equal(t, complaints.NewDateRange(
				date(t, tt.expectedStart), date(t, tt.expectedEnd),
			), result.EffectiveWindow)
			assert.Equal(t, tt.expectedRecords, result.RecordCount)

			// The shortfall is reported explicitly.
			require.Len(t, result.Uncovered, 1)
			assert.Equal(t, date(t, "2025-10-07"), result.Uncovered[0].Start)
			assert.Equal(t, now, result.Uncovered[0].End)
		})
	}
}

func TestCoordinator_ZeroOverlap(t *testing.T) {
	now := date(t, "2025-11-01")
	h := newHarness(t, now)

	// Fresh cache whose coverage predates the window entirely.
	h.seedCache(t, date(t, "2025-10-30"), "2025-01-10", "2025-02-20")

	result, err := h.coordinator.Acquire(context.Background(), Request{MonthsBack: 1, Now: now})
	require.NoError(t, err)

	assert.Equal(t, StatusPartialWindow, result.Status)
	assert.Equal(t, 0, result.RecordCount)
	assert.True(t, result.EffectiveWindow.IsEmpty())
	assert.Equal(t, []complaints.DateRange{
		complaints.NewDateRange(date(t, "2025-10-02"), now),
	}, result.Uncovered)
}

func TestCoordinator_StaleCache_RefreshSucceeds(t *testing.T) {
	now := date(t, "2025-11-01")
	h := newHarness(t, now)

	// 40 days old, past the 30-day threshold.
	h.seedCache(t, date(t, "2025-09-22"), "2025-06-01", "2025-09-20")

	// Stale refreshes fetch the full supported history, not just the
	// requested window.
	fullHistory := complaints.NewDateRange(date(t, "2025-05-05"), now)

	h.client.EXPECT().
		Fetch(gomock.Any(), fullHistory).
		Return(freshDataset(t, now, "2025-06-01", "2025-10-20", "2025-11-01"), nil).
		Times(1)

	result, err := h.coordinator.Acquire(context.Background(), Request{MonthsBack: 1, Now: now})
	require.NoError(t, err)

	assert.Equal(t, StatusCacheRefreshed, result.Status)
	assert.Equal(t, 2, result.RecordCount)

	meta, err := h.store.ReadMetadata(context.Background())
	require.NoError(t, err)
	assert.Equal(t, now, meta.FetchedAt)
}

func TestCoordinator_StaleCache_RefreshFails(t *testing.T) {
	now := date(t, "2025-11-01")
	h := newHarness(t, now)

	h.seedCache(t, date(t, "2025-09-22"), "2025-09-20", "2025-10-05")

	h.client.EXPECT().
		Fetch(gomock.Any(), gomock.Any()).
		Return(nil, source.ErrSourceUnavailable).
		Times(3)

	result, err := h.coordinator.Acquire(context.Background(), Request{MonthsBack: 2, Now: now})
	require.NoError(t, err)

	// A stale cache beats no data.
	assert.Equal(t, StatusCacheStaleButUsed, result.Status)
	assert.True(t, result.Stale)
	assert.Positive(t, result.RecordCount)
}

func TestCoordinator_MalformedResponse_NoRetry(t *testing.T) {
	now := date(t, "2025-11-01")
	h := newHarness(t, now)

	h.seedCache(t, date(t, "2025-09-22"), "2025-09-20")

	h.client.EXPECT().
		Fetch(gomock.Any(), gomock.Any()).
		Return(nil, source.ErrMalformedResponse).
		Times(1)

	result, err := h.coordinator.Acquire(context.Background(), Request{MonthsBack: 2, Now: now})
	require.NoError(t, err)

	assert.Equal(t, StatusCacheStaleButUsed, result.Status)
	assert.Empty(t, *h.delays, "malformed responses must not be retried")
}

func TestCoordinator_RateLimited_RetriesThenSucceeds(t *testing.T) {
	now := date(t, "2025-11-01")
	h := newHarness(t, now)

	gomock.InOrder(
		h.client.EXPECT().
			Fetch(gomock.Any(), gomock.Any()).
			Return(nil, source.ErrRateLimited),
		h.client.EXPECT().
			Fetch(gomock.Any(), gomock.Any()).
			Return(freshDataset(t, now, "2025-10-20"), nil),
	)

	result, err := h.coordinator.Acquire(context.Background(), Request{MonthsBack: 1, Now: now})
	require.NoError(t, err)

	assert.Equal(t, StatusPartialWindow, result.Status)
	assert.Equal(t, 1, result.RecordCount)
	assert.Equal(t, []time.Duration{2 * time.Second}, *h.delays)
}

func TestCoordinator_EffectiveWindowSubset(t *testing.T) {
	now := date(t, "2025-11-01")

	for months := 1; months <= 6; months++ {
		t.Run(fmt.Sprintf("months=%d", months), func(t *testing.T) {
			h := newHarness(t, now)
			h.seedCache(t, date(t, "2025-10-28"), "2025-06-10", "2025-10-06")

			result, err := h.coordinator.Acquire(context.Background(), Request{
				MonthsBack: months,
				Now:        now,
			})
			require.NoError(t, err)

			target := complaints.NewDateRange(now.AddDate(0, 0, -30*months), now)

			if !result.EffectiveWindow.IsEmpty() {
				assert.True(t, target.Covers(result.EffectiveWindow),
					"effective %v not within target %v", result.EffectiveWindow, target)
			}

			for _, rec := range result.Records {
				assert.True(t, target.Contains(rec.Received))
			}
		})
	}
}

func TestCoordinator_ConcurrentRefreshShared(t *testing.T) {
	now := date(t, "2025-11-01")
	h := newHarness(t, now)

	h.seedCache(t, date(t, "2025-09-01"), "2025-08-20")

	release := make(chan struct{})

	// Exactly one upstream fetch regardless of concurrent callers.
	h.client.EXPECT().
		Fetch(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, complaints.DateRange) (*complaints.Dataset, error) {
			<-release

			return freshDataset(t, now, "2025-10-20"), nil
		}).
		Times(1)

	var wg sync.WaitGroup

	results := make([]*Result, 2)

	for i := range results {
		i := i

		wg.Add(1)

		go func() {
			defer wg.Done()

			result, err := h.coordinator.Acquire(context.Background(), Request{MonthsBack: 1, Now: now})
			assert.NoError(t, err)

			results[i] = result
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, result := range results {
		require.NotNil(t, result)
		assert.Equal(t, 1, result.RecordCount)
	}
}

func TestCoordinator_CloudStrategy_FetchFirst(t *testing.T) {
	now := date(t, "2025-11-01")
	h := newHarness(t, now)

	// Fresh, fully covering cache; the cloud strategy still fetches first.
	h.seedCache(t, date(t, "2025-10-30"), "2025-04-01", "2025-10-31")

	h.client.EXPECT().
		Fetch(gomock.Any(), gomock.Any()).
		Return(freshDataset(t, now, "2025-04-01", "2025-11-01"), nil).
		Times(1)

	result, err := h.coordinator.Acquire(context.Background(), Request{
		MonthsBack: 1,
		Now:        now,
		Strategy:   environment.StrategyCloud,
	})
	require.NoError(t, err)

	assert.Equal(t, StatusCacheRefreshed, result.Status)
}

func TestCoordinator_CloudStrategy_FallsBackToCache(t *testing.T) {
	now := date(t, "2025-11-01")
	h := newHarness(t, now)

	h.seedCache(t, date(t, "2025-10-30"), "2025-04-01", "2025-10-31")

	h.client.EXPECT().
		Fetch(gomock.Any(), gomock.Any()).
		Return(nil, source.ErrSourceUnavailable).
		Times(3)

	result, err := h.coordinator.Acquire(context.Background(), Request{
		MonthsBack: 1,
		Now:        now,
		Strategy:   environment.StrategyCloud,
	})
	require.NoError(t, err)

	assert.Equal(t, StatusCacheHit, result.Status)
	assert.Positive(t, result.RecordCount)
}

func TestCoordinator_UnreadableCache_TreatedAsAbsent(t *testing.T) {
	now := date(t, "2025-11-01")
	h := newHarness(t, now)

	h.seedCache(t, date(t, "2025-10-30"), "2025-10-05")
	corruptSidecar(t, h)

	h.client.EXPECT().
		Fetch(gomock.Any(), gomock.Any()).
		Return(freshDataset(t, now, "2025-10-20"), nil).
		Times(1)

	result, err := h.coordinator.Acquire(context.Background(), Request{MonthsBack: 1, Now: now})
	require.NoError(t, err)

	assert.Equal(t, StatusPartialWindow, result.Status)
	assert.Equal(t, 1, result.RecordCount)
}

func TestCoordinator_RefreshIfStale(t *testing.T) {
	now := date(t, "2025-11-01")

	t.Run("fresh cache untouched", func(t *testing.T) {
		h := newHarness(t, now)
		h.seedCache(t, date(t, "2025-10-28"), "2025-10-05")

		require.NoError(t, h.coordinator.RefreshIfStale(context.Background()))
	})

	t.Run("stale cache refreshed", func(t *testing.T) {
		h := newHarness(t, now)
		h.seedCache(t, date(t, "2025-09-01"), "2025-08-20")

		h.client.EXPECT().
			Fetch(gomock.Any(), gomock.Any()).
			Return(freshDataset(t, now, "2025-10-20"), nil).
			Times(1)

		require.NoError(t, h.coordinator.RefreshIfStale(context.Background()))

		meta, err := h.store.ReadMetadata(context.Background())
		require.NoError(t, err)
		assert.Equal(t, now, meta.FetchedAt)
	})

	t.Run("absent cache refreshed", func(t *testing.T) {
		h := newHarness(t, now)

		h.client.EXPECT().
			Fetch(gomock.Any(), gomock.Any()).
			Return(freshDataset(t, now, "2025-10-20"), nil).
			Times(1)

		require.NoError(t, h.coordinator.RefreshIfStale(context.Background()))
	})
}

func TestCoordinator_WriteFailureStillServesFetchedData(t *testing.T) {
	now := date(t, "2025-11-01")
	ctrl := gomock.NewController(t)

	store := cachemocks.NewMockStore(ctrl)
	client := sourcemocks.NewMockClient(ctrl)

	coordinator, err := New(testLogger(), Config{}, store, client)
	require.NoError(t, err)

	coordinator.now = func() time.Time { return now }
	coordinator.sleep = func(_ context.Context, _ time.Duration) error { return nil }

	store.EXPECT().
		ReadMetadata(gomock.Any()).
		Return(nil, cache.ErrNoEntry).
		Times(1)

	client.EXPECT().
		Fetch(gomock.Any(), gomock.Any()).
		Return(freshDataset(t, now, "2025-05-05", "2025-11-01"), nil).
		Times(1)

	// Persisting the entry fails, but the fetched dataset is still good.
	store.EXPECT().
		Write(gomock.Any(), gomock.Any()).
		Return(fmt.Errorf("disk full")).
		Times(1)

	result, err := coordinator.Acquire(context.Background(), Request{MonthsBack: 6, Now: now})
	require.NoError(t, err)

	assert.Equal(t, StatusCacheRefreshed, result.Status)
	assert.Equal(t, 2, result.RecordCount)
}
