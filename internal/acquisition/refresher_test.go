package acquisition

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/rory503/complaintwatch/internal/complaints"
	leadermocks "github.com/rory503/complaintwatch/internal/leader/mocks"
)

func TestRefresher_LeaderRefreshesStaleCache(t *testing.T) {
	now := date(t, "2025-11-01")
	h := newHarness(t, now)

	h.seedCache(t, date(t, "2025-09-01"), "2025-08-20")

	fetched := make(chan struct{})

	h.client.EXPECT().
		Fetch(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, complaints.DateRange) (*complaints.Dataset, error) {
			close(fetched)

			return freshDataset(t, now, "2025-10-20"), nil
		}).
		Times(1)

	ctrl := gomock.NewController(t)
	elector := leadermocks.NewMockElector(ctrl)
	elector.EXPECT().IsLeader().Return(true).AnyTimes()

	refresher := NewRefresher(testLogger(), time.Hour, h.coordinator, elector)
	require.NoError(t, refresher.Start(context.Background()))

	defer func() { require.NoError(t, refresher.Stop()) }()

	select {
	case <-fetched:
	case <-time.After(5 * time.Second):
		t.Fatal("refresher never fetched")
	}
}

func TestRefresher_FollowerStaysIdle(t *testing.T) {
	now := date(t, "2025-11-01")
	h := newHarness(t, now)

	h.seedCache(t, date(t, "2025-09-01"), "2025-08-20")

	// No Fetch expectation: any upstream call fails the test.
	ctrl := gomock.NewController(t)
	elector := leadermocks.NewMockElector(ctrl)
	elector.EXPECT().IsLeader().Return(false).AnyTimes()

	refresher := NewRefresher(testLogger(), 50*time.Millisecond, h.coordinator, elector)
	require.NoError(t, refresher.Start(context.Background()))

	time.Sleep(300 * time.Millisecond)

	require.NoError(t, refresher.Stop())
}

func TestRefresher_FreshCacheNotRefetched(t *testing.T) {
	now := date(t, "2025-11-01")
	h := newHarness(t, now)

	h.seedCache(t, date(t, "2025-10-28"), "2025-10-05")

	ctrl := gomock.NewController(t)
	elector := leadermocks.NewMockElector(ctrl)
	elector.EXPECT().IsLeader().Return(true).AnyTimes()

	refresher := NewRefresher(testLogger(), 50*time.Millisecond, h.coordinator, elector)
	require.NoError(t, refresher.Start(context.Background()))

	time.Sleep(300 * time.Millisecond)

	require.NoError(t, refresher.Stop())
}
