package acquisition

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rory503/complaintwatch/internal/leader"
)

// Refresher keeps the cache warm ahead of demand: on a fixed cadence it
// refreshes the entry once it passes the freshness threshold, so requests
// rarely pay the fetch latency themselves.
//
// When several replicas share one cache (Redis), only the elected leader
// refreshes; followers keep serving from the shared entry.
type Refresher struct {
	log         logrus.FieldLogger
	interval    time.Duration
	coordinator *Coordinator
	elector     leader.Elector
	done        chan struct{}
	wg          sync.WaitGroup
}

// NewRefresher creates a background cache warmer.
func NewRefresher(
	log logrus.FieldLogger,
	interval time.Duration,
	coordinator *Coordinator,
	elector leader.Elector,
) *Refresher {
	return &Refresher{
		log:         log.WithField("component", "refresher"),
		interval:    interval,
		coordinator: coordinator,
		elector:     elector,
		done:        make(chan struct{}),
	}
}

// Start begins the refresh loop.
func (r *Refresher) Start(ctx context.Context) error {
	r.log.WithField("interval", r.interval.String()).Info("Starting cache refresher")

	r.wg.Add(1)

	go r.loop(ctx)

	return nil
}

// Stop stops the refresh loop.
func (r *Refresher) Stop() error {
	r.log.Info("Stopping cache refresher")
	close(r.done)
	r.wg.Wait()

	return nil
}

func (r *Refresher) loop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	// Give leader election a moment to settle.
	time.Sleep(100 * time.Millisecond)

	r.refreshIfLeader(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		case <-ticker.C:
			r.refreshIfLeader(ctx)
		}
	}
}

func (r *Refresher) refreshIfLeader(ctx context.Context) {
	if !r.elector.IsLeader() {
		return
	}

	if err := r.coordinator.RefreshIfStale(ctx); err != nil {
		r.log.WithError(err).Warn("Background refresh failed")
	}
}
