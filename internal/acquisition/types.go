//nolint:tagliatelle // superior snake-case yo.
package acquisition

import (
	"errors"
	"fmt"
	"time"

	"github.com/rory503/complaintwatch/internal/complaints"
	"github.com/rory503/complaintwatch/internal/environment"
)

// ErrInvalidRequest marks a request rejected before any I/O.
var ErrInvalidRequest = errors.New("invalid request")

// Status describes how a result was produced.
type Status string

const (
	// StatusCacheHit means a fresh-enough cache fully covered the window.
	StatusCacheHit Status = "cache_hit"
	// StatusCacheRefreshed means the cache was refetched from upstream.
	StatusCacheRefreshed Status = "cache_refreshed"
	// StatusCacheStaleButUsed means the fetch failed and a stale cache was
	// served instead. A stale cache beats no data.
	StatusCacheStaleButUsed Status = "cache_stale_but_used"
	// StatusFetchFailedNoCache means no data exists at all: the fetch
	// failed and there is no usable cache to fall back on.
	StatusFetchFailedNoCache Status = "fetch_failed_no_cache"
	// StatusPartialWindow means the available data covers only part of the
	// requested window (possibly none of it).
	StatusPartialWindow Status = "partial_window"
)

// Request asks for the last MonthsBack months of complaints, counted back
// from Now. A month is 30 days, matching the upstream dataset's rolling
// window convention.
type Request struct {
	MonthsBack int
	Now        time.Time
	Strategy   environment.Strategy
}

// Validate rejects out-of-range requests before they reach any I/O.
func (r *Request) Validate(maxMonths int) error {
	if r.MonthsBack < 1 || r.MonthsBack > maxMonths {
		return fmt.Errorf("%w: months_back must be in [1,%d], got %d",
			ErrInvalidRequest, maxMonths, r.MonthsBack)
	}

	return nil
}

// TargetWindow derives the inclusive [now − 30d·months, now] date window.
func (r *Request) TargetWindow() complaints.DateRange {
	end := complaints.Day(r.Now)

	return complaints.DateRange{
		Start: end.AddDate(0, 0, -30*r.MonthsBack),
		End:   end,
	}
}

// Result is what the presentation layer consumes: the sliced records plus a
// status descriptor precise enough that callers never have to guess from
// record counts alone.
type Result struct {
	Status          Status                 `json:"status"`
	Records         []complaints.Record    `json:"records"`
	RecordCount     int                    `json:"record_count"`
	RequestedWindow complaints.DateRange   `json:"requested_window"`
	EffectiveWindow complaints.DateRange   `json:"effective_window"`
	Uncovered       []complaints.DateRange `json:"uncovered,omitempty"`
	FetchedAt       time.Time              `json:"fetched_at,omitzero"`
	Stale           bool                   `json:"stale,omitempty"`
}
