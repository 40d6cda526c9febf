//nolint:tagliatelle // superior snake-case yo.
package complaints

import (
	"time"
)

// DatasetSource describes where a dataset's records came from.
type DatasetSource string

const (
	// SourceCache means the records were read from a previously written cache.
	SourceCache DatasetSource = "cache"
	// SourceFresh means the records came from a fresh upstream fetch.
	SourceFresh DatasetSource = "fresh"
)

// Record is a single consumer complaint. Records are immutable once fetched.
type Record struct {
	ID             string    `json:"id"`
	Received       time.Time `json:"received"`
	Product        string    `json:"product"`
	Issue          string    `json:"issue,omitempty"`
	SubIssue       string    `json:"sub_issue,omitempty"`
	Company        string    `json:"company,omitempty"`
	State          string    `json:"state,omitempty"`
	Narrative      string    `json:"narrative,omitempty"`
	TimelyResponse string    `json:"timely_response,omitempty"`
}

// DateRange is an inclusive [Start, End] span of calendar dates.
// Both bounds are UTC midnights.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Dataset is an ordered-by-arrival collection of records plus fetch metadata.
type Dataset struct {
	Records   []Record      `json:"records"`
	FetchedAt time.Time     `json:"fetched_at"`
	Coverage  DateRange     `json:"coverage"`
	Source    DatasetSource `json:"source"`
}

// Day truncates t to a UTC calendar date (midnight).
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()

	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NewDateRange builds an inclusive range from two timestamps, truncated to days.
func NewDateRange(start, end time.Time) DateRange {
	return DateRange{Start: Day(start), End: Day(end)}
}

// IsZero reports whether the range carries no dates at all.
func (r DateRange) IsZero() bool {
	return r.Start.IsZero() && r.End.IsZero()
}

// IsEmpty reports whether the range selects no days.
func (r DateRange) IsEmpty() bool {
	return r.IsZero() || r.End.Before(r.Start)
}

// Days returns the number of calendar days the range spans (inclusive).
func (r DateRange) Days() int {
	if r.IsEmpty() {
		return 0
	}

	return int(r.End.Sub(r.Start).Hours()/24) + 1
}

// Contains reports whether d falls inside the inclusive range.
func (r DateRange) Contains(d time.Time) bool {
	if r.IsEmpty() {
		return false
	}

	d = Day(d)

	return !d.Before(r.Start) && !d.After(r.End)
}

// Covers reports whether r fully contains other.
func (r DateRange) Covers(other DateRange) bool {
	if r.IsEmpty() || other.IsEmpty() {
		return false
	}

	return !other.Start.Before(r.Start) && !other.End.After(r.End)
}

// Intersect returns the overlap of two inclusive ranges.
// The result is empty when the ranges do not overlap at all.
func (r DateRange) Intersect(other DateRange) DateRange {
	if r.IsEmpty() || other.IsEmpty() {
		return DateRange{}
	}

	start := r.Start
	if other.Start.After(start) {
		start = other.Start
	}

	end := r.End
	if other.End.Before(end) {
		end = other.End
	}

	if end.Before(start) {
		return DateRange{}
	}

	return DateRange{Start: start, End: end}
}

// CoverageOf computes the [min, max] received-date span actually present in
// records. It is never wider than the records themselves. Empty input yields
// a zero range.
func CoverageOf(records []Record) DateRange {
	if len(records) == 0 {
		return DateRange{}
	}

	coverage := DateRange{Start: Day(records[0].Received), End: Day(records[0].Received)}

	for _, rec := range records[1:] {
		d := Day(rec.Received)

		if d.Before(coverage.Start) {
			coverage.Start = d
		}

		if d.After(coverage.End) {
			coverage.End = d
		}
	}

	return coverage
}
