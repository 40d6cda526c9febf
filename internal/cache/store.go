// Package cache persists the most recently fetched complaint dataset.
//
// A cache entry is two artifacts: a body holding the full record collection
// and a small sidecar holding {fetch timestamp, coverage range, record count}.
// The sidecar is readable on its own so freshness and coverage checks never
// pay for deserializing the body.
package cache

//go:generate mockgen -package mocks -destination mocks/mock_store.go github.com/rory503/complaintwatch/internal/cache Store

import (
	"context"
	"errors"
	"time"

	"github.com/rory503/complaintwatch/internal/complaints"
)

var (
	// ErrNoEntry indicates no cache entry has ever been written.
	ErrNoEntry = errors.New("no cache entry")
	// ErrUnreadable indicates a persisted entry exists but is corrupt.
	// Corrupt entries are never silently treated as valid partial data.
	ErrUnreadable = errors.New("cache entry unreadable")
)

// Metadata is the sidecar record describing a cache entry.
type Metadata struct {
	FetchedAt     time.Time `json:"fetched_at"`
	CoverageStart time.Time `json:"coverage_start"`
	CoverageEnd   time.Time `json:"coverage_end"`
	RecordCount   int       `json:"record_count"`
}

// Coverage returns the entry's received-date span as a range.
func (m *Metadata) Coverage() complaints.DateRange {
	return complaints.DateRange{Start: m.CoverageStart, End: m.CoverageEnd}
}

// Store persists a single dataset plus its sidecar metadata.
//
// Write replaces the entire entry wholesale; there is no partial merge and
// entries are never deleted automatically. Implementations must promote a
// new entry atomically: a crash mid-write leaves either the old entry or the
// new one fully readable, never a half-written mix.
type Store interface {
	// ReadMetadata returns the sidecar without loading the body.
	// ErrNoEntry when the cache has never been written, ErrUnreadable when
	// the persisted structure is corrupt.
	ReadMetadata(ctx context.Context) (*Metadata, error)

	// ReadRecords returns the cached records whose received date falls
	// inside the given inclusive range, filtering while decoding so callers
	// never materialize records outside the window.
	ReadRecords(ctx context.Context, within complaints.DateRange) ([]complaints.Record, error)

	// Write atomically replaces the cache entry with the dataset.
	Write(ctx context.Context, dataset *complaints.Dataset) error

	// Age returns now minus the entry's fetch timestamp.
	// ErrNoEntry when absent.
	Age(ctx context.Context, now time.Time) (time.Duration, error)
}

// age is the shared Age implementation on top of ReadMetadata.
func age(ctx context.Context, s Store, now time.Time) (time.Duration, error) {
	meta, err := s.ReadMetadata(ctx)
	if err != nil {
		return 0, err
	}

	return now.Sub(meta.FetchedAt), nil
}

// metadataFor builds the sidecar for a dataset. The coverage range comes
// from the records actually present, so it can never be reported wider than
// the body. FetchedAt never moves backwards relative to prev.
func metadataFor(dataset *complaints.Dataset, prev *Metadata) *Metadata {
	coverage := complaints.CoverageOf(dataset.Records)

	fetchedAt := dataset.FetchedAt
	if prev != nil && prev.FetchedAt.After(fetchedAt) {
		fetchedAt = prev.FetchedAt
	}

	return &Metadata{
		FetchedAt:     fetchedAt,
		CoverageStart: coverage.Start,
		CoverageEnd:   coverage.End,
		RecordCount:   len(dataset.Records),
	}
}
