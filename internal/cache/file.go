package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rory503/complaintwatch/internal/complaints"
)

// Compile-time interface compliance check.
var _ Store = (*FileStore)(nil)

const (
	bodyFile    = "complaints.json"
	sidecarFile = "meta.json"
)

// FileStore persists the cache entry on the local filesystem: a JSON body
// with the record collection and a JSON sidecar with the metadata.
//
// Writes stage both artifacts under temporary names and promote them with
// os.Rename, sidecar last. Readers treat the sidecar as the entry's source
// of truth, so the sidecar only ever refers to a fully written body.
type FileStore struct {
	log logrus.FieldLogger
	dir string
	mu  sync.Mutex
}

// NewFileStore creates a file-backed store rooted at dir, creating the
// directory if needed.
func NewFileStore(log logrus.FieldLogger, dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("cache dir cannot be empty")
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	return &FileStore{
		log: log.WithField("component", "cache_file"),
		dir: dir,
	}, nil
}

// ReadMetadata reads the sidecar only.
func (s *FileStore) ReadMetadata(_ context.Context) (*Metadata, error) {
	data, err := os.ReadFile(s.sidecarPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoEntry
		}

		return nil, fmt.Errorf("%w: read sidecar: %v", ErrUnreadable, err)
	}

	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("%w: parse sidecar: %v", ErrUnreadable, err)
	}

	if meta.FetchedAt.IsZero() {
		return nil, fmt.Errorf("%w: sidecar missing fetch timestamp", ErrUnreadable)
	}

	if _, err := os.Stat(s.bodyPath()); err != nil {
		return nil, fmt.Errorf("%w: sidecar present but body missing", ErrUnreadable)
	}

	return &meta, nil
}

// ReadRecords stream-decodes the body, keeping only records inside the
// range. Safe to call with a range narrower than the full coverage.
func (s *FileStore) ReadRecords(
	_ context.Context,
	within complaints.DateRange,
) ([]complaints.Record, error) {
	f, err := os.Open(s.bodyPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoEntry
		}

		return nil, fmt.Errorf("%w: open body: %v", ErrUnreadable, err)
	}
	defer f.Close()

	dec := json.NewDecoder(f)

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: parse body: %v", ErrUnreadable, err)
	}

	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return nil, fmt.Errorf("%w: body is not a record array", ErrUnreadable)
	}

	records := make([]complaints.Record, 0)

	for dec.More() {
		var rec complaints.Record
		if err := dec.Decode(&rec); err != nil {
			return nil, fmt.Errorf("%w: parse record: %v", ErrUnreadable, err)
		}

		if within.Contains(rec.Received) {
			records = append(records, rec)
		}
	}

	return records, nil
}

// Write atomically replaces the cache entry.
func (s *FileStore) Write(ctx context.Context, dataset *complaints.Dataset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, err := s.ReadMetadata(ctx)
	if err != nil && !errors.Is(err, ErrNoEntry) {
		// Corrupt previous entry; overwrite it wholesale.
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

	if err := s.promote(s.bodyPath(), body); err != nil {
		return fmt.Errorf("write body: %w", err)
	}

	if err := s.promote(s.sidecarPath(), sidecar); err != nil {
		return fmt.Errorf("write sidecar: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"records":        meta.RecordCount,
		"coverage_start": meta.CoverageStart.Format("2006-01-02"),
		"coverage_end":   meta.CoverageEnd.Format("2006-01-02"),
	}).Debug("Cache entry written")

	return nil
}

// Age returns now minus the entry's fetch timestamp.
func (s *FileStore) Age(ctx context.Context, now time.Time) (time.Duration, error) {
	return age(ctx, s, now)
}

// promote writes data to a staging file in the same directory and renames
// it over the target.
func (s *FileStore) promote(target string, data []byte) error {
	tmp, err := os.CreateTemp(s.dir, filepath.Base(target)+".tmp-*")
	if err != nil {
		return err
	}

	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)

		return err
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)

		return err
	}

	return os.Rename(tmpName, target)
}

func (s *FileStore) bodyPath() string {
	return filepath.Join(s.dir, bodyFile)
}

func (s *FileStore) sidecarPath() string {
	return filepath.Join(s.dir, sidecarFile)
}
