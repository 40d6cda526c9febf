// Package source fetches complaint records from the CFPB Socrata API.
package source

//go:generate mockgen -package mocks -destination mocks/mock_client.go github.com/rory503/complaintwatch/internal/source Client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/rory503/complaintwatch/internal/complaints"
)

var (
	// ErrSourceUnavailable covers network failures, timeouts and upstream
	// server errors. Transient; callers may retry.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrRateLimited means the upstream returned 429. Transient.
	ErrRateLimited = errors.New("source rate limited")
	// ErrMalformedResponse means the payload could not be decoded.
	// Not transient; callers must not retry.
	ErrMalformedResponse = errors.New("malformed source response")
)

// Client fetches complaint records for a date window.
type Client interface {
	Fetch(ctx context.Context, window complaints.DateRange) (*complaints.Dataset, error)
}

// Compile-time interface compliance check.
var _ Client = (*HTTPClient)(nil)

// HTTPClient is a stateless fetcher against the CFPB Socrata endpoint.
//
// Windows wider than the configured chunk size are split into date
// sub-ranges that overlap by one day so provider-side boundary effects
// cannot drop records; the overlap is collapsed again by ID de-duplication.
// Chunks are independent and idempotent, so they are fetched with bounded
// parallelism.
type HTTPClient struct {
	config     *Config
	logger     logrus.FieldLogger
	httpClient *http.Client
	now        func() time.Time
}

// New creates a new source client.
func New(cfg *Config, logger logrus.FieldLogger) (*HTTPClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &HTTPClient{
		config:     cfg,
		logger:     logger.WithField("component", "source"),
		httpClient: cfg.HTTPClient(),
		now:        time.Now,
	}, nil
}

// Fetch retrieves all complaints received inside the window.
func (c *HTTPClient) Fetch(
	ctx context.Context,
	window complaints.DateRange,
) (*complaints.Dataset, error) {
	if window.IsEmpty() {
		return nil, fmt.Errorf("empty fetch window")
	}

	chunks := splitWindow(window, c.config.ChunkDays)

	c.logger.WithFields(logrus.Fields{
		"start":  window.Start.Format("2006-01-02"),
		"end":    window.End.Format("2006-01-02"),
		"chunks": len(chunks),
	}).Debug("Fetching complaint data")

	results := make([][]complaints.Record, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.config.ChunkWorkers)

	for i, chunk := range chunks {
		i, chunk := i, chunk
		g.Go(func() error {
			records, err := c.fetchChunk(gctx, chunk)
			if err != nil {
				return fmt.Errorf("chunk %s..%s: %w",
					chunk.Start.Format("2006-01-02"),
					chunk.End.Format("2006-01-02"),
					err,
				)
			}

			results[i] = records

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	records := dedupe(results)

	c.logger.WithField("records", len(records)).Debug("Fetched complaint data")

	return &complaints.Dataset{
		Records:   records,
		FetchedAt: c.now().UTC(),
		Coverage:  complaints.CoverageOf(records),
		Source:    complaints.SourceFresh,
	}, nil
}

// fetchChunk pages through a single date sub-range using limit/offset.
func (c *HTTPClient) fetchChunk(
	ctx context.Context,
	chunk complaints.DateRange,
) ([]complaints.Record, error) {
	var (
		records = make([]complaints.Record, 0)
		offset  = 0
	)

	for {
		rows, err := c.fetchPage(ctx, chunk, offset)
		if err != nil {
			return nil, err
		}

		records = append(records, rows...)

		if len(rows) < c.config.PageSize {
			return records, nil
		}

		offset += c.config.PageSize
	}
}

func (c *HTTPClient) fetchPage(
	ctx context.Context,
	chunk complaints.DateRange,
	offset int,
) ([]complaints.Record, error) {
	reqURL := fmt.Sprintf("%s?%s", c.config.Endpoint, c.queryParams(chunk, offset).Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")

	if c.config.AppToken != "" {
		req.Header.Set("X-App-Token", c.config.AppToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: status %d", ErrRateLimited, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: unexpected status %d", ErrSourceUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrSourceUnavailable, err)
	}

	var rows []map[string]any
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	records := make([]complaints.Record, 0, len(rows))

	for _, row := range rows {
		rec, ok := parseRow(row)
		if !ok {
			// Rows missing an identifier or received date are dropped;
			// upstream occasionally ships incomplete trailing rows.
			continue
		}

		records = append(records, rec)
	}

	return records, nil
}

// queryParams builds the SoQL query for one page of one chunk.
func (c *HTTPClient) queryParams(chunk complaints.DateRange, offset int) url.Values {
	where := fmt.Sprintf(
		"date_received between '%s' and '%s'",
		chunk.Start.Format("2006-01-02"),
		chunk.End.Format("2006-01-02"),
	)

	params := url.Values{}
	params.Set("$select", "complaint_id,date_received,product,issue,sub_issue,company,state,timely,consumer_complaint_narrative")
	params.Set("$where", where)
	params.Set("$order", "date_received ASC")
	params.Set("$limit", fmt.Sprintf("%d", c.config.PageSize))
	params.Set("$offset", fmt.Sprintf("%d", offset))

	return params
}

// splitWindow cuts an inclusive window into sub-ranges of at most chunkDays
// days. Adjacent sub-ranges share their boundary day.
func splitWindow(window complaints.DateRange, chunkDays int) []complaints.DateRange {
	chunks := make([]complaints.DateRange, 0, window.Days()/chunkDays+1)

	start := window.Start

	for {
		end := start.AddDate(0, 0, chunkDays-1)
		if !end.Before(window.End) {
			chunks = append(chunks, complaints.DateRange{Start: start, End: window.End})

			return chunks
		}

		chunks = append(chunks, complaints.DateRange{Start: start, End: end})

		// Next chunk starts on the previous end day.
		start = end
	}
}

// dedupe concatenates chunk results in order and drops repeated IDs.
func dedupe(chunks [][]complaints.Record) []complaints.Record {
	total := 0
	for _, chunk := range chunks {
		total += len(chunk)
	}

	seen := make(map[string]bool, total)
	out := make([]complaints.Record, 0, total)

	for _, chunk := range chunks {
		for _, rec := range chunk {
			if seen[rec.ID] {
				continue
			}

			seen[rec.ID] = true
			out = append(out, rec)
		}
	}

	return out
}
