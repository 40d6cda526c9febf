// Package handlers holds small standalone HTTP handlers.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rory503/complaintwatch/internal/cache"
	"github.com/rory503/complaintwatch/internal/version"
)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string       `json:"status"`
	Version string       `json:"version"`
	Cache   *CacheHealth `json:"cache,omitempty"`
}

// CacheHealth summarizes the cache entry without touching its body.
//
//nolint:tagliatelle // superior snake-case yo.
type CacheHealth struct {
	Present     bool      `json:"present"`
	FetchedAt   time.Time `json:"fetched_at,omitzero"`
	AgeHours    float64   `json:"age_hours,omitempty"`
	RecordCount int       `json:"record_count,omitempty"`
}

// Health returns an HTTP handler for the health check endpoint. The service
// is healthy even with an empty cache; the cache block is informational.
func Health(store cache.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := HealthResponse{
			Status:  "healthy",
			Version: version.Short(),
		}

		if store != nil {
			response.Cache = cacheHealth(r, store)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)

		if err := json.NewEncoder(w).Encode(response); err != nil {
			http.Error(w, "Failed to encode response", http.StatusInternalServerError)

			return
		}
	}
}

func cacheHealth(r *http.Request, store cache.Store) *CacheHealth {
	meta, err := store.ReadMetadata(r.Context())
	if err != nil {
		return &CacheHealth{Present: false}
	}

	return &CacheHealth{
		Present:     true,
		FetchedAt:   meta.FetchedAt,
		AgeHours:    time.Since(meta.FetchedAt).Hours(),
		RecordCount: meta.RecordCount,
	}
}
