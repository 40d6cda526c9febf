package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/rory503/complaintwatch/internal/acquisition"
	"github.com/rory503/complaintwatch/internal/analysis"
	"github.com/rory503/complaintwatch/internal/complaints"
	"github.com/rory503/complaintwatch/internal/environment"
)

// Verify interface compliance at compile time.
var _ http.Handler = (*TrendsHandler)(nil)

// TrendsHandler handles GET /api/v1/trends requests: acquire a window of
// complaints and summarize it.
type TrendsHandler struct {
	acquirer Acquirer
	strategy environment.Strategy
	logger   logrus.FieldLogger
}

// NewTrendsHandler creates a new trends handler.
func NewTrendsHandler(
	acquirer Acquirer,
	strategy environment.Strategy,
	logger logrus.FieldLogger,
) *TrendsHandler {
	return &TrendsHandler{
		acquirer: acquirer,
		strategy: strategy,
		logger:   logger.WithField("handler", "trends"),
	}
}

// TrendsResponse wraps the analysis report with acquisition provenance, so
// clients know how fresh and how complete the summarized data is.
//
//nolint:tagliatelle // superior snake-case yo.
type TrendsResponse struct {
	Status          acquisition.Status     `json:"status"`
	RequestedWindow complaints.DateRange   `json:"requested_window"`
	EffectiveWindow complaints.DateRange   `json:"effective_window"`
	Uncovered       []complaints.DateRange `json:"uncovered,omitempty"`
	Stale           bool                   `json:"stale,omitempty"`
	Report          *analysis.Report       `json:"report"`
}

// ServeHTTP handles the trends request.
func (h *TrendsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	months, err := monthsParam(r, defaultMonthsBack)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)

		return
	}

	opts, err := analysisOptions(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)

		return
	}

	result, err := h.acquirer.Acquire(r.Context(), acquisition.Request{
		MonthsBack: months,
		Strategy:   h.strategy,
	})
	if err != nil {
		if errors.Is(err, acquisition.ErrInvalidRequest) {
			http.Error(w, err.Error(), http.StatusBadRequest)

			return
		}

		h.logger.WithError(err).Error("Acquisition failed")
		http.Error(w, "internal server error", http.StatusInternalServerError)

		return
	}

	if result.Status == acquisition.StatusFetchFailedNoCache {
		http.Error(w, "no complaint data available", http.StatusServiceUnavailable)

		return
	}

	response := TrendsResponse{
		Status:          result.Status,
		RequestedWindow: result.RequestedWindow,
		EffectiveWindow: result.EffectiveWindow,
		Uncovered:       result.Uncovered,
		Stale:           result.Stale,
		Report:          analysis.Analyze(result.Records, opts),
	}

	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.WithError(err).Error("Failed to encode response")
	}
}

func analysisOptions(r *http.Request) (analysis.Options, error) {
	opts := analysis.Options{NarrativesOnly: true}

	if raw := r.URL.Query().Get("top"); raw != "" {
		top, err := strconv.Atoi(raw)
		if err != nil || top < 1 {
			return opts, errors.New("top must be a positive integer")
		}

		opts.TopN = top
	}

	if raw := r.URL.Query().Get("narratives_only"); raw != "" {
		narrativesOnly, err := strconv.ParseBool(raw)
		if err != nil {
			return opts, errors.New("narratives_only must be a boolean")
		}

		opts.NarrativesOnly = narrativesOnly
	}

	return opts, nil
}
