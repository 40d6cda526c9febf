// Package api contains the JSON HTTP handlers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/rory503/complaintwatch/internal/acquisition"
	"github.com/rory503/complaintwatch/internal/environment"
)

// Acquirer is the slice of the acquisition coordinator the handlers need.
type Acquirer interface {
	Acquire(ctx context.Context, req acquisition.Request) (*acquisition.Result, error)
}

// Verify interface compliance at compile time.
var _ http.Handler = (*ComplaintsHandler)(nil)

const defaultMonthsBack = 6

// ComplaintsHandler handles GET /api/v1/complaints requests.
type ComplaintsHandler struct {
	acquirer Acquirer
	strategy environment.Strategy
	logger   logrus.FieldLogger
}

// NewComplaintsHandler creates a new complaints handler.
func NewComplaintsHandler(
	acquirer Acquirer,
	strategy environment.Strategy,
	logger logrus.FieldLogger,
) *ComplaintsHandler {
	return &ComplaintsHandler{
		acquirer: acquirer,
		strategy: strategy,
		logger:   logger.WithField("handler", "complaints"),
	}
}

// ServeHTTP handles the complaints request.
func (h *ComplaintsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	months, err := monthsParam(r, defaultMonthsBack)
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

	w.Header().Set("Content-Type", "application/json")

	// No data at all is a service problem, not a client one. The body still
	// carries the result so clients can distinguish the failure modes.
	if result.Status == acquisition.StatusFetchFailedNoCache {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	if err := json.NewEncoder(w).Encode(result); err != nil {
		h.logger.WithError(err).Error("Failed to encode response")
	}
}

// monthsParam parses the months query parameter, with a default when absent.
// Range validation belongs to the acquisition layer.
func monthsParam(r *http.Request, def int) (int, error) {
	raw := r.URL.Query().Get("months")
	if raw == "" {
		return def, nil
	}

	months, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("months must be an integer")
	}

	return months, nil
}
