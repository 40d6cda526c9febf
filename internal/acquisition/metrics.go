package acquisition

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	acquisitionResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "complaintwatch",
			Name:      "acquisition_results_total",
			Help:      "Acquisition results by status",
		},
		[]string{"status"},
	)

	refreshAttempts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "complaintwatch",
			Name:      "acquisition_refresh_attempts_total",
			Help:      "Upstream fetch attempts, retries included",
		},
	)

	refreshFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "complaintwatch",
			Name:      "acquisition_refresh_failures_total",
			Help:      "Upstream refreshes that exhausted their attempt budget",
		},
	)
)

func init() {
	prometheus.MustRegister(acquisitionResults)
	prometheus.MustRegister(refreshAttempts)
	prometheus.MustRegister(refreshFailures)
}
