package middleware

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// statusWriter captures the status code and body size of a response.
type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	n, err := sw.ResponseWriter.Write(b)
	sw.bytes += n

	return n, err
}

// Logging returns middleware that logs every completed HTTP request.
// Probe endpoints are logged at debug to keep the info stream readable
// when a load balancer polls /health every few seconds.
func Logging(logger logrus.FieldLogger) func(http.Handler) http.Handler {
	log := logger.WithField("component", "http")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(sw, r)

			entry := log.WithFields(logrus.Fields{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      sw.status,
				"duration_ms": time.Since(start).Milliseconds(),
				"bytes":       sw.bytes,
				"remote_addr": r.RemoteAddr,
				"user_agent":  r.UserAgent(),
			})

			if isProbePath(r.URL.Path) {
				entry.Debug("HTTP request completed")
			} else {
				entry.Info("HTTP request completed")
			}
		})
	}
}

func isProbePath(path string) bool {
	return path == "/health" || path == "/metrics"
}
