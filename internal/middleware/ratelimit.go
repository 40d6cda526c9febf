package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/rory503/complaintwatch/internal/config"
	"github.com/rory503/complaintwatch/internal/ratelimit"
)

var (
	rateLimitAllowedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "complaintwatch",
			Name:      "rate_limit_allowed_total",
			Help:      "Requests that passed rate limiting",
		},
		[]string{"rule"},
	)

	rateLimitDeniedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "complaintwatch",
			Name:      "rate_limit_denied_total",
			Help:      "Requests rejected by rate limiting",
		},
		[]string{"rule"},
	)

	rateLimitErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "complaintwatch",
			Name:      "rate_limit_errors_total",
			Help:      "Rate limit checks that failed",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(rateLimitAllowedTotal)
	prometheus.MustRegister(rateLimitDeniedTotal)
	prometheus.MustRegister(rateLimitErrorsTotal)
}

type compiledRule struct {
	name    string
	pattern *regexp.Regexp
	limit   int
	window  time.Duration
}

// RateLimit returns a middleware that enforces the configured per-path rate
// limits. Paths with no matching rule pass through unchecked.
func RateLimit(
	log logrus.FieldLogger,
	cfg config.RateLimitingConfig,
	limiter ratelimit.Service,
) func(http.Handler) http.Handler {
	compiledRules := make([]compiledRule, len(cfg.Rules))
	for i, rule := range cfg.Rules {
		compiledRules[i] = compiledRule{
			name:    rule.Name,
			pattern: regexp.MustCompile(rule.PathPattern),
			limit:   rule.Limit,
			window:  rule.Window,
		}
	}

	exemptNets := parseExemptIPs(cfg.ExemptIPs)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := extractClientIP(r)

			if isExempt(ip, exemptNets) {
				next.ServeHTTP(w, r)

				return
			}

			rule := findMatchingRule(r.URL.Path, compiledRules)
			if rule == nil {
				next.ServeHTTP(w, r)

				return
			}

			allowed, remaining, resetAt, err := limiter.Allow(
				r.Context(), ip, rule.name, rule.limit, rule.window)
			if err != nil {
				rateLimitErrorsTotal.WithLabelValues("limiter_error").Inc()

				log.WithError(err).WithFields(logrus.Fields{
					"ip":   ip,
					"path": r.URL.Path,
					"rule": rule.name,
				}).Error("Rate limit check failed")

				// The limiter's failure mode already decided the outcome.
				if !allowed {
					writeRateLimitError(w, "service unavailable", 0)

					return
				}
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rule.limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

			if !allowed {
				rateLimitDeniedTotal.WithLabelValues(rule.name).Inc()

				retryAfter := int(time.Until(resetAt).Seconds())
				if retryAfter < 0 {
					retryAfter = int(rule.window.Seconds())
				}

				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				writeRateLimitError(w, "rate limit exceeded", retryAfter)

				log.WithFields(logrus.Fields{
					"ip":          ip,
					"path":        r.URL.Path,
					"rule":        rule.name,
					"retry_after": retryAfter,
				}).Warn("Rate limit exceeded")

				return
			}

			rateLimitAllowedTotal.WithLabelValues(rule.name).Inc()
			next.ServeHTTP(w, r)
		})
	}
}

// extractClientIP resolves the real client IP behind proxies.
// Priority: CF-Connecting-IP > X-Forwarded-For > X-Real-IP > RemoteAddr.
func extractClientIP(r *http.Request) string {
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		return ip
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return ip
}

func parseExemptIPs(exemptIPs []string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(exemptIPs))

	for _, cidr := range exemptIPs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			// Single IPs become /32 or /128 networks.
			if ip := net.ParseIP(cidr); ip != nil {
				if ip.To4() != nil {
					_, network, _ = net.ParseCIDR(cidr + "/32")
				} else {
					_, network, _ = net.ParseCIDR(cidr + "/128")
				}

				nets = append(nets, network)
			}

			continue
		}

		nets = append(nets, network)
	}

	return nets
}

func isExempt(ip string, exemptNets []*net.IPNet) bool {
	parsedIP := net.ParseIP(ip)
	if parsedIP == nil {
		return false
	}

	for _, network := range exemptNets {
		if network.Contains(parsedIP) {
			return true
		}
	}

	return false
}

func findMatchingRule(path string, rules []compiledRule) *compiledRule {
	for i := range rules {
		if rules[i].pattern.MatchString(path) {
			return &rules[i]
		}
	}

	return nil
}

func writeRateLimitError(w http.ResponseWriter, message string, retryAfter int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)

	response := map[string]any{
		"error":  message,
		"status": http.StatusTooManyRequests,
	}

	if retryAfter > 0 {
		response["retry_after"] = retryAfter
	}

	_ = json.NewEncoder(w).Encode(response)
}
