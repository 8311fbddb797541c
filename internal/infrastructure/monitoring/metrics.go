package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics manages the Prometheus metrics.
type Metrics struct {
	RateLimitDecisions     *prometheus.CounterVec
	SessionResolutions     *prometheus.CounterVec
	SignedURLVerifications *prometheus.CounterVec
	HTTPRequests           *prometheus.CounterVec
	HTTPLatency            *prometheus.HistogramVec
}

// NewMetrics creates the metrics and registers them with reg.
// Pass prometheus.DefaultRegisterer to expose them on /metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RateLimitDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "invoicer_rate_limit_decisions_total",
				Help: "Rate limiter decisions by policy and result (allowed, denied, storage_unavailable).",
			},
			[]string{"policy", "result"},
		),
		SessionResolutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "invoicer_session_resolutions_total",
				Help: "Session cookie resolutions by result.",
			},
			[]string{"result"},
		),
		SignedURLVerifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "invoicer_signed_url_verifications_total",
				Help: "Signed URL verifications by result.",
			},
			[]string{"result"},
		),
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "invoicer_http_requests_total",
				Help: "HTTP requests by method, route and status.",
			},
			[]string{"method", "route", "status"},
		),
		HTTPLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "invoicer_http_request_duration_seconds",
				Help:    "Latency of HTTP requests.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
}

// RecordRateLimit records a limiter decision.
func (m *Metrics) RecordRateLimit(policy, result string) {
	if m == nil {
		return
	}
	m.RateLimitDecisions.WithLabelValues(policy, result).Inc()
}

// RecordSession records the outcome of resolving a session cookie.
func (m *Metrics) RecordSession(result string) {
	if m == nil {
		return
	}
	m.SessionResolutions.WithLabelValues(result).Inc()
}

// RecordSignedURL records the outcome of a signed URL check.
func (m *Metrics) RecordSignedURL(result string) {
	if m == nil {
		return
	}
	m.SignedURLVerifications.WithLabelValues(result).Inc()
}

// RecordHTTPRequest records a finished request.
func (m *Metrics) RecordHTTPRequest(method, route, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, status).Inc()
	m.HTTPLatency.WithLabelValues(method, route).Observe(duration.Seconds())
}
