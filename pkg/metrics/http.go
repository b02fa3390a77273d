package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTPMetrics tracks the REST API surface.
//
// All methods handle a nil receiver, so a nil *HTTPMetrics acts as a
// no-op when metrics are disabled.
type HTTPMetrics struct {
	// Requests counts completed requests.
	// Labels: method, route, status
	Requests *prometheus.CounterVec

	// Duration observes request latency by route.
	Duration *prometheus.HistogramVec

	// InFlight tracks currently executing requests.
	InFlight prometheus.Gauge
}

// NewHTTPMetrics creates the HTTP metric set, or nil when metrics are
// disabled.
func NewHTTPMetrics() *HTTPMetrics {
	if !IsEnabled() {
		return nil
	}
	reg := GetRegistry()
	return &HTTPMetrics{
		Requests: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "driftbox_http_requests_total",
				Help: "Total number of HTTP requests by method, route and status",
			},
			[]string{"method", "route", "status"},
		),
		Duration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "driftbox_http_request_duration_seconds",
				Help:    "HTTP request latency by route",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method", "route"},
		),
		InFlight: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "driftbox_http_requests_in_flight",
				Help: "Number of HTTP requests currently being served",
			},
		),
	}
}

// RecordRequest records a completed request.
func (m *HTTPMetrics) RecordRequest(method, route, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(method, route, status).Inc()
	m.Duration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RequestStarted increments the in-flight gauge.
func (m *HTTPMetrics) RequestStarted() {
	if m == nil {
		return
	}
	m.InFlight.Inc()
}

// RequestFinished decrements the in-flight gauge.
func (m *HTTPMetrics) RequestFinished() {
	if m == nil {
		return
	}
	m.InFlight.Dec()
}
