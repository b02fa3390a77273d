package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ThumbnailMetrics tracks the thumbnail pipeline.
//
// All methods handle a nil receiver, so a nil *ThumbnailMetrics acts as
// a no-op when metrics are disabled.
type ThumbnailMetrics struct {
	// Renders counts thumbnail renders by source media class and outcome.
	// Labels: kind=[image, animation, document], status=[ok, error]
	Renders *prometheus.CounterVec

	// RenderDuration observes the time spent decoding and encoding.
	RenderDuration *prometheus.HistogramVec

	// CacheLookups counts cache probes by outcome.
	// Labels: status=[hit, miss]
	CacheLookups *prometheus.CounterVec
}

// NewThumbnailMetrics creates the thumbnail metric set, or nil when
// metrics are disabled.
func NewThumbnailMetrics() *ThumbnailMetrics {
	if !IsEnabled() {
		return nil
	}
	reg := GetRegistry()
	return &ThumbnailMetrics{
		Renders: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "driftbox_thumbnail_renders_total",
				Help: "Total number of thumbnail renders by media kind and status",
			},
			[]string{"kind", "status"},
		),
		RenderDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "driftbox_thumbnail_render_duration_seconds",
				Help:    "Time spent rendering a thumbnail by media kind",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"kind"},
		),
		CacheLookups: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "driftbox_thumbnail_cache_lookups_total",
				Help: "Total number of thumbnail cache probes by status",
			},
			[]string{"status"},
		),
	}
}

// RecordRender records a finished render attempt.
func (m *ThumbnailMetrics) RecordRender(kind string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.Renders.WithLabelValues(kind, status).Inc()
	m.RenderDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordCacheLookup records a cache probe.
func (m *ThumbnailMetrics) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	status := "miss"
	if hit {
		status = "hit"
	}
	m.CacheLookups.WithLabelValues(status).Inc()
}
