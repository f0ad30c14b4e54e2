// Package metrics exposes Prometheus collectors for the fileops service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	tombstonesSweptTotal       prometheus.Counter
	progressEventsTotal        *prometheus.CounterVec

	once     sync.Once
	sizeOnce sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 30, 120},
			},
			[]string{"method", "route"},
		)

		tombstonesSweptTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "fileops_registry_tombstones_swept_total",
				Help: "Tombstones removed from the cancellation registry by the lazy sweep.",
			},
		)

		progressEventsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fileops_progress_events_total",
				Help: "Progress events streamed to HTTP clients, labeled by kind and type.",
			},
			[]string{"kind", "type"},
		)
	})
}

// RegisterRegistrySize exposes the cancellation registry size as a gauge
// read from size on every scrape. Only the first call has an effect.
func RegisterRegistrySize(size func() int) {
	sizeOnce.Do(func() {
		promauto.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "fileops_registry_entries",
				Help: "Active and tombstone entries held by the cancellation registry.",
			},
			func() float64 { return float64(size()) },
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveSweep counts tombstones removed by one registry sweep.
func ObserveSweep(removed int) {
	if removed > 0 {
		tombstonesSweptTotal.Add(float64(removed))
	}
}

// ObserveProgressEvent counts one streamed progress event.
func ObserveProgressEvent(kind, eventType string) {
	progressEventsTotal.WithLabelValues(kind, eventType).Inc()
}
