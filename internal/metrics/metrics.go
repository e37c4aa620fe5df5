// Package metrics exposes Prometheus collectors for the pipeline and the
// HTTP surface.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request metrics
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dealscout_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status_code"},
	)

	HttpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dealscout_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Pipeline metrics
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dealscout_runs_total",
			Help: "Pipeline runs by final status",
		},
		[]string{"status"},
	)

	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dealscout_run_duration_seconds",
			Help:    "Duration of completed pipeline runs",
			Buckets: []float64{10, 30, 60, 120, 300, 600, 1200},
		},
	)

	EntriesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dealscout_entries_processed_total",
			Help: "Feed entries processed per source",
		},
		[]string{"source"},
	)

	SourceFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dealscout_source_failures_total",
			Help: "Sources whose processing failed",
		},
		[]string{"source"},
	)

	ExtractionOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dealscout_extractions_total",
			Help: "Product extractions by outcome",
		},
		[]string{"outcome"},
	)

	QuoteOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dealscout_market_quotes_total",
			Help: "Marketplace quotes by outcome",
		},
		[]string{"outcome"},
	)

	Opportunities = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dealscout_opportunities_total",
			Help: "Evaluated opportunities, split by whether they crossed the profit threshold",
		},
		[]string{"qualified"},
	)

	AlertFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dealscout_alert_failures_total",
			Help: "Alerts that could not be delivered",
		},
	)
)

// Middleware records request count and latency, labelled by chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				path = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		HttpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()
		HttpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}
