// Package metrics provides Prometheus instrumentation for the leaderboard engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// LeaderboardRequests counts leaderboard lookups by ranking mode and
	// cache outcome ("hit" or "miss").
	LeaderboardRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leaderboard_requests_total",
		Help: "Leaderboard requests by ranking mode and cache outcome",
	}, []string{"ranking_by", "cache"})

	// AggregationDuration tracks aggregation latency per path ("native", "fallback").
	AggregationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "leaderboard_aggregation_duration_seconds",
		Help:    "Leaderboard aggregation latency in seconds",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"path"})

	// NativeFallbacks counts native aggregation failures that fell through
	// to in-process aggregation.
	NativeFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "leaderboard_native_fallbacks_total",
		Help: "Native aggregation failures answered by the fallback path",
	})

	// EstimatorFallbacks counts estimator failures replaced by fixed defaults.
	EstimatorFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leaderboard_estimator_fallbacks_total",
		Help: "Estimator failures answered with fallback constants",
	}, []string{"estimator"})

	// WinThreshold exposes the current dynamic win threshold.
	WinThreshold = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "leaderboard_win_threshold",
		Help: "Current dynamic win cash threshold",
	})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leaderboard_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "leaderboard_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the route pattern for path label to avoid high cardinality.
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
