package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "archive_http_request_duration_seconds",
		Help:    "HTTP request latencies in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	httpRequestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "archive_http_requests_in_flight",
		Help: "Current number of HTTP requests being served",
	})

	importSessionsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "archive_import_sessions_started_total",
		Help: "Total import sessions started via the control API, by outcome",
	}, []string{"outcome"})

	importSessionsCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "archive_import_sessions_cancelled_total",
		Help: "Total import sessions cancelled via the control API",
	})
)

// Metrics records request duration, in-flight count, and status for
// every request, labeled by chi route pattern to avoid cardinality
// explosion from raw path segments (e.g. location ids).
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		httpRequestsInFlight.Inc()
		defer httpRequestsInFlight.Dec()

		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}

		status := strconv.Itoa(ww.Status())
		httpRequestDuration.WithLabelValues(r.Method, path, status).Observe(time.Since(start).Seconds())
	})
}
