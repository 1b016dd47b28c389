package http

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// RateLimitConfig bounds how many control requests a single caller may
// issue in a sliding window; import/cancel/resume are cheap to call
// but expensive to act on, so the default is conservative.
type RateLimitConfig struct {
	RequestLimit int
	WindowSize   time.Duration
}

// RateLimit wraps httprate's sliding-window counter, keyed by client
// IP, returning a JSON 429 with Retry-After on exhaustion.
func RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	limit := cfg.RequestLimit
	if limit <= 0 {
		limit = 60
	}
	window := cfg.WindowSize
	if window <= 0 {
		window = time.Minute
	}

	return httprate.Limit(
		limit,
		window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(window.Seconds())))
			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", limit))
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate_limit_exceeded","detail":"too many requests, try again later"}`))
		}),
	)
}
