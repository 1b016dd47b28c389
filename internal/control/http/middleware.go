// Package http is the operator-facing control surface:
// start/cancel/resume an import session, list resumable sessions, and
// expose Prometheus metrics.
package http

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"

	"github.com/google/uuid"

	"github.com/bizzlechizzle/au-archive/internal/log"
)

type requestIDKeyType struct{}

var requestIDKey requestIDKeyType

// RequestID assigns or propagates an X-Request-Id header, stashing it
// in the request context and attaching a tagged logger so downstream
// handlers and Recoverer log with correlation.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", reqID)

		ctx := context.WithValue(r.Context(), requestIDKey, reqID)
		logger := log.FromContext(ctx).With().Str("request_id", reqID).Logger()
		ctx = log.WithContext(ctx, logger)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requestIDFromContext returns the request id stashed by RequestID, or
// "" if none is present.
func requestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// Recoverer converts a panic in any downstream handler into a 500 JSON
// response instead of crashing the process.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				buf := make([]byte, 8192)
				n := runtime.Stack(buf, false)

				log.FromContext(r.Context()).Error().
					Interface("panic_value", rec).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Str("request_id", requestIDFromContext(r.Context())).
					Str("stack_trace", string(buf[:n])).
					Msg("panic recovered in http handler")

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "internal_error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
