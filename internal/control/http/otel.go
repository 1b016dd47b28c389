package http

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
)

// Tracing wraps the handler with OpenTelemetry HTTP instrumentation so
// every control-surface request gets a server span with trace context
// propagation. Health and scrape endpoints are excluded to keep the
// trace stream from filling with poller noise.
func Tracing(serviceName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(
			next,
			serviceName,
			otelhttp.WithTracerProvider(otel.GetTracerProvider()),
			otelhttp.WithFilter(shouldTrace),
			otelhttp.WithSpanNameFormatter(spanNameFormatter),
		)
	}
}

func shouldTrace(r *http.Request) bool {
	switch r.URL.Path {
	case "/healthz", "/metrics":
		return false
	}
	return true
}

// spanNameFormatter names spans "HTTP {METHOD} {path}". Query values
// are never included in the span name.
func spanNameFormatter(operation string, r *http.Request) string {
	return "HTTP " + r.Method + " " + r.URL.Path
}
