// Package telemetry sets up OpenTelemetry tracing for the ingest
// pipeline and worker handlers: a Config struct, a NewProvider
// constructor that installs the global tracer provider (or a noop one
// when disabled), and a Shutdown that flushes pending spans.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Common attribute keys, one constant per span attribute.
const (
	SessionIDKey = "ingest.session_id"
	JobIDKey     = "job.id"
	QueueKey     = "job.queue"
)

// Config holds the tracing setup the engine exposes via
// internal/config's telemetry_endpoint field.
type Config struct {
	// Enabled determines whether spans are exported at all.
	Enabled bool

	ServiceName    string
	ServiceVersion string
	Environment    string

	// Endpoint is the OTLP/HTTP collector endpoint, e.g.
	// "localhost:4318".
	Endpoint string

	// SamplingRate is the trace sampling ratio, 0.0 to 1.0.
	SamplingRate float64
}

// Provider owns the process-wide tracer provider's lifecycle.
type Provider struct {
	tp *sdktrace.TracerProvider
}

// NewProvider installs the global tracer provider described by cfg. A
// disabled config installs a noop provider so every Tracer() call
// downstream stays cheap and side-effect-free.
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		return &Provider{tp: nil}, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.ServiceVersion),
			semconv.DeploymentEnvironmentKey.String(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.Endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: build otlp/http exporter: %w", err)
	}

	var sampler sdktrace.Sampler
	switch {
	case cfg.SamplingRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case cfg.SamplingRate <= 0.0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(cfg.SamplingRate)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Provider{tp: tp}, nil
}

// Shutdown flushes and stops the tracer provider, bounded to 5s so a
// slow collector never hangs process exit.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tp == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return p.tp.Shutdown(shutdownCtx)
}

// Tracer returns a named tracer off the current global provider.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// Stage names used for the five ingest pipeline spans
const (
	StageScan     = "ingest.scan"
	StageHash     = "ingest.hash"
	StageCopy     = "ingest.copy"
	StageValidate = "ingest.validate"
	StageFinalize = "ingest.finalize"
)

// StartStage opens a span for one pipeline stage of a session,
// tagging it with the session id so a trace backend can group every
// stage of one import together.
func StartStage(ctx context.Context, stage, sessionID string) (context.Context, trace.Span) {
	ctx, span := Tracer("au-archive/ingest").Start(ctx, stage)
	span.SetAttributes(attribute.String(SessionIDKey, sessionID))
	return ctx, span
}

// StartJob opens a span for one worker job handler invocation, tagging
// it with the queue name and job id so a trace backend can correlate
// slow jobs back to their named queue.
func StartJob(ctx context.Context, queueName, jobID string) (context.Context, trace.Span) {
	ctx, span := Tracer("au-archive/worker").Start(ctx, "job."+queueName)
	span.SetAttributes(attribute.String(QueueKey, queueName), attribute.String(JobIDKey, jobID))
	return ctx, span
}
