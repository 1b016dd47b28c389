// Package log provides structured logging utilities shared across the
// ingest engine, the job queue, and the worker runtime.
package log

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config captures options for configuring the global logger.
type Config struct {
	Level   string    // "debug", "info", "warn", "error"; defaults to "info"
	Output  io.Writer // defaults to os.Stdout
	Service string    // defaults to "au-archive"
	Version string
}

var (
	mu          sync.RWMutex
	base        zerolog.Logger
	initialized bool
)

// Configure initializes the global zerolog logger.
func Configure(cfg Config) {
	mu.Lock()
	defer mu.Unlock()

	level := zerolog.InfoLevel
	if cfg.Level != "" {
		if parsed, err := zerolog.ParseLevel(cfg.Level); err == nil {
			level = parsed
		}
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	writer := cfg.Output
	if writer == nil {
		writer = os.Stdout
	}

	service := cfg.Service
	if service == "" {
		service = "au-archive"
	}

	base = zerolog.New(writer).With().
		Timestamp().
		Str("service", service).
		Str("version", cfg.Version).
		Logger()

	initialized = true
}

func ensureInitialized() {
	mu.RLock()
	if initialized {
		mu.RUnlock()
		return
	}
	mu.RUnlock()
	Configure(Config{})
}

// L returns the current global logger.
func L() *zerolog.Logger {
	ensureInitialized()
	mu.RLock()
	defer mu.RUnlock()
	l := base
	return &l
}

// WithComponent returns a child logger tagged with component=name.
func WithComponent(name string) zerolog.Logger {
	ensureInitialized()
	mu.RLock()
	defer mu.RUnlock()
	return base.With().Str("component", name).Logger()
}

type ctxKey struct{}

// WithContext attaches a logger to ctx so downstream calls pick it up
// via FromContext without re-threading session/job identifiers.
func WithContext(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, &logger)
}

// FromContext returns the logger attached to ctx, or the global logger
// if none was attached.
func FromContext(ctx context.Context) *zerolog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*zerolog.Logger); ok && l != nil {
		return l
	}
	return L()
}

// WithSession returns a context carrying a logger tagged with the
// given import session id.
func WithSession(ctx context.Context, sessionID string) context.Context {
	logger := FromContext(ctx).With().Str("session_id", sessionID).Logger()
	return WithContext(ctx, logger)
}

// WithJob returns a context carrying a logger tagged with the given
// queue and job id.
func WithJob(ctx context.Context, queue, jobID string) context.Context {
	logger := FromContext(ctx).With().Str("queue", queue).Str("job_id", jobID).Logger()
	return WithContext(ctx, logger)
}
