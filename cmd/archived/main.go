// archived is the engine's long-running process: it opens the Index,
// wires the five ingest stages and the named-queue worker pools to
// their collaborators, and exposes the operator control surface over
// HTTP until told to stop.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/bizzlechizzle/au-archive/internal/archive/pathsvc"
	"github.com/bizzlechizzle/au-archive/internal/collaborators/geocode"
	"github.com/bizzlechizzle/au-archive/internal/collaborators/metadata"
	"github.com/bizzlechizzle/au-archive/internal/collaborators/probe"
	proxycol "github.com/bizzlechizzle/au-archive/internal/collaborators/proxy"
	"github.com/bizzlechizzle/au-archive/internal/collaborators/thumb"
	"github.com/bizzlechizzle/au-archive/internal/config"
	controlhttp "github.com/bizzlechizzle/au-archive/internal/control/http"
	"github.com/bizzlechizzle/au-archive/internal/ingest/finalizer"
	"github.com/bizzlechizzle/au-archive/internal/ingest/orchestrator"
	applog "github.com/bizzlechizzle/au-archive/internal/log"
	"github.com/bizzlechizzle/au-archive/internal/persistence/sqlite"
	"github.com/bizzlechizzle/au-archive/internal/queue"
	"github.com/bizzlechizzle/au-archive/internal/store"
	"github.com/bizzlechizzle/au-archive/internal/telemetry"
	"github.com/bizzlechizzle/au-archive/internal/worker"
)

var version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	applog.Configure(applog.Config{Level: "info", Service: "archived", Version: version})
	logger := applog.WithComponent("archived")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	applog.Configure(applog.Config{Level: cfg.LogLevel, Service: "archived", Version: version})
	logger = applog.WithComponent("archived")
	logger.Info().Str("archive_root", cfg.ArchiveRoot).Str("database_path", cfg.DatabasePath).Msg("archived: starting")

	if problems, err := sqlite.VerifyIntegrity(cfg.DatabasePath, sqlite.IntegrityQuick); err != nil {
		logger.Warn().Err(err).Msg("archived: index integrity check could not run")
	} else if len(problems) > 0 {
		logger.Fatal().Strs("problems", problems).Msg("archived: index database failed integrity check")
	}

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open index")
	}
	defer st.Close()

	paths := pathsvc.New(cfg.ArchiveRoot)
	q := queue.New(st.DB)
	fin := finalizer.New(st, q, paths)
	orch := orchestrator.New(st, paths, fin)
	if cfg.ScannerETAWindow > 0 {
		orch.ETAWindow = cfg.ScannerETAWindow
	}

	telemetryProvider, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.TelemetryEndpoint != "",
		ServiceName:    "archived",
		ServiceVersion: version,
		Endpoint:       cfg.TelemetryEndpoint,
		SamplingRate:   1.0,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to start telemetry provider")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetryProvider.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("telemetry shutdown failed")
		}
	}()

	handlers := &worker.Handlers{
		Store:     st,
		Paths:     paths,
		Finalizer: fin,
		Metadata:  metadata.ExifTool{},
		Probe:     probe.FFProbe{},
		Thumb:     thumb.FFmpeg{},
		Proxy:     proxycol.FFmpeg{},
		Geocode:   buildGeocodeService(cfg, logger),
	}

	runtime := &worker.Runtime{
		Queue: q,
		Pools: handlers.Pools(cfg.WorkerPools),
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		runtime.Run(ctx)
		logger.Info().Msg("archived: worker runtime stopped")
	}()

	if cfg.ControlBindAddr != "" {
		server := &controlhttp.Server{
			Orchestrator: orch,
			Store:        st,
			Config: controlhttp.Config{
				RateLimit: controlhttp.RateLimitConfig{RequestLimit: 60, WindowSize: time.Minute},
			},
		}
		httpServer := &http.Server{
			Addr:              cfg.ControlBindAddr,
			Handler:           server.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Info().Str("addr", cfg.ControlBindAddr).Msg("archived: control http listening")
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("archived: control http server failed")
			}
		}()

		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Warn().Err(err).Msg("archived: control http graceful shutdown failed")
			}
		}()
	} else {
		logger.Warn().Msg("archived: control_bind_addr not set, operator HTTP surface disabled")
	}

	<-ctx.Done()
	logger.Info().Msg("archived: shutdown signal received, waiting for worker pools to drain")
	wg.Wait()
	logger.Info().Msg("archived: stopped")
}

// buildGeocodeService wires the reverse-geocoding collaborator with a
// Redis-backed cache when redis_addr is configured. No
// concrete reverse-geocoding provider ships with the engine, so the
// Fetcher here always reports no match; operators swap in a provider
// by forking this constructor.
func buildGeocodeService(cfg *config.Config, logger zerolog.Logger) *geocode.Service {
	var client *redis.Client
	if cfg.RedisAddr != "" {
		client = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		logger.Info().Str("redis_addr", cfg.RedisAddr).Msg("archived: geocode cache using redis")
	}
	return geocode.NewService(geocode.Disabled, client, cfg.GeocodeRatePerSec, cfg.GeocodeCacheTTL)
}
