// Package config loads the engine's YAML configuration file and layers
// environment-variable overrides on top of it: a tagged struct, a
// loader that tolerates a missing file, and validation of the merged
// result.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bizzlechizzle/au-archive/internal/log"
)

// EnvPrefix is prepended to every environment variable this package
// recognizes, e.g. ARCHIVE_ROOT, ARCHIVE_DB_PATH.
const EnvPrefix = "ARCHIVE_"

// WorkerPoolConfig sizes one named queue's worker pool
type WorkerPoolConfig struct {
	Queue      string `yaml:"queue"`
	Concurrency int    `yaml:"concurrency"`
}

// FileConfig is the on-disk shape of the YAML configuration file.
type FileConfig struct {
	ArchiveRoot       string             `yaml:"archive_root"`
	DatabasePath      string             `yaml:"database_path"`
	DefaultStrategy   string             `yaml:"default_copy_strategy"`
	StaleLockFloor    string             `yaml:"stale_lock_timeout_floor"`
	ScannerETAWindow  int                `yaml:"scanner_eta_smoothing_window"`
	GeocodeCacheTTL   string             `yaml:"geocode_cache_ttl"`
	GeocodeRatePerSec float64            `yaml:"geocode_rate_limit_per_sec"`
	TelemetryEndpoint string             `yaml:"telemetry_endpoint"`
	ControlBindAddr   string             `yaml:"control_bind_addr"`
	RedisAddr         string             `yaml:"redis_addr"`
	LogLevel          string             `yaml:"log_level"`
	WorkerPools       []WorkerPoolConfig `yaml:"worker_pools"`
}

// Config is the fully resolved, validated configuration used at
// runtime: durations parsed, defaults applied.
type Config struct {
	ArchiveRoot       string
	DatabasePath      string
	DefaultStrategy   string
	StaleLockFloor    time.Duration
	ScannerETAWindow  int // sessions averaged into the scanner's historical throughput estimate; see orchestrator.Orchestrator.ETAWindow
	GeocodeCacheTTL   time.Duration
	GeocodeRatePerSec float64
	TelemetryEndpoint string
	ControlBindAddr   string
	RedisAddr         string
	LogLevel          string
	WorkerPools       map[string]int
}

// defaults let the engine run against a bare archive root with no
// YAML file at all.
func defaults() FileConfig {
	return FileConfig{
		ArchiveRoot:       "./archive",
		DatabasePath:      "./archive/au-archive.db",
		DefaultStrategy:   "",
		StaleLockFloor:    "5m",
		ScannerETAWindow:  20,
		GeocodeCacheTTL:   "720h",
		GeocodeRatePerSec: 1,
		ControlBindAddr:   "",
		LogLevel:          "info",
		WorkerPools: []WorkerPoolConfig{
			{Queue: "exiftool", Concurrency: 2},
			{Queue: "ffprobe", Concurrency: 2},
			{Queue: "thumbnail", Concurrency: 4},
			{Queue: "video-proxy", Concurrency: 1},
			{Queue: "live-photo", Concurrency: 2},
			{Queue: "bagit", Concurrency: 1},
			{Queue: "location-stats", Concurrency: 2},
			{Queue: "geocode", Concurrency: 1},
		},
	}
}

// Load reads path (if it exists; a missing file falls back to
// defaults()), applies ARCHIVE_*-prefixed environment overrides, and
// validates the merged result.
func Load(path string) (*Config, error) {
	fc := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			var fromFile FileConfig
			if err := yaml.Unmarshal(data, &fromFile); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
			mergeFile(&fc, fromFile)
		case os.IsNotExist(err):
			// No file: defaults only, as documented.
		default:
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	applyEnvOverrides(&fc)

	return resolve(fc)
}

// mergeFile overlays any non-zero field from override onto base.
func mergeFile(base *FileConfig, override FileConfig) {
	if override.ArchiveRoot != "" {
		base.ArchiveRoot = override.ArchiveRoot
	}
	if override.DatabasePath != "" {
		base.DatabasePath = override.DatabasePath
	}
	if override.DefaultStrategy != "" {
		base.DefaultStrategy = override.DefaultStrategy
	}
	if override.StaleLockFloor != "" {
		base.StaleLockFloor = override.StaleLockFloor
	}
	if override.ScannerETAWindow != 0 {
		base.ScannerETAWindow = override.ScannerETAWindow
	}
	if override.GeocodeCacheTTL != "" {
		base.GeocodeCacheTTL = override.GeocodeCacheTTL
	}
	if override.GeocodeRatePerSec != 0 {
		base.GeocodeRatePerSec = override.GeocodeRatePerSec
	}
	if override.TelemetryEndpoint != "" {
		base.TelemetryEndpoint = override.TelemetryEndpoint
	}
	if override.ControlBindAddr != "" {
		base.ControlBindAddr = override.ControlBindAddr
	}
	if override.RedisAddr != "" {
		base.RedisAddr = override.RedisAddr
	}
	if override.LogLevel != "" {
		base.LogLevel = override.LogLevel
	}
	if len(override.WorkerPools) > 0 {
		base.WorkerPools = override.WorkerPools
	}
}

// envOverrides maps an ARCHIVE_ suffix to the field it sets. secret-
// shaped keys (none currently defined for this engine) would be logged
// at debug level with their value redacted; everything else logs the
// applied value.
func applyEnvOverrides(fc *FileConfig) {
	logger := log.WithComponent("config")
	set := func(suffix string, apply func(string)) {
		key := EnvPrefix + suffix
		if v, ok := os.LookupEnv(key); ok && v != "" {
			apply(v)
			logger.Debug().Str("key", key).Str("value", v).Msg("config: environment override applied")
		}
	}

	set("ROOT", func(v string) { fc.ArchiveRoot = v })
	set("DB_PATH", func(v string) { fc.DatabasePath = v })
	set("DEFAULT_STRATEGY", func(v string) { fc.DefaultStrategy = v })
	set("STALE_LOCK_FLOOR", func(v string) { fc.StaleLockFloor = v })
	set("GEOCODE_CACHE_TTL", func(v string) { fc.GeocodeCacheTTL = v })
	set("TELEMETRY_ENDPOINT", func(v string) { fc.TelemetryEndpoint = v })
	set("CONTROL_BIND_ADDR", func(v string) { fc.ControlBindAddr = v })
	set("REDIS_ADDR", func(v string) { fc.RedisAddr = v })
	set("LOG_LEVEL", func(v string) { fc.LogLevel = v })
	set("SCANNER_ETA_WINDOW", func(v string) {
		if n, err := strconv.Atoi(v); err == nil {
			fc.ScannerETAWindow = n
		}
	})
	set("GEOCODE_RATE_PER_SEC", func(v string) {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			fc.GeocodeRatePerSec = f
		}
	})
}

func resolve(fc FileConfig) (*Config, error) {
	staleLockFloor, err := time.ParseDuration(fc.StaleLockFloor)
	if err != nil {
		return nil, fmt.Errorf("config: invalid stale_lock_timeout_floor %q: %w", fc.StaleLockFloor, err)
	}
	geocodeCacheTTL, err := time.ParseDuration(fc.GeocodeCacheTTL)
	if err != nil {
		return nil, fmt.Errorf("config: invalid geocode_cache_ttl %q: %w", fc.GeocodeCacheTTL, err)
	}
	if fc.DefaultStrategy != "" {
		switch fc.DefaultStrategy {
		case "hardlink", "reflink", "copy":
		default:
			return nil, fmt.Errorf("config: invalid default_copy_strategy %q", fc.DefaultStrategy)
		}
	}

	pools := make(map[string]int, len(fc.WorkerPools))
	for _, p := range fc.WorkerPools {
		if strings.TrimSpace(p.Queue) == "" {
			return nil, fmt.Errorf("config: worker pool entry missing queue name")
		}
		if p.Concurrency <= 0 {
			return nil, fmt.Errorf("config: worker pool %q must have concurrency > 0", p.Queue)
		}
		pools[p.Queue] = p.Concurrency
	}

	return &Config{
		ArchiveRoot:       fc.ArchiveRoot,
		DatabasePath:      fc.DatabasePath,
		DefaultStrategy:   fc.DefaultStrategy,
		StaleLockFloor:    staleLockFloor,
		ScannerETAWindow:  fc.ScannerETAWindow,
		GeocodeCacheTTL:   geocodeCacheTTL,
		GeocodeRatePerSec: fc.GeocodeRatePerSec,
		TelemetryEndpoint: fc.TelemetryEndpoint,
		ControlBindAddr:   fc.ControlBindAddr,
		RedisAddr:         fc.RedisAddr,
		LogLevel:          fc.LogLevel,
		WorkerPools:       pools,
	}, nil
}
