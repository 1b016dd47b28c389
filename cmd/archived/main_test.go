package main

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/bizzlechizzle/au-archive/internal/config"
)

func TestBuildGeocodeService_NoRedisAddr_StillBuildsService(t *testing.T) {
	cfg := &config.Config{GeocodeRatePerSec: 1, GeocodeCacheTTL: time.Hour}
	svc := buildGeocodeService(cfg, zerolog.Nop())
	require.NotNil(t, svc)
}

func TestBuildGeocodeService_WithRedisAddr_StillBuildsService(t *testing.T) {
	cfg := &config.Config{RedisAddr: "localhost:6379", GeocodeRatePerSec: 1, GeocodeCacheTTL: time.Hour}
	svc := buildGeocodeService(cfg, zerolog.Nop())
	require.NotNil(t, svc)
}
