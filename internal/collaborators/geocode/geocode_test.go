package geocode_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/bizzlechizzle/au-archive/internal/collaborators/geocode"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestService_Reverse_CachesResult(t *testing.T) {
	client := newTestRedis(t)
	var calls atomic.Int64
	fetch := func(ctx context.Context, lat, lng float64) (*geocode.Address, error) {
		calls.Add(1)
		return &geocode.Address{Formatted: "Somewhere", City: "Somewhere", State: "ST", Country: "US"}, nil
	}

	svc := geocode.NewService(fetch, client, 100, time.Hour)

	addr1, err := svc.Reverse(context.Background(), 40.1, -74.2)
	require.NoError(t, err)
	require.Equal(t, "Somewhere", addr1.Formatted)

	addr2, err := svc.Reverse(context.Background(), 40.1, -74.2)
	require.NoError(t, err)
	require.Equal(t, "Somewhere", addr2.Formatted)

	require.Equal(t, int64(1), calls.Load())
}

func TestService_Reverse_NilFetcherResultNotCachedAsMiss(t *testing.T) {
	client := newTestRedis(t)
	svc := geocode.NewService(geocode.Disabled, client, 100, time.Hour)

	addr, err := svc.Reverse(context.Background(), 0, 0)
	require.NoError(t, err)
	require.Nil(t, addr)
}

func TestService_Reverse_NoRedisStillFetches(t *testing.T) {
	var calls atomic.Int64
	fetch := func(ctx context.Context, lat, lng float64) (*geocode.Address, error) {
		calls.Add(1)
		return &geocode.Address{Formatted: "X"}, nil
	}
	svc := geocode.NewService(fetch, nil, 100, time.Hour)

	_, err := svc.Reverse(context.Background(), 1, 1)
	require.NoError(t, err)
	_, err = svc.Reverse(context.Background(), 1, 1)
	require.NoError(t, err)
	require.Equal(t, int64(2), calls.Load())
}
