// Package geocode implements the reverse-geocoding collaborator:
// resolving a GPS coordinate into a human-readable address, cached
// and rate-limited so a burst of imports never floods the upstream
// provider.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/bizzlechizzle/au-archive/internal/log"
)

// Address is the geocode.reverse contract's return shape A nil
// *Address (no error) means the provider had no match for the
// coordinate.
type Address struct {
	Formatted string
	City      string
	State     string
	Country   string
}

// Fetcher calls the actual upstream reverse-geocoding provider. The
// engine ships no concrete Fetcher; callers inject one, or use
// Disabled to skip geocoding entirely.
type Fetcher func(ctx context.Context, lat, lng float64) (*Address, error)

// Disabled is a Fetcher that always reports no match, for deployments
// with no geocoding provider configured.
func Disabled(ctx context.Context, lat, lng float64) (*Address, error) {
	return nil, nil
}

// Service wraps a Fetcher with a Redis cache and a token-bucket rate
// limiter.
type Service struct {
	fetch   Fetcher
	redis   *redis.Client
	limiter *rate.Limiter
	ttl     time.Duration
}

// NewService builds a Service. redisClient may be nil, in which case
// results are not cached (every call reaches fetch, still subject to
// the rate limiter).
func NewService(fetch Fetcher, redisClient *redis.Client, ratePerSec float64, ttl time.Duration) *Service {
	if ratePerSec <= 0 {
		ratePerSec = 1
	}
	return &Service{
		fetch:   fetch,
		redis:   redisClient,
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), 1),
		ttl:     ttl,
	}
}

// cacheKey buckets coordinates to 4 decimal places (~11m) so nearby
// points within the same archive session share a cache entry.
func cacheKey(lat, lng float64) string {
	return fmt.Sprintf("geocode:%.4f,%.4f", lat, lng)
}

// Reverse resolves lat/lng to an address, consulting the cache first,
// then waiting on the rate limiter before calling fetch.
func (s *Service) Reverse(ctx context.Context, lat, lng float64) (*Address, error) {
	key := cacheKey(lat, lng)

	if s.redis != nil {
		if addr, ok := s.getCached(ctx, key); ok {
			return addr, nil
		}
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("geocode: rate limiter: %w", err)
	}

	addr, err := s.fetch(ctx, lat, lng)
	if err != nil {
		return nil, fmt.Errorf("geocode: fetch %f,%f: %w", lat, lng, err)
	}

	if s.redis != nil {
		s.setCached(ctx, key, addr)
	}
	return addr, nil
}

func (s *Service) getCached(ctx context.Context, key string) (*Address, bool) {
	logger := log.WithComponent("geocode")
	getCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	val, err := s.redis.Get(getCtx, key).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		logger.Warn().Err(err).Str("key", key).Msg("geocode: redis get failed")
		return nil, false
	}

	var addr *Address
	if err := json.Unmarshal(val, &addr); err != nil {
		logger.Warn().Err(err).Str("key", key).Msg("geocode: cache value corrupt")
		return nil, false
	}
	return addr, true
}

func (s *Service) setCached(ctx context.Context, key string, addr *Address) {
	setCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	data, err := json.Marshal(addr)
	if err != nil {
		return
	}
	if err := s.redis.Set(setCtx, key, data, s.ttl).Err(); err != nil {
		logger := log.WithComponent("geocode")
		logger.Warn().Err(err).Str("key", key).Msg("geocode: redis set failed")
	}
}
