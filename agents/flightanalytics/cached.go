package flightanalytics

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/scttfrdmn/travelrouter/inquiry"
)

const (
	defaultNumCounters = 1e5
	defaultMaxCost     = 1 << 20
	defaultBufferItems = 64
	defaultTTL         = 10 * time.Minute
)

// CacheConfig configures a CachedProvider.
type CacheConfig struct {
	NumCounters int64
	MaxCost     int64
	BufferItems int64
	TTL         time.Duration
}

// CachedProvider caches analytics answers in ristretto. Historical data does
// not change between seeds, so answers are cached per fully resolved query.
// Errors are never cached.
type CachedProvider struct {
	next   inquiry.FlightAnalyticsProvider
	cache  *ristretto.Cache
	ttl    time.Duration
	hits   atomic.Int64
	misses atomic.Int64
}

// NewCachedProvider wraps next.
func NewCachedProvider(next inquiry.FlightAnalyticsProvider, cfg CacheConfig) (*CachedProvider, error) {
	if cfg.NumCounters <= 0 {
		cfg.NumCounters = defaultNumCounters
	}
	if cfg.MaxCost <= 0 {
		cfg.MaxCost = defaultMaxCost
	}
	if cfg.BufferItems <= 0 {
		cfg.BufferItems = defaultBufferItems
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
	})
	if err != nil {
		return nil, fmt.Errorf("creating analytics cache: %w", err)
	}

	return &CachedProvider{next: next, cache: cache, ttl: cfg.TTL}, nil
}

func cacheKey(q inquiry.AnalyticsQuery) string {
	modifier := q.Modifier
	switch modifier {
	case inquiry.ModifierDayOfWeek, inquiry.ModifierOnTime, inquiry.ModifierDelayTrend:
	default:
		modifier = inquiry.ModifierCheapest
	}
	return fmt.Sprintf("%s|%s|%s|%d", q.Origin, q.Destination, modifier, q.Year)
}

// Query serves q from cache or the wrapped provider.
func (c *CachedProvider) Query(ctx context.Context, q inquiry.AnalyticsQuery) (inquiry.AnalyticsAnswer, error) {
	key := cacheKey(q)
	if v, ok := c.cache.Get(key); ok {
		if answer, ok := v.(inquiry.AnalyticsAnswer); ok {
			c.hits.Add(1)
			return answer, nil
		}
	}
	c.misses.Add(1)

	answer, err := c.next.Query(ctx, q)
	if err != nil {
		return inquiry.AnalyticsAnswer{}, err
	}
	c.cache.SetWithTTL(key, answer, cost(answer), c.ttl)
	return answer, nil
}

func cost(a inquiry.AnalyticsAnswer) int64 {
	return int64(1 + len(a.Fares) + len(a.Days))
}

// Wait blocks until pending cache writes are applied.
func (c *CachedProvider) Wait() {
	c.cache.Wait()
}

// Stats returns cache hits and misses.
func (c *CachedProvider) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Close releases the cache.
func (c *CachedProvider) Close() {
	c.cache.Close()
}
