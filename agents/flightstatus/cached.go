package flightstatus

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/scttfrdmn/travelrouter/inquiry"
)

// CachedProvider keeps recent successful lookups in an expiring LRU. Errors,
// including not-found, are never cached.
type CachedProvider struct {
	next   inquiry.FlightStatusProvider
	cache  *expirable.LRU[string, inquiry.StatusRecord]
	hits   atomic.Int64
	misses atomic.Int64
}

// NewCachedProvider wraps next with a cache of size entries that expire after ttl.
func NewCachedProvider(next inquiry.FlightStatusProvider, size int, ttl time.Duration) *CachedProvider {
	if size <= 0 {
		size = 256
	}
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &CachedProvider{
		next:  next,
		cache: expirable.NewLRU[string, inquiry.StatusRecord](size, nil, ttl),
	}
}

// Lookup serves flightNumber from cache or the wrapped provider.
func (c *CachedProvider) Lookup(ctx context.Context, flightNumber string) (inquiry.StatusRecord, error) {
	key := inquiry.NormalizeFlightNumber(flightNumber)
	if rec, ok := c.cache.Get(key); ok {
		c.hits.Add(1)
		return rec, nil
	}
	c.misses.Add(1)

	rec, err := c.next.Lookup(ctx, key)
	if err != nil {
		return inquiry.StatusRecord{}, err
	}
	c.cache.Add(key, rec)
	return rec, nil
}

// Stats returns cache hits and misses.
func (c *CachedProvider) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Len returns the number of cached flights.
func (c *CachedProvider) Len() int {
	return c.cache.Len()
}
