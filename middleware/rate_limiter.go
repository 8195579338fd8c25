package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiterConfig configures rate limiter behavior.
type RateLimiterConfig struct {
	// Rate is the number of requests allowed per second.
	// Default: 10
	Rate float64

	// Burst is the maximum burst size.
	// Default: 10
	Burst int
}

// DefaultRateLimiterConfig returns a rate limiter config with sensible defaults.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		Rate:  10.0,
		Burst: 10,
	}
}

// RateLimiterMetrics tracks rate limiter metrics.
type RateLimiterMetrics struct {
	mu               sync.RWMutex
	TotalRequests    int64
	AllowedRequests  int64
	RejectedRequests int64
	TotalWaitTime    time.Duration
}

// Snapshot returns the counters under the read lock.
func (m *RateLimiterMetrics) Snapshot() (total, allowed, rejected int64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.TotalRequests, m.AllowedRequests, m.RejectedRequests
}

// RateLimitError is returned when the rate limit is exceeded.
type RateLimitError struct {
	Name string
	Rate float64
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s (%.2f/s)", e.Name, e.Rate)
}

// RateLimiter is a token bucket guarding calls to a metered dependency such
// as an LLM API with a request quota.
type RateLimiter struct {
	name    string
	config  RateLimiterConfig
	limiter *rate.Limiter
	metrics *RateLimiterMetrics
}

// NewRateLimiter creates a rate limiter for the named dependency.
func NewRateLimiter(name string, config RateLimiterConfig) *RateLimiter {
	if config.Rate <= 0 {
		config.Rate = 10.0
	}
	if config.Burst < 1 {
		config.Burst = 10
	}

	return &RateLimiter{
		name:    name,
		config:  config,
		limiter: rate.NewLimiter(rate.Limit(config.Rate), config.Burst),
		metrics: &RateLimiterMetrics{},
	}
}

// Metrics returns the rate limiter metrics.
func (r *RateLimiter) Metrics() *RateLimiterMetrics {
	return r.metrics
}

// Acquire takes one token. With wait=false it fails immediately when the
// bucket is empty; with wait=true it blocks until a token frees up or ctx ends.
func (r *RateLimiter) Acquire(ctx context.Context, wait bool) error {
	r.metrics.mu.Lock()
	r.metrics.TotalRequests++
	r.metrics.mu.Unlock()

	if !wait {
		if !r.limiter.Allow() {
			r.reject()
			return &RateLimitError{Name: r.name, Rate: r.config.Rate}
		}
		r.allow(0)
		return nil
	}

	start := time.Now()
	if err := r.limiter.Wait(ctx); err != nil {
		r.reject()
		return fmt.Errorf("waiting for %s rate limit: %w", r.name, err)
	}
	r.allow(time.Since(start))
	return nil
}

func (r *RateLimiter) allow(waited time.Duration) {
	r.metrics.mu.Lock()
	r.metrics.AllowedRequests++
	r.metrics.TotalWaitTime += waited
	r.metrics.mu.Unlock()
}

func (r *RateLimiter) reject() {
	r.metrics.mu.Lock()
	r.metrics.RejectedRequests++
	r.metrics.mu.Unlock()
}
