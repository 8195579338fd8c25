// Package middleware provides reusable guards for blocking calls: timeouts,
// circuit breaking, retries and rate limiting.
package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Operation is a blocking call guarded by middleware.
type Operation[T any] func(ctx context.Context) (T, error)

// TimeoutConfig configures timeout behavior.
type TimeoutConfig struct {
	// Timeout is the call timeout duration.
	// Default: 30 seconds
	Timeout time.Duration
}

// DefaultTimeoutConfig returns a timeout config with sensible defaults.
func DefaultTimeoutConfig() TimeoutConfig {
	return TimeoutConfig{
		Timeout: 30 * time.Second,
	}
}

// TimeoutMetrics tracks timeout middleware metrics.
type TimeoutMetrics struct {
	mu                 sync.RWMutex
	TotalRequests      int64
	SuccessfulRequests int64
	TimedOutRequests   int64
	FailedRequests     int64 // Failed for reasons other than timeout
	TotalDuration      time.Duration
	MinDuration        *time.Duration
	MaxDuration        *time.Duration
}

// NewTimeoutMetrics creates a new metrics instance.
func NewTimeoutMetrics() *TimeoutMetrics {
	return &TimeoutMetrics{}
}

// RecordSuccess records a successful request.
func (m *TimeoutMetrics) RecordSuccess(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TotalRequests++
	m.SuccessfulRequests++
	m.updateDurationStats(duration)
}

// RecordTimeout records a timed-out request.
func (m *TimeoutMetrics) RecordTimeout(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TotalRequests++
	m.TimedOutRequests++
	m.updateDurationStats(duration)
}

// RecordFailure records a failed request (non-timeout error).
func (m *TimeoutMetrics) RecordFailure(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TotalRequests++
	m.FailedRequests++
	m.updateDurationStats(duration)
}

// updateDurationStats updates duration statistics (must be called with lock held).
func (m *TimeoutMetrics) updateDurationStats(duration time.Duration) {
	m.TotalDuration += duration

	if m.MinDuration == nil || duration < *m.MinDuration {
		m.MinDuration = &duration
	}
	if m.MaxDuration == nil || duration > *m.MaxDuration {
		m.MaxDuration = &duration
	}
}

// Snapshot returns the counters under the read lock.
func (m *TimeoutMetrics) Snapshot() (total, succeeded, timedOut, failed int64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.TotalRequests, m.SuccessfulRequests, m.TimedOutRequests, m.FailedRequests
}

// TimeoutError is returned when a call exceeds the configured timeout.
type TimeoutError struct {
	Operation string
	Timeout   time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %v", e.Operation, e.Timeout)
}

// Timeout bounds calls to a named dependency.
type Timeout struct {
	name    string
	config  TimeoutConfig
	metrics *TimeoutMetrics
}

// NewTimeout creates a timeout guard for the named dependency.
func NewTimeout(name string, config TimeoutConfig) *Timeout {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &Timeout{
		name:    name,
		config:  config,
		metrics: NewTimeoutMetrics(),
	}
}

// Name returns the guarded dependency's name.
func (t *Timeout) Name() string {
	return t.name
}

// Duration returns the configured bound.
func (t *Timeout) Duration() time.Duration {
	return t.config.Timeout
}

// Metrics returns the timeout metrics.
func (t *Timeout) Metrics() *TimeoutMetrics {
	return t.metrics
}

// WithTimeout runs op under t's deadline.
//
// op runs in its own goroutine so a call that ignores its context still cannot
// hold the caller past the deadline; the buffered channel lets that goroutine
// finish without leaking. Cancellation of ctx by the caller is returned as
// ctx.Err(), not as a TimeoutError.
func WithTimeout[T any](ctx context.Context, t *Timeout, op Operation[T]) (T, error) {
	var zero T
	startTime := time.Now()

	timeoutCtx, cancel := context.WithTimeout(ctx, t.config.Timeout)
	defer cancel()

	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)

	go func() {
		val, err := op(timeoutCtx)
		done <- result{val, err}
	}()

	select {
	case res := <-done:
		duration := time.Since(startTime)
		if res.err != nil {
			if ctx.Err() != nil {
				t.metrics.RecordFailure(duration)
				return zero, ctx.Err()
			}
			if timeoutCtx.Err() == context.DeadlineExceeded {
				t.metrics.RecordTimeout(duration)
				return zero, &TimeoutError{Operation: t.name, Timeout: t.config.Timeout}
			}
			t.metrics.RecordFailure(duration)
			return zero, res.err
		}
		t.metrics.RecordSuccess(duration)
		return res.val, nil

	case <-timeoutCtx.Done():
		duration := time.Since(startTime)
		if ctx.Err() != nil {
			t.metrics.RecordFailure(duration)
			return zero, ctx.Err()
		}
		t.metrics.RecordTimeout(duration)
		return zero, &TimeoutError{Operation: t.name, Timeout: t.config.Timeout}
	}
}
