package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// CircuitState represents the state of the circuit breaker.
type CircuitState int

const (
	// StateClosed means the circuit is closed and requests pass through normally.
	StateClosed CircuitState = iota
	// StateOpen means the circuit is open and requests fail fast.
	StateOpen
	// StateHalfOpen means the circuit is testing if the service has recovered.
	StateHalfOpen
)

// String returns the string representation of the circuit state.
func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures circuit breaker behavior.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before opening the circuit.
	// Default: 5
	FailureThreshold int

	// RecoveryTimeout is the duration before attempting recovery from open state.
	// Default: 60s
	RecoveryTimeout time.Duration

	// SuccessThreshold is the number of successful calls in half-open state to close the circuit.
	// Default: 2
	SuccessThreshold int

	// IsFailure decides whether an error counts against the circuit. Business
	// outcomes such as "flight not found" should return false.
	// If nil, every error counts.
	IsFailure func(error) bool
}

// DefaultCircuitBreakerConfig returns a circuit breaker config with sensible defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		RecoveryTimeout:  60 * time.Second,
		SuccessThreshold: 2,
	}
}

// CircuitBreakerMetrics tracks circuit breaker metrics.
type CircuitBreakerMetrics struct {
	mu                 sync.RWMutex
	TotalRequests      int64
	SuccessfulRequests int64
	FailedRequests     int64
	RejectedRequests   int64 // Rejected due to open circuit
	StateChanges       map[string]int64
	LastStateChange    *time.Time
	CurrentState       CircuitState
}

// NewCircuitBreakerMetrics creates a new metrics instance.
func NewCircuitBreakerMetrics() *CircuitBreakerMetrics {
	return &CircuitBreakerMetrics{
		StateChanges: make(map[string]int64),
		CurrentState: StateClosed,
	}
}

// Rejected returns the number of fail-fast rejections.
func (m *CircuitBreakerMetrics) Rejected() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RejectedRequests
}

// CircuitBreakerError is returned when the circuit breaker is open.
type CircuitBreakerError struct {
	Name         string
	FailureCount int
}

// Error implements the error interface.
func (e *CircuitBreakerError) Error() string {
	return fmt.Sprintf("circuit breaker for %s is OPEN (failed %d times)", e.Name, e.FailureCount)
}

// CircuitBreaker fails fast when a dependency keeps failing.
//
// States:
//   - CLOSED: Normal operation, requests pass through
//   - OPEN: Failure threshold exceeded, fail fast without calling the dependency
//   - HALF_OPEN: Testing if the dependency has recovered
//
// State transitions:
//   - CLOSED -> OPEN: After FailureThreshold consecutive failures
//   - OPEN -> HALF_OPEN: After RecoveryTimeout
//   - HALF_OPEN -> CLOSED: After SuccessThreshold consecutive successes
//   - HALF_OPEN -> OPEN: On any failure
type CircuitBreaker struct {
	name            string
	config          CircuitBreakerConfig
	mu              sync.Mutex
	state           CircuitState
	failureCount    int
	successCount    int
	lastFailureTime *time.Time
	metrics         *CircuitBreakerMetrics
	now             func() time.Time
}

// NewCircuitBreaker creates a circuit breaker for the named dependency.
func NewCircuitBreaker(name string, config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.RecoveryTimeout <= 0 {
		config.RecoveryTimeout = 60 * time.Second
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 2
	}

	return &CircuitBreaker{
		name:    name,
		config:  config,
		state:   StateClosed,
		metrics: NewCircuitBreakerMetrics(),
		now:     time.Now,
	}
}

// State returns the current circuit breaker state.
func (c *CircuitBreaker) State() CircuitState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Metrics returns the circuit breaker metrics.
func (c *CircuitBreaker) Metrics() *CircuitBreakerMetrics {
	return c.metrics
}

// changeState transitions the circuit breaker to a new state.
func (c *CircuitBreaker) changeState(newState CircuitState) {
	if c.state == newState {
		return
	}
	oldState := c.state
	c.state = newState

	c.metrics.mu.Lock()
	c.metrics.CurrentState = newState
	now := c.now()
	c.metrics.LastStateChange = &now
	c.metrics.StateChanges[fmt.Sprintf("%s->%s", oldState, newState)]++
	c.metrics.mu.Unlock()
}

// shouldAttemptReset checks if the circuit should move from OPEN to HALF_OPEN.
func (c *CircuitBreaker) shouldAttemptReset() bool {
	if c.lastFailureTime == nil {
		return false
	}
	return c.now().Sub(*c.lastFailureTime) >= c.config.RecoveryTimeout
}

// allow admits or rejects a call (must be called with lock held).
func (c *CircuitBreaker) allow() error {
	c.metrics.mu.Lock()
	c.metrics.TotalRequests++
	c.metrics.mu.Unlock()

	if c.state != StateOpen {
		return nil
	}
	if c.shouldAttemptReset() {
		c.changeState(StateHalfOpen)
		c.successCount = 0
		return nil
	}

	c.metrics.mu.Lock()
	c.metrics.RejectedRequests++
	c.metrics.mu.Unlock()
	return &CircuitBreakerError{Name: c.name, FailureCount: c.failureCount}
}

// onSuccess handles a successful request (must be called with lock held).
func (c *CircuitBreaker) onSuccess() {
	c.metrics.mu.Lock()
	c.metrics.SuccessfulRequests++
	c.metrics.mu.Unlock()

	switch c.state {
	case StateHalfOpen:
		c.successCount++
		if c.successCount >= c.config.SuccessThreshold {
			c.changeState(StateClosed)
			c.failureCount = 0
			c.successCount = 0
		}
	case StateClosed:
		c.failureCount = 0
	}
}

// onFailure handles a failed request (must be called with lock held).
func (c *CircuitBreaker) onFailure() {
	c.metrics.mu.Lock()
	c.metrics.FailedRequests++
	c.metrics.mu.Unlock()

	c.failureCount++
	now := c.now()
	c.lastFailureTime = &now

	switch c.state {
	case StateHalfOpen:
		c.changeState(StateOpen)
		c.successCount = 0
	case StateClosed:
		if c.failureCount >= c.config.FailureThreshold {
			c.changeState(StateOpen)
		}
	}
}

// record classifies the outcome of a call.
func (c *CircuitBreaker) record(ctx context.Context, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case err == nil:
		c.onSuccess()
	case ctx.Err() == context.Canceled:
		// The caller gave up; that says nothing about the dependency.
	case c.config.IsFailure != nil && !c.config.IsFailure(err):
		c.onSuccess()
	default:
		c.onFailure()
	}
}

// WithBreaker runs op through the circuit breaker.
func WithBreaker[T any](ctx context.Context, c *CircuitBreaker, op Operation[T]) (T, error) {
	var zero T

	c.mu.Lock()
	if err := c.allow(); err != nil {
		c.mu.Unlock()
		return zero, err
	}
	c.mu.Unlock()

	val, err := op(ctx)
	c.record(ctx, err)
	if err != nil {
		return zero, err
	}
	return val, nil
}

// Execute runs fn through the circuit breaker.
func (c *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := WithBreaker(ctx, c, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
