package gandewa

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Operation is an arbitrary unit of work the resilience operators wrap.
// Every operator produces another Operation, so they compose in any
// caller-defined order.
type Operation func(ctx context.Context) (any, error)

// CircuitState represents the state of the circuit breaker
type CircuitState int64

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

// String returns the metrics label for the state.
func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	// FailureThreshold opens the circuit once reached within FailureWindow.
	FailureThreshold int
	// FailureWindow bounds how long failures accumulate before the count resets.
	FailureWindow time.Duration
	// ResetTimeout is how long the circuit stays open before probing.
	ResetTimeout time.Duration
	// SuccessThreshold closes a half-open circuit after this many consecutive successes.
	SuccessThreshold int
	// IsFailure decides which errors count toward the threshold. Defaults to IsRetryable.
	IsFailure func(error) bool
}

// CircuitBreaker stops calling a failing dependency for a cooldown
// period after repeated failures. State transitions use atomic
// compare-and-swap so concurrent callers never observe torn updates.
type CircuitBreaker struct {
	config CircuitBreakerConfig

	state           int64
	failures        int64
	successes       int64
	lastFailure     int64
	lastStateChange int64
	windowStart     int64
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 5
	}
	if config.FailureWindow == 0 {
		config.FailureWindow = 60 * time.Second
	}
	if config.ResetTimeout == 0 {
		config.ResetTimeout = 60 * time.Second
	}
	if config.SuccessThreshold == 0 {
		config.SuccessThreshold = 2
	}
	if config.IsFailure == nil {
		config.IsFailure = IsRetryable
	}

	now := time.Now().UnixNano()
	return &CircuitBreaker{
		config:          config,
		state:           int64(StateClosed),
		lastStateChange: now,
		windowStart:     now,
	}
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	return CircuitState(atomic.LoadInt64(&cb.state))
}

// Allow checks if the next call may proceed. When denied it also
// returns the time remaining until the circuit probes again.
func (cb *CircuitBreaker) Allow() (bool, time.Duration) {
	now := time.Now().UnixNano()

	switch cb.State() {
	case StateClosed:
		return true, 0
	case StateOpen:
		lastChange := atomic.LoadInt64(&cb.lastStateChange)
		elapsed := now - lastChange
		if elapsed >= int64(cb.config.ResetTimeout) {
			// Try to transition to half-open; only one caller wins.
			if atomic.CompareAndSwapInt64(&cb.state, int64(StateOpen), int64(StateHalfOpen)) {
				atomic.StoreInt64(&cb.successes, 0)
				atomic.StoreInt64(&cb.lastStateChange, now)
			}
			return true, 0
		}
		return false, cb.config.ResetTimeout - time.Duration(elapsed)
	case StateHalfOpen:
		return true, 0
	default:
		return false, cb.config.ResetTimeout
	}
}

// RecordFailure records a qualifying failure.
func (cb *CircuitBreaker) RecordFailure() {
	now := time.Now().UnixNano()
	atomic.StoreInt64(&cb.lastFailure, now)

	switch cb.State() {
	case StateClosed:
		// Expire the failure window before counting.
		windowStart := atomic.LoadInt64(&cb.windowStart)
		if cb.config.FailureWindow > 0 && now-windowStart >= int64(cb.config.FailureWindow) {
			if atomic.CompareAndSwapInt64(&cb.windowStart, windowStart, now) {
				atomic.StoreInt64(&cb.failures, 0)
			}
		}

		failures := atomic.AddInt64(&cb.failures, 1)
		if failures >= int64(cb.config.FailureThreshold) {
			if atomic.CompareAndSwapInt64(&cb.state, int64(StateClosed), int64(StateOpen)) {
				atomic.StoreInt64(&cb.lastStateChange, now)
			}
		}
	case StateOpen:
		// Already open, nothing to count.
	case StateHalfOpen:
		// Any failure while probing reopens immediately.
		if atomic.CompareAndSwapInt64(&cb.state, int64(StateHalfOpen), int64(StateOpen)) {
			atomic.StoreInt64(&cb.lastStateChange, now)
			atomic.StoreInt64(&cb.successes, 0)
		}
	}
}

// RecordSuccess records a successful call.
func (cb *CircuitBreaker) RecordSuccess() {
	switch cb.State() {
	case StateClosed, StateOpen:
		// No transition from success outside half-open.
	case StateHalfOpen:
		successes := atomic.AddInt64(&cb.successes, 1)
		if successes >= int64(cb.config.SuccessThreshold) {
			if atomic.CompareAndSwapInt64(&cb.state, int64(StateHalfOpen), int64(StateClosed)) {
				atomic.StoreInt64(&cb.lastStateChange, time.Now().UnixNano())
				atomic.StoreInt64(&cb.failures, 0)
				atomic.StoreInt64(&cb.successes, 0)
				atomic.StoreInt64(&cb.windowStart, time.Now().UnixNano())
			}
		}
	}
}

// Execute runs op under the breaker: rejected immediately with
// *CircuitOpenError while open, otherwise executed with its outcome
// recorded. Errors the IsFailure predicate rejects count as neither
// success nor failure.
func (cb *CircuitBreaker) Execute(ctx context.Context, op Operation) (any, error) {
	allowed, remaining := cb.Allow()
	if !allowed {
		return nil, &CircuitOpenError{Remaining: remaining}
	}

	result, err := op(ctx)
	if err != nil {
		if cb.config.IsFailure(err) {
			cb.RecordFailure()
		}
		return nil, err
	}

	cb.RecordSuccess()
	return result, nil
}

// Wrap returns an Operation guarded by the breaker.
func (cb *CircuitBreaker) Wrap(op Operation) Operation {
	return func(ctx context.Context) (any, error) {
		return cb.Execute(ctx, op)
	}
}

// CircuitBreakerRegistry keeps one breaker per logical endpoint group so
// one failing procedure cannot open the circuit for unrelated ones. The
// registry is owned by the client instance, never process-global.
type CircuitBreakerRegistry struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
	config   CircuitBreakerConfig
	keyFunc  func(path string) string
}

// NewCircuitBreakerRegistry creates a registry minting breakers from
// config. keyFunc groups paths into breaker keys; nil uses the path
// itself.
func NewCircuitBreakerRegistry(config CircuitBreakerConfig, keyFunc func(path string) string) *CircuitBreakerRegistry {
	if keyFunc == nil {
		keyFunc = func(path string) string { return path }
	}
	return &CircuitBreakerRegistry{
		breakers: make(map[string]*CircuitBreaker),
		config:   config,
		keyFunc:  keyFunc,
	}
}

// Get returns the breaker for path, creating it on first use.
func (r *CircuitBreakerRegistry) Get(path string) *CircuitBreaker {
	key := r.keyFunc(path)

	r.mu.RLock()
	cb, ok := r.breakers[key]
	r.mu.RUnlock()
	if ok {
		return cb
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok := r.breakers[key]; ok {
		return cb
	}
	cb = NewCircuitBreaker(r.config)
	r.breakers[key] = cb
	return cb
}
