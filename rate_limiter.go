package gandewa

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Limiter admits or rejects calls against a rate limit. Allow checks and
// consumes capacity atomically; when it denies, retryAfter tells the
// caller when capacity becomes available again.
type Limiter interface {
	Allow() (ok bool, retryAfter time.Duration)
	Limit() int
	Remaining() int
}

// RateLimiterConfig selects and sizes a limiter.
type RateLimiterConfig struct {
	// MaxRequests admitted per Window.
	MaxRequests int
	// Window is the measurement period.
	Window time.Duration
	// SlidingWindow selects per-request timestamp tracking instead of
	// fixed window boundaries.
	SlidingWindow bool
}

// NewLimiter builds a fixed or sliding window limiter from config.
func NewLimiter(config RateLimiterConfig) Limiter {
	if config.MaxRequests <= 0 {
		config.MaxRequests = 100
	}
	if config.Window <= 0 {
		config.Window = time.Second
	}
	if config.SlidingWindow {
		return NewSlidingWindowLimiter(config.MaxRequests, config.Window)
	}
	return NewFixedWindowLimiter(config.MaxRequests, config.Window)
}

// TokenBucketLimiter is a lock-free token bucket. Tokens refill
// continuously at maxTokens per refill interval; state updates go
// through compare-and-swap loops so concurrent callers never lose
// updates.
type TokenBucketLimiter struct {
	maxTokens  int64
	refillRate time.Duration

	tokens     int64
	lastRefill int64
}

// NewTokenBucketLimiter creates a bucket holding maxTokens that regains
// one token every refillRate.
func NewTokenBucketLimiter(maxTokens int, refillRate time.Duration) *TokenBucketLimiter {
	if maxTokens <= 0 {
		maxTokens = 1
	}
	if refillRate <= 0 {
		refillRate = time.Second
	}
	return &TokenBucketLimiter{
		maxTokens:  int64(maxTokens),
		refillRate: refillRate,
		tokens:     int64(maxTokens),
		lastRefill: time.Now().UnixNano(),
	}
}

// Allow consumes one token if available.
func (rl *TokenBucketLimiter) Allow() (bool, time.Duration) {
	rl.refillTokens()
	if rl.consumeToken() {
		return true, 0
	}
	return false, rl.refillRate
}

// Limit returns the bucket capacity.
func (rl *TokenBucketLimiter) Limit() int { return int(rl.maxTokens) }

// Remaining returns the currently available tokens.
func (rl *TokenBucketLimiter) Remaining() int { return int(atomic.LoadInt64(&rl.tokens)) }

func (rl *TokenBucketLimiter) refillTokens() {
	now := time.Now().UnixNano()

	for {
		currentTokens := atomic.LoadInt64(&rl.tokens)
		lastRefill := atomic.LoadInt64(&rl.lastRefill)

		elapsed := now - lastRefill
		tokensToAdd := elapsed / int64(rl.refillRate)
		if tokensToAdd == 0 {
			break
		}

		newTokens := currentTokens + tokensToAdd
		if newTokens > rl.maxTokens {
			newTokens = rl.maxTokens
		}

		newLastRefill := lastRefill + tokensToAdd*int64(rl.refillRate)

		if !atomic.CompareAndSwapInt64(&rl.lastRefill, lastRefill, newLastRefill) {
			continue
		}

		atomic.StoreInt64(&rl.tokens, newTokens)
		break
	}
}

func (rl *TokenBucketLimiter) consumeToken() bool {
	for {
		currentTokens := atomic.LoadInt64(&rl.tokens)
		if currentTokens <= 0 {
			return false
		}

		if atomic.CompareAndSwapInt64(&rl.tokens, currentTokens, currentTokens-1) {
			return true
		}
	}
}

// FixedWindowLimiter counts calls per window and resets the count at
// window boundaries.
type FixedWindowLimiter struct {
	mu          sync.Mutex
	maxRequests int
	window      time.Duration
	count       int
	windowStart time.Time
}

// NewFixedWindowLimiter admits maxRequests per window.
func NewFixedWindowLimiter(maxRequests int, window time.Duration) *FixedWindowLimiter {
	return &FixedWindowLimiter{
		maxRequests: maxRequests,
		window:      window,
		windowStart: time.Now(),
	}
}

// Allow admits the call unless the current window is exhausted.
func (rl *FixedWindowLimiter) Allow() (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if elapsed := now.Sub(rl.windowStart); elapsed >= rl.window {
		rl.windowStart = now
		rl.count = 0
	}

	if rl.count >= rl.maxRequests {
		return false, rl.windowStart.Add(rl.window).Sub(now)
	}

	rl.count++
	return true, 0
}

// Limit returns the per-window request budget.
func (rl *FixedWindowLimiter) Limit() int { return rl.maxRequests }

// Remaining returns the unused budget in the current window.
func (rl *FixedWindowLimiter) Remaining() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if time.Since(rl.windowStart) >= rl.window {
		return rl.maxRequests
	}
	remaining := rl.maxRequests - rl.count
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// SlidingWindowLimiter keeps a timestamp per admitted call, pruned to
// the window, so bursts at window edges cannot double the admitted rate.
type SlidingWindowLimiter struct {
	mu          sync.Mutex
	maxRequests int
	window      time.Duration
	timestamps  []time.Time
}

// NewSlidingWindowLimiter admits maxRequests within any window-sized span.
func NewSlidingWindowLimiter(maxRequests int, window time.Duration) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{
		maxRequests: maxRequests,
		window:      window,
		timestamps:  make([]time.Time, 0, maxRequests),
	}
}

// Allow admits the call unless maxRequests already fall inside the window.
func (rl *SlidingWindowLimiter) Allow() (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	rl.prune(now)

	if len(rl.timestamps) >= rl.maxRequests {
		oldest := rl.timestamps[0]
		return false, oldest.Add(rl.window).Sub(now)
	}

	rl.timestamps = append(rl.timestamps, now)
	return true, 0
}

// Limit returns the per-window request budget.
func (rl *SlidingWindowLimiter) Limit() int { return rl.maxRequests }

// Remaining returns how many more calls the current window admits.
func (rl *SlidingWindowLimiter) Remaining() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.prune(time.Now())
	remaining := rl.maxRequests - len(rl.timestamps)
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// prune drops timestamps older than the window. Caller holds the lock.
func (rl *SlidingWindowLimiter) prune(now time.Time) {
	cutoff := now.Add(-rl.window)
	idx := 0
	for idx < len(rl.timestamps) && !rl.timestamps[idx].After(cutoff) {
		idx++
	}
	if idx > 0 {
		rl.timestamps = append(rl.timestamps[:0], rl.timestamps[idx:]...)
	}
}

// WithRateLimit guards op with limiter, rejecting with
// *RateLimitExceededError when the limit is hit.
func WithRateLimit(limiter Limiter, op Operation) Operation {
	return func(ctx context.Context) (any, error) {
		ok, retryAfter := limiter.Allow()
		if !ok {
			return nil, &RateLimitExceededError{
				RetryAfter: retryAfter,
				Limit:      limiter.Limit(),
				Remaining:  limiter.Remaining(),
			}
		}
		return op(ctx)
	}
}

// KeyFunc derives the rate limiter registry key for a path.
type KeyFunc func(path string) string

// RateLimiterRegistry holds per-key limiters with an optional fallback
// used for paths without a dedicated limiter.
type RateLimiterRegistry struct {
	mu       sync.RWMutex
	limiters map[string]Limiter
	keyFunc  KeyFunc
	fallback Limiter
}

// NewRateLimiterRegistry creates a registry with the given key function
// and fallback limiter.
func NewRateLimiterRegistry(keyFunc KeyFunc, fallback Limiter) *RateLimiterRegistry {
	return &RateLimiterRegistry{
		limiters: make(map[string]Limiter),
		keyFunc:  keyFunc,
		fallback: fallback,
	}
}

// RegisterLimiter adds a limiter for the given key.
func (r *RateLimiterRegistry) RegisterLimiter(key string, limiter Limiter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limiters[key] = limiter
}

// GetLimiter returns the limiter for the path plus the key it resolved
// to, falling back when no dedicated limiter exists.
func (r *RateLimiterRegistry) GetLimiter(path string) (Limiter, string) {
	if r.keyFunc == nil {
		return r.fallback, "default"
	}

	key := r.keyFunc(path)

	r.mu.RLock()
	limiter, exists := r.limiters[key]
	r.mu.RUnlock()

	if exists {
		return limiter, key
	}
	if r.fallback != nil {
		return r.fallback, "default"
	}
	return nil, key
}

// Allow checks the call against the appropriate limiter. Paths without
// any limiter are always admitted.
func (r *RateLimiterRegistry) Allow(path string) (bool, time.Duration, string) {
	limiter, key := r.GetLimiter(path)
	if limiter == nil {
		return true, 0, key
	}
	ok, retryAfter := limiter.Allow()
	return ok, retryAfter, key
}
