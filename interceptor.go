package gandewa

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"time"

	internalbackoff "github.com/ambiyansyah-risyal/gandewa/internal/backoff"
	"github.com/ambiyansyah-risyal/gandewa/internal/singleflight"
)

// InterceptorContext carries one call attempt through the middleware
// chain. It is created once per attempt and discarded after completion.
// Meta is the only field interceptors may mutate; it is shared
// read/write across the chain for that attempt.
type InterceptorContext struct {
	Path          string
	Input         any
	ProcedureType ProcedureType
	Meta          map[string]any

	ctx context.Context
}

// Context returns the cancellation context for this attempt.
func (ic *InterceptorContext) Context() context.Context {
	if ic.ctx == nil {
		return context.Background()
	}
	return ic.ctx
}

// Handler invokes the remainder of the chain, ending at the terminal
// transport call.
type Handler func(ic *InterceptorContext) (any, error)

// Interceptor wraps a single call or subscription attempt. It may
// inspect or mutate ic.Meta before calling next, short-circuit by not
// calling next, or wrap the result or error of the rest of the chain.
type Interceptor func(ic *InterceptorContext, next Handler) (any, error)

// chainInterceptors composes interceptors right-to-left so the
// first-registered interceptor observes the outermost timing. Exactly
// one terminal invocation occurs unless an interceptor deliberately
// avoids calling next.
func chainInterceptors(interceptors []Interceptor, terminal Handler) Handler {
	current := terminal

	for i := len(interceptors) - 1; i >= 0; i-- {
		interceptor := interceptors[i]
		next := current
		current = func(ic *InterceptorContext) (any, error) {
			return interceptor(ic, next)
		}
	}

	return current
}

// LoggingInterceptor logs every attempt before and after execution,
// including its duration and outcome.
func LoggingInterceptor(logger Logger) Interceptor {
	return func(ic *InterceptorContext, next Handler) (any, error) {
		start := time.Now()
		logger.Debug("call starting", "path", ic.Path, "type", string(ic.ProcedureType))

		result, err := next(ic)

		duration := time.Since(start)
		if err != nil {
			logger.Warn("call failed", "path", ic.Path, "duration", duration, "error", err.Error())
		} else {
			logger.Debug("call completed", "path", ic.Path, "duration", duration)
		}

		return result, err
	}
}

// TimingCallback receives the path, total duration and outcome of every
// attempt passing through a TimingInterceptor.
type TimingCallback func(path string, duration time.Duration, err error)

// TimingInterceptor invokes fn after every attempt with its duration.
func TimingInterceptor(fn TimingCallback) Interceptor {
	return func(ic *InterceptorContext, next Handler) (any, error) {
		start := time.Now()
		result, err := next(ic)
		fn(ic.Path, time.Since(start), err)
		return result, err
	}
}

// MetaAuthorization is the meta key the auth interceptor writes and
// transports read to attach credentials.
const MetaAuthorization = "authorization"

// AuthInterceptor injects a bearer credential into the attempt meta
// before the transport call. tokenFn is evaluated per attempt so
// rotating credentials are picked up without rebuilding the client.
func AuthInterceptor(tokenFn func() string) Interceptor {
	return func(ic *InterceptorContext, next Handler) (any, error) {
		if token := tokenFn(); token != "" {
			ic.Meta[MetaAuthorization] = "Bearer " + token
		}
		return next(ic)
	}
}

// BackoffStrategy selects the delay growth curve for retries.
type BackoffStrategy int

const (
	// ExponentialBackoff doubles the delay each attempt (jittered).
	ExponentialBackoff BackoffStrategy = iota
	// LinearBackoff grows the delay linearly with the attempt (jittered).
	LinearBackoff
)

// RetryConfig controls the retry interceptor.
type RetryConfig struct {
	// MaxAttempts bounds total attempts including the first. Zero means 3.
	MaxAttempts int
	// InitialBackoff is the base delay before the first retry. Zero means 100ms.
	InitialBackoff time.Duration
	// MaxBackoff caps the computed delay. Zero means 10s.
	MaxBackoff time.Duration
	// Multiplier is the exponential growth factor. Zero means 2.0.
	Multiplier float64
	// Jitter in [0,1] adds up to that fraction of the delay. Zero means 0.1.
	Jitter float64
	// Strategy selects linear or exponential growth.
	Strategy BackoffStrategy
	// IsRetryable overrides the package-level predicate when set.
	IsRetryable func(error) bool
	// OnRetry, when set, observes each retry before its backoff wait.
	OnRetry func(path string, attempt int, err error)
}

func (cfg RetryConfig) withDefaults() RetryConfig {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 100 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 10 * time.Second
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = 2.0
	}
	if cfg.Jitter <= 0 {
		cfg.Jitter = 0.1
	}
	if cfg.IsRetryable == nil {
		cfg.IsRetryable = IsRetryable
	}
	return cfg
}

// RetryInterceptor retries failed attempts with jittered backoff. Only
// errors satisfying the retryability predicate are attempted again, and
// a cancelled context always stops the loop between attempts.
func RetryInterceptor(cfg RetryConfig) Interceptor {
	cfg = cfg.withDefaults()

	var calc *internalbackoff.Calculator
	switch cfg.Strategy {
	case LinearBackoff:
		calc = internalbackoff.GetLinearJitterCalculator()
	default:
		calc = internalbackoff.GetExponentialJitterCalculator()
	}

	return func(ic *InterceptorContext, next Handler) (any, error) {
		var result any
		var err error

		for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
			if attempt > 0 {
				if cfg.OnRetry != nil {
					cfg.OnRetry(ic.Path, attempt, err)
				}
				delay := calc.Calculate(attempt-1, cfg.InitialBackoff, cfg.MaxBackoff, cfg.Multiplier, cfg.Jitter)
				if sleepErr := sleepContext(ic.Context(), delay); sleepErr != nil {
					return nil, sleepErr
				}
			}

			result, err = next(ic)
			if err == nil || !cfg.IsRetryable(err) {
				return result, err
			}
		}

		return result, err
	}
}

// NewDedupInterceptor coalesces concurrent identical calls: attempts
// that share a path+input key while one is in flight share that one
// execution and its outcome.
func NewDedupInterceptor() Interceptor {
	return newDedupInterceptor(nil)
}

func newDedupInterceptor(onHit func(path string)) Interceptor {
	group := singleflight.New()

	return func(ic *InterceptorContext, next Handler) (any, error) {
		key := dedupKey(ic.Path, ic.Input)
		result, err, shared := group.Do(ic.Context(), key, func() (any, error) {
			return next(ic)
		})
		if shared && onHit != nil {
			onHit(ic.Path)
		}
		return result, err
	}
}

// dedupKey hashes path plus the canonical JSON encoding of the input.
// Inputs that fail to marshal fall back to their formatted value, which
// keeps the function total at the cost of weaker coalescing.
func dedupKey(path string, input any) string {
	h := fnv.New64a()
	h.Write([]byte(path))
	h.Write([]byte{0})

	if input != nil {
		if encoded, err := json.Marshal(input); err == nil {
			h.Write(encoded)
		} else {
			fmt.Fprintf(h, "%v", input)
		}
	}

	return fmt.Sprintf("%x", h.Sum64())
}

// sleepContext waits for d or returns early with ctx.Err() when the
// context is cancelled first.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
