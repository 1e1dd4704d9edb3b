// Package gandewa turns a bare request/response transport into a
// resilient typed RPC client:
//
//   - Retries with exponential or linear backoff + jitter
//   - Circuit breaker (open / half-open / closed states) per endpoint group
//   - Rate limiting (token bucket, fixed and sliding windows)
//   - Bulkhead concurrency isolation with bounded queueing
//   - Cancellable timeouts and speculative hedged requests
//   - Request de-duplication (merges concurrent identical in-flight calls)
//   - Reconnecting subscriptions with resume and jittered backoff
//   - Batch execution (parallel / sequential / fail-fast / collect)
//   - Interceptor chain for cross-cutting concerns (auth, logging, timing)
//   - Prometheus metrics and lightweight structured debug logging
//
// Every failure crossing the public boundary is one of five RpcError
// variants (call, timeout, cancelled, validation, network) or one of the
// structured operator errors; all carry stable codes safe to branch on.
//
// Typical usage:
//
//	client := gandewa.New(transport,
//	    gandewa.WithRetry(gandewa.RetryConfig{MaxAttempts: 3}),
//	    gandewa.WithCircuitBreaker(gandewa.CircuitBreakerConfig{}),
//	    gandewa.WithRateLimiter(gandewa.RateLimiterConfig{MaxRequests: 100, Window: time.Second}),
//	    gandewa.WithDeduplication(),
//	)
//	user, err := gandewa.CallTyped[User](ctx, client, "user.get", GetUserInput{ID: 42})
//
// The library avoids opinionated logging: provide a Logger (e.g. via
// WithSimpleLogger) + enable debug flags selectively (WithDebug /
// WithDebugConfig) for insight without noise.
package gandewa
