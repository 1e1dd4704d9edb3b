package gandewa

import (
	"fmt"
	"time"
)

// Option represents a configuration option
type Option func(*Client)

// WithDefaultTimeout sets the default per-call deadline. Zero disables
// deadlines unless a call overrides it.
func WithDefaultTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.defaultTimeout = d
	}
}

// WithInterceptors appends interceptors to the pipeline in registration
// order; the first registered observes the outermost timing.
func WithInterceptors(interceptors ...Interceptor) Option {
	return func(c *Client) {
		c.interceptors = append(c.interceptors, interceptors...)
	}
}

// WithRetry enables client-level retry with the given policy. The retry
// runs innermost in the pipeline so each attempt re-traverses only the
// resilience operators and the transport.
func WithRetry(config RetryConfig) Option {
	return func(c *Client) {
		cfg := config
		c.retry = &cfg
	}
}

// WithCircuitBreaker enables per-path circuit breaking.
func WithCircuitBreaker(config CircuitBreakerConfig) Option {
	return func(c *Client) {
		c.circuitBreakers = NewCircuitBreakerRegistry(config, nil)
	}
}

// WithCircuitBreakerRegistry installs a pre-built registry, for callers
// grouping several paths onto one breaker.
func WithCircuitBreakerRegistry(registry *CircuitBreakerRegistry) Option {
	return func(c *Client) {
		c.circuitBreakers = registry
	}
}

// WithRateLimiter enables rate limiting with one limiter shared by all
// paths.
func WithRateLimiter(config RateLimiterConfig) Option {
	return func(c *Client) {
		c.rateLimiters = NewRateLimiterRegistry(nil, NewLimiter(config))
	}
}

// WithRateLimiterRegistry installs a pre-built registry with per-path
// limiters.
func WithRateLimiterRegistry(registry *RateLimiterRegistry) Option {
	return func(c *Client) {
		c.rateLimiters = registry
	}
}

// WithBulkhead bounds concurrent in-flight calls.
func WithBulkhead(config BulkheadConfig) Option {
	return func(c *Client) {
		c.bulkhead = NewBulkhead(config)
	}
}

// WithDefaultHedging enables speculative duplicates for every call.
// Hedging replaces the plain timeout wrapper; TotalTimeout takes the
// deadline role.
func WithDefaultHedging(config HedgingConfig) Option {
	return func(c *Client) {
		cfg := config
		c.hedging = &cfg
	}
}

// WithDeduplication coalesces concurrent identical calls into one
// transport execution.
func WithDeduplication() Option {
	return func(c *Client) {
		c.interceptors = append(c.interceptors, newDedupInterceptor(func(path string) {
			if c.metrics != nil {
				c.metrics.RecordDeduplicationHit(path)
			}
		}))
	}
}

// WithAuth injects a bearer credential into every call's meta.
func WithAuth(tokenFn func() string) Option {
	return func(c *Client) {
		c.interceptors = append(c.interceptors, AuthInterceptor(tokenFn))
	}
}

// WithSubscriptionPaths registers the set of paths treated as streaming.
// When non-empty, Subscribe rejects any other path.
func WithSubscriptionPaths(paths ...string) Option {
	return func(c *Client) {
		if c.subscriptionPaths == nil {
			c.subscriptionPaths = make(map[string]struct{}, len(paths))
		}
		for _, p := range paths {
			c.subscriptionPaths[p] = struct{}{}
		}
	}
}

// WithReconnectConfig sets the default reconnect policy for new
// subscriptions.
func WithReconnectConfig(config ReconnectConfig) Option {
	return func(c *Client) {
		c.reconnect = config
	}
}

// WithSubscriptionQueueSize bounds each subscription's event buffer.
// Zero keeps buffers unbounded.
func WithSubscriptionQueueSize(n int) Option {
	return func(c *Client) {
		c.queueSize = n
	}
}

// WithMetrics enables Prometheus metrics collection on the default
// registerer.
func WithMetrics() Option {
	return func(c *Client) {
		c.metrics = NewMetricsCollector()
	}
}

// WithMetricsCollector sets a custom metrics collector.
func WithMetricsCollector(collector *MetricsCollector) Option {
	return func(c *Client) {
		c.metrics = collector
	}
}

// WithLogger sets a custom logger for debug output.
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithSimpleLogger enables debug logging with a plain console logger.
func WithSimpleLogger() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
		c.logger = NewSimpleLogger()
	}
}

// WithDebug enables debug logging with default configuration.
func WithDebug() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
	}
}

// WithDebugConfig sets custom debug configuration.
func WithDebugConfig(config *DebugConfig) Option {
	return func(c *Client) {
		c.debug = config
	}
}

// WithRequestIDGenerator sets a custom function for generating request IDs.
func WithRequestIDGenerator(gen func() string) Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.RequestIDGen = gen
	}
}

// ValidateConfiguration validates the client configuration and returns
// an error aggregating every finding, or nil.
func (c *Client) ValidateConfiguration() error {
	var findings []string

	findings = append(findings, c.validateTransportConfig()...)
	findings = append(findings, c.validateTimeoutConfig()...)
	findings = append(findings, c.validateRetryConfig()...)
	findings = append(findings, c.validateReconnectConfig()...)
	findings = append(findings, c.validateQueueConfig()...)

	if len(findings) > 0 {
		issues := make([]ValidationIssue, len(findings))
		for i, f := range findings {
			issues[i] = ValidationIssue{Code: "invalid_config", Message: f}
		}
		return &ValidationError{Path: "", Issues: issues}
	}
	return nil
}

func (c *Client) validateTransportConfig() []string {
	if c.transport == nil {
		return []string{"transport must not be nil"}
	}
	return nil
}

func (c *Client) validateTimeoutConfig() []string {
	if c.defaultTimeout < 0 {
		return []string{"defaultTimeout must be non-negative"}
	}
	return nil
}

func (c *Client) validateRetryConfig() []string {
	if c.retry == nil {
		return nil
	}
	var findings []string
	if c.retry.MaxAttempts < 0 {
		findings = append(findings, "retry maxAttempts must be non-negative")
	}
	if c.retry.InitialBackoff < 0 {
		findings = append(findings, "retry initialBackoff must be non-negative")
	}
	if c.retry.MaxBackoff > 0 && c.retry.InitialBackoff > c.retry.MaxBackoff {
		findings = append(findings, "retry maxBackoff must be greater than or equal to initialBackoff")
	}
	if c.retry.Jitter < 0 || c.retry.Jitter > 1 {
		findings = append(findings, "retry jitter must be between 0 and 1")
	}
	return findings
}

func (c *Client) validateReconnectConfig() []string {
	var findings []string
	if c.reconnect.MaxReconnects < 0 {
		findings = append(findings, "maxReconnects must be non-negative")
	}
	if c.reconnect.ReconnectDelay < 0 {
		findings = append(findings, "reconnectDelay must be non-negative")
	}
	return findings
}

func (c *Client) validateQueueConfig() []string {
	if c.queueSize < 0 {
		return []string{fmt.Sprintf("subscription queue size must be non-negative, got %d", c.queueSize)}
	}
	return nil
}
