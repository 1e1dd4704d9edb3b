package gandewa

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Client is a resilient typed RPC client layering retries, circuit
// breaking, rate limiting, bulkheading, timeouts, hedging, reconnecting
// subscriptions and batch execution around a pluggable Transport. It is
// safe for concurrent use.
type Client struct {
	transport Transport

	interceptors   []Interceptor
	defaultTimeout time.Duration

	subscriptionPaths map[string]struct{}
	reconnect         ReconnectConfig
	queueSize         int

	circuitBreakers *CircuitBreakerRegistry
	rateLimiters    *RateLimiterRegistry
	bulkhead        *Bulkhead
	hedging         *HedgingConfig
	retry           *RetryConfig

	metrics *MetricsCollector
	logger  Logger
	debug   *DebugConfig

	validationError error
}

// New constructs a Client around transport using the provided functional
// options. A best effort validation is performed; call IsValid /
// ValidationError for errors.
func New(transport Transport, options ...Option) *Client {
	client := &Client{
		transport:      transport,
		defaultTimeout: 30 * time.Second,
		reconnect:      ReconnectConfig{AutoReconnect: true},
		debug:          DefaultDebugConfig(),
	}

	for _, option := range options {
		option(client)
	}

	if err := client.ValidateConfiguration(); err != nil {
		client.validationError = err
	}

	return client
}

// IsValid reports whether configuration validation passed at construction.
func (c *Client) IsValid() bool {
	return c.validationError == nil
}

// ValidationError returns the configuration validation error, if any.
func (c *Client) ValidationError() error {
	return c.validationError
}

// callSettings is the per-call view of the client configuration after
// CallOptions are applied.
type callSettings struct {
	timeout               time.Duration
	hedging               *HedgingConfig
	disableCircuitBreaker bool
	disableRateLimit      bool
	disableBulkhead       bool
}

// CallOption adjusts a single call.
type CallOption func(*callSettings)

// WithCallTimeout overrides the client default timeout for one call.
// Zero disables the deadline entirely.
func WithCallTimeout(d time.Duration) CallOption {
	return func(s *callSettings) { s.timeout = d }
}

// WithCallHedging enables speculative duplicates for one call.
func WithCallHedging(config HedgingConfig) CallOption {
	return func(s *callSettings) { s.hedging = &config }
}

// WithoutCircuitBreaker skips the circuit breaker for one call.
func WithoutCircuitBreaker() CallOption {
	return func(s *callSettings) { s.disableCircuitBreaker = true }
}

// WithoutRateLimit skips the rate limiter for one call.
func WithoutRateLimit() CallOption {
	return func(s *callSettings) { s.disableRateLimit = true }
}

// WithoutBulkhead skips the bulkhead for one call.
func WithoutBulkhead() CallOption {
	return func(s *callSettings) { s.disableBulkhead = true }
}

// Call executes one procedure: the path is validated, the interceptor
// chain runs with the transport call as its terminal step, and whichever
// resilience operators are configured wrap that terminal step in
// bulkhead, rate limiter, circuit breaker, timeout order. All failures
// surface as either an RpcError variant or a structured operator error.
func (c *Client) Call(ctx context.Context, path string, input any, opts ...CallOption) (any, error) {
	start := time.Now()

	var requestID string
	if c.debug != nil && c.debug.Enabled && c.debug.RequestIDGen != nil {
		requestID = c.debug.RequestIDGen()
	}

	if err := ValidatePath(path); err != nil {
		if c.metrics != nil {
			c.metrics.RecordError(path, CodeValidationError)
		}
		return nil, err
	}

	settings := callSettings{timeout: c.defaultTimeout, hedging: c.hedging}
	for _, opt := range opts {
		opt(&settings)
	}

	if c.debug != nil && c.debug.Enabled && c.debug.LogCalls && c.logger != nil {
		c.logger.Debug("starting call", "requestID", requestID, "path", path, "timeout", settings.timeout)
	}
	if c.metrics != nil {
		c.metrics.RecordCallStart(path)
	}

	ic := &InterceptorContext{
		Path:          path,
		Input:         input,
		ProcedureType: ProcedureCall,
		Meta:          map[string]any{},
		ctx:           ctx,
	}

	terminal := c.terminalHandler(path, settings, requestID)
	handler := chainInterceptors(c.pipeline(), terminal)

	result, err := handler(ic)

	duration := time.Since(start)
	if c.metrics != nil {
		c.metrics.RecordCallEnd(path)
		code := "ok"
		if err != nil {
			code = errorLabel(err)
			c.metrics.RecordError(path, code)
		}
		c.metrics.RecordCall(path, ProcedureCall, code, duration)
	}

	if c.debug != nil && c.debug.Enabled && c.debug.LogCalls && c.logger != nil {
		if err != nil {
			c.logger.Warn("call failed", "requestID", requestID, "path", path, "duration", duration, "error", err.Error())
		} else {
			c.logger.Debug("call completed", "requestID", requestID, "path", path, "duration", duration)
		}
	}

	return result, err
}

// pipeline returns the interceptor chain for a call: registered
// interceptors first (outermost), then the client-level retry so every
// retry attempt re-traverses only the resilience operators and
// transport.
func (c *Client) pipeline() []Interceptor {
	if c.retry == nil {
		return c.interceptors
	}

	cfg := *c.retry
	if cfg.OnRetry == nil {
		cfg.OnRetry = func(path string, attempt int, err error) {
			if c.metrics != nil {
				c.metrics.RecordRetry(path, attempt)
			}
			if c.debug != nil && c.debug.Enabled && c.debug.LogRetries && c.logger != nil {
				c.logger.Debug("retrying call", "path", path, "attempt", attempt, "error", err.Error())
			}
		}
	}

	pipeline := make([]Interceptor, 0, len(c.interceptors)+1)
	pipeline = append(pipeline, c.interceptors...)
	pipeline = append(pipeline, RetryInterceptor(cfg))
	return pipeline
}

// terminalHandler builds the chain's terminal step: the transport call
// wrapped with the selected resilience operators.
func (c *Client) terminalHandler(path string, settings callSettings, requestID string) Handler {
	return func(ic *InterceptorContext) (any, error) {
		operation := Operation(func(ctx context.Context) (any, error) {
			raw, err := c.transport.Call(ContextWithMeta(ctx, ic.Meta), ic.Path, ic.Input)
			if err != nil {
				return nil, c.classify(err, ic.Path, settings.timeout)
			}
			return raw, nil
		})

		if settings.hedging != nil {
			hcfg := *settings.hedging
			if hcfg.OnHedge == nil && c.metrics != nil {
				hcfg.OnHedge = func() { c.metrics.RecordHedge(ic.Path) }
			}
			operation = WithHedging(ic.Path, hcfg, operation)
		} else if settings.timeout > 0 {
			operation = WithTimeoutAndCleanup(ic.Path, settings.timeout, nil, operation)
		}

		if c.circuitBreakers != nil && !settings.disableCircuitBreaker {
			cb := c.circuitBreakers.Get(ic.Path)
			inner := operation
			operation = func(ctx context.Context) (any, error) {
				result, err := cb.Execute(ctx, inner)
				if c.metrics != nil {
					c.metrics.RecordCircuitBreakerState(ic.Path, cb.State())
				}
				if err != nil {
					var open *CircuitOpenError
					if errors.As(err, &open) {
						if c.debug != nil && c.debug.Enabled && c.debug.LogCircuit && c.logger != nil {
							c.logger.Warn("circuit breaker open", "requestID", requestID, "path", ic.Path, "remaining", open.Remaining)
						}
					}
				}
				return result, err
			}
		}

		if c.rateLimiters != nil && !settings.disableRateLimit {
			inner := operation
			operation = func(ctx context.Context) (any, error) {
				allowed, retryAfter, key := c.rateLimiters.Allow(ic.Path)
				limiter, _ := c.rateLimiters.GetLimiter(ic.Path)
				if c.metrics != nil && limiter != nil {
					c.metrics.RecordRateLimiterRemaining(key, limiter.Remaining())
				}
				if !allowed {
					if c.debug != nil && c.debug.Enabled && c.debug.LogRateLimit && c.logger != nil {
						c.logger.Warn("rate limit exceeded", "requestID", requestID, "path", ic.Path, "retryAfter", retryAfter)
					}
					limit, remaining := 0, 0
					if limiter != nil {
						limit = limiter.Limit()
						remaining = limiter.Remaining()
					}
					return nil, &RateLimitExceededError{RetryAfter: retryAfter, Limit: limit, Remaining: remaining}
				}
				return inner(ctx)
			}
		}

		if c.bulkhead != nil && !settings.disableBulkhead {
			inner := operation
			operation = func(ctx context.Context) (any, error) {
				result, err := c.bulkhead.Execute(ctx, inner)
				if c.metrics != nil {
					c.metrics.RecordBulkheadInFlight(ic.Path, c.bulkhead.InFlight())
				}
				return result, err
			}
		}

		return operation(ic.Context())
	}
}

// classify runs the transport's classifier override when present, the
// package default otherwise. Operator errors and already-classified
// values pass through untouched.
func (c *Client) classify(err error, path string, timeout time.Duration) error {
	if err == nil {
		return nil
	}
	if isOperatorError(err) {
		return err
	}
	if classifier, ok := c.transport.(ErrorClassifier); ok {
		return classifier.ClassifyError(err, path, timeout)
	}
	return Classify(err, path, timeout)
}

func isOperatorError(err error) bool {
	return errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrRateLimited) || errors.Is(err, ErrBulkheadFull)
}

// errorLabel derives the metrics code label for an error.
func errorLabel(err error) string {
	var rpcErr RpcError
	if errors.As(err, &rpcErr) {
		return ErrorCode(rpcErr)
	}
	switch {
	case errors.Is(err, ErrCircuitOpen):
		return "CIRCUIT_OPEN"
	case errors.Is(err, ErrRateLimited):
		return "RATE_LIMITED"
	case errors.Is(err, ErrBulkheadFull):
		return "BULKHEAD_FULL"
	default:
		return CodeUnknown
	}
}

// SubscribeOption adjusts a single subscription.
type SubscribeOption func(*subscribeSettings)

type subscribeSettings struct {
	reconnect ReconnectConfig
	queueSize int
}

// WithReconnect overrides the client reconnect policy for one
// subscription.
func WithReconnect(config ReconnectConfig) SubscribeOption {
	return func(s *subscribeSettings) { s.reconnect = config }
}

// WithQueueSize bounds the subscription's event buffer; zero keeps it
// unbounded.
func WithQueueSize(n int) SubscribeOption {
	return func(s *subscribeSettings) { s.queueSize = n }
}

// Subscribe validates the path and opens a reconnecting subscription
// against the transport's streaming capability. The returned
// Subscription is a lazy single-pass pull sequence; terminate it with
// Unsubscribe or by cancelling ctx.
func (c *Client) Subscribe(ctx context.Context, path string, input any, opts ...SubscribeOption) (*Subscription, error) {
	if err := ValidatePath(path); err != nil {
		if c.metrics != nil {
			c.metrics.RecordError(path, CodeValidationError)
		}
		return nil, err
	}

	if len(c.subscriptionPaths) > 0 {
		if _, ok := c.subscriptionPaths[path]; !ok {
			return nil, &ValidationError{
				Path: path,
				Issues: []ValidationIssue{{
					Code:    "not_subscribable",
					Message: fmt.Sprintf("path %q is not registered as a subscription path", path),
				}},
			}
		}
	}

	settings := subscribeSettings{reconnect: c.reconnect, queueSize: c.queueSize}
	for _, opt := range opts {
		opt(&settings)
	}

	sub := newSubscription(c.transport, path, input, settings.reconnect, settings.queueSize)
	sub.metrics = c.metrics
	sub.logger = c.logger
	sub.debug = c.debug
	sub.start(ctx)

	return sub, nil
}

type metaContextKey struct{}

// ContextWithMeta attaches interceptor meta to the context handed to the
// transport, which is how injected credentials and other meta reach the
// wire.
func ContextWithMeta(ctx context.Context, meta any) context.Context {
	if meta == nil {
		return ctx
	}
	return context.WithValue(ctx, metaContextKey{}, meta)
}

// MetaFromContext retrieves the interceptor meta attached by
// ContextWithMeta, or nil.
func MetaFromContext(ctx context.Context) map[string]any {
	meta, _ := ctx.Value(metaContextKey{}).(map[string]any)
	return meta
}
