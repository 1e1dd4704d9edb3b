package gandewa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"
)

// Sentinel errors for common failure scenarios
var (
	// ErrCircuitOpen is returned when the circuit breaker is in open state
	ErrCircuitOpen = errors.New("gandewa: circuit open")

	// ErrRateLimited is returned when a call is denied due to rate limiting
	ErrRateLimited = errors.New("gandewa: rate limited")

	// ErrBulkheadFull is returned when the bulkhead rejects a call
	ErrBulkheadFull = errors.New("gandewa: bulkhead full")

	// ErrEndOfStream is returned by Subscription.Next after a clean completion
	ErrEndOfStream = errors.New("gandewa: end of stream")
)

// Stable error codes surfaced on RpcError values. TIMEOUT, CANCELLED,
// VALIDATION_ERROR and NETWORK_ERROR are virtual: they are synthesized
// client-side and never originate from the transport.
const (
	CodeUnknown               = "UNKNOWN"
	CodeTimeout               = "TIMEOUT"
	CodeCancelled             = "CANCELLED"
	CodeValidationError       = "VALIDATION_ERROR"
	CodeNetworkError          = "NETWORK_ERROR"
	CodeMaxReconnectsExceeded = "MAX_RECONNECTS_EXCEEDED"

	// Issue code attached to path format violations.
	CodeInvalidFormat = "invalid_format"
)

// RpcError is the closed set of errors crossing the public boundary.
// Exactly five concrete types implement it: *CallError, *TimeoutError,
// *CancelledError, *ValidationError and *NetworkError. The unexported
// marker keeps the set closed so callers can switch exhaustively.
type RpcError interface {
	error
	rpcError()
}

// CallError is a transport-originated procedure failure carrying the
// server-assigned code.
type CallError struct {
	Code    string
	Message string
	Details any
	Cause   error
}

func (e *CallError) rpcError() {}

func (e *CallError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *CallError) Unwrap() error { return e.Cause }

// Is compares by code for errors.Is.
func (e *CallError) Is(target error) bool {
	if t, ok := target.(*CallError); ok {
		return e.Code == t.Code
	}
	return false
}

// TimeoutError reports that a call exceeded its configured deadline.
type TimeoutError struct {
	Path    string
	Timeout time.Duration
}

func (e *TimeoutError) rpcError() {}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: call to %q timed out after %v", CodeTimeout, e.Path, e.Timeout)
}

// CancelledError reports that a call was cancelled by its caller.
type CancelledError struct {
	Path   string
	Reason string
}

func (e *CancelledError) rpcError() {}

func (e *CancelledError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: call to %q cancelled: %s", CodeCancelled, e.Path, e.Reason)
	}
	return fmt.Sprintf("%s: call to %q cancelled", CodeCancelled, e.Path)
}

// ValidationIssue is a single validation finding with a stable code.
type ValidationIssue struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationError reports input or path validation failure. It is never
// retried.
type ValidationError struct {
	Path   string
	Issues []ValidationIssue
}

func (e *ValidationError) rpcError() {}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return fmt.Sprintf("%s: validation failed for %q", CodeValidationError, e.Path)
	}
	return fmt.Sprintf("%s: validation failed for %q: %s", CodeValidationError, e.Path, e.Issues[0].Message)
}

// NetworkError wraps a connectivity-level failure reaching the transport.
type NetworkError struct {
	Path string
	Err  error
}

func (e *NetworkError) rpcError() {}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network failure calling %q: %v", CodeNetworkError, e.Path, e.Err)
}

// Unwrap returns the original network error.
func (e *NetworkError) Unwrap() error { return e.Err }

// ErrorCode returns the stable code for any RpcError variant. The switch
// is exhaustive over the closed set.
func ErrorCode(err RpcError) string {
	switch e := err.(type) {
	case *CallError:
		return e.Code
	case *TimeoutError:
		return CodeTimeout
	case *CancelledError:
		return CodeCancelled
	case *ValidationError:
		return CodeValidationError
	case *NetworkError:
		return CodeNetworkError
	default:
		// Unreachable: the rpcError marker keeps the set closed.
		return CodeUnknown
	}
}

// Classify converts an arbitrary error into exactly one RpcError variant.
// It is total and deterministic: it never fails and equal inputs produce
// equal outputs. timeout > 0 indicates a deadline was configured for the
// call, which decides whether a fired cancellation signal maps to
// TimeoutError or CancelledError.
func Classify(raw error, path string, timeout time.Duration) RpcError {
	if raw == nil {
		return nil
	}

	// Already one of the five variants: pass through unchanged.
	var rpcErr RpcError
	if errors.As(raw, &rpcErr) {
		return rpcErr
	}

	// A fired cancellation signal: deadline configured means timeout.
	if errors.Is(raw, context.DeadlineExceeded) || errors.Is(raw, context.Canceled) {
		if timeout > 0 {
			return &TimeoutError{Path: path, Timeout: timeout}
		}
		return &CancelledError{Path: path}
	}

	// Connectivity-level failures keep their own variant.
	var netErr net.Error
	if errors.As(raw, &netErr) {
		return &NetworkError{Path: path, Err: raw}
	}

	// A value already shaped like {code, message}.
	var wireErr *WireError
	if errors.As(raw, &wireErr) {
		return FromWireError(wireErr, path)
	}

	// A message that parses as a wire error JSON document.
	if we := parseWireJSON(raw.Error()); we != nil {
		return FromWireError(we, path)
	}

	// Anything else stringifies into an unknown call error.
	return &CallError{Code: CodeUnknown, Message: raw.Error(), Cause: raw}
}

func parseWireJSON(s string) *WireError {
	if len(s) == 0 || s[0] != '{' {
		return nil
	}
	var we WireError
	if err := json.Unmarshal([]byte(s), &we); err != nil {
		return nil
	}
	if we.Code == "" || we.Message == "" {
		return nil
	}
	return &we
}

// nonRetryableCodes is the fixed denylist consulted by IsRetryable.
var nonRetryableCodes = map[string]struct{}{
	CodeValidationError: {},
	CodeCancelled:       {},
	"UNAUTHORIZED":      {},
	"FORBIDDEN":         {},
	"NOT_FOUND":         {},
	"BAD_REQUEST":       {},
}

// IsRetryable reports whether a failed call may be attempted again. It is
// the single source of truth consulted by the retry interceptor and the
// circuit breaker's default failure predicate. Validation, auth,
// not-found, bad-request and cancellation failures are final; everything
// else (timeouts, network failures, unknown codes) is retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var rpcErr RpcError
	if errors.As(err, &rpcErr) {
		switch e := rpcErr.(type) {
		case *ValidationError, *CancelledError:
			return false
		case *CallError:
			_, denied := nonRetryableCodes[e.Code]
			return !denied
		case *TimeoutError, *NetworkError:
			return true
		}
	}

	return true
}

// CircuitOpenError is returned while the circuit breaker rejects calls.
// Remaining is the time left before the breaker probes again.
type CircuitOpenError struct {
	Remaining time.Duration
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker is open, retry in %v", e.Remaining)
}

// Is matches the ErrCircuitOpen sentinel.
func (e *CircuitOpenError) Is(target error) bool { return target == ErrCircuitOpen }

// BulkheadFullError is returned when concurrency and queue limits are
// both saturated.
type BulkheadFullError struct {
	MaxConcurrent int
	MaxQueue      int
}

func (e *BulkheadFullError) Error() string {
	return fmt.Sprintf("bulkhead full: %d concurrent, %d queued", e.MaxConcurrent, e.MaxQueue)
}

// Is matches the ErrBulkheadFull sentinel.
func (e *BulkheadFullError) Is(target error) bool { return target == ErrBulkheadFull }

// RateLimitExceededError is returned when the rate limiter denies a call.
// RetryAfter tells the caller when capacity becomes available again.
type RateLimitExceededError struct {
	RetryAfter time.Duration
	Limit      int
	Remaining  int
}

func (e *RateLimitExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded (%d/%d), retry in %v", e.Limit-e.Remaining, e.Limit, e.RetryAfter)
}

// Is matches the ErrRateLimited sentinel.
func (e *RateLimitExceededError) Is(target error) bool { return target == ErrRateLimited }
