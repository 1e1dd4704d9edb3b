package gandewa

import (
	"errors"
	"fmt"
	"time"
)

// WireError is the flat, serializable error shape crossing the transport
// boundary: {code, message, details?, cause?}.
type WireError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	Cause   string `json:"cause,omitempty"`
}

func (w *WireError) Error() string {
	return fmt.Sprintf("%s: %s", w.Code, w.Message)
}

// ToWireError derives the wire form of any RpcError variant. The mapping
// is deterministic; the virtual codes TIMEOUT, CANCELLED,
// VALIDATION_ERROR and NETWORK_ERROR mark variants that are synthesized
// client-side. FromWireError reverses the mapping for known codes.
func ToWireError(err RpcError) *WireError {
	if err == nil {
		return nil
	}
	switch e := err.(type) {
	case *CallError:
		w := &WireError{Code: e.Code, Message: e.Message, Details: e.Details}
		if e.Cause != nil {
			w.Cause = e.Cause.Error()
		}
		return w
	case *TimeoutError:
		return &WireError{
			Code:    CodeTimeout,
			Message: fmt.Sprintf("call to %q timed out after %v", e.Path, e.Timeout),
			Details: map[string]any{"path": e.Path, "timeoutMs": e.Timeout.Milliseconds()},
		}
	case *CancelledError:
		details := map[string]any{"path": e.Path}
		if e.Reason != "" {
			details["reason"] = e.Reason
		}
		return &WireError{
			Code:    CodeCancelled,
			Message: fmt.Sprintf("call to %q cancelled", e.Path),
			Details: details,
		}
	case *ValidationError:
		return &WireError{
			Code:    CodeValidationError,
			Message: fmt.Sprintf("validation failed for %q", e.Path),
			Details: map[string]any{"path": e.Path, "issues": e.Issues},
		}
	case *NetworkError:
		w := &WireError{
			Code:    CodeNetworkError,
			Message: fmt.Sprintf("network failure calling %q", e.Path),
			Details: map[string]any{"path": e.Path},
		}
		if e.Err != nil {
			w.Cause = e.Err.Error()
		}
		return w
	default:
		return &WireError{Code: CodeUnknown, Message: err.Error()}
	}
}

// FromWireError reconstructs an RpcError from its wire form. Virtual
// codes round-trip into their dedicated variants; every other code
// becomes a CallError. path seeds the variant when the wire details do
// not carry one.
func FromWireError(w *WireError, path string) RpcError {
	if w == nil {
		return nil
	}
	switch w.Code {
	case CodeTimeout:
		e := &TimeoutError{Path: path}
		if d, ok := w.Details.(map[string]any); ok {
			if p, ok := d["path"].(string); ok {
				e.Path = p
			}
			if ms, ok := asInt64(d["timeoutMs"]); ok {
				e.Timeout = time.Duration(ms) * time.Millisecond
			}
		}
		return e
	case CodeCancelled:
		e := &CancelledError{Path: path}
		if d, ok := w.Details.(map[string]any); ok {
			if p, ok := d["path"].(string); ok {
				e.Path = p
			}
			if r, ok := d["reason"].(string); ok {
				e.Reason = r
			}
		}
		return e
	case CodeValidationError:
		e := &ValidationError{Path: path}
		if d, ok := w.Details.(map[string]any); ok {
			if p, ok := d["path"].(string); ok {
				e.Path = p
			}
			e.Issues = decodeIssues(d["issues"])
		}
		return e
	case CodeNetworkError:
		e := &NetworkError{Path: path}
		if d, ok := w.Details.(map[string]any); ok {
			if p, ok := d["path"].(string); ok {
				e.Path = p
			}
		}
		if w.Cause != "" {
			e.Err = errors.New(w.Cause)
		} else {
			e.Err = errors.New(w.Message)
		}
		return e
	default:
		e := &CallError{Code: w.Code, Message: w.Message, Details: w.Details}
		if w.Cause != "" {
			e.Cause = errors.New(w.Cause)
		}
		return e
	}
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

func decodeIssues(v any) []ValidationIssue {
	switch issues := v.(type) {
	case []ValidationIssue:
		return issues
	case []any:
		out := make([]ValidationIssue, 0, len(issues))
		for _, raw := range issues {
			m, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			issue := ValidationIssue{}
			if c, ok := m["code"].(string); ok {
				issue.Code = c
			}
			if msg, ok := m["message"].(string); ok {
				issue.Message = msg
			}
			out = append(out, issue)
		}
		return out
	default:
		return nil
	}
}
