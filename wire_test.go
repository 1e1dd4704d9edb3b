package gandewa

import (
	"errors"
	"testing"
	"time"
)

func TestWireRoundTripCallError(t *testing.T) {
	original := &CallError{
		Code:    "CONFLICT",
		Message: "version mismatch",
		Details: map[string]any{"expected": "v7"},
	}

	restored := FromWireError(ToWireError(original), "doc.save")

	callErr, ok := restored.(*CallError)
	if !ok {
		t.Fatalf("Expected *CallError, got %T", restored)
	}
	if callErr.Code != "CONFLICT" || callErr.Message != "version mismatch" {
		t.Errorf("Round trip lost fields: %+v", callErr)
	}
	details, ok := callErr.Details.(map[string]any)
	if !ok {
		t.Fatalf("Expected details map, got %T", callErr.Details)
	}
	if details["expected"] != "v7" {
		t.Errorf("Round trip lost details: %v", details)
	}
}

func TestWireRoundTripTimeoutError(t *testing.T) {
	original := &TimeoutError{Path: "user.get", Timeout: 1500 * time.Millisecond}

	wire := ToWireError(original)
	if wire.Code != CodeTimeout {
		t.Fatalf("Expected code TIMEOUT, got %q", wire.Code)
	}

	restored := FromWireError(wire, "")
	timeoutErr, ok := restored.(*TimeoutError)
	if !ok {
		t.Fatalf("Expected *TimeoutError, got %T", restored)
	}
	if timeoutErr.Path != "user.get" {
		t.Errorf("Expected path user.get, got %q", timeoutErr.Path)
	}
	if timeoutErr.Timeout != 1500*time.Millisecond {
		t.Errorf("Expected timeout 1.5s, got %v", timeoutErr.Timeout)
	}
}

func TestWireRoundTripCancelledError(t *testing.T) {
	original := &CancelledError{Path: "user.get", Reason: "caller context cancelled"}

	restored := FromWireError(ToWireError(original), "")

	cancelErr, ok := restored.(*CancelledError)
	if !ok {
		t.Fatalf("Expected *CancelledError, got %T", restored)
	}
	if cancelErr.Path != "user.get" {
		t.Errorf("Round trip lost path: %q", cancelErr.Path)
	}
	if cancelErr.Reason != "caller context cancelled" {
		t.Errorf("Round trip lost reason: %q", cancelErr.Reason)
	}
}

func TestWireRoundTripValidationError(t *testing.T) {
	original := &ValidationError{
		Path: "user.create",
		Issues: []ValidationIssue{
			{Code: "invalid_format", Message: "email is malformed"},
			{Code: "required", Message: "name is required"},
		},
	}

	restored := FromWireError(ToWireError(original), "")

	valErr, ok := restored.(*ValidationError)
	if !ok {
		t.Fatalf("Expected *ValidationError, got %T", restored)
	}
	if valErr.Path != "user.create" {
		t.Errorf("Round trip lost path: %q", valErr.Path)
	}
	if len(valErr.Issues) != 2 {
		t.Fatalf("Expected 2 issues, got %d", len(valErr.Issues))
	}
	if valErr.Issues[0].Code != "invalid_format" {
		t.Errorf("Expected first issue code invalid_format, got %q", valErr.Issues[0].Code)
	}
	if valErr.Issues[1].Message != "name is required" {
		t.Errorf("Expected second issue message preserved, got %q", valErr.Issues[1].Message)
	}
}

func TestWireRoundTripNetworkError(t *testing.T) {
	original := &NetworkError{Path: "user.get", Err: errors.New("connection refused")}

	wire := ToWireError(original)
	if wire.Code != CodeNetworkError {
		t.Fatalf("Expected code NETWORK_ERROR, got %q", wire.Code)
	}

	restored := FromWireError(wire, "")
	netErr, ok := restored.(*NetworkError)
	if !ok {
		t.Fatalf("Expected *NetworkError, got %T", restored)
	}
	if netErr.Path != "user.get" {
		t.Errorf("Expected path user.get, got %q", netErr.Path)
	}
	if netErr.Err == nil {
		t.Fatal("Expected underlying error to be reconstructed")
	}
	if netErr.Err.Error() != "connection refused" {
		t.Errorf("Expected cause preserved, got %q", netErr.Err.Error())
	}
}

func TestFromWireErrorUnknownCode(t *testing.T) {
	wire := &WireError{Code: "TEAPOT", Message: "short and stout"}

	restored := FromWireError(wire, "kitchen.brew")

	callErr, ok := restored.(*CallError)
	if !ok {
		t.Fatalf("Expected *CallError for unknown code, got %T", restored)
	}
	if callErr.Code != "TEAPOT" {
		t.Errorf("Expected code preserved, got %q", callErr.Code)
	}
}

func TestFromWireErrorSeedsPath(t *testing.T) {
	// Details without a path fall back to the caller-provided one.
	wire := &WireError{Code: CodeTimeout, Message: "timed out"}

	restored := FromWireError(wire, "user.get")
	timeoutErr, ok := restored.(*TimeoutError)
	if !ok {
		t.Fatalf("Expected *TimeoutError, got %T", restored)
	}
	if timeoutErr.Path != "user.get" {
		t.Errorf("Expected seeded path, got %q", timeoutErr.Path)
	}
}

func TestWireErrorNilHandling(t *testing.T) {
	if wire := ToWireError(nil); wire != nil {
		t.Errorf("Expected nil wire error for nil input, got %v", wire)
	}
	if restored := FromWireError(nil, "user.get"); restored != nil {
		t.Errorf("Expected nil error for nil wire input, got %v", restored)
	}
}
