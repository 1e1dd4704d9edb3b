package gandewa

import (
	"context"
	"time"
)

// ProcedureType distinguishes unary calls from streaming subscriptions
// in interceptor contexts and metrics labels.
type ProcedureType string

const (
	ProcedureCall         ProcedureType = "call"
	ProcedureSubscription ProcedureType = "subscription"
)

// EventType tags inbound subscription events.
type EventType int

const (
	EventData EventType = iota
	EventError
	EventCompleted
)

// String returns the metrics label for the event type.
func (t EventType) String() string {
	switch t {
	case EventData:
		return "data"
	case EventError:
		return "error"
	case EventCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// StreamEvent is one inbound event on an open subscription stream.
// Err is set only for EventError; Data and EventID only for EventData.
type StreamEvent struct {
	Type    EventType
	Data    any
	EventID string
	Err     *WireError
}

// SubscribeOptions is passed to the transport when opening a stream.
// LastEventID, when non-empty, asks the transport to resume delivery
// after the identified event; transports without resume support may
// ignore it.
type SubscribeOptions struct {
	LastEventID string
}

// EventSource is an open subscription stream owned by the engine.
// Recv blocks until the next event arrives, the stream fails, or ctx is
// cancelled. Close releases the underlying connection and is idempotent.
type EventSource interface {
	Recv(ctx context.Context) (StreamEvent, error)
	Close() error
}

// Transport performs the actual request/response and stream I/O. It is
// the single external collaborator the core calls into; everything the
// library adds (retry, breaking, limiting, reconnects, batching) wraps
// these two operations.
type Transport interface {
	Call(ctx context.Context, path string, input any) (any, error)
	Subscribe(ctx context.Context, path string, input any, opts SubscribeOptions) (EventSource, error)
}

// BatchTransport is implemented by transports with a native batch
// capability. BatchCall delegates to it when present and falls back to
// per-request calls otherwise.
type BatchTransport interface {
	Transport
	CallBatch(ctx context.Context, requests []BatchRequest) (*BatchResponse, error)
}

// ErrorClassifier lets a transport override the default Classify rules
// for errors it produces.
type ErrorClassifier interface {
	ClassifyError(raw error, path string, timeout time.Duration) RpcError
}
