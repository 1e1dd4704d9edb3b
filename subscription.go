package gandewa

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	internalbackoff "github.com/ambiyansyah-risyal/gandewa/internal/backoff"
)

// SubscriptionStatus is the engine state of one subscription.
type SubscriptionStatus int32

const (
	StatusConnecting SubscriptionStatus = iota
	StatusActive
	StatusReconnecting
	StatusError
	StatusCompleted
)

// String returns the log/metrics label for the status.
func (s SubscriptionStatus) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusActive:
		return "active"
	case StatusReconnecting:
		return "reconnecting"
	case StatusError:
		return "error"
	case StatusCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// ReconnectConfig is the immutable per-subscription reconnect policy,
// supplied at subscribe time.
type ReconnectConfig struct {
	// AutoReconnect re-opens the stream after transport errors.
	AutoReconnect bool
	// MaxReconnects bounds reconnect attempts. Zero means 5.
	MaxReconnects int
	// ReconnectDelay is the backoff base for attempt n:
	// delay = ReconnectDelay * 2^(n-1) * uniform(0.5, 1.0). Zero means 1s.
	ReconnectDelay time.Duration
}

func (c ReconnectConfig) withDefaults() ReconnectConfig {
	if c.MaxReconnects <= 0 {
		c.MaxReconnects = 5
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = time.Second
	}
	return c
}

// Subscription is a lazy, single-pass, cancellable pull sequence over a
// server stream. It reconnects transparently per its ReconnectConfig,
// resuming from the last delivered event id when the transport supports
// it. Re-subscribing after termination requires a new instance.
type Subscription struct {
	path      string
	input     any
	transport Transport
	config    ReconnectConfig

	queue  *eventQueue
	cancel context.CancelFunc
	done   chan struct{}

	mu                sync.Mutex
	id                string
	status            SubscriptionStatus
	lastEventID       string
	reconnectAttempts int
	terminalErr       RpcError

	closeOnce sync.Once
	endOnce   sync.Once

	metrics *MetricsCollector
	logger  Logger
	debug   *DebugConfig
}

// newSubscription wires the engine without starting it.
func newSubscription(transport Transport, path string, input any, config ReconnectConfig, queueSize int) *Subscription {
	return &Subscription{
		path:      path,
		input:     input,
		transport: transport,
		config:    config.withDefaults(),
		queue:     newEventQueue(queueSize),
		done:      make(chan struct{}),
		id:        uuid.NewString(),
		status:    StatusConnecting,
	}
}

// start launches the engine goroutine.
func (s *Subscription) start(parent context.Context) {
	runCtx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	if s.metrics != nil {
		s.metrics.RecordSubscriptionActive(s.path)
	}
	go s.run(runCtx)
}

// recordEnd decrements the active gauge exactly once per subscription.
func (s *Subscription) recordEnd() {
	s.endOnce.Do(func() {
		if s.metrics != nil {
			s.metrics.RecordSubscriptionEnd(s.path)
		}
	})
}

// ID returns the current subscription id. Reconnects mint a fresh id.
func (s *Subscription) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Status returns the current engine state.
func (s *Subscription) Status() SubscriptionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// LastEventID returns the id of the last delivered data event.
func (s *Subscription) LastEventID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastEventID
}

// ReconnectAttempts returns how many reconnects have been attempted.
func (s *Subscription) ReconnectAttempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconnectAttempts
}

// Next returns the next data event. It blocks until an event arrives or
// the subscription terminates. A clean completion returns ErrEndOfStream;
// a terminal error is cached and re-raised for this and every later
// pull; cancelling ctx surfaces CancelledError without consuming an
// event.
func (s *Subscription) Next(ctx context.Context) (any, error) {
	item, err := s.queue.take(ctx)
	if err != nil {
		return nil, &CancelledError{Path: s.path, Reason: "consumer context cancelled"}
	}

	if item.shutdown {
		s.mu.Lock()
		terminalErr := s.terminalErr
		s.mu.Unlock()
		if terminalErr != nil {
			return nil, terminalErr
		}
		return nil, ErrEndOfStream
	}

	switch item.event.Type {
	case EventData:
		return item.event.Data, nil
	case EventError:
		s.mu.Lock()
		terminalErr := s.terminalErr
		s.mu.Unlock()
		if terminalErr != nil {
			return nil, terminalErr
		}
		return nil, FromWireError(item.event.Err, s.path)
	case EventCompleted:
		return nil, ErrEndOfStream
	default:
		return nil, &CallError{Code: CodeUnknown, Message: "unexpected event type"}
	}
}

// Unsubscribe cancels the subscription: the underlying connection is
// released and the shutdown sentinel unblocks every pending Next.
// Idempotent and safe to call concurrently with Next.
func (s *Subscription) Unsubscribe() {
	s.closeOnce.Do(func() {
		s.setStatus(StatusCompleted)
		if s.cancel != nil {
			s.cancel()
		}
		s.queue.pushShutdown()
		s.recordEnd()
	})
}

// Done is closed when the engine goroutine has fully stopped.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// setStatus transitions the engine state. Terminal states are sticky:
// once completed or errored, later transitions are ignored so a racing
// engine goroutine cannot resurrect a closed subscription.
func (s *Subscription) setStatus(status SubscriptionStatus) {
	s.mu.Lock()
	s.setStatusLocked(status)
	s.mu.Unlock()
}

func (s *Subscription) setStatusLocked(status SubscriptionStatus) {
	if s.status == StatusCompleted || s.status == StatusError {
		return
	}
	s.status = status
}

func (s *Subscription) logDebug(msg string, kv ...any) {
	if s.debug != nil && s.debug.Enabled && s.debug.LogSubscriptions && s.logger != nil {
		s.logger.Debug(msg, kv...)
	}
}

// run is the engine loop: connect, consume, reconnect until terminal.
func (s *Subscription) run(ctx context.Context) {
	defer close(s.done)

	for {
		s.mu.Lock()
		lastEventID := s.lastEventID
		id := s.id
		s.mu.Unlock()

		s.logDebug("opening stream", "subscriptionID", id, "path", s.path, "lastEventID", lastEventID)

		source, err := s.transport.Subscribe(ctx, s.path, s.input, SubscribeOptions{LastEventID: lastEventID})
		if err != nil {
			if ctx.Err() != nil {
				s.Unsubscribe()
				return
			}
			// Connect failures follow the same reconnect policy as
			// mid-stream failures.
			if s.handleStreamError(ctx, ToWireError(Classify(err, s.path, 0))) {
				continue
			}
			return
		}

		s.setStatus(StatusActive)

		again := s.consume(ctx, source)
		if !again {
			return
		}
	}
}

// consume reads the open stream until it terminates. It returns true
// when the engine should reconnect.
func (s *Subscription) consume(ctx context.Context, source EventSource) bool {
	defer source.Close()

	for {
		event, err := source.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil {
				s.Unsubscribe()
				return false
			}
			return s.handleStreamError(ctx, ToWireError(Classify(err, s.path, 0)))
		}

		switch event.Type {
		case EventData:
			s.mu.Lock()
			if event.EventID != "" {
				s.lastEventID = event.EventID
			}
			s.mu.Unlock()
			s.queue.push(event)
			if s.metrics != nil {
				s.metrics.RecordSubscriptionEvent(s.path, EventData)
			}

		case EventCompleted:
			s.logDebug("stream completed", "path", s.path)
			s.complete(nil)
			if s.metrics != nil {
				s.metrics.RecordSubscriptionEvent(s.path, EventCompleted)
			}
			return false

		case EventError:
			if s.metrics != nil {
				s.metrics.RecordSubscriptionEvent(s.path, EventError)
			}
			return s.handleStreamError(ctx, event.Err)
		}
	}
}

// handleStreamError decides between reconnecting and terminating. It
// returns true when the engine should reconnect.
func (s *Subscription) handleStreamError(ctx context.Context, wireErr *WireError) bool {
	s.mu.Lock()
	attempts := s.reconnectAttempts
	s.mu.Unlock()

	if s.config.AutoReconnect && attempts < s.config.MaxReconnects {
		return s.scheduleReconnect(ctx)
	}

	if s.config.AutoReconnect {
		s.complete(&CallError{
			Code:    CodeMaxReconnectsExceeded,
			Message: "maximum reconnect attempts exceeded",
			Details: map[string]any{"path": s.path, "attempts": attempts},
		})
	} else if wireErr != nil {
		s.complete(FromWireError(wireErr, s.path))
	} else {
		s.complete(&CallError{Code: CodeUnknown, Message: "stream failed without an error payload"})
	}
	return false
}

// scheduleReconnect waits out the jittered backoff, mints a fresh
// subscription id and arms the next connect. It returns false when the
// context was cancelled during the wait or attempts ran out.
func (s *Subscription) scheduleReconnect(ctx context.Context) bool {
	s.mu.Lock()
	if s.reconnectAttempts >= s.config.MaxReconnects {
		attempts := s.reconnectAttempts
		s.mu.Unlock()
		s.complete(&CallError{
			Code:    CodeMaxReconnectsExceeded,
			Message: "maximum reconnect attempts exceeded",
			Details: map[string]any{"path": s.path, "attempts": attempts},
		})
		return false
	}
	s.reconnectAttempts++
	attempt := s.reconnectAttempts
	s.setStatusLocked(StatusReconnecting)
	s.mu.Unlock()

	delay := internalbackoff.Reconnect(attempt, s.config.ReconnectDelay)
	s.logDebug("scheduling reconnect", "path", s.path, "attempt", attempt, "delay", delay)
	if s.metrics != nil {
		s.metrics.RecordSubscriptionReconnect(s.path, attempt)
	}

	if err := sleepContext(ctx, delay); err != nil {
		s.Unsubscribe()
		return false
	}

	s.mu.Lock()
	s.id = uuid.NewString()
	s.mu.Unlock()
	return true
}

// complete records the terminal state and wakes all consumers. A nil err
// is a clean completion; otherwise err is cached so every present and
// future pull observes the same terminal error.
func (s *Subscription) complete(err RpcError) {
	s.mu.Lock()
	if s.terminalErr == nil {
		s.terminalErr = err
	}
	if err != nil {
		s.setStatusLocked(StatusError)
	} else {
		s.setStatusLocked(StatusCompleted)
	}
	s.mu.Unlock()

	s.queue.pushShutdown()
	s.recordEnd()
}
