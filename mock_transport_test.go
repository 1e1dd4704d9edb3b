package gandewa

import (
	"context"
	"errors"
	"sync"
)

// mockTransport is a scriptable in-memory Transport for tests.
type mockTransport struct {
	mu          sync.Mutex
	callFn      func(ctx context.Context, path string, input any) (any, error)
	subscribeFn func(ctx context.Context, path string, input any, opts SubscribeOptions) (EventSource, error)

	callPaths      []string
	subscribeOpts  []SubscribeOptions
	subscribeCount int
}

func (t *mockTransport) Call(ctx context.Context, path string, input any) (any, error) {
	t.mu.Lock()
	t.callPaths = append(t.callPaths, path)
	fn := t.callFn
	t.mu.Unlock()

	if fn == nil {
		return nil, errors.New("no call handler configured")
	}
	return fn(ctx, path, input)
}

func (t *mockTransport) Subscribe(ctx context.Context, path string, input any, opts SubscribeOptions) (EventSource, error) {
	t.mu.Lock()
	t.subscribeCount++
	t.subscribeOpts = append(t.subscribeOpts, opts)
	fn := t.subscribeFn
	t.mu.Unlock()

	if fn == nil {
		return nil, errors.New("no subscribe handler configured")
	}
	return fn(ctx, path, input, opts)
}

func (t *mockTransport) calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.callPaths)
}

func (t *mockTransport) subscribes() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.subscribeCount
}

func (t *mockTransport) lastSubscribeOpts() SubscribeOptions {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.subscribeOpts) == 0 {
		return SubscribeOptions{}
	}
	return t.subscribeOpts[len(t.subscribeOpts)-1]
}

// mockBatchTransport adds a native batch endpoint on top of mockTransport.
type mockBatchTransport struct {
	mockTransport
	batchFn func(ctx context.Context, requests []BatchRequest) (*BatchResponse, error)
}

func (t *mockBatchTransport) CallBatch(ctx context.Context, requests []BatchRequest) (*BatchResponse, error) {
	return t.batchFn(ctx, requests)
}

// sourceStep is one scripted Recv outcome.
type sourceStep struct {
	event StreamEvent
	err   error
}

// scriptedSource replays a fixed sequence of Recv outcomes, then blocks
// until the consumer context is cancelled.
type scriptedSource struct {
	mu     sync.Mutex
	steps  []sourceStep
	closed bool
}

func newScriptedSource(steps ...sourceStep) *scriptedSource {
	return &scriptedSource{steps: steps}
}

func (s *scriptedSource) Recv(ctx context.Context) (StreamEvent, error) {
	s.mu.Lock()
	if len(s.steps) > 0 {
		step := s.steps[0]
		s.steps = s.steps[1:]
		s.mu.Unlock()
		return step.event, step.err
	}
	s.mu.Unlock()

	<-ctx.Done()
	return StreamEvent{}, ctx.Err()
}

func (s *scriptedSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func dataStep(id string, data any) sourceStep {
	return sourceStep{event: StreamEvent{Type: EventData, EventID: id, Data: data}}
}

func completedStep() sourceStep {
	return sourceStep{event: StreamEvent{Type: EventCompleted}}
}

func errorStep(wireErr *WireError) sourceStep {
	return sourceStep{event: StreamEvent{Type: EventError, Err: wireErr}}
}
