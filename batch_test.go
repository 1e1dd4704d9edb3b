package gandewa

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func batchEchoTransport() *mockTransport {
	return &mockTransport{
		callFn: func(ctx context.Context, path string, input any) (any, error) {
			if path == "always.fails" {
				return nil, &WireError{Code: "INTERNAL", Message: "boom"}
			}
			return fmt.Sprintf("result:%v", input), nil
		},
	}
}

func TestBatchCallParallelCollectShape(t *testing.T) {
	client := New(batchEchoTransport())

	requests := []BatchRequest{
		{ID: "a", Path: "user.get", Input: 1},
		{ID: "b", Path: "always.fails", Input: 2},
		{ID: "c", Path: "user.get", Input: 3},
	}

	resp := client.BatchCallParallelCollect(context.Background(), requests, 2)

	require.Len(t, resp.Results, len(requests))
	for i, result := range resp.Results {
		assert.Equal(t, requests[i].ID, result.ID, "results must stay in request order")
		// Data and Err are mutually exclusive.
		if result.Err != nil {
			assert.Nil(t, result.Data)
		} else {
			assert.NotNil(t, result.Data)
		}
	}
	assert.Equal(t, "result:1", resp.Results[0].Data)
	require.NotNil(t, resp.Results[1].Err)
	assert.Equal(t, "INTERNAL", resp.Results[1].Err.Code)
	assert.Equal(t, "result:3", resp.Results[2].Data)
}

func TestBatchCallAtomicValidation(t *testing.T) {
	transport := batchEchoTransport()
	client := New(transport)

	requests := []BatchRequest{
		{ID: "a", Path: "user.get"},
		{ID: "b", Path: "user..get"},
	}

	_, err := client.BatchCall(context.Background(), requests)

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Zero(t, transport.calls(), "no request may be sent when any path is invalid")
}

func TestBatchCallDuplicateIDs(t *testing.T) {
	client := New(batchEchoTransport())

	requests := []BatchRequest{
		{ID: "same", Path: "user.get"},
		{ID: "same", Path: "doc.save"},
	}

	_, err := client.BatchCall(context.Background(), requests)

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, CodeInvalidFormat, valErr.Issues[0].Code)
}

func TestBatchCallNativeDelegation(t *testing.T) {
	transport := &mockBatchTransport{
		batchFn: func(ctx context.Context, requests []BatchRequest) (*BatchResponse, error) {
			results := make([]BatchResult, len(requests))
			for i, req := range requests {
				results[i] = BatchResult{ID: req.ID, Data: "native"}
			}
			return &BatchResponse{Results: results}, nil
		},
	}
	client := New(transport)

	resp, err := client.BatchCall(context.Background(), []BatchRequest{
		{ID: "a", Path: "user.get"},
		{ID: "b", Path: "doc.save"},
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "native", resp.Results[0].Data)
	assert.Zero(t, transport.calls(), "native batches bypass per-item Call")
}

func TestBatchCallFallbackWithoutNativeSupport(t *testing.T) {
	transport := batchEchoTransport()
	client := New(transport)

	resp, err := client.BatchCall(context.Background(), []BatchRequest{
		{ID: "a", Path: "user.get", Input: 1},
		{ID: "b", Path: "user.get", Input: 2},
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, 2, transport.calls())
}

func TestBatchCallSequentialOrder(t *testing.T) {
	var running, peak int64
	transport := &mockTransport{
		callFn: func(ctx context.Context, path string, input any) (any, error) {
			n := atomic.AddInt64(&running, 1)
			for {
				p := atomic.LoadInt64(&peak)
				if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt64(&running, -1)
			return input, nil
		},
	}
	client := New(transport)

	requests := []BatchRequest{
		{ID: "a", Path: "user.get", Input: "1"},
		{ID: "b", Path: "user.get", Input: "2"},
		{ID: "c", Path: "user.get", Input: "3"},
	}

	resp := client.BatchCallSequential(context.Background(), requests)

	require.Len(t, resp.Results, 3)
	assert.EqualValues(t, 1, atomic.LoadInt64(&peak), "sequential mode must never overlap requests")
	for i, result := range resp.Results {
		assert.Equal(t, requests[i].ID, result.ID)
	}
}

func TestBatchCallParallelBoundsConcurrency(t *testing.T) {
	var running, peak int64
	transport := &mockTransport{
		callFn: func(ctx context.Context, path string, input any) (any, error) {
			n := atomic.AddInt64(&running, 1)
			for {
				p := atomic.LoadInt64(&peak)
				if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt64(&running, -1)
			return input, nil
		},
	}
	client := New(transport)

	requests := make([]BatchRequest, 8)
	for i := range requests {
		requests[i] = BatchRequest{ID: fmt.Sprintf("r%d", i), Path: "user.get", Input: i}
	}

	results := client.BatchCallParallel(context.Background(), requests, 2)

	assert.Len(t, results, 8)
	assert.LessOrEqual(t, atomic.LoadInt64(&peak), int64(2))
}

func TestBatchCallParallelFailFast(t *testing.T) {
	var completed int64
	transport := &mockTransport{
		callFn: func(ctx context.Context, path string, input any) (any, error) {
			if path == "always.fails" {
				return nil, &WireError{Code: "INTERNAL", Message: "boom"}
			}
			select {
			case <-time.After(50 * time.Millisecond):
				atomic.AddInt64(&completed, 1)
				return input, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	}
	client := New(transport)

	_, err := client.BatchCallParallelFailFast(context.Background(), []BatchRequest{
		{ID: "a", Path: "user.get", Input: 1},
		{ID: "b", Path: "always.fails", Input: 2},
		{ID: "c", Path: "user.get", Input: 3},
	}, 3)

	var callErr *CallError
	require.ErrorAs(t, err, &callErr)
	assert.Equal(t, "INTERNAL", callErr.Code)
	assert.Less(t, atomic.LoadInt64(&completed), int64(2), "siblings should be cancelled, not completed")
}

func TestBatchCallParallelFailFastSuccessOrder(t *testing.T) {
	client := New(batchEchoTransport())

	results, err := client.BatchCallParallelFailFast(context.Background(), []BatchRequest{
		{ID: "a", Path: "user.get", Input: 1},
		{ID: "b", Path: "user.get", Input: 2},
	}, 2)

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "result:1", results[0])
	assert.Equal(t, "result:2", results[1])
}

func TestWireifyOperatorErrors(t *testing.T) {
	wire := wireify(&CircuitOpenError{Remaining: 1500 * time.Millisecond})
	require.NotNil(t, wire)
	assert.Equal(t, "CIRCUIT_OPEN", wire.Code)
	details, ok := wire.Details.(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 1500, details["remainingMs"])

	wire = wireify(&RateLimitExceededError{RetryAfter: time.Second, Limit: 3, Remaining: 0})
	assert.Equal(t, "RATE_LIMITED", wire.Code)

	wire = wireify(&BulkheadFullError{MaxConcurrent: 2, MaxQueue: 4})
	assert.Equal(t, "BULKHEAD_FULL", wire.Code)
}
