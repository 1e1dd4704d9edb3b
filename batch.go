package gandewa

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// BatchRequest is one request inside a batch. IDs are caller-chosen and
// must be unique within the batch so results can be correlated without
// ordering guarantees.
type BatchRequest struct {
	ID    string `json:"id"`
	Path  string `json:"path"`
	Input any    `json:"input"`
}

// BatchResult is one outcome inside a batch response. Data and Err are
// mutually exclusive.
type BatchResult struct {
	ID   string     `json:"id"`
	Data any        `json:"data,omitempty"`
	Err  *WireError `json:"error,omitempty"`
}

// BatchResponse is the wire shape of a completed batch.
type BatchResponse struct {
	Results []BatchResult `json:"results"`
}

// validateBatch rejects the whole batch atomically: any invalid path or
// duplicate id fails everything before a single request is sent.
func validateBatch(requests []BatchRequest) error {
	seen := make(map[string]struct{}, len(requests))
	for _, req := range requests {
		if err := ValidatePath(req.Path); err != nil {
			return err
		}
		if _, dup := seen[req.ID]; dup {
			return &ValidationError{
				Path: req.Path,
				Issues: []ValidationIssue{{
					Code:    CodeInvalidFormat,
					Message: fmt.Sprintf("duplicate batch request id %q", req.ID),
				}},
			}
		}
		seen[req.ID] = struct{}{}
	}
	return nil
}

// BatchCall validates every path up front, then delegates to the
// transport's native batch capability when it has one and falls back to
// bounded parallel execution otherwise. Pre-validation is atomic while
// per-item runtime failures stay individual.
func (c *Client) BatchCall(ctx context.Context, requests []BatchRequest) (*BatchResponse, error) {
	if err := validateBatch(requests); err != nil {
		return nil, err
	}
	if c.metrics != nil {
		c.metrics.RecordBatchSize("native", len(requests))
	}

	if bt, ok := c.transport.(BatchTransport); ok {
		resp, err := bt.CallBatch(ctx, requests)
		if err != nil {
			return nil, c.classify(err, "", 0)
		}
		return resp, nil
	}

	return c.batchCollect(ctx, requests, 0, "native")
}

// BatchCallParallel runs each request through Call with bounded
// concurrency, collecting every outcome without one failure aborting
// its siblings. Result order matches completion, not request order.
func (c *Client) BatchCallParallel(ctx context.Context, requests []BatchRequest, concurrency int) []BatchResult {
	if concurrency <= 0 {
		concurrency = len(requests)
	}
	if c.metrics != nil {
		c.metrics.RecordBatchSize("parallel", len(requests))
	}

	results := make(chan BatchResult, len(requests))
	slots := make(chan struct{}, concurrency)

	for _, req := range requests {
		go func(req BatchRequest) {
			slots <- struct{}{}
			defer func() { <-slots }()
			results <- c.executeOne(ctx, req, "parallel")
		}(req)
	}

	out := make([]BatchResult, 0, len(requests))
	for range requests {
		out = append(out, <-results)
	}
	return out
}

// BatchCallParallelCollect is BatchCallParallel shaped into the batch
// wire format: exactly one result per request, in request order, with
// Data and Err mutually exclusive regardless of completion order.
func (c *Client) BatchCallParallelCollect(ctx context.Context, requests []BatchRequest, concurrency int) *BatchResponse {
	resp, _ := c.batchCollect(ctx, requests, concurrency, "collect")
	return resp
}

// BatchCallSequential runs requests one at a time in order, for callers
// that need cross-request ordering or strict load bounding.
func (c *Client) BatchCallSequential(ctx context.Context, requests []BatchRequest) *BatchResponse {
	resp, _ := c.batchCollect(ctx, requests, 1, "sequential")
	return resp
}

func (c *Client) batchCollect(ctx context.Context, requests []BatchRequest, concurrency int, mode string) (*BatchResponse, error) {
	if concurrency <= 0 {
		concurrency = len(requests)
	}
	if concurrency < 1 {
		concurrency = 1
	}
	if c.metrics != nil && mode != "native" {
		c.metrics.RecordBatchSize(mode, len(requests))
	}

	results := make([]BatchResult, len(requests))
	slots := make(chan struct{}, concurrency)
	done := make(chan int, len(requests))

	for i, req := range requests {
		go func(i int, req BatchRequest) {
			slots <- struct{}{}
			defer func() { <-slots }()
			results[i] = c.executeOne(ctx, req, mode)
			done <- i
		}(i, req)
	}

	for range requests {
		<-done
	}

	return &BatchResponse{Results: results}, nil
}

// BatchCallParallelFailFast runs requests with bounded concurrency but
// propagates the first error and cancels every sibling still in flight.
// On success the returned slice holds one result per request in request
// order.
func (c *Client) BatchCallParallelFailFast(ctx context.Context, requests []BatchRequest, concurrency int) ([]any, error) {
	if err := validateBatch(requests); err != nil {
		return nil, err
	}
	if concurrency <= 0 {
		concurrency = len(requests)
	}
	if c.metrics != nil {
		c.metrics.RecordBatchSize("fail_fast", len(requests))
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(concurrency)

	results := make([]any, len(requests))
	for i, req := range requests {
		group.Go(func() error {
			data, err := c.Call(groupCtx, req.Path, req.Input)
			if err != nil {
				if c.metrics != nil {
					c.metrics.RecordBatchRequest("fail_fast", "error")
				}
				return err
			}
			if c.metrics != nil {
				c.metrics.RecordBatchRequest("fail_fast", "ok")
			}
			results[i] = data
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// executeOne runs a single batch member through the full call pipeline
// and renders its outcome in the wire result shape.
func (c *Client) executeOne(ctx context.Context, req BatchRequest, mode string) BatchResult {
	data, err := c.Call(ctx, req.Path, req.Input)
	if err != nil {
		if c.metrics != nil {
			c.metrics.RecordBatchRequest(mode, "error")
		}
		return BatchResult{ID: req.ID, Err: wireify(err)}
	}
	if c.metrics != nil {
		c.metrics.RecordBatchRequest(mode, "ok")
	}
	return BatchResult{ID: req.ID, Data: data}
}

// wireify renders any error in the wire error shape, including operator
// errors that sit outside the five RpcError variants.
func wireify(err error) *WireError {
	var rpcErr RpcError
	if errors.As(err, &rpcErr) {
		return ToWireError(rpcErr)
	}

	var open *CircuitOpenError
	if errors.As(err, &open) {
		return &WireError{
			Code:    "CIRCUIT_OPEN",
			Message: open.Error(),
			Details: map[string]any{"remainingMs": open.Remaining.Milliseconds()},
		}
	}
	var full *BulkheadFullError
	if errors.As(err, &full) {
		return &WireError{
			Code:    "BULKHEAD_FULL",
			Message: full.Error(),
			Details: map[string]any{"maxConcurrent": full.MaxConcurrent, "maxQueue": full.MaxQueue},
		}
	}
	var limited *RateLimitExceededError
	if errors.As(err, &limited) {
		return &WireError{
			Code:    "RATE_LIMITED",
			Message: limited.Error(),
			Details: map[string]any{
				"retryAfterMs": limited.RetryAfter.Milliseconds(),
				"limit":        limited.Limit,
				"remaining":    limited.Remaining,
			},
		}
	}

	return &WireError{Code: CodeUnknown, Message: err.Error()}
}
