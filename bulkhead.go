package gandewa

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// BulkheadConfig bounds concurrent load for one operation group.
type BulkheadConfig struct {
	// MaxConcurrent operations in flight. Zero means 10.
	MaxConcurrent int
	// MaxQueue callers allowed to wait for a slot. Zero means 10.
	MaxQueue int
	// QueueTimeout bounds how long a queued caller waits. Zero means 5s.
	QueueTimeout time.Duration
}

// Bulkhead isolates one operation's load from others with a counting
// semaphore: at most MaxConcurrent operations run, at most MaxQueue
// callers wait, and nobody waits longer than QueueTimeout.
type Bulkhead struct {
	config BulkheadConfig
	sem    *semaphore.Weighted

	inFlight int64
	waiting  int64
}

// NewBulkhead creates a bulkhead from config.
func NewBulkhead(config BulkheadConfig) *Bulkhead {
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 10
	}
	if config.MaxQueue <= 0 {
		config.MaxQueue = 10
	}
	if config.QueueTimeout <= 0 {
		config.QueueTimeout = 5 * time.Second
	}
	return &Bulkhead{
		config: config,
		sem:    semaphore.NewWeighted(int64(config.MaxConcurrent)),
	}
}

// InFlight returns the number of operations currently executing.
func (b *Bulkhead) InFlight() int { return int(atomic.LoadInt64(&b.inFlight)) }

// Waiting returns the number of callers queued for a slot.
func (b *Bulkhead) Waiting() int { return int(atomic.LoadInt64(&b.waiting)) }

// Execute runs op inside the bulkhead. Callers beyond MaxConcurrent wait
// up to QueueTimeout for a slot; callers beyond MaxQueue, or whose wait
// times out, fail with *BulkheadFullError.
func (b *Bulkhead) Execute(ctx context.Context, op Operation) (any, error) {
	if !b.sem.TryAcquire(1) {
		waiting := atomic.AddInt64(&b.waiting, 1)
		if waiting > int64(b.config.MaxQueue) {
			atomic.AddInt64(&b.waiting, -1)
			return nil, &BulkheadFullError{
				MaxConcurrent: b.config.MaxConcurrent,
				MaxQueue:      b.config.MaxQueue,
			}
		}

		waitCtx, cancel := context.WithTimeout(ctx, b.config.QueueTimeout)
		err := b.sem.Acquire(waitCtx, 1)
		cancel()
		atomic.AddInt64(&b.waiting, -1)

		if err != nil {
			// The caller's own cancellation surfaces as such, not as a
			// saturated bulkhead.
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, &BulkheadFullError{
					MaxConcurrent: b.config.MaxConcurrent,
					MaxQueue:      b.config.MaxQueue,
				}
			}
			return nil, err
		}
	}

	atomic.AddInt64(&b.inFlight, 1)
	defer func() {
		atomic.AddInt64(&b.inFlight, -1)
		b.sem.Release(1)
	}()

	return op(ctx)
}

// Wrap returns an Operation guarded by the bulkhead.
func (b *Bulkhead) Wrap(op Operation) Operation {
	return func(ctx context.Context) (any, error) {
		return b.Execute(ctx, op)
	}
}
