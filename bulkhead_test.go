package gandewa

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestBulkheadDefaults(t *testing.T) {
	b := NewBulkhead(BulkheadConfig{})

	if b.config.MaxConcurrent != 10 {
		t.Errorf("Expected max concurrent 10, got %d", b.config.MaxConcurrent)
	}
	if b.config.MaxQueue != 10 {
		t.Errorf("Expected max queue 10, got %d", b.config.MaxQueue)
	}
	if b.config.QueueTimeout != 5*time.Second {
		t.Errorf("Expected queue timeout 5s, got %v", b.config.QueueTimeout)
	}
}

func TestBulkheadBoundsConcurrency(t *testing.T) {
	b := NewBulkhead(BulkheadConfig{MaxConcurrent: 2, MaxQueue: 10, QueueTimeout: time.Second})
	ctx := context.Background()

	var peak, current int64
	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = b.Execute(ctx, func(ctx context.Context) (any, error) {
				n := atomic.AddInt64(&current, 1)
				for {
					p := atomic.LoadInt64(&peak)
					if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				atomic.AddInt64(&current, -1)
				return nil, nil
			})
		}()
	}
	wg.Wait()

	if peak > 2 {
		t.Errorf("Expected at most 2 concurrent executions, observed %d", peak)
	}
}

func TestBulkheadQueueTimeout(t *testing.T) {
	b := NewBulkhead(BulkheadConfig{MaxConcurrent: 1, MaxQueue: 5, QueueTimeout: 10 * time.Millisecond})
	ctx := context.Background()

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_, _ = b.Execute(ctx, func(ctx context.Context) (any, error) {
			close(started)
			<-release
			return nil, nil
		})
	}()
	<-started

	_, err := b.Execute(ctx, func(ctx context.Context) (any, error) {
		return nil, nil
	})
	close(release)

	var fullErr *BulkheadFullError
	if !errors.As(err, &fullErr) {
		t.Fatalf("Expected *BulkheadFullError after queue timeout, got %v", err)
	}
	if fullErr.MaxConcurrent != 1 {
		t.Errorf("Expected max concurrent 1 in error, got %d", fullErr.MaxConcurrent)
	}
}

func TestBulkheadQueueOverflow(t *testing.T) {
	b := NewBulkhead(BulkheadConfig{MaxConcurrent: 1, MaxQueue: 1, QueueTimeout: time.Second})
	ctx := context.Background()

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_, _ = b.Execute(ctx, func(ctx context.Context) (any, error) {
			close(started)
			<-release
			return nil, nil
		})
	}()
	<-started

	// Fill the single queue slot.
	queued := make(chan struct{})
	go func() {
		close(queued)
		_, _ = b.Execute(ctx, func(ctx context.Context) (any, error) {
			return nil, nil
		})
	}()
	<-queued
	time.Sleep(10 * time.Millisecond)

	_, err := b.Execute(ctx, func(ctx context.Context) (any, error) {
		return nil, nil
	})
	close(release)

	if !errors.Is(err, ErrBulkheadFull) {
		t.Fatalf("Expected bulkhead full for overflow caller, got %v", err)
	}
}

func TestBulkheadCallerCancellation(t *testing.T) {
	b := NewBulkhead(BulkheadConfig{MaxConcurrent: 1, MaxQueue: 5, QueueTimeout: time.Minute})

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_, _ = b.Execute(context.Background(), func(ctx context.Context) (any, error) {
			close(started)
			<-release
			return nil, nil
		})
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := b.Execute(ctx, func(ctx context.Context) (any, error) {
		return nil, nil
	})
	close(release)

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected caller cancellation to surface as context.Canceled, got %v", err)
	}
}
