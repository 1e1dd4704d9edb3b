package singleflight

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDoSingleCaller(t *testing.T) {
	g := New()

	v, err, shared := g.Do(context.Background(), "key", func() (any, error) {
		return "value", nil
	})

	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	if v != "value" {
		t.Errorf("Expected value, got %v", v)
	}
	if shared {
		t.Error("Expected sole caller to not be marked shared")
	}
}

func TestDoCoalescesConcurrentCallers(t *testing.T) {
	g := New()
	var executions int64
	gate := make(chan struct{})

	const callers = 5
	var wg sync.WaitGroup
	values := make([]any, callers)
	sharedFlags := make([]bool, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			values[i], _, sharedFlags[i] = g.Do(context.Background(), "key", func() (any, error) {
				atomic.AddInt64(&executions, 1)
				<-gate
				return "shared", nil
			})
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()

	if n := atomic.LoadInt64(&executions); n != 1 {
		t.Errorf("Expected one execution, got %d", n)
	}
	sharedCount := 0
	for i := 0; i < callers; i++ {
		if values[i] != "shared" {
			t.Errorf("Caller %d got %v", i, values[i])
		}
		if sharedFlags[i] {
			sharedCount++
		}
	}
	if sharedCount != callers-1 {
		t.Errorf("Expected %d shared results, got %d", callers-1, sharedCount)
	}
}

func TestDoPropagatesError(t *testing.T) {
	g := New()
	boom := errors.New("boom")

	_, err, _ := g.Do(context.Background(), "key", func() (any, error) {
		return nil, boom
	})

	if err != boom {
		t.Errorf("Expected the function error, got %v", err)
	}
}

func TestDoWaiterCancellation(t *testing.T) {
	g := New()
	gate := make(chan struct{})
	started := make(chan struct{})

	go func() {
		g.Do(context.Background(), "key", func() (any, error) {
			close(started)
			<-gate
			return "slow", nil
		})
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err, shared := g.Do(ctx, "key", func() (any, error) {
		t.Error("Duplicate caller must not execute")
		return nil, nil
	})
	close(gate)

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled for abandoned waiter, got %v", err)
	}
	if shared {
		t.Error("Expected abandoned waiter to not be marked shared")
	}
}

func TestForget(t *testing.T) {
	g := New()
	var executions int64
	gate := make(chan struct{})
	started := make(chan struct{})

	go func() {
		g.Do(context.Background(), "key", func() (any, error) {
			atomic.AddInt64(&executions, 1)
			close(started)
			<-gate
			return nil, nil
		})
	}()
	<-started

	g.Forget("key")

	done := make(chan struct{})
	go func() {
		g.Do(context.Background(), "key", func() (any, error) {
			atomic.AddInt64(&executions, 1)
			return nil, nil
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Expected forgotten key to execute independently")
	}
	close(gate)

	if n := atomic.LoadInt64(&executions); n != 2 {
		t.Errorf("Expected 2 executions after Forget, got %d", n)
	}
}
