// Package singleflight coalesces concurrent calls that share a key so
// only one underlying execution is in flight at a time. Unlike the
// classic variant, waiters are context-aware: a cancelled waiter
// abandons the shared call without affecting the owner or other waiters.
package singleflight

import (
	"context"
	"sync"
	"time"
)

// Group manages a set of in-flight calls keyed by string.
type Group struct {
	mu sync.Mutex
	m  map[string]*call
}

// call represents an active or completed function call.
type call struct {
	done chan struct{}
	val  any
	err  error
}

// New creates a new singleflight Group.
func New() *Group {
	return &Group{
		m: make(map[string]*call),
	}
}

// Do executes and returns the results of the given function, making sure
// that only one execution is in flight for a given key at a time. A
// duplicate caller waits for the original to complete and receives the
// same results, or returns early with ctx.Err() if its context is
// cancelled first. shared reports whether the result came from another
// caller's execution.
func (g *Group) Do(ctx context.Context, key string, fn func() (any, error)) (v any, err error, shared bool) {
	g.mu.Lock()
	if c, ok := g.m[key]; ok {
		g.mu.Unlock()
		select {
		case <-c.done:
			return c.val, c.err, true
		case <-ctx.Done():
			return nil, ctx.Err(), false
		}
	}

	c := &call{done: make(chan struct{})}
	g.m[key] = c
	g.mu.Unlock()

	c.val, c.err = fn()
	close(c.done)

	// Keep the entry briefly so immediate duplicates still coalesce,
	// then drop it to bound memory.
	time.AfterFunc(100*time.Millisecond, func() {
		g.mu.Lock()
		if g.m[key] == c {
			delete(g.m, key)
		}
		g.mu.Unlock()
	})

	return c.val, c.err, false
}

// Forget removes the key from the group's map, allowing the next call
// with the same key to execute rather than coalesce.
func (g *Group) Forget(key string) {
	g.mu.Lock()
	delete(g.m, key)
	g.mu.Unlock()
}
