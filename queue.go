package gandewa

import (
	"context"
	"sync"
)

// queueItem is either a subscription event or the distinguished shutdown
// sentinel, never both.
type queueItem struct {
	event    StreamEvent
	shutdown bool
}

// eventQueue is the per-subscription FIFO between the engine's receive
// loop and consumers pulling through Next. Buffered events are always
// delivered before the shutdown state becomes observable, so a consumer
// never loses data that arrived ahead of termination.
type eventQueue struct {
	mu       sync.Mutex
	items    []queueItem
	maxSize  int
	shutdown bool

	// notify wakes one blocked taker per buffered signal; takers re-check
	// under the lock so spurious wakeups are harmless.
	notify chan struct{}
	// shutdownCh broadcasts the sentinel to every blocked taker at once.
	shutdownCh chan struct{}
}

// newEventQueue creates a queue. maxSize 0 means unbounded; a bounded
// queue drops its oldest buffered event to admit a new one, keeping the
// freshest data for slow consumers.
func newEventQueue(maxSize int) *eventQueue {
	return &eventQueue{
		maxSize:    maxSize,
		notify:     make(chan struct{}, 1),
		shutdownCh: make(chan struct{}),
	}
}

// push appends an event. Events arriving after shutdown are dropped.
func (q *eventQueue) push(event StreamEvent) {
	q.mu.Lock()
	if q.shutdown {
		q.mu.Unlock()
		return
	}
	if q.maxSize > 0 && len(q.items) >= q.maxSize {
		q.items = q.items[1:]
	}
	q.items = append(q.items, queueItem{event: event})
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// pushShutdown makes the sentinel observable to all present and future
// takers once the buffered events drain. Idempotent.
func (q *eventQueue) pushShutdown() {
	q.mu.Lock()
	if q.shutdown {
		q.mu.Unlock()
		return
	}
	q.shutdown = true
	q.mu.Unlock()

	close(q.shutdownCh)
}

// take returns the next item, blocking until an event arrives, the
// sentinel becomes observable, or ctx is cancelled. The only error it
// returns is ctx.Err().
func (q *eventQueue) take(ctx context.Context) (queueItem, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.items[0]
			q.items = q.items[1:]
			remaining := len(q.items)
			q.mu.Unlock()

			// Re-signal so a second blocked taker sees remaining items.
			if remaining > 0 {
				select {
				case q.notify <- struct{}{}:
				default:
				}
			}
			return item, nil
		}
		down := q.shutdown
		q.mu.Unlock()

		if down {
			return queueItem{shutdown: true}, nil
		}

		select {
		case <-q.notify:
		case <-q.shutdownCh:
		case <-ctx.Done():
			return queueItem{}, ctx.Err()
		}
	}
}

// len returns the number of buffered events.
func (q *eventQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
