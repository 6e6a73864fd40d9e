package bridge

import (
	"context"
	"sync"
)

// queue is an unbounded FIFO with a single consumer.
type queue[E any] struct {
	mu     sync.Mutex
	items  []E
	wake   chan struct{}
	closed bool
}

func newQueue[E any]() *queue[E] {
	return &queue[E]{wake: make(chan struct{}, 1)}
}

func (q *queue[E]) push(e E) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, e)
	q.mu.Unlock()
	q.notify()
	return true
}

// close stops new pushes; items already queued are still handed out by pop.
func (q *queue[E]) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.notify()
}

// pop blocks until an item is available. It returns false once the queue is closed
// and empty, or when ctx ends while the queue is empty.
func (q *queue[E]) pop(ctx context.Context) (E, bool) {
	var zero E
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			e := q.items[0]
			q.items[0] = zero
			q.items = q.items[1:]
			q.mu.Unlock()
			return e, true
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return zero, false
		}
		select {
		case <-q.wake:
		case <-ctx.Done():
			return zero, false
		}
	}
}

func (q *queue[E]) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *queue[E]) notify() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
