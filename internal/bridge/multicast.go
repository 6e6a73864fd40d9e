package bridge

import (
	"context"
	"sync"
)

// Multicast fans every published value out to all current subscribers. Publish calls are
// serialized, so every subscriber observes the same total order. Each subscriber drains
// its own unbounded queue: a slow reader delays only itself and never loses values.
// There is no replay; a subscriber sees values published after it subscribed.
type Multicast[T any] struct {
	mu     sync.Mutex
	subs   map[uint64]*queue[T]
	next   uint64
	closed bool
}

func NewMulticast[T any]() *Multicast[T] {
	return &Multicast[T]{subs: make(map[uint64]*queue[T])}
}

// Subscribe returns a stream that stays open until ctx ends or the multicast closes.
// Values queued before Close are still delivered.
func (m *Multicast[T]) Subscribe(ctx context.Context) <-chan T {
	out := make(chan T)
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		close(out)
		return out
	}
	id := m.next
	m.next++
	q := newQueue[T]()
	m.subs[id] = q
	m.mu.Unlock()

	go func() {
		defer close(out)
		defer m.unsubscribe(id)
		for {
			v, ok := q.pop(ctx)
			if !ok {
				return
			}
			select {
			case out <- v:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Publish reports false once the multicast is closed.
func (m *Multicast[T]) Publish(v T) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	for _, q := range m.subs {
		q.push(v)
	}
	return true
}

// Subscribers reports the number of live subscriptions.
func (m *Multicast[T]) Subscribers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

func (m *Multicast[T]) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	for _, q := range m.subs {
		q.close()
	}
}

func (m *Multicast[T]) unsubscribe(id uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if q, ok := m.subs[id]; ok {
		q.close()
		delete(m.subs, id)
	}
}
