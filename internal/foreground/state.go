package foreground

import (
	"context"
	"sync"
)

// State is the process-wide "foreground service active" flag. Only a Coordinator
// writes it; any component may read or watch it.
type State struct {
	mu       sync.Mutex
	value    bool
	watchers map[uint64]chan bool
	next     uint64
}

func NewState() *State {
	return &State{watchers: make(map[uint64]chan bool)}
}

func (s *State) Get() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Watch yields the current value, then every change until ctx ends. A slow watcher
// only sees the latest value.
func (s *State) Watch(ctx context.Context) <-chan bool {
	ch := make(chan bool, 1)
	s.mu.Lock()
	id := s.next
	s.next++
	s.watchers[id] = ch
	ch <- s.value
	s.mu.Unlock()

	out := make(chan bool)
	go func() {
		defer close(out)
		defer func() {
			s.mu.Lock()
			delete(s.watchers, id)
			s.mu.Unlock()
		}()
		for {
			select {
			case v := <-ch:
				select {
				case out <- v:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func (s *State) set(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.value == v {
		return
	}
	s.value = v
	for _, ch := range s.watchers {
		select {
		case <-ch:
		default:
		}
		ch <- v
	}
}
