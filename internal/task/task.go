// Package task runs named background goroutines with an owning handle.
//
// A Task is cancelled cooperatively: Cancel only ends the context handed to the
// task function, and Wait returns once that function has returned. Stop does both,
// so after Stop returns the task starts no new work. A nil *Task behaves like a
// task that already finished.
package task

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

// Task is the handle of one running background function.
type Task struct {
	name   string
	cancel context.CancelFunc
	done   chan struct{}
	wg     conc.WaitGroup
}

// Go starts fn on its own goroutine with a context derived from parent.
func Go(parent context.Context, name string, fn func(ctx context.Context)) *Task {
	ctx, cancel := context.WithCancel(parent)
	t := &Task{
		name:   name,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	t.wg.Go(func() { fn(ctx) })
	go func() {
		defer close(t.done)
		defer cancel()
		if r := t.wg.WaitAndRecover(); r != nil {
			log.Error().
				Str("task", name).
				Str("panic", r.String()).
				Msg("task.Task recovered panic")
		}
	}()
	return t
}

func (t *Task) Name() string {
	if t == nil {
		return ""
	}
	return t.name
}

// Cancel requests the task to stop without waiting for it.
func (t *Task) Cancel() {
	if t == nil {
		return
	}
	t.cancel()
}

// Wait blocks until the task function has returned.
func (t *Task) Wait() {
	if t == nil {
		return
	}
	<-t.done
}

// Stop cancels the task and waits until it drained.
func (t *Task) Stop() {
	t.Cancel()
	t.Wait()
}

// Done is closed once the task function has returned.
func (t *Task) Done() <-chan struct{} {
	if t == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return t.done
}

// Active reports whether the task function is still running.
func (t *Task) Active() bool {
	if t == nil {
		return false
	}
	select {
	case <-t.done:
		return false
	default:
		return true
	}
}
