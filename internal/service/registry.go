package service

import (
	"context"

	"github.com/danmuck/remoteflow/internal/bridge"
	"github.com/danmuck/remoteflow/internal/foreground"
)

// Registry holds the process-scoped collaborators that every component of one
// process shares.
type Registry struct {
	State   *foreground.State
	Locator bridge.Locator
	Target  bridge.Target
}

func NewRegistry(locator bridge.Locator, target bridge.Target) *Registry {
	return &Registry{
		State:   foreground.NewState(),
		Locator: locator,
		Target:  target,
	}
}

// Dial builds a client channel to the well-known server target.
func (r *Registry) Dial(ctx context.Context, binder *bridge.Binder, name string) (*bridge.Channel[string], error) {
	if binder == nil {
		binder = bridge.NewBinder(r.Locator)
	}
	return bridge.Dial(ctx, binder, r.Target, bridge.Options[string]{Name: name})
}

// DialRetry is Dial for a server that may still be starting.
func (r *Registry) DialRetry(ctx context.Context, binder *bridge.Binder, name string, attempts int) (*bridge.Channel[string], error) {
	if binder == nil {
		binder = bridge.NewBinder(r.Locator)
	}
	return bridge.DialRetry(ctx, binder, r.Target, bridge.Options[string]{Name: name}, bridge.DefaultBackoff(), attempts)
}

// StatusPath is where the server's FileElevator advertises elevation.
func (r *Registry) StatusPath() (string, error) {
	return statusPath(r.Locator, r.Target.ProcessID)
}
