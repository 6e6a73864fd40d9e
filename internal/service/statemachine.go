package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/danmuck/remoteflow/internal/bridge"
	"github.com/danmuck/remoteflow/internal/control"
	"github.com/danmuck/remoteflow/internal/foreground"
	"github.com/danmuck/remoteflow/internal/task"
	"github.com/rs/zerolog/log"
)

type Action = control.Action

const (
	ActionStart = control.ActionStart
	ActionStop  = control.ActionStop
)

var ErrUnknownAction = control.ErrUnknownAction

func ParseAction(raw string) (Action, error) {
	return control.ParseAction(raw)
}

const (
	CommandStart = "start"
	CommandStop  = "stop"
	ReplyPrefix  = "Received: "
)

// Stream is the server side of the bridge as seen by the state machine.
type Stream interface {
	Subscribe(ctx context.Context) <-chan string
	Publish(v string) *bridge.Delivery
}

// Coordinator is the foreground facility the receive loop drives.
type Coordinator interface {
	Start(ctx context.Context, customize func(*foreground.Descriptor)) error
	Stop(ctx context.Context) error
	Active() bool
}

// StateMachine maps lifecycle actions onto the receive loop and the coordinator.
type StateMachine struct {
	stream Stream
	coord  Coordinator

	mu       sync.Mutex
	loop     *task.Task
	tornDown bool

	terminated chan struct{}
	termOnce   sync.Once
}

func NewStateMachine(stream Stream, coord Coordinator) *StateMachine {
	return &StateMachine{
		stream:     stream,
		coord:      coord,
		terminated: make(chan struct{}),
	}
}

// Handle applies one action. START launches the receive loop unless it runs already.
// STOP ends it and, when nothing keeps the process in the foreground, asks the
// process to terminate.
func (m *StateMachine) Handle(ctx context.Context, action Action) error {
	switch action {
	case ActionStart:
		m.startLoop()
		return nil
	case ActionStop:
		m.stopLoop()
		if !m.coord.Active() {
			m.requestTermination()
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, string(action))
	}
}

// Terminated is closed once the process was asked to exit.
func (m *StateMachine) Terminated() <-chan struct{} {
	return m.terminated
}

func (m *StateMachine) ReceiveLoopRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loop.Active()
}

// Teardown stops the foreground work first, then the receive loop. Later calls do nothing.
// Once it returns, neither the loop nor the foreground runs.
func (m *StateMachine) Teardown(ctx context.Context) {
	m.mu.Lock()
	if m.tornDown {
		m.mu.Unlock()
		return
	}
	m.tornDown = true
	m.mu.Unlock()

	if err := m.coord.Stop(ctx); err != nil {
		log.Warn().Err(err).Msg("service.StateMachine teardown foreground stop failed")
	}
	m.stopLoop()
	// a start already in flight when the loop was cancelled may have won the race
	if m.coord.Active() {
		if err := m.coord.Stop(ctx); err != nil {
			log.Warn().Err(err).Msg("service.StateMachine teardown foreground stop failed")
		}
	}
	log.Info().Msg("service.StateMachine torn down")
}

func (m *StateMachine) isTornDown() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tornDown
}

func (m *StateMachine) startLoop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tornDown || m.loop.Active() {
		return
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	// Subscribe before returning so that values sent right after START are seen.
	values := m.stream.Subscribe(loopCtx)
	m.loop = task.Go(loopCtx, "service.receive", func(ctx context.Context) {
		defer cancel()
		m.receive(ctx, values)
	})
	log.Info().Msg("service.StateMachine receive loop started")
}

func (m *StateMachine) stopLoop() {
	m.mu.Lock()
	loop := m.loop
	m.loop = nil
	m.mu.Unlock()
	if loop == nil {
		return
	}
	loop.Stop()
	log.Info().Msg("service.StateMachine receive loop stopped")
}

func (m *StateMachine) receive(ctx context.Context, values <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-values:
			if !ok {
				return
			}
			m.apply(ctx, v)
		}
	}
}

func (m *StateMachine) apply(ctx context.Context, v string) {
	switch v {
	case CommandStart:
		if m.isTornDown() {
			log.Debug().Msg("service.StateMachine ignored start during teardown")
			return
		}
		if err := m.coord.Start(ctx, nil); err != nil {
			log.Warn().Err(err).Msg("service.StateMachine foreground start failed")
		}
	case CommandStop:
		if err := m.coord.Stop(ctx); err != nil {
			log.Warn().Err(err).Msg("service.StateMachine foreground stop failed")
		}
	default:
		m.stream.Publish(ReplyPrefix + v)
	}
}

func (m *StateMachine) requestTermination() {
	m.termOnce.Do(func() {
		close(m.terminated)
		log.Info().Msg("service.StateMachine termination requested")
	})
}
