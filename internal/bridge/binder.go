package bridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"

	"github.com/rs/zerolog/log"
)

// ConnState is the lifecycle of one connection request.
type ConnState int

const (
	ConnUnbound ConnState = iota
	ConnBinding
	ConnBound
	ConnFailed
	ConnDisconnected
)

func (s ConnState) String() string {
	switch s {
	case ConnUnbound:
		return "unbound"
	case ConnBinding:
		return "binding"
	case ConnBound:
		return "bound"
	case ConnFailed:
		return "failed"
	case ConnDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("conn_state(%d)", int(s))
	}
}

// Terminal reports whether no further events follow s.
func (s ConnState) Terminal() bool {
	return s == ConnUnbound || s == ConnFailed || s == ConnDisconnected
}

// ConnEvent is one lifecycle transition. Conn is set only for ConnBound, Err only for
// ConnFailed and ConnDisconnected.
type ConnEvent struct {
	State ConnState
	Conn  net.Conn
	Err   error
}

// Binder asks the environment to connect to a named counterpart.
type Binder struct {
	locator Locator
	dialer  net.Dialer
}

func NewBinder(locator Locator) *Binder {
	return &Binder{locator: locator}
}

func (b *Binder) Locator() Locator {
	return b.locator
}

// Connect fails synchronously with a *BindError when the target cannot be located.
// Otherwise the connection is established in the background and reported on the
// returned PendingConn's Events.
func (b *Binder) Connect(ctx context.Context, target Target) (*PendingConn, error) {
	path, err := b.locator.SocketPath(target)
	if err != nil {
		return nil, &BindError{Target: target, Err: err}
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, &BindError{Target: target, Err: err}
	}
	if info.Mode()&os.ModeSocket == 0 {
		return nil, &BindError{Target: target, Err: fmt.Errorf("%s is not a socket", path)}
	}

	dialCtx, cancel := context.WithCancel(ctx)
	pc := &PendingConn{
		target: target,
		events: make(chan ConnEvent, 4),
		cancel: cancel,
	}
	pc.emitLocked(ConnEvent{State: ConnBinding})
	go pc.dial(dialCtx, &b.dialer, path)
	return pc, nil
}

// PendingConn is the handle of one connection request.
type PendingConn struct {
	target Target
	events chan ConnEvent
	cancel context.CancelFunc

	mu           sync.Mutex
	state        ConnState
	conn         net.Conn
	disconnected bool
	finished     bool
}

func (p *PendingConn) Target() Target {
	return p.target
}

// Events yields Binding, then Bound followed by Disconnected or Unbound, or Failed.
// The channel is closed after the terminal event and never blocks the producer.
func (p *PendingConn) Events() <-chan ConnEvent {
	return p.events
}

func (p *PendingConn) State() ConnState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Disconnect releases the connection. It is safe before the connection is bound,
// after it failed or was lost, and when called repeatedly.
func (p *PendingConn) Disconnect() {
	p.mu.Lock()
	if p.disconnected {
		p.mu.Unlock()
		return
	}
	p.disconnected = true
	conn := p.conn
	p.mu.Unlock()

	p.cancel()
	if conn != nil {
		_ = conn.Close()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.emitLocked(ConnEvent{State: ConnUnbound})
}

func (p *PendingConn) dial(ctx context.Context, dialer *net.Dialer, path string) {
	raw, err := dialer.DialContext(ctx, "unix", path)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		if p.disconnected {
			return
		}
		log.Warn().Str("target", p.target.String()).Err(err).Msg("bridge.Binder connect failed")
		p.emitLocked(ConnEvent{State: ConnFailed, Err: fmt.Errorf("%w: %v", ErrConnectFailed, err)})
		return
	}
	if p.disconnected {
		_ = raw.Close()
		return
	}
	conn := &trackedConn{Conn: raw, onLost: p.lost}
	p.conn = conn
	log.Debug().Str("target", p.target.String()).Msg("bridge.Binder connected")
	p.emitLocked(ConnEvent{State: ConnBound, Conn: conn})
}

// lost is the environment's disconnect notification for a bound connection.
func (p *PendingConn) lost(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disconnected || p.state != ConnBound {
		return
	}
	p.emitLocked(ConnEvent{State: ConnDisconnected, Err: fmt.Errorf("%w: %v", ErrDisconnected, err)})
}

func (p *PendingConn) emitLocked(ev ConnEvent) {
	if p.finished {
		return
	}
	p.state = ev.State
	p.events <- ev
	if ev.State.Terminal() {
		p.finished = true
		close(p.events)
	}
}

// trackedConn reports the first read or write failure of a bound connection.
type trackedConn struct {
	net.Conn
	once   sync.Once
	onLost func(error)
}

func (c *trackedConn) Read(b []byte) (int, error) {
	n, err := c.Conn.Read(b)
	if err != nil {
		c.report(err)
	}
	return n, err
}

func (c *trackedConn) Write(b []byte) (int, error) {
	n, err := c.Conn.Write(b)
	if err != nil {
		c.report(err)
	}
	return n, err
}

func (c *trackedConn) report(err error) {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return
	}
	c.once.Do(func() { c.onLost(err) })
}
