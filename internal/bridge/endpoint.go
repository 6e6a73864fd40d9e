package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/danmuck/remoteflow/internal/protocol/envelope"
	"github.com/danmuck/remoteflow/internal/protocol/frame"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// EndpointRef identifies a message sink on the wire.
type EndpointRef = envelope.EndpointRef

// Endpoint is a sink messages can be sent into.
type Endpoint interface {
	Ref() EndpointRef
	Send(env envelope.Envelope) error
}

// dispatcher receives what a LocalEndpoint reads off its connections.
type dispatcher interface {
	onControl(from *connEndpoint)
	onData(payload []byte)
	onClosed(from *connEndpoint, err error)
}

// LocalEndpoint is the stable inbound sink of one channel. Every connection it serves
// is read by its own goroutine and dispatched to the owning channel.
type LocalEndpoint struct {
	ref    EndpointRef
	limits frame.Limits
	d      dispatcher

	mu     sync.Mutex
	conns  map[*connEndpoint]struct{}
	closed bool
}

func newLocalEndpoint(processID, service string, limits frame.Limits, d dispatcher) *LocalEndpoint {
	return &LocalEndpoint{
		ref: EndpointRef{
			ID:        uuid.NewString(),
			ProcessID: processID,
			Service:   service,
		},
		limits: limits,
		d:      d,
		conns:  make(map[*connEndpoint]struct{}),
	}
}

func (l *LocalEndpoint) Ref() EndpointRef {
	return l.ref
}

// Send delivers env to this endpoint's own dispatcher.
func (l *LocalEndpoint) Send(env envelope.Envelope) error {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return ErrEndpointClosed
	}
	switch env.Kind {
	case envelope.KindData:
		l.d.onData(env.Data)
		return nil
	case envelope.KindControl:
		return fmt.Errorf("%w: control envelopes need a connection", envelope.ErrInvalidControl)
	default:
		return fmt.Errorf("%w: %d", envelope.ErrUnknownKind, uint16(env.Kind))
	}
}

// Serve reads envelopes from conn until it closes or ctx ends. The counterpart learns
// nothing about this endpoint until it announces itself with a control envelope.
func (l *LocalEndpoint) Serve(ctx context.Context, conn net.Conn) error {
	ep := newConnEndpoint(conn, EndpointRef{}, l.limits)
	return l.serve(ctx, ep)
}

func (l *LocalEndpoint) serve(ctx context.Context, ep *connEndpoint) error {
	if !l.track(ep) {
		_ = ep.Close()
		return ErrEndpointClosed
	}
	defer l.untrack(ep)

	stop := context.AfterFunc(ctx, func() { _ = ep.Close() })
	defer stop()

	var err error
	for {
		var env envelope.Envelope
		env, err = envelope.Read(ep.conn, l.limits)
		if err != nil {
			break
		}
		switch env.Kind {
		case envelope.KindControl:
			ep.setRef(env.Endpoint)
			l.d.onControl(ep)
		case envelope.KindData:
			l.d.onData(env.Data)
		}
	}
	_ = ep.Close()
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		err = nil
	}
	if err != nil {
		log.Debug().
			Str("endpoint", l.ref.ID).
			Str("remote", ep.Ref().String()).
			Err(err).
			Msg("bridge.LocalEndpoint serve ended")
	}
	l.d.onClosed(ep, err)
	return err
}

func (l *LocalEndpoint) track(ep *connEndpoint) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	l.conns[ep] = struct{}{}
	return true
}

func (l *LocalEndpoint) untrack(ep *connEndpoint) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.conns, ep)
}

// closeConns closes every connection currently served.
func (l *LocalEndpoint) closeConns() {
	l.mu.Lock()
	conns := make([]*connEndpoint, 0, len(l.conns))
	for ep := range l.conns {
		conns = append(conns, ep)
	}
	l.mu.Unlock()
	for _, ep := range conns {
		_ = ep.Close()
	}
}

func (l *LocalEndpoint) close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	l.closeConns()
}

// connEndpoint is the sending half of one connection: the remote endpoint as seen from
// this process. It does not own the counterpart and fails once the connection is gone.
type connEndpoint struct {
	conn   net.Conn
	limits frame.Limits

	refMu sync.RWMutex
	ref   EndpointRef

	writeMu sync.Mutex
	closed  atomic.Bool
}

func newConnEndpoint(conn net.Conn, ref EndpointRef, limits frame.Limits) *connEndpoint {
	return &connEndpoint{conn: conn, ref: ref, limits: limits}
}

func (c *connEndpoint) Ref() EndpointRef {
	c.refMu.RLock()
	defer c.refMu.RUnlock()
	return c.ref
}

func (c *connEndpoint) setRef(ref EndpointRef) {
	c.refMu.Lock()
	defer c.refMu.Unlock()
	c.ref = ref
}

func (c *connEndpoint) Send(env envelope.Envelope) error {
	if c.closed.Load() {
		return ErrEndpointClosed
	}
	raw, err := envelope.Marshal(env, c.limits)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.conn.Write(raw); err != nil {
		// a failed write leaves the stream unframed
		_ = c.Close()
		return fmt.Errorf("%w: %v", ErrEndpointClosed, err)
	}
	return nil
}

func (c *connEndpoint) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.conn.Close()
}
