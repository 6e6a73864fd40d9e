package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/danmuck/remoteflow/internal/observability"
	"github.com/danmuck/remoteflow/internal/protocol/envelope"
	"github.com/danmuck/remoteflow/internal/protocol/frame"
	"github.com/danmuck/remoteflow/internal/task"
	"github.com/rs/zerolog/log"
)

// ChannelState is the binding state of a channel.
type ChannelState int32

const (
	StateUnbound ChannelState = iota
	StateBinding
	StateBound
	StateDisconnected
)

func (s ChannelState) String() string {
	switch s {
	case StateUnbound:
		return "unbound"
	case StateBinding:
		return "binding"
	case StateBound:
		return "bound"
	case StateDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("channel_state(%d)", int32(s))
	}
}

// DefaultChannelName labels logs and metrics of a channel created without a Name.
const DefaultChannelName = "channel"

// Options configure a channel. ProcessID and Service only label the local endpoint.
type Options[T any] struct {
	Name      string
	ProcessID string
	Service   string
	Codec     Codec[T]
	Limits    frame.Limits
}

// Stats counts data values moving through a channel.
type Stats struct {
	Published uint64
	Dropped   uint64
	Received  uint64
}

type remoteBox struct {
	ep Endpoint
}

type outgoing[T any] struct {
	value    T
	remote   *remoteBox
	delivery *Delivery
}

// Channel is a typed bidirectional multicast bridge to one counterpart process.
//
// Received data values fan out to every subscriber in arrival order. Published values
// go to the remote endpoint known at the time of the Publish call, one at a time and in
// call order. With no remote endpoint the value is dropped and counted.
type Channel[T any] struct {
	name   string
	codec  Codec[T]
	limits frame.Limits

	local  *LocalEndpoint
	remote atomic.Pointer[remoteBox]
	hub    *Multicast[T]

	ctx    context.Context
	cancel context.CancelFunc
	outbox *queue[outgoing[T]]
	sender *task.Task

	state   atomic.Int32
	unbound atomic.Bool
	mu      sync.Mutex
	pending *PendingConn
	err     error

	ready        chan struct{}
	readyOnce    sync.Once
	disconnected chan struct{}
	discOnce     sync.Once
	unbindOnce   sync.Once
	closeOnce    sync.Once

	published atomic.Uint64
	dropped   atomic.Uint64
	received  atomic.Uint64
}

// New creates an unbound channel. It learns its counterpart when one connects to its
// local endpoint and announces itself.
func New[T any](opts Options[T]) *Channel[T] {
	if opts.Codec == nil {
		opts.Codec = CBORCodec[T]{}
	}
	if opts.Limits.MaxPayloadBytes == 0 {
		opts.Limits = frame.DefaultLimits()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Channel[T]{
		codec:        opts.Codec,
		limits:       opts.Limits,
		hub:          NewMulticast[T](),
		ctx:          ctx,
		cancel:       cancel,
		outbox:       newQueue[outgoing[T]](),
		ready:        make(chan struct{}),
		disconnected: make(chan struct{}),
	}
	c.local = newLocalEndpoint(opts.ProcessID, opts.Service, opts.Limits, c)
	c.name = opts.Name
	if c.name == "" {
		c.name = DefaultChannelName
	}
	c.sender = task.Go(ctx, "bridge.channel.outbox", c.runOutbox)
	return c
}

// Dial creates a channel and requests a connection to target. A rejected request is
// returned as a *BindError and the channel is discarded.
func Dial[T any](ctx context.Context, binder *Binder, target Target, opts Options[T]) (*Channel[T], error) {
	c := New(opts)
	if err := c.Bind(ctx, binder, target); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// Bind issues the connection request of an unbound channel. A channel binds at most once.
func (c *Channel[T]) Bind(ctx context.Context, binder *Binder, target Target) error {
	c.mu.Lock()
	if c.pending != nil || ChannelState(c.state.Load()) != StateUnbound {
		c.mu.Unlock()
		return ErrAlreadyBound
	}
	pc, err := binder.Connect(ctx, target)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.pending = pc
	c.state.Store(int32(StateBinding))
	c.mu.Unlock()

	remoteRef := EndpointRef{ID: target.String(), ProcessID: target.ProcessID, Service: target.Service}
	go c.watch(pc, remoteRef)
	return nil
}

func (c *Channel[T]) Name() string {
	return c.name
}

// LocalHandle is the stable endpoint to hand to a Host.
func (c *Channel[T]) LocalHandle() *LocalEndpoint {
	return c.local
}

func (c *Channel[T]) State() ChannelState {
	return ChannelState(c.state.Load())
}

// Ready is closed once this side knows a remote endpoint.
func (c *Channel[T]) Ready() <-chan struct{} {
	return c.ready
}

// WaitReady blocks until Ready, disconnection, or ctx end.
func (c *Channel[T]) WaitReady(ctx context.Context) error {
	select {
	case <-c.ready:
		return nil
	case <-c.disconnected:
		return c.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Connected reports whether a remote endpoint is currently known.
func (c *Channel[T]) Connected() bool {
	return c.remote.Load() != nil
}

// Disconnected is closed when the connection this channel initiated is lost or fails.
func (c *Channel[T]) Disconnected() <-chan struct{} {
	return c.disconnected
}

// Err reports why the channel was disconnected.
func (c *Channel[T]) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Channel[T]) Stats() Stats {
	return Stats{
		Published: c.published.Load(),
		Dropped:   c.dropped.Load(),
		Received:  c.received.Load(),
	}
}

// Subscribe returns a live stream of received values, closed when ctx ends or the channel closes.
func (c *Channel[T]) Subscribe(ctx context.Context) <-chan T {
	return c.hub.Subscribe(ctx)
}

// Publish enqueues v for the current remote endpoint and returns immediately.
func (c *Channel[T]) Publish(v T) *Delivery {
	d := newDelivery()
	box := c.remote.Load()
	if box == nil {
		c.drop(d, observability.DropNoRemote, nil)
		return d
	}
	if !c.outbox.push(outgoing[T]{value: v, remote: box, delivery: d}) {
		c.drop(d, observability.DropClosed, ErrChannelClosed)
	}
	return d
}

// Unbind tears the connection down once; later calls do nothing. The channel is not
// reusable afterwards.
func (c *Channel[T]) Unbind() {
	c.unbindOnce.Do(func() {
		c.mu.Lock()
		c.unbound.Store(true)
		pc := c.pending
		c.mu.Unlock()
		if pc != nil {
			pc.Disconnect()
		}
		c.local.closeConns()
		c.remote.Store(nil)
		c.state.Store(int32(StateUnbound))
		log.Debug().Str("channel", c.name).Msg("bridge.Channel unbound")
	})
}

// Close unbinds, flushes queued publishes and ends every subscriber stream.
func (c *Channel[T]) Close() {
	c.closeOnce.Do(func() {
		c.Unbind()
		c.outbox.close()
		c.sender.Wait()
		c.cancel()
		c.local.close()
		c.hub.Close()
	})
}

func (c *Channel[T]) watch(pc *PendingConn, remoteRef EndpointRef) {
	var ep *connEndpoint
	for ev := range pc.Events() {
		switch ev.State {
		case ConnBinding:
		case ConnBound:
			c.mu.Lock()
			if c.unbound.Load() {
				c.mu.Unlock()
				_ = ev.Conn.Close()
				continue
			}
			ep = newConnEndpoint(ev.Conn, remoteRef, c.limits)
			c.remote.Store(&remoteBox{ep: ep})
			c.state.Store(int32(StateBound))
			c.mu.Unlock()
			if err := ep.Send(envelope.Control(c.local.Ref())); err != nil {
				log.Warn().Str("channel", c.name).Err(err).Msg("bridge.Channel handshake send failed")
			}
			c.markReady(remoteRef)
			go func(ep *connEndpoint) { _ = c.local.serve(c.ctx, ep) }(ep)
		case ConnFailed, ConnDisconnected:
			c.clearRemote(ep)
			c.markDisconnected(ev.Err)
		case ConnUnbound:
			c.clearRemote(ep)
		}
	}
}

func (c *Channel[T]) runOutbox(ctx context.Context) {
	// Close drains the outbox before cancelling, so ctx only bounds the wait for new items.
	for {
		item, ok := c.outbox.pop(ctx)
		if !ok {
			return
		}
		c.send(item)
	}
}

func (c *Channel[T]) send(item outgoing[T]) {
	payload, err := c.codec.Marshal(item.value)
	if err != nil {
		c.drop(item.delivery, observability.DropEncode, err)
		return
	}
	if err := item.remote.ep.Send(envelope.Data(payload)); err != nil {
		c.remote.CompareAndSwap(item.remote, nil)
		if errors.Is(err, ErrEndpointClosed) {
			c.drop(item.delivery, observability.DropStaleRemote, err)
		} else {
			c.drop(item.delivery, observability.DropEncode, err)
		}
		return
	}
	c.published.Add(1)
	observability.RecordPublished(c.name)
	item.delivery.complete(nil, false)
}

func (c *Channel[T]) drop(d *Delivery, reason string, err error) {
	c.dropped.Add(1)
	observability.RecordDropped(c.name, reason)
	log.Debug().Str("channel", c.name).Str("reason", reason).Err(err).Msg("bridge.Channel publish dropped")
	d.complete(err, true)
}

// onControl records the announcing counterpart. An unbound channel refuses it.
func (c *Channel[T]) onControl(from *connEndpoint) {
	observability.RecordReceived(c.name, envelope.KindControl.String())
	c.mu.Lock()
	if c.unbound.Load() {
		c.mu.Unlock()
		_ = from.Close()
		log.Debug().Str("channel", c.name).Str("remote", from.Ref().String()).Msg("bridge.Channel refused handshake after unbind")
		return
	}
	c.remote.Store(&remoteBox{ep: from})
	c.mu.Unlock()
	c.markReady(from.Ref())
}

func (c *Channel[T]) onData(payload []byte) {
	if c.unbound.Load() {
		return
	}
	observability.RecordReceived(c.name, envelope.KindData.String())
	v, err := c.codec.Unmarshal(payload)
	if err != nil {
		log.Warn().Str("channel", c.name).Err(err).Msg("bridge.Channel discarded undecodable value")
		return
	}
	c.received.Add(1)
	c.hub.Publish(v)
}

func (c *Channel[T]) onClosed(from *connEndpoint, err error) {
	c.clearRemote(from)
	log.Debug().Str("channel", c.name).Str("remote", from.Ref().String()).Err(err).Msg("bridge.Channel connection closed")
}

// clearRemote empties the remote slot only while it still holds ep.
func (c *Channel[T]) clearRemote(ep *connEndpoint) {
	if ep == nil {
		return
	}
	box := c.remote.Load()
	if box != nil && box.ep == Endpoint(ep) {
		c.remote.CompareAndSwap(box, nil)
	}
}

func (c *Channel[T]) markReady(remote EndpointRef) {
	c.readyOnce.Do(func() {
		close(c.ready)
		log.Info().
			Str("channel", c.name).
			Str("local", c.local.Ref().ID).
			Str("remote", remote.String()).
			Msg("bridge.Channel handshake complete")
	})
}

func (c *Channel[T]) markDisconnected(err error) {
	c.discOnce.Do(func() {
		if err == nil {
			err = ErrDisconnected
		}
		c.mu.Lock()
		c.err = err
		c.mu.Unlock()
		c.state.Store(int32(StateDisconnected))
		close(c.disconnected)
		log.Warn().Str("channel", c.name).Err(err).Msg("bridge.Channel disconnected")
	})
}

// Delivery is the asynchronous completion of one Publish.
type Delivery struct {
	done    chan struct{}
	err     error
	dropped bool
}

func newDelivery() *Delivery {
	return &Delivery{done: make(chan struct{})}
}

func (d *Delivery) complete(err error, dropped bool) {
	d.err = err
	d.dropped = dropped
	close(d.done)
}

// Done is closed once the value was written to the transport or dropped.
func (d *Delivery) Done() <-chan struct{} {
	return d.done
}

// Wait blocks until Done or ctx end and returns Err.
func (d *Delivery) Wait(ctx context.Context) error {
	select {
	case <-d.done:
		return d.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err is the send failure, if any. A drop for lack of a remote endpoint has no error.
// Valid after Done.
func (d *Delivery) Err() error {
	select {
	case <-d.done:
		return d.err
	default:
		return nil
	}
}

// Dropped reports whether the value was discarded. Valid after Done.
func (d *Delivery) Dropped() bool {
	select {
	case <-d.done:
		return d.dropped
	default:
		return false
	}
}
