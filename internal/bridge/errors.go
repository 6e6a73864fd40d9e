package bridge

import (
	"errors"
	"fmt"
)

var (
	ErrBindRejected   = errors.New("bridge: bind rejected")
	ErrInvalidTarget  = errors.New("bridge: invalid target")
	ErrEndpointClosed = errors.New("bridge: endpoint closed")
	ErrDisconnected   = errors.New("bridge: counterpart disconnected")
	ErrConnectFailed  = errors.New("bridge: connect failed")
	ErrChannelClosed  = errors.New("bridge: channel closed")
	ErrAlreadyBound   = errors.New("bridge: channel already bound")
	ErrAddressInUse   = errors.New("bridge: target already served")
)

// BindError reports a connection request the environment refused. It is fatal to the
// channel that issued it; a retry needs a fresh channel.
type BindError struct {
	Target Target
	Err    error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("bridge: bind rejected target=%s: %v", e.Target, e.Err)
}

func (e *BindError) Unwrap() []error {
	return []error{ErrBindRejected, e.Err}
}
