// Package envelope defines the bridge wire envelope: a tagged union of a control
// payload (an endpoint announcement used by the handshake) and a data payload
// (one encoded stream value).
package envelope

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/danmuck/remoteflow/internal/protocol/frame"
	"github.com/fxamacker/cbor/v2"
)

// Kind tags the envelope payload.
type Kind uint16

const (
	KindControl Kind = 1
	KindData    Kind = 2
)

func (k Kind) String() string {
	switch k {
	case KindControl:
		return "control"
	case KindData:
		return "data"
	default:
		return fmt.Sprintf("kind(%d)", uint16(k))
	}
}

var (
	ErrUnknownKind    = errors.New("envelope: unknown kind")
	ErrInvalidControl = errors.New("envelope: invalid control payload")
)

// EndpointRef identifies a message sink announced to the counterpart.
type EndpointRef struct {
	ID        string `cbor:"id"`
	ProcessID string `cbor:"process_id,omitempty"`
	Service   string `cbor:"service,omitempty"`
}

func (r EndpointRef) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("%w: missing endpoint id", ErrInvalidControl)
	}
	return nil
}

func (r EndpointRef) String() string {
	if r.ProcessID == "" && r.Service == "" {
		return r.ID
	}
	return fmt.Sprintf("%s/%s#%s", r.ProcessID, r.Service, r.ID)
}

// Envelope is one bridge message. Endpoint is set only for KindControl, Data only for KindData.
type Envelope struct {
	Kind     Kind
	Endpoint EndpointRef
	Data     []byte
}

func Control(ref EndpointRef) Envelope {
	return Envelope{Kind: KindControl, Endpoint: ref}
}

func Data(payload []byte) Envelope {
	return Envelope{Kind: KindData, Data: payload}
}

// Encode renders env as one frame.
func Encode(env Envelope) (frame.Frame, error) {
	var payload []byte
	switch env.Kind {
	case KindControl:
		if err := env.Endpoint.Validate(); err != nil {
			return frame.Frame{}, err
		}
		b, err := cbor.Marshal(env.Endpoint)
		if err != nil {
			return frame.Frame{}, fmt.Errorf("envelope: encode endpoint: %w", err)
		}
		payload = b
	case KindData:
		payload = env.Data
	default:
		return frame.Frame{}, fmt.Errorf("%w: %d", ErrUnknownKind, uint16(env.Kind))
	}
	return frame.Frame{
		Header:  frame.Header{Kind: uint16(env.Kind)},
		Payload: payload,
	}, nil
}

// Decode parses one frame into an envelope.
func Decode(f frame.Frame) (Envelope, error) {
	switch Kind(f.Header.Kind) {
	case KindControl:
		var ref EndpointRef
		if err := cbor.Unmarshal(f.Payload, &ref); err != nil {
			return Envelope{}, fmt.Errorf("%w: %v", ErrInvalidControl, err)
		}
		if err := ref.Validate(); err != nil {
			return Envelope{}, err
		}
		return Control(ref), nil
	case KindData:
		return Data(f.Payload), nil
	default:
		return Envelope{}, fmt.Errorf("%w: %d", ErrUnknownKind, f.Header.Kind)
	}
}

// Write encodes env and writes it to w as a single write.
func Write(w io.Writer, env Envelope, limits frame.Limits) error {
	f, err := Encode(env)
	if err != nil {
		return err
	}
	return frame.WriteFrame(w, f, limits)
}

// Read reads and decodes one envelope.
func Read(r io.Reader, limits frame.Limits) (Envelope, error) {
	f, err := frame.ReadFrame(r, limits)
	if err != nil {
		return Envelope{}, err
	}
	return Decode(f)
}

// Marshal is Write into a fresh buffer.
func Marshal(env Envelope, limits frame.Limits) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, env, limits); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
