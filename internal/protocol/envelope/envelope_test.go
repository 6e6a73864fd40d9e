package envelope

import (
	"bytes"
	"errors"
	"testing"

	"github.com/danmuck/remoteflow/internal/protocol/frame"
	"github.com/danmuck/remoteflow/internal/testutil/testlog"
)

func TestControlEnvelopeCarriesEndpoint(t *testing.T) {
	testlog.Start(t)
	ref := EndpointRef{ID: "ep-1", ProcessID: "remoteflow", Service: "main"}
	var buf bytes.Buffer
	if err := Write(&buf, Control(ref), frame.DefaultLimits()); err != nil {
		t.Fatalf("write control: %v", err)
	}
	got, err := Read(&buf, frame.DefaultLimits())
	if err != nil {
		t.Fatalf("read control: %v", err)
	}
	if got.Kind != KindControl || got.Endpoint != ref {
		t.Fatalf("unexpected envelope: %+v", got)
	}
}

func TestDataEnvelopeIsOpaque(t *testing.T) {
	testlog.Start(t)
	raw, err := Marshal(Data([]byte{0x00, 0xff, 0x10}), frame.DefaultLimits())
	if err != nil {
		t.Fatalf("marshal data: %v", err)
	}
	got, err := Read(bytes.NewReader(raw), frame.DefaultLimits())
	if err != nil {
		t.Fatalf("read data: %v", err)
	}
	if got.Kind != KindData || !bytes.Equal(got.Data, []byte{0x00, 0xff, 0x10}) {
		t.Fatalf("unexpected envelope: %+v", got)
	}
}

func TestControlEnvelopeRequiresEndpointID(t *testing.T) {
	testlog.Start(t)
	if _, err := Encode(Control(EndpointRef{ProcessID: "p"})); !errors.Is(err, ErrInvalidControl) {
		t.Fatalf("expected ErrInvalidControl on encode, got %v", err)
	}
	f := frame.Frame{Header: frame.Header{Kind: uint16(KindControl)}, Payload: []byte{0xff}}
	if _, err := Decode(f); !errors.Is(err, ErrInvalidControl) {
		t.Fatalf("expected ErrInvalidControl on decode, got %v", err)
	}
}

func TestUnknownKindRejected(t *testing.T) {
	testlog.Start(t)
	if _, err := Encode(Envelope{Kind: 7}); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind on encode, got %v", err)
	}
	if _, err := Decode(frame.Frame{Header: frame.Header{Kind: 7}}); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind on decode, got %v", err)
	}
	if Kind(7).String() != "kind(7)" {
		t.Fatalf("unexpected kind string: %s", Kind(7))
	}
}
