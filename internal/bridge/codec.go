package bridge

import (
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Codec converts stream values to and from data envelope payloads. Both sides of a
// bridge must use the same codec.
type Codec[T any] interface {
	Marshal(v T) ([]byte, error)
	Unmarshal(b []byte) (T, error)
}

// CBORCodec is the default codec.
type CBORCodec[T any] struct{}

func (CBORCodec[T]) Marshal(v T) ([]byte, error) {
	b, err := cbor.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("bridge: cbor encode: %w", err)
	}
	return b, nil
}

func (CBORCodec[T]) Unmarshal(b []byte) (T, error) {
	var v T
	if err := cbor.Unmarshal(b, &v); err != nil {
		return v, fmt.Errorf("bridge: cbor decode: %w", err)
	}
	return v, nil
}

// JSONCodec encodes values as JSON documents.
type JSONCodec[T any] struct{}

func (JSONCodec[T]) Marshal(v T) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONCodec[T]) Unmarshal(b []byte) (T, error) {
	var v T
	err := json.Unmarshal(b, &v)
	return v, err
}
