package kafka

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrEmptyMessage: tombstone atau value kosong, tidak ada yang bisa di-decode.
var ErrEmptyMessage = errors.New("empty message value")

// Marshal encodes an event value. The error names the Go type that failed.
func Marshal(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return b, nil
}

// MustMarshal is for values that always encode (fixtures, static payloads).
func MustMarshal(v any) []byte {
	b, err := Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func UnmarshalEnvelope(b []byte, out any) error {
	if len(bytes.TrimSpace(b)) == 0 {
		return ErrEmptyMessage
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}
	return nil
}

// UnwrapPayload decodes the typed payload carried by an envelope.
func UnwrapPayload[T any](payload json.RawMessage) (T, error) {
	var t T
	if p := bytes.TrimSpace(payload); len(p) == 0 || bytes.Equal(p, []byte("null")) {
		return t, fmt.Errorf("decode payload: %w", ErrEmptyMessage)
	}
	if err := json.Unmarshal(payload, &t); err != nil {
		return t, fmt.Errorf("decode payload %T: %w", t, err)
	}
	return t, nil
}
