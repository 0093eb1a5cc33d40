package kafka

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
}

type placed struct {
	OrderID string `json:"order_id"`
}

func TestUnmarshalEnvelope_Empty(t *testing.T) {
	var env envelope
	assert.ErrorIs(t, UnmarshalEnvelope(nil, &env), ErrEmptyMessage)
	assert.ErrorIs(t, UnmarshalEnvelope([]byte("  \n"), &env), ErrEmptyMessage)
	assert.Error(t, UnmarshalEnvelope([]byte("{oops"), &env))
}

func TestUnwrapPayload(t *testing.T) {
	var env envelope
	require.NoError(t, UnmarshalEnvelope(MustMarshal(envelope{EventType: "OrderPlaced", Payload: MustMarshal(placed{OrderID: "o1"})}), &env))

	p, err := UnwrapPayload[placed](env.Payload)
	require.NoError(t, err)
	assert.Equal(t, "o1", p.OrderID)

	_, err = UnwrapPayload[placed](json.RawMessage("null"))
	assert.ErrorIs(t, err, ErrEmptyMessage)
	_, err = UnwrapPayload[placed](json.RawMessage(`"not an object"`))
	assert.Error(t, err)
}

func TestMarshal_NamesType(t *testing.T) {
	_, err := Marshal(map[string]any{"ch": make(chan int)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "map[string]interface {}")
	assert.Panics(t, func() { MustMarshal(make(chan int)) })
}
