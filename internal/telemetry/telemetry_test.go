package telemetry

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequiresAddress(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestNewRejectsUnreachableAddress(t *testing.T) {
	_, err := New(Config{Address: "nats://127.0.0.1:1"})
	assert.Error(t, err)
}

func TestErrorEventRoundTripsJSON(t *testing.T) {
	ev := ErrorEvent{Tick: 42, Flags: 0b101, Text: "overflow"}
	data, err := json.Marshal(ev)
	require.NoError(t, err)

	var out ErrorEvent
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, ev, out)
}

func TestJobEventRoundTripsJSON(t *testing.T) {
	ev := JobEvent{ID: 7, Status: "ready", Handle: "run-1"}
	data, err := json.Marshal(ev)
	require.NoError(t, err)

	var out JobEvent
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, ev, out)
}
