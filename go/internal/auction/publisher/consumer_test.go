package publisher

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/loadauction/go/internal/auction/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEnvelope(t *testing.T) {
	payload, err := json.Marshal(events.NewWinner("L1", "T1", 500))
	require.NoError(t, err)
	want := Envelope{
		EventID:   uuid.New(),
		EventType: events.EventTypeWinner,
		LoadID:    "L1",
		Timestamp: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Payload:   payload,
	}
	data, err := json.Marshal(want)
	require.NoError(t, err)

	got, err := DecodeEnvelope(data)
	require.NoError(t, err)

	assert.Equal(t, want.EventID, got.EventID)
	assert.Equal(t, want.EventType, got.EventType)
	assert.Equal(t, want.LoadID, got.LoadID)
	assert.True(t, want.Timestamp.Equal(got.Timestamp))
	assert.JSONEq(t, string(payload), string(got.Payload))
}

func TestDecodeEnvelope_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "not_json", data: `garbage`},
		{name: "missing_type", data: `{"loadId":"L1","payload":{}}`},
		{name: "missing_load", data: `{"eventType":"winner","payload":{}}`},
		{name: "bad_event_id", data: `{"eventId":"nope","eventType":"winner","loadId":"L1"}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeEnvelope([]byte(tc.data))
			require.ErrorIs(t, err, ErrInvalidEnvelope)
		})
	}
}
