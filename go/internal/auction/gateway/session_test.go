package gateway

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/loadauction/go/internal/auction/events"
	"github.com/mcdev12/loadauction/go/internal/auction/room"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	id string
	ch chan []byte
}

func newFakeSender(id string) *fakeSender {
	return &fakeSender{id: id, ch: make(chan []byte, 256)}
}

func (f *fakeSender) ID() string { return f.id }

func (f *fakeSender) Send(payload []byte) error {
	f.ch <- payload
	return nil
}

func (f *fakeSender) next(t *testing.T) map[string]any {
	t.Helper()
	select {
	case raw := <-f.ch:
		var msg map[string]any
		require.NoError(t, json.Unmarshal(raw, &msg))
		return msg
	case <-time.After(2 * time.Second):
		t.Fatalf("%s: timed out waiting for message", f.id)
		return nil
	}
}

func (f *fakeSender) nextError(t *testing.T) events.ErrorPayload {
	t.Helper()
	select {
	case raw := <-f.ch:
		var e events.ErrorPayload
		require.NoError(t, json.Unmarshal(raw, &e))
		require.Equal(t, events.EventTypeError, e.Type, "unexpected message: %s", raw)
		return e
	case <-time.After(2 * time.Second):
		t.Fatalf("%s: timed out waiting for error", f.id)
		return events.ErrorPayload{}
	}
}

func (f *fakeSender) drain() {
	for {
		select {
		case <-f.ch:
		default:
			return
		}
	}
}

func newTestSession(t *testing.T, reg *room.Registry, id string) (*Session, *fakeSender) {
	t.Helper()
	sender := newFakeSender(id)
	return NewSession(sender, reg), sender
}

func newTestRegistry(t *testing.T) *room.Registry {
	t.Helper()
	reg := room.NewRegistry(room.DefaultConfig(), clockwork.NewFakeClock(), nil)
	t.Cleanup(reg.Close)
	return reg
}

func TestSession_Rejections(t *testing.T) {
	tests := []struct {
		name        string
		setup       []string
		message     string
		wantCode    string
		wantRequest events.EventType
	}{
		{
			name:     "malformed_json",
			message:  `{not json`,
			wantCode: CodeMalformedEvent,
		},
		{
			name:     "missing_type",
			message:  `{"loadId":"L1"}`,
			wantCode: CodeMalformedEvent,
		},
		{
			name:        "unknown_type",
			message:     `{"type":"withdraw","loadId":"L1"}`,
			wantCode:    CodeUnknownEvent,
			wantRequest: "withdraw",
		},
		{
			name:        "join_without_load",
			message:     `{"type":"join","userRole":"trucker","userId":"T1"}`,
			wantCode:    CodeMalformedEvent,
			wantRequest: events.EventTypeJoin,
		},
		{
			name:        "bid_before_join",
			message:     `{"type":"bid","loadId":"L1","userId":"T1","bidAmount":500}`,
			wantCode:    CodeNotJoined,
			wantRequest: events.EventTypeBid,
		},
		{
			name:        "start_before_join",
			message:     `{"type":"start-bidding","loadId":"L1","userId":"S","userRole":"shipper"}`,
			wantCode:    CodeNotJoined,
			wantRequest: events.EventTypeStartBidding,
		},
		{
			name:        "trucker_starts_bidding",
			setup:       []string{`{"type":"join","loadId":"L1","userRole":"trucker","userId":"T1"}`},
			message:     `{"type":"start-bidding","loadId":"L1"}`,
			wantCode:    CodeNotShipper,
			wantRequest: events.EventTypeStartBidding,
		},
		{
			name:        "shipper_bids",
			setup:       []string{`{"type":"join","loadId":"L1","userRole":"shipper","userId":"S"}`},
			message:     `{"type":"bid","loadId":"L1","userId":"S","bidAmount":10}`,
			wantCode:    CodeNotTrucker,
			wantRequest: events.EventTypeBid,
		},
		{
			name:        "bid_without_amount",
			setup:       []string{`{"type":"join","loadId":"L1","userRole":"trucker","userId":"T1"}`},
			message:     `{"type":"bid","loadId":"L1","userId":"T1"}`,
			wantCode:    CodeMalformedEvent,
			wantRequest: events.EventTypeBid,
		},
		{
			name:        "bid_as_someone_else",
			setup:       []string{`{"type":"join","loadId":"L1","userRole":"trucker","userId":"T1"}`},
			message:     `{"type":"bid","loadId":"L1","userId":"T2","bidAmount":10}`,
			wantCode:    CodeIdentityMismatch,
			wantRequest: events.EventTypeBid,
		},
		{
			name:        "start_with_other_role",
			setup:       []string{`{"type":"join","loadId":"L1","userRole":"shipper","userId":"S"}`},
			message:     `{"type":"start-bidding","loadId":"L1","userId":"S","userRole":"trucker"}`,
			wantCode:    CodeIdentityMismatch,
			wantRequest: events.EventTypeStartBidding,
		},
		{
			name:        "bid_on_other_load",
			setup:       []string{`{"type":"join","loadId":"L1","userRole":"trucker","userId":"T1"}`},
			message:     `{"type":"bid","loadId":"L2","userId":"T1","bidAmount":10}`,
			wantCode:    CodeNotJoined,
			wantRequest: events.EventTypeBid,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			reg := newTestRegistry(t)
			s, sender := newTestSession(t, reg, "c1")
			for _, msg := range tc.setup {
				s.Handle([]byte(msg))
			}
			sender.drain()

			s.Handle([]byte(tc.message))

			e := sender.nextError(t)
			assert.Equal(t, tc.wantCode, e.Code)
			assert.Equal(t, tc.wantRequest, e.RequestType)
			assert.NotEmpty(t, e.Message)

			if r, ok := reg.Get("L1"); ok {
				assert.Equal(t, room.PhaseIdle, r.Phase())
			}
		})
	}
}

func TestSession_JoinAndBid(t *testing.T) {
	reg := newTestRegistry(t)
	shipper, shipperOut := newTestSession(t, reg, "c1")
	trucker, truckerOut := newTestSession(t, reg, "c2")

	shipper.Handle([]byte(`{"type":"join","loadId":7,"userRole":"shipper","userId":1}`))
	trucker.Handle([]byte(`{"type":"join","loadId":"7","userRole":"trucker","userId":"2"}`))

	r, ok := reg.Get("7")
	require.True(t, ok)
	assert.Equal(t, "1", r.ShipperID())
	assert.Equal(t, 2, r.SessionCount())
	assert.Equal(t, "7", shipper.LoadID())

	shipper.Handle([]byte(`{"type":"start-bidding","loadId":7,"userId":1,"userRole":"shipper"}`))
	trucker.Handle([]byte(`{"type":"bid","loadId":7,"userId":2,"bidAmount":640}`))

	assert.Equal(t, room.PhaseRunning, r.Phase())
	assert.Equal(t, 640.0, r.Snapshot().Truckers["2"].Bid)

	shipperOut.drain()
	truckerOut.drain()
}

func TestSession_StartBiddingFallsBackToBoundIdentity(t *testing.T) {
	reg := newTestRegistry(t)
	s, out := newTestSession(t, reg, "c1")

	s.Handle([]byte(`{"type":"join","loadId":"L1","userRole":"shipper","userId":"S"}`))
	out.drain()
	s.Handle([]byte(`{"type":"start-bidding"}`))

	msg := out.next(t)
	assert.Equal(t, string(events.EventTypeBiddingStarted), msg["type"])
}

func TestSession_JoinOtherLoadLeavesPrevious(t *testing.T) {
	reg := newTestRegistry(t)
	s, _ := newTestSession(t, reg, "c1")
	watcher, watcherOut := newTestSession(t, reg, "c2")

	watcher.Handle([]byte(`{"type":"join","loadId":"L1","userRole":"shipper","userId":"S"}`))
	s.Handle([]byte(`{"type":"join","loadId":"L1","userRole":"trucker","userId":"T1"}`))
	watcherOut.drain()

	s.Handle([]byte(`{"type":"join","loadId":"L2","userRole":"trucker","userId":"T1"}`))

	msg := watcherOut.next(t)
	assert.Equal(t, "update", msg["type"])
	assert.Empty(t, msg["truckers"])

	l1, _ := reg.Get("L1")
	l2, _ := reg.Get("L2")
	assert.Equal(t, 1, l1.SessionCount())
	assert.Equal(t, 1, l2.SessionCount())
	assert.Contains(t, l2.Snapshot().Truckers, "T1")
	assert.Equal(t, "L2", s.LoadID())
}

func TestSession_RejoinSameLoadRebroadcasts(t *testing.T) {
	reg := newTestRegistry(t)
	s, out := newTestSession(t, reg, "c1")

	s.Handle([]byte(`{"type":"join","loadId":"L1","userRole":"trucker","userId":"T1"}`))
	s.Handle([]byte(`{"type":"bid","loadId":"L1","userId":"T1","bidAmount":300}`))
	out.drain()

	s.Handle([]byte(`{"type":"join","loadId":"L1","userRole":"trucker","userId":"T1"}`))

	msg := out.next(t)
	assert.Equal(t, "update", msg["type"])
	r, _ := reg.Get("L1")
	assert.Equal(t, 1, r.SessionCount())
	assert.Equal(t, 300.0, r.Snapshot().Truckers["T1"].Bid)
}

func TestSession_CloseRunsDisconnect(t *testing.T) {
	reg := newTestRegistry(t)
	shipper, _ := newTestSession(t, reg, "c1")
	trucker, _ := newTestSession(t, reg, "c2")

	shipper.Handle([]byte(`{"type":"join","loadId":"L1","userRole":"shipper","userId":"S"}`))
	trucker.Handle([]byte(`{"type":"join","loadId":"L1","userRole":"trucker","userId":"T1"}`))
	shipper.Handle([]byte(`{"type":"start-bidding","loadId":"L1","userId":"S","userRole":"shipper"}`))

	r, _ := reg.Get("L1")
	trucker.Close()
	assert.NotContains(t, r.Snapshot().Truckers, "T1")
	assert.Equal(t, room.PhaseRunning, r.Phase())

	shipper.Close()
	assert.Equal(t, room.PhaseIdle, r.Phase())
	assert.Equal(t, 0, r.SessionCount())
	assert.Empty(t, shipper.LoadID())

	// closing twice is harmless
	shipper.Close()
}
