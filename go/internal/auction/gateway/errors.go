package gateway

import (
	"errors"

	"github.com/mcdev12/loadauction/go/internal/auction/room"
)

var (
	ErrMalformedEvent   = errors.New("malformed event")
	ErrUnknownEvent     = errors.New("unknown event type")
	ErrNotJoined        = errors.New("session has not joined this load")
	ErrNotTrucker       = errors.New("only truckers can bid")
	ErrIdentityMismatch = errors.New("user does not match the identity this session joined with")

	ErrConnectionClosed = errors.New("connection closed")
	ErrSendBufferFull   = errors.New("send buffer full")
)

// Rejection codes carried by error events
const (
	CodeMalformedEvent   = "malformed_event"
	CodeUnknownEvent     = "unknown_event"
	CodeNotJoined        = "not_joined"
	CodeNotShipper       = "not_shipper"
	CodeNotTrucker       = "not_trucker"
	CodeUnknownTrucker   = "unknown_trucker"
	CodeIdentityMismatch = "identity_mismatch"
	CodeInternal         = "internal_error"
)

func rejectionCode(err error) string {
	switch {
	case errors.Is(err, ErrMalformedEvent), errors.Is(err, room.ErrEmptyLoadID):
		return CodeMalformedEvent
	case errors.Is(err, ErrUnknownEvent):
		return CodeUnknownEvent
	case errors.Is(err, ErrNotJoined):
		return CodeNotJoined
	case errors.Is(err, room.ErrNotShipper):
		return CodeNotShipper
	case errors.Is(err, ErrNotTrucker):
		return CodeNotTrucker
	case errors.Is(err, room.ErrUnknownTrucker):
		return CodeUnknownTrucker
	case errors.Is(err, ErrIdentityMismatch):
		return CodeIdentityMismatch
	default:
		return CodeInternal
	}
}
