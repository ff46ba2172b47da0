package events

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Event payload types shared between the room engine, the gateway and the publisher

// EventType is the value of the "type" field on every wire message
type EventType string

const (
	// Inbound
	EventTypeJoin         EventType = "join"
	EventTypeStartBidding EventType = "start-bidding"
	EventTypeBid          EventType = "bid"

	// Outbound
	EventTypeBiddingStarted EventType = "bidding-started"
	EventTypeUpdate         EventType = "update"
	EventTypeWinner         EventType = "winner"
	EventTypeError          EventType = "error"
)

// ID is an externally supplied identifier (load or user). Clients send it either as a
// JSON string or a JSON number; both normalize to the same string form.
type ID string

// UnmarshalJSON accepts strings and numbers.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string {
	return string(id)
}

// Command is the decoded form of any inbound client message. Fields that a given
// type does not use are left at their zero values.
type Command struct {
	Type      EventType `json:"type"`
	LoadID    ID        `json:"loadId"`
	UserRole  string    `json:"userRole"`
	UserID    ID        `json:"userId"`
	BidAmount *float64  `json:"bidAmount,omitempty"`
}

// DecodeCommand parses a raw client message.
func DecodeCommand(raw []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return Command{}, fmt.Errorf("decode command: %w", err)
	}
	if cmd.Type == "" {
		return Command{}, fmt.Errorf("decode command: missing type")
	}
	return cmd, nil
}

// TruckerBid is one entry of the truckers mapping in an update
type TruckerBid struct {
	ID  string  `json:"id"`
	Bid float64 `json:"bid"`
}

// BiddingStartedPayload is sent when the shipper opens (or re-arms) bidding
type BiddingStartedPayload struct {
	Type   EventType `json:"type"`
	LoadID string    `json:"loadId"`
}

// UpdatePayload is the full room snapshot
type UpdatePayload struct {
	Type           EventType             `json:"type"`
	LoadID         string                `json:"loadId"`
	Truckers       map[string]TruckerBid `json:"truckers"`
	RemainingTime  int                   `json:"remainingTime"`
	BiddingStarted bool                  `json:"biddingStarted"`
}

// WinnerPayload announces the resolved auction
type WinnerPayload struct {
	Type       EventType `json:"type"`
	LoadID     string    `json:"loadId"`
	WinnerID   string    `json:"winnerId"`
	WinningBid float64   `json:"winningBid"`
}

// ErrorPayload is sent only to the session whose message was rejected
type ErrorPayload struct {
	Type        EventType `json:"type"`
	Code        string    `json:"code"`
	Message     string    `json:"message"`
	RequestType EventType `json:"requestType,omitempty"`
}

// NewBiddingStarted builds a bidding-started event
func NewBiddingStarted(loadID string) BiddingStartedPayload {
	return BiddingStartedPayload{Type: EventTypeBiddingStarted, LoadID: loadID}
}

// NewWinner builds a winner event
func NewWinner(loadID, winnerID string, amount float64) WinnerPayload {
	return WinnerPayload{
		Type:       EventTypeWinner,
		LoadID:     loadID,
		WinnerID:   winnerID,
		WinningBid: amount,
	}
}

// NewError builds an error event
func NewError(code, message string, requestType EventType) ErrorPayload {
	return ErrorPayload{
		Type:        EventTypeError,
		Code:        code,
		Message:     message,
		RequestType: requestType,
	}
}
