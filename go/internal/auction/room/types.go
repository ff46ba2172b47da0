package room

import (
	"time"

	"github.com/mcdev12/loadauction/go/internal/auction/events"
)

// Role is the participant role a session joined with
type Role string

const (
	RoleShipper Role = "shipper"
	RoleTrucker Role = "trucker"
)

// Phase is the countdown state of a room
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseRunning  Phase = "running"
	PhaseResolved Phase = "resolved"
)

// Config holds the auction rules shared by every room
type Config struct {
	Window        time.Duration // full countdown window, reset by every accepted bid
	TickInterval  time.Duration // how often a running room pushes a snapshot
	SentinelBid   float64       // amount of a trucker that joined but has not bid yet
	RoomTTL       time.Duration // empty rooms idle this long are evicted; 0 disables
	SweepInterval time.Duration
}

// DefaultConfig returns the production auction rules
func DefaultConfig() Config {
	return Config{
		Window:        45 * time.Second,
		TickInterval:  time.Second,
		SentinelBid:   1000000,
		RoomTTL:       30 * time.Minute,
		SweepInterval: time.Minute,
	}
}

func (c Config) windowSeconds() int {
	return int(c.Window / time.Second)
}

// Sender is a delivery handle for one attached client. Rooms never own the
// underlying connection; a failed Send is skipped.
type Sender interface {
	ID() string
	Send(payload []byte) error
}

// Publisher receives auction outcomes for delivery outside the process.
// Publish is called with the room lock held and must not block.
type Publisher interface {
	Publish(loadID string, eventType events.EventType, payload any)
}

type noopPublisher struct{}

func (noopPublisher) Publish(string, events.EventType, any) {}

// Bid is a trucker's current price for the load
type Bid struct {
	TruckerID string
	Amount    float64

	// seq orders writes of the amount within a room; the lowest seq wins a tie
	seq uint64
}

// State is a read-only view of a room used by the HTTP state endpoint
type State struct {
	LoadID    string               `json:"loadId"`
	ShipperID string               `json:"shipperId,omitempty"`
	Phase     Phase                `json:"phase"`
	Sessions  int                  `json:"sessions"`
	StartedAt *time.Time           `json:"startedAt,omitempty"`
	Snapshot  events.UpdatePayload `json:"snapshot"`
}
