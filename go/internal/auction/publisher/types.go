package publisher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/loadauction/go/internal/auction/events"
)

// Envelope is one auction outcome as it goes out on the stream
type Envelope struct {
	EventID   uuid.UUID        `json:"eventId"`
	EventType events.EventType `json:"eventType"`
	LoadID    string           `json:"loadId"`
	Timestamp time.Time        `json:"timestamp"`
	Payload   json.RawMessage  `json:"payload"`
}

type EventPublisher interface {
	Publish(ctx context.Context, env Envelope) error
}

// ConnectionChecker reports broker connectivity for health checks
type ConnectionChecker interface {
	IsConnected() bool
}
