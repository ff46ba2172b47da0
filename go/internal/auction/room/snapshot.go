package room

import (
	"encoding/json"

	"github.com/mcdev12/loadauction/go/internal/auction/events"
	"github.com/rs/zerolog/log"
)

// Snapshot returns the current update message for the room
func (r *Room) Snapshot() events.UpdatePayload {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Room) snapshotLocked() events.UpdatePayload {
	truckers := make(map[string]events.TruckerBid, len(r.truckers))
	for id, b := range r.truckers {
		truckers[id] = events.TruckerBid{ID: b.TruckerID, Bid: b.Amount}
	}

	return events.UpdatePayload{
		Type:           events.EventTypeUpdate,
		LoadID:         r.LoadID,
		Truckers:       truckers,
		RemainingTime:  r.remainingLocked(r.clock.Now()),
		BiddingStarted: r.startedAt != nil,
	}
}

func (r *Room) broadcastSnapshotLocked() {
	r.broadcastLocked(r.snapshotLocked())
}

// broadcastLocked marshals msg once and hands it to every attached session.
// Sessions that refuse the message are skipped.
func (r *Room) broadcastLocked(msg any) {
	if len(r.sessions) == 0 {
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("load_id", r.LoadID).Msg("failed to marshal room event")
		return
	}

	delivered := 0
	for s := range r.sessions {
		if err := s.Send(data); err != nil {
			log.Debug().
				Err(err).
				Str("load_id", r.LoadID).
				Str("session_id", s.ID()).
				Msg("skipping session during broadcast")
			continue
		}
		delivered++
	}

	log.Debug().
		Str("load_id", r.LoadID).
		Int("sessions", len(r.sessions)).
		Int("delivered", delivered).
		Msg("room event broadcasted")
}
