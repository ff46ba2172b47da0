package room

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/loadauction/go/internal/auction/events"
	"github.com/rs/zerolog/log"
)

// Room is the auction state for one load. Every exported method takes the room
// mutex and holds it across mutation and broadcast, so attached clients observe
// snapshots in the order the mutations happened.
type Room struct {
	LoadID string

	mu        sync.Mutex
	shipperID string
	truckers  map[string]*Bid
	startedAt *time.Time
	phase     Phase
	sessions  map[Sender]struct{}
	seq       uint64

	// countdown; ticker and stopCh are both nil unless phase is running
	ticker clockwork.Ticker
	stopCh chan struct{}

	// last time the room lost its final session (or was created)
	idleSince time.Time

	clock     clockwork.Clock
	cfg       Config
	publisher Publisher
}

func newRoom(loadID string, cfg Config, clock clockwork.Clock, publisher Publisher) *Room {
	if publisher == nil {
		publisher = noopPublisher{}
	}
	return &Room{
		LoadID:    loadID,
		truckers:  make(map[string]*Bid),
		phase:     PhaseIdle,
		sessions:  make(map[Sender]struct{}),
		idleSince: clock.Now(),
		clock:     clock,
		cfg:       cfg,
		publisher: publisher,
	}
}

// Join attaches s to the room. The first shipper to join becomes the load's
// shipper; a trucker joining for the first time gets a sentinel bid. Any other
// role just watches.
func (r *Room) Join(s Sender, role Role, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[s] = struct{}{}

	if userID != "" {
		switch role {
		case RoleShipper:
			if r.shipperID == "" {
				r.shipperID = userID
				log.Info().
					Str("load_id", r.LoadID).
					Str("shipper_id", userID).
					Msg("shipper registered for load")
			}
		case RoleTrucker:
			if _, exists := r.truckers[userID]; !exists {
				r.seq++
				r.truckers[userID] = &Bid{
					TruckerID: userID,
					Amount:    r.cfg.SentinelBid,
					seq:       r.seq,
				}
			}
		}
	}

	log.Info().
		Str("load_id", r.LoadID).
		Str("session_id", s.ID()).
		Str("role", string(role)).
		Str("user_id", userID).
		Int("sessions", len(r.sessions)).
		Msg("session joined room")

	r.broadcastSnapshotLocked()
}

// StartBidding opens the countdown. Only the recorded shipper may call it;
// calling it again while running restarts the full window.
func (r *Room) StartBidding(role Role, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if role != RoleShipper || r.shipperID == "" || userID != r.shipperID {
		return ErrNotShipper
	}

	now := r.clock.Now()
	r.startedAt = &now
	r.phase = PhaseRunning

	started := events.NewBiddingStarted(r.LoadID)
	r.broadcastLocked(started)
	r.publisher.Publish(r.LoadID, events.EventTypeBiddingStarted, started)

	r.armLocked()

	log.Info().
		Str("load_id", r.LoadID).
		Str("shipper_id", userID).
		Time("started_at", now).
		Msg("bidding started")

	r.broadcastSnapshotLocked()
	return nil
}

// PlaceBid overwrites the trucker's amount. While the countdown runs, or after it
// resolved, the bid restarts the full window. Before the shipper opens bidding the
// amount is recorded but the clock is left alone.
func (r *Room) PlaceBid(userID string, amount float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	bid, ok := r.truckers[userID]
	if !ok {
		return ErrUnknownTrucker
	}

	if bid.Amount != amount {
		r.seq++
		bid.Amount = amount
		bid.seq = r.seq
	}

	switch r.phase {
	case PhaseRunning, PhaseResolved:
		now := r.clock.Now()
		r.startedAt = &now
		r.phase = PhaseRunning
		r.armLocked()
	}

	log.Info().
		Str("load_id", r.LoadID).
		Str("trucker_id", userID).
		Float64("amount", amount).
		Str("phase", string(r.phase)).
		Msg("bid placed")

	r.broadcastSnapshotLocked()
	return nil
}

// Leave detaches s. A departing trucker's bid is removed. When the last session
// leaves the countdown is stopped and the room returns to idle.
func (r *Room) Leave(s Sender, role Role, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, attached := r.sessions[s]; !attached {
		return
	}
	delete(r.sessions, s)

	if role == RoleTrucker && userID != "" {
		delete(r.truckers, userID)
	}

	if len(r.sessions) == 0 {
		r.stopTickerLocked()
		r.startedAt = nil
		r.phase = PhaseIdle
		r.idleSince = r.clock.Now()

		log.Info().
			Str("load_id", r.LoadID).
			Msg("last session left, room reset to idle")
	}

	log.Info().
		Str("load_id", r.LoadID).
		Str("session_id", s.ID()).
		Str("role", string(role)).
		Str("user_id", userID).
		Int("sessions", len(r.sessions)).
		Msg("session left room")

	r.broadcastSnapshotLocked()
}

// Phase returns the current countdown phase
func (r *Room) Phase() Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase
}

// ShipperID returns the recorded shipper, or "" if none joined yet
func (r *Room) ShipperID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.shipperID
}

// SessionCount returns the number of attached sessions
func (r *Room) SessionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// State returns a read-only view of the room
func (r *Room) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := State{
		LoadID:    r.LoadID,
		ShipperID: r.shipperID,
		Phase:     r.phase,
		Sessions:  len(r.sessions),
		Snapshot:  r.snapshotLocked(),
	}
	if r.startedAt != nil {
		startedAt := *r.startedAt
		st.StartedAt = &startedAt
	}
	return st
}

// evictable reports whether the room has had no sessions for at least ttl
func (r *Room) evictable(now time.Time, ttl time.Duration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions) == 0 && r.ticker == nil && now.Sub(r.idleSince) >= ttl
}

// close stops the countdown without touching membership; used on shutdown
func (r *Room) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopTickerLocked()
}
