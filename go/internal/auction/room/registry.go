package room

import (
	"context"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Registry maps load IDs to rooms. Rooms are created lazily on first join and
// only removed by the idle sweeper.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*Room

	cfg       Config
	clock     clockwork.Clock
	publisher Publisher
}

// Stats summarizes the registry for the stats endpoint
type Stats struct {
	Rooms        int `json:"rooms"`
	RunningRooms int `json:"running_rooms"`
	Sessions     int `json:"sessions"`
}

// NewRegistry creates an empty registry. A nil clock means the real clock and a
// nil publisher drops outcomes.
func NewRegistry(cfg Config, clock clockwork.Clock, publisher Publisher) *Registry {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if publisher == nil {
		publisher = noopPublisher{}
	}
	return &Registry{
		rooms:     make(map[string]*Room),
		cfg:       cfg,
		clock:     clock,
		publisher: publisher,
	}
}

// GetOrCreate returns the room for loadID, creating it if needed
func (g *Registry) GetOrCreate(loadID string) *Room {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.getOrCreateLocked(loadID)
}

func (g *Registry) getOrCreateLocked(loadID string) *Room {
	r, ok := g.rooms[loadID]
	if !ok {
		r = newRoom(loadID, g.cfg, g.clock, g.publisher)
		g.rooms[loadID] = r
		log.Info().
			Str("load_id", loadID).
			Int("total_rooms", len(g.rooms)).
			Msg("room created")
	}
	return r
}

// Join finds or creates the room and attaches s to it. Holding the registry lock
// across both steps keeps the sweeper from evicting a room between lookup and join.
func (g *Registry) Join(loadID string, s Sender, role Role, userID string) (*Room, error) {
	if loadID == "" {
		return nil, ErrEmptyLoadID
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	r := g.getOrCreateLocked(loadID)
	r.Join(s, role, userID)
	return r, nil
}

// Get returns the room for loadID if it exists
func (g *Registry) Get(loadID string) (*Room, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.rooms[loadID]
	return r, ok
}

// Len returns the number of rooms
func (g *Registry) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.rooms)
}

// Sweep evicts rooms that have had no sessions for longer than the configured
// TTL and returns how many were removed.
func (g *Registry) Sweep() int {
	if g.cfg.RoomTTL <= 0 {
		return 0
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.Now()
	evicted := 0
	for id, r := range g.rooms {
		if r.evictable(now, g.cfg.RoomTTL) {
			delete(g.rooms, id)
			evicted++
		}
	}

	if evicted > 0 {
		log.Info().
			Int("evicted", evicted).
			Int("total_rooms", len(g.rooms)).
			Msg("evicted idle rooms")
	}
	return evicted
}

// Run sweeps idle rooms until ctx is cancelled, then stops every countdown
func (g *Registry) Run(ctx context.Context) {
	if g.cfg.RoomTTL <= 0 || g.cfg.SweepInterval <= 0 {
		<-ctx.Done()
		g.Close()
		return
	}

	ticker := g.clock.NewTicker(g.cfg.SweepInterval)
	defer ticker.Stop()

	log.Info().
		Dur("room_ttl", g.cfg.RoomTTL).
		Dur("sweep_interval", g.cfg.SweepInterval).
		Msg("room sweeper started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("room sweeper shutting down")
			g.Close()
			return
		case <-ticker.Chan():
			g.Sweep()
		}
	}
}

// Close stops the countdown of every room
func (g *Registry) Close() {
	g.mu.Lock()
	rooms := make([]*Room, 0, len(g.rooms))
	for _, r := range g.rooms {
		rooms = append(rooms, r)
	}
	g.mu.Unlock()

	for _, r := range rooms {
		r.close()
	}
}

// Stats returns room and session counts
func (g *Registry) Stats() Stats {
	g.mu.Lock()
	rooms := make([]*Room, 0, len(g.rooms))
	for _, r := range g.rooms {
		rooms = append(rooms, r)
	}
	g.mu.Unlock()

	stats := Stats{Rooms: len(rooms)}
	for _, r := range rooms {
		st := r.State()
		stats.Sessions += st.Sessions
		if st.Phase == PhaseRunning {
			stats.RunningRooms++
		}
	}
	return stats
}
