package room

import (
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/loadauction/go/internal/auction/events"
	"github.com/rs/zerolog/log"
)

// armLocked makes sure a ticker is running and realigns it to the new start time,
// so ticks land on whole seconds of the window.
func (r *Room) armLocked() {
	if r.ticker != nil {
		r.ticker.Reset(r.cfg.TickInterval)
		return
	}

	r.ticker = r.clock.NewTicker(r.cfg.TickInterval)
	r.stopCh = make(chan struct{})
	go r.runCountdown(r.ticker, r.stopCh)

	log.Debug().
		Str("load_id", r.LoadID).
		Dur("interval", r.cfg.TickInterval).
		Msg("countdown ticker started")
}

// stopTickerLocked cancels the running ticker, if any. A tick already waiting on
// the room lock sees its generation closed and is dropped.
func (r *Room) stopTickerLocked() {
	if r.ticker == nil {
		return
	}
	r.ticker.Stop()
	close(r.stopCh)
	r.ticker = nil
	r.stopCh = nil

	log.Debug().Str("load_id", r.LoadID).Msg("countdown ticker stopped")
}

func (r *Room) runCountdown(t clockwork.Ticker, stop chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-t.Chan():
			if !r.tick(stop) {
				return
			}
		}
	}
}

// tick pushes a snapshot for one countdown second, resolving the auction when the
// window is exhausted. It returns false once this ticker generation is finished.
func (r *Room) tick(gen chan struct{}) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopCh != gen {
		return false
	}

	remaining := r.remainingLocked(r.clock.Now())
	if remaining > 0 {
		log.Debug().
			Str("load_id", r.LoadID).
			Int("remaining", remaining).
			Msg("countdown tick")
		r.broadcastSnapshotLocked()
		return true
	}

	r.resolveLocked()
	return false
}

// resolveLocked stops the countdown and announces the winner, if there is one.
// startedAt is kept so snapshots keep reporting a started, expired auction.
func (r *Room) resolveLocked() {
	r.stopTickerLocked()
	r.phase = PhaseResolved

	if winner, ok := r.winnerLocked(); ok {
		msg := events.NewWinner(r.LoadID, winner.TruckerID, winner.Amount)
		r.broadcastLocked(msg)
		r.publisher.Publish(r.LoadID, events.EventTypeWinner, msg)

		log.Info().
			Str("load_id", r.LoadID).
			Str("winner_id", winner.TruckerID).
			Float64("winning_bid", winner.Amount).
			Int("bidders", len(r.truckers)).
			Msg("auction resolved")
	} else {
		log.Info().
			Str("load_id", r.LoadID).
			Msg("auction expired with no truckers")
	}

	r.broadcastSnapshotLocked()
}

// winnerLocked returns the lowest bid. Ties go to the bid whose amount was
// written first.
func (r *Room) winnerLocked() (Bid, bool) {
	var best *Bid
	for _, b := range r.truckers {
		if best == nil ||
			b.Amount < best.Amount ||
			(b.Amount == best.Amount && b.seq < best.seq) {
			best = b
		}
	}
	if best == nil {
		return Bid{}, false
	}
	return *best, true
}

// remainingLocked returns whole seconds left in the window. A room that has not
// started reports the full window.
func (r *Room) remainingLocked(now time.Time) int {
	window := r.cfg.windowSeconds()
	if r.startedAt == nil {
		return window
	}

	elapsed := int(now.Sub(*r.startedAt) / time.Second)
	if elapsed < 0 {
		elapsed = 0
	}

	remaining := window - elapsed
	if remaining < 0 {
		return 0
	}
	return remaining
}
