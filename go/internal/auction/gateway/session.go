package gateway

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mcdev12/loadauction/go/internal/auction/events"
	"github.com/mcdev12/loadauction/go/internal/auction/room"
	"github.com/rs/zerolog/log"
)

// Session binds one client connection to at most one room. The identity it joined
// with is what start-bidding and bid act as; identities in later messages must
// match it.
type Session struct {
	sender   room.Sender
	registry *room.Registry

	mu     sync.Mutex
	room   *room.Room
	loadID string
	role   room.Role
	userID string
}

func NewSession(sender room.Sender, registry *room.Registry) *Session {
	return &Session{sender: sender, registry: registry}
}

// Handle processes one inbound message. Rejected messages leave room state
// untouched and are answered with an error event to this session only.
func (s *Session) Handle(raw []byte) {
	cmd, err := events.DecodeCommand(raw)
	if err != nil {
		s.reject("", fmt.Errorf("%w: %v", ErrMalformedEvent, err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch cmd.Type {
	case events.EventTypeJoin:
		err = s.join(cmd)
	case events.EventTypeStartBidding:
		err = s.startBidding(cmd)
	case events.EventTypeBid:
		err = s.bid(cmd)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownEvent, cmd.Type)
	}

	if err != nil {
		s.reject(cmd.Type, err)
	}
}

func (s *Session) join(cmd events.Command) error {
	loadID := cmd.LoadID.String()
	if loadID == "" {
		return room.ErrEmptyLoadID
	}
	role := room.Role(cmd.UserRole)
	userID := cmd.UserID.String()

	if s.room != nil && (s.loadID != loadID || s.role != role || s.userID != userID) {
		s.leaveLocked()
	}

	r, err := s.registry.Join(loadID, s.sender, role, userID)
	if err != nil {
		return err
	}

	s.room = r
	s.loadID = loadID
	s.role = role
	s.userID = userID
	return nil
}

func (s *Session) startBidding(cmd events.Command) error {
	if err := s.checkBoundLocked(cmd); err != nil {
		return err
	}
	if cmd.UserRole != "" && room.Role(cmd.UserRole) != s.role {
		return fmt.Errorf("%w: role %q", ErrIdentityMismatch, cmd.UserRole)
	}
	return s.room.StartBidding(s.role, s.userID)
}

func (s *Session) bid(cmd events.Command) error {
	if err := s.checkBoundLocked(cmd); err != nil {
		return err
	}
	if s.role != room.RoleTrucker {
		return ErrNotTrucker
	}
	if cmd.BidAmount == nil {
		return fmt.Errorf("%w: bidAmount is required", ErrMalformedEvent)
	}
	return s.room.PlaceBid(s.userID, *cmd.BidAmount)
}

// checkBoundLocked verifies the session joined the load the command names and that
// the command does not claim another identity. Empty fields fall back to the bound
// values.
func (s *Session) checkBoundLocked(cmd events.Command) error {
	if s.room == nil {
		return ErrNotJoined
	}
	if loadID := cmd.LoadID.String(); loadID != "" && loadID != s.loadID {
		return fmt.Errorf("%w: %s", ErrNotJoined, loadID)
	}
	if userID := cmd.UserID.String(); userID != "" && userID != s.userID {
		return fmt.Errorf("%w: %s", ErrIdentityMismatch, userID)
	}
	return nil
}

// Close detaches the session from its room, if any
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leaveLocked()
}

func (s *Session) leaveLocked() {
	if s.room == nil {
		return
	}
	s.room.Leave(s.sender, s.role, s.userID)
	s.room = nil
	s.loadID = ""
	s.role = ""
	s.userID = ""
}

// LoadID returns the load the session is attached to, or ""
func (s *Session) LoadID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadID
}

func (s *Session) reject(requestType events.EventType, err error) {
	code := rejectionCode(err)

	log.Debug().
		Err(err).
		Str("session_id", s.sender.ID()).
		Str("request_type", string(requestType)).
		Str("code", code).
		Msg("rejected client message")

	data, mErr := json.Marshal(events.NewError(code, err.Error(), requestType))
	if mErr != nil {
		log.Error().Err(mErr).Msg("failed to marshal error event")
		return
	}
	if sErr := s.sender.Send(data); sErr != nil {
		log.Debug().
			Err(sErr).
			Str("session_id", s.sender.ID()).
			Msg("could not deliver error event")
	}
}
