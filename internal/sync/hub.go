package sync

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/kestrelvaluation/securechat/internal/chat"
	"github.com/kestrelvaluation/securechat/internal/metrics"
	"github.com/kestrelvaluation/securechat/internal/models"
	"github.com/kestrelvaluation/securechat/internal/store"
)

// Frame is one unit of delivery to a realtime client.
type Frame struct {
	Op       string           `json:"op"` // "rooms", "room" or "event"
	Rooms    []models.Room    `json:"rooms,omitempty"`
	RoomID   string           `json:"room_id,omitempty"`
	Messages []models.Message `json:"messages,omitempty"`
	Event    *Event           `json:"event,omitempty"`
}

// Hub builds realtime sessions over the store and the bus.
type Hub struct {
	store      store.DataStore
	bus        Bus
	reconciler *chat.Reconciler
	logger     zerolog.Logger
}

// NewHub creates a Hub.
func NewHub(s store.DataStore, bus Bus, rec *chat.Reconciler, logger zerolog.Logger) *Hub {
	return &Hub{store: s, bus: bus, reconciler: rec, logger: logger}
}

// Session is one client's realtime view: the user's room list plus the
// message log of at most one active room. Subscriptions are scoped to
// the session; switching rooms releases the prior log subscription as
// part of the switch, so live subscriptions stay O(rooms currently
// viewed), not O(rooms ever visited).
type Session struct {
	hub  *Hub
	user chat.Identity

	send chan Frame
	done chan struct{}

	closed atomic.Bool

	mu         sync.Mutex
	listSub    Subscription
	roomSub    Subscription
	activeRoom string
}

// NewSession subscribes the user's room-list stream and pushes an
// initial snapshot frame.
func (h *Hub) NewSession(ctx context.Context, user chat.Identity) (*Session, error) {
	s := &Session{
		hub:  h,
		user: user,
		send: make(chan Frame, 64),
		done: make(chan struct{}),
	}

	rooms, err := h.store.RoomsForUser(ctx, user.UserID, 0)
	if err != nil {
		return nil, fmt.Errorf("room list snapshot: %w", err)
	}

	listSub, err := h.bus.SubscribeRoomList(user.UserID, func(ev Event) {
		s.push(Frame{Op: "event", Event: &ev})
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe room list: %w", err)
	}
	s.listSub = listSub

	s.push(Frame{Op: "rooms", Rooms: rooms})
	metrics.ActiveSessions.Inc()
	return s, nil
}

// Frames is the channel the transport drains. Consumers should select on
// Done alongside it.
func (s *Session) Frames() <-chan Frame {
	return s.send
}

// Done closes when the session is torn down.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// push never blocks the bus. A slow consumer loses frames; that is
// acceptable because delivery is at-least-once and the client recovers
// the canonical state from the next snapshot.
func (s *Session) push(f Frame) {
	if s.closed.Load() {
		return
	}
	select {
	case s.send <- f:
	default:
		metrics.DroppedFrames.Inc()
	}
}

// OpenRoom switches the session's active room: the new room's log
// subscription is acquired first, then the prior one is released, the
// backlog is reconciled for the user and a snapshot frame is pushed.
// Acquiring before releasing leaves no gap in which an append to the
// new room could be missed.
func (s *Session) OpenRoom(ctx context.Context, roomID string) error {
	room, err := s.hub.store.GetRoom(ctx, roomID)
	if err != nil {
		return fmt.Errorf("load room: %w", err)
	}
	if room == nil {
		return chat.ErrNotFound
	}
	if !room.HasParticipant(s.user.UserID) {
		return chat.ErrAccessDenied
	}

	sub, err := s.hub.bus.SubscribeRoom(roomID, func(ev Event) {
		s.push(Frame{Op: "event", Event: &ev})
	})
	if err != nil {
		return fmt.Errorf("subscribe room: %w", err)
	}

	s.mu.Lock()
	if s.closed.Load() {
		s.mu.Unlock()
		sub.Cancel()
		return chat.ErrNotFound
	}
	prev := s.roomSub
	s.roomSub = sub
	s.activeRoom = roomID
	s.mu.Unlock()

	if prev != nil {
		if err := prev.Cancel(); err != nil {
			s.hub.logger.Warn().Err(err).Msg("cancel prior room subscription failed")
		}
	}

	// Opening a room acknowledges its window. Best effort: a failed
	// reconciliation repairs itself on the next open or sweep.
	if err := s.hub.reconciler.OnRoomOpened(ctx, roomID, s.user.UserID); err != nil {
		s.hub.logger.Warn().Err(err).Str("room_id", roomID).Msg("reconcile on open failed")
	}

	msgs, err := s.hub.store.MessageWindow(ctx, roomID, chat.DefaultWindow)
	if err != nil {
		return fmt.Errorf("window snapshot: %w", err)
	}
	s.push(Frame{Op: "room", RoomID: roomID, Messages: msgs})
	return nil
}

// CloseRoom releases the active room's log subscription, if any.
func (s *Session) CloseRoom() {
	s.mu.Lock()
	sub := s.roomSub
	s.roomSub = nil
	s.activeRoom = ""
	s.mu.Unlock()

	if sub != nil {
		if err := sub.Cancel(); err != nil {
			s.hub.logger.Warn().Err(err).Msg("cancel room subscription failed")
		}
	}
}

// ActiveRoom returns the currently open room id, or "".
func (s *Session) ActiveRoom() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeRoom
}

// Close releases every subscription held by the session. Idempotent.
func (s *Session) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}

	s.mu.Lock()
	listSub, roomSub := s.listSub, s.roomSub
	s.listSub, s.roomSub = nil, nil
	s.activeRoom = ""
	s.mu.Unlock()

	if roomSub != nil {
		roomSub.Cancel()
	}
	if listSub != nil {
		listSub.Cancel()
	}
	close(s.done)
	metrics.ActiveSessions.Dec()
}
