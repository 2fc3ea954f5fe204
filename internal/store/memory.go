package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kestrelvaluation/securechat/internal/models"
)

// MemoryStore implements DataStore in process memory. It backs tests and
// development without a MongoDB instance, with the same atomicity
// guarantees the Mongo implementation gets from $inc and $addToSet:
// every mutation runs under one lock.
type MemoryStore struct {
	mu       sync.RWMutex
	rooms    map[string]*models.Room
	messages map[string][]*models.Message // roomID -> ascending seq
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms:    make(map[string]*models.Room),
		messages: make(map[string][]*models.Message),
	}
}

// Close is a no-op.
func (s *MemoryStore) Close(ctx context.Context) error { return nil }

// Ping is a no-op.
func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func copyRoom(r *models.Room) *models.Room {
	cp := *r
	cp.Participants = append([]string(nil), r.Participants...)
	cp.ParticipantNames = make(map[string]string, len(r.ParticipantNames))
	for k, v := range r.ParticipantNames {
		cp.ParticipantNames[k] = v
	}
	cp.UnreadCounts = make(map[string]int64, len(r.UnreadCounts))
	for k, v := range r.UnreadCounts {
		cp.UnreadCounts[k] = v
	}
	return &cp
}

func copyMessage(m *models.Message) *models.Message {
	cp := *m
	cp.ReadBy = append([]string(nil), m.ReadBy...)
	if m.ReplyTo != nil {
		snap := *m.ReplyTo
		cp.ReplyTo = &snap
	}
	return &cp
}

// InsertRoom creates the room unless one with the same id already exists.
func (s *MemoryStore) InsertRoom(ctx context.Context, room *models.Room) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[room.ID]; ok {
		return false, nil
	}
	s.rooms[room.ID] = copyRoom(room)
	return true, nil
}

// GetRoom fetches a room by id. Returns nil, nil when absent.
func (s *MemoryStore) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return nil, nil
	}
	return copyRoom(room), nil
}

// RoomsForUser returns rooms the user participates in, most recent
// activity first.
func (s *MemoryStore) RoomsForUser(ctx context.Context, userID string, limit int) ([]models.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rooms []models.Room
	for _, r := range s.rooms {
		if r.HasParticipant(userID) {
			rooms = append(rooms, *copyRoom(r))
		}
	}
	sort.Slice(rooms, func(i, j int) bool {
		return rooms[i].LastMessageTime > rooms[j].LastMessageTime
	})
	if limit > 0 && len(rooms) > limit {
		rooms = rooms[:limit]
	}
	return rooms, nil
}

// AllRooms returns every room.
func (s *MemoryStore) AllRooms(ctx context.Context) ([]models.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rooms := make([]models.Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		rooms = append(rooms, *copyRoom(r))
	}
	return rooms, nil
}

// AddParticipant adds userID to the room; adding an existing participant
// is a no-op.
func (s *MemoryStore) AddParticipant(ctx context.Context, roomID, userID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return ErrNotFound
	}
	if !room.HasParticipant(userID) {
		room.Participants = append(room.Participants, userID)
	}
	room.ParticipantNames[userID] = name
	if _, ok := room.UnreadCounts[userID]; !ok {
		room.UnreadCounts[userID] = 0
	}
	return nil
}

// RemoveParticipant removes userID from the room; removing an absent
// participant is a no-op.
func (s *MemoryStore) RemoveParticipant(ctx context.Context, roomID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return ErrNotFound
	}
	for i, p := range room.Participants {
		if p == userID {
			room.Participants = append(room.Participants[:i], room.Participants[i+1:]...)
			break
		}
	}
	delete(room.ParticipantNames, userID)
	delete(room.UnreadCounts, userID)
	return nil
}

// AppendMessage claims the next order key, persists the message and
// updates the parent room's snapshot and unread counters.
func (s *MemoryStore) AppendMessage(ctx context.Context, msg *models.Message) (*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[msg.RoomID]
	if !ok {
		return nil, ErrNotFound
	}

	room.Seq++
	msg.Seq = room.Seq
	now := time.Now().UnixMilli()
	if now <= room.LastMessageTime {
		now = room.LastMessageTime + 1
	}
	msg.Timestamp = now

	s.messages[msg.RoomID] = append(s.messages[msg.RoomID], copyMessage(msg))

	room.LastMessage = msg.PreviewText(80)
	room.LastMessageTime = msg.Timestamp
	for _, p := range room.Participants {
		if p != msg.SenderID {
			room.UnreadCounts[p]++
		}
	}
	return copyRoom(room), nil
}

// MessageWindow returns the most recent limit messages in ascending seq
// order.
func (s *MemoryStore) MessageWindow(ctx context.Context, roomID string, limit int) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := s.messages[roomID]
	if limit > 0 && len(log) > limit {
		log = log[len(log)-limit:]
	}
	msgs := make([]models.Message, 0, len(log))
	for _, m := range log {
		msgs = append(msgs, *copyMessage(m))
	}
	return msgs, nil
}

// GetMessage fetches one message by id. Returns nil, nil when absent.
func (s *MemoryStore) GetMessage(ctx context.Context, roomID, messageID string) (*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, m := range s.messages[roomID] {
		if m.ID == messageID {
			return copyMessage(m), nil
		}
	}
	return nil, nil
}

// MarkAllRead unions userID into the readBy set of every message in
// the room.
func (s *MemoryStore) MarkAllRead(ctx context.Context, roomID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range s.messages[roomID] {
		if !m.ReadBySet(userID) {
			m.ReadBy = append(m.ReadBy, userID)
		}
	}
	return nil
}

// CountUnread counts messages in the room not yet acknowledged by userID.
func (s *MemoryStore) CountUnread(ctx context.Context, roomID, userID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, m := range s.messages[roomID] {
		if !m.ReadBySet(userID) {
			n++
		}
	}
	return n, nil
}

// MemoryPresence keeps presence records in process memory, for tests
// and Redis-less development.
type MemoryPresence struct {
	mu      sync.RWMutex
	records map[string]models.PresenceRecord
}

// NewMemoryPresence creates an empty presence map.
func NewMemoryPresence() *MemoryPresence {
	return &MemoryPresence{records: make(map[string]models.PresenceRecord)}
}

// SetPresence writes a user's presence record.
func (p *MemoryPresence) SetPresence(ctx context.Context, userID string, online bool, lastSeen int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records[userID] = models.PresenceRecord{Online: online, LastSeen: lastSeen}
	return nil
}

// GetPresence reads a user's presence record. A user never seen reads
// as offline with zero last_seen.
func (p *MemoryPresence) GetPresence(ctx context.Context, userID string) (*models.PresenceRecord, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	rec := p.records[userID]
	return &rec, nil
}

// SetUnreadCount overwrites one participant's unread counter.
func (s *MemoryStore) SetUnreadCount(ctx context.Context, roomID, userID string, n int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return ErrNotFound
	}
	room.UnreadCounts[userID] = n
	return nil
}
