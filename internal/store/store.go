package store

import (
	"context"
	"errors"

	"github.com/kestrelvaluation/securechat/internal/models"
)

// ErrNotFound is returned when a referenced room or message does not exist.
var ErrNotFound = errors.New("store: not found")

// DataStore defines the document-store interface backing rooms and
// messages. MongoStore is the production implementation; MemoryStore
// implements the same contract for tests and NATS-less development.
type DataStore interface {
	// Connection management
	Close(ctx context.Context) error
	Ping(ctx context.Context) error

	// Room operations
	//
	// InsertRoom is a create-if-absent upsert keyed on the room id. It
	// returns true when this call created the room, false when a room
	// with the same id already existed (the existing document is left
	// untouched). Deterministic ids make resolve-or-create naturally
	// idempotent under concurrent first callers.
	InsertRoom(ctx context.Context, room *models.Room) (bool, error)
	GetRoom(ctx context.Context, roomID string) (*models.Room, error)
	RoomsForUser(ctx context.Context, userID string, limit int) ([]models.Room, error)
	AllRooms(ctx context.Context) ([]models.Room, error)
	AddParticipant(ctx context.Context, roomID, userID, name string) error
	RemoveParticipant(ctx context.Context, roomID, userID string) error

	// Message operations
	//
	// AppendMessage claims the room's next order key, stamps msg.Seq and
	// msg.Timestamp, persists the message, updates the room's last-message
	// snapshot and atomically increments the unread counter of every
	// participant except the sender. The updated room is returned.
	AppendMessage(ctx context.Context, msg *models.Message) (*models.Room, error)
	// MessageWindow returns the most recent limit messages in ascending
	// order-key order.
	MessageWindow(ctx context.Context, roomID string, limit int) ([]models.Message, error)
	GetMessage(ctx context.Context, roomID, messageID string) (*models.Message, error)
	// MarkAllRead adds userID to the readBy set of every message in the
	// room not yet carrying it (idempotent set union). The filter names
	// the unacknowledged backlog directly, so acknowledgement is not
	// limited to any message window.
	MarkAllRead(ctx context.Context, roomID, userID string) error
	// CountUnread counts messages in the room whose readBy set does not
	// contain userID. Reconciliation derives counters from this rather
	// than trusting incremental state.
	CountUnread(ctx context.Context, roomID, userID string) (int64, error)
	SetUnreadCount(ctx context.Context, roomID, userID string, n int64) error
}
