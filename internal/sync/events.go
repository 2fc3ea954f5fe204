// Package sync fans room-list and message-log changes out to realtime
// subscribers. Delivery is at-least-once; consumers reconcile by entity
// id and never assume single delivery.
package sync

import "github.com/kestrelvaluation/securechat/internal/models"

// EventKind discriminates change events on the bus.
type EventKind string

const (
	// KindMessage carries a newly appended message plus the updated room
	// snapshot.
	KindMessage EventKind = "message"
	// KindRoomUpdated carries a room whose metadata (membership, unread
	// counters, last message) changed.
	KindRoomUpdated EventKind = "room_updated"
)

// Event is one change notification. Room and Message are snapshots taken
// after the write committed; metadata may lag a concurrently read window
// by one round trip.
type Event struct {
	Kind    EventKind       `json:"kind"`
	RoomID  string          `json:"room_id"`
	Room    *models.Room    `json:"room,omitempty"`
	Message *models.Message `json:"message,omitempty"`
}
