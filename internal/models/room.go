package models

import "time"

// RoomType distinguishes one-to-one chats from case-bound group rooms.
type RoomType string

const (
	RoomTypeDirect RoomType = "direct"
	RoomTypeCase   RoomType = "case"
)

// Room is a conversation container. Direct rooms hold exactly two
// participants; case rooms are bound to a valuation case and hold a
// variable set of staff.
type Room struct {
	ID       string   `bson:"_id" json:"id"`
	Type     RoomType `bson:"type" json:"type"`
	CaseID   string   `bson:"case_id,omitempty" json:"case_id,omitempty"`
	CaseName string   `bson:"case_name,omitempty" json:"case_name,omitempty"`

	Participants     []string          `bson:"participants" json:"participants"`
	ParticipantNames map[string]string `bson:"participant_names" json:"participant_names"`

	LastMessage     string `bson:"last_message" json:"last_message"`
	LastMessageTime int64  `bson:"last_message_time" json:"last_message_time"` // unix ms

	// UnreadCounts maps participant id to the number of messages that
	// participant has not acknowledged. Incremented atomically on append,
	// recomputed from readBy sets on reconciliation.
	UnreadCounts map[string]int64 `bson:"unread_counts" json:"unread_counts"`

	// Seq is the room's order-key high-water mark. Every append claims the
	// next value, so message order within a room is total.
	Seq int64 `bson:"seq" json:"-"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	CreatedBy string    `bson:"created_by" json:"created_by"`
}

// HasParticipant reports whether userID is a member of the room.
func (r *Room) HasParticipant(userID string) bool {
	for _, p := range r.Participants {
		if p == userID {
			return true
		}
	}
	return false
}
