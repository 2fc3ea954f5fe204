package models

// MessageType is the content variant of a message. Every consumer is
// expected to switch exhaustively on it rather than sniff optional fields.
type MessageType string

const (
	MessageTypeText   MessageType = "text"
	MessageTypeImage  MessageType = "image"
	MessageTypeSurvey MessageType = "survey-reference"
)

// ReplySnapshot is an immutable copy of the message being replied to,
// captured at compose time. It is deliberately not live-linked: rendering
// "replying to" context must not cost a join on the read path.
type ReplySnapshot struct {
	MessageID  string `bson:"message_id" json:"message_id"`
	SenderName string `bson:"sender_name" json:"sender_name"`
	Text       string `bson:"text" json:"text"` // truncated
}

// Message is an immutable entry in a room's log. Only ReadBy grows after
// creation (monotonic set union).
type Message struct {
	ID         string `bson:"_id" json:"id"` // ULID
	RoomID     string `bson:"room_id" json:"room_id"`
	SenderID   string `bson:"sender_id" json:"sender_id"`
	SenderName string `bson:"sender_name" json:"sender_name"`

	Type     MessageType `bson:"type" json:"type"`
	Text     string      `bson:"text,omitempty" json:"text,omitempty"`
	MediaURL string      `bson:"media_url,omitempty" json:"media_url,omitempty"`
	SurveyID string      `bson:"survey_id,omitempty" json:"survey_id,omitempty"`

	// Seq is the server-assigned order key, strictly increasing within a
	// room. Timestamp is unix ms, also server-assigned.
	Seq       int64 `bson:"seq" json:"seq"`
	Timestamp int64 `bson:"ts" json:"ts"`

	// ReadBy always contains the sender at creation.
	ReadBy []string `bson:"read_by" json:"read_by"`

	ReplyTo *ReplySnapshot `bson:"reply_to,omitempty" json:"reply_to,omitempty"`
}

// PreviewText renders a short plain-text form of the message for room
// list snapshots and reply context. The switch is exhaustive over
// MessageType; unknown variants render as an opaque placeholder.
func (m *Message) PreviewText(max int) string {
	var text string
	switch m.Type {
	case MessageTypeText:
		text = m.Text
	case MessageTypeImage:
		text = "[image]"
	case MessageTypeSurvey:
		text = "[survey]"
	default:
		text = "[message]"
	}
	runes := []rune(text)
	if max > 0 && len(runes) > max {
		return string(runes[:max]) + "…"
	}
	return text
}

// ReadBySet reports whether userID has acknowledged the message.
func (m *Message) ReadBySet(userID string) bool {
	for _, id := range m.ReadBy {
		if id == userID {
			return true
		}
	}
	return false
}
