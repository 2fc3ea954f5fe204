package chat

import (
	"context"
	"fmt"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/kestrelvaluation/securechat/internal/metrics"
	"github.com/kestrelvaluation/securechat/internal/models"
	"github.com/kestrelvaluation/securechat/internal/store"
)

const (
	// DefaultWindow bounds the recent-message window on the read path.
	// History beyond it is not retrievable through this core.
	DefaultWindow = 100

	maxTextLen = 4096
)

// Identity is the authenticated (userId, displayName) pair supplied by
// the identity provider. Trusted without independent verification.
type Identity struct {
	UserID      string
	DisplayName string
}

// Compose is a send request before the server stamps ids, order key and
// timestamp.
type Compose struct {
	Type      models.MessageType
	Text      string
	MediaURL  string
	SurveyID  string
	ReplyToID string
}

// Messages is the append-only per-room message log.
type Messages struct {
	store    store.DataStore
	notifier Notifier
	logger   zerolog.Logger
}

// NewMessages creates a Messages service. A nil notifier disables change
// events.
func NewMessages(s store.DataStore, n Notifier, logger zerolog.Logger) *Messages {
	if n == nil {
		n = NopNotifier{}
	}
	return &Messages{store: s, notifier: n, logger: logger}
}

// validateCompose checks that the compose payload matches its declared
// type. The switch is exhaustive; an unknown type is rejected.
func validateCompose(in Compose) error {
	switch in.Type {
	case models.MessageTypeText:
		if in.Text == "" {
			return fmt.Errorf("%w: text message requires text", ErrInvalidMessage)
		}
		if len(in.Text) > maxTextLen {
			return fmt.Errorf("%w: text too long (max %d bytes)", ErrInvalidMessage, maxTextLen)
		}
	case models.MessageTypeImage:
		if in.MediaURL == "" {
			return fmt.Errorf("%w: image message requires media_url", ErrInvalidMessage)
		}
	case models.MessageTypeSurvey:
		if in.SurveyID == "" {
			return fmt.Errorf("%w: survey reference requires survey_id", ErrInvalidMessage)
		}
	default:
		return fmt.Errorf("%w: unknown message type %q", ErrInvalidMessage, in.Type)
	}
	return nil
}

// Append validates the compose payload, resolves the reply snapshot,
// persists the message with the room's next order key and seeds its
// read-receipt set with the sender. The parent room's last-message
// snapshot and the unread counters of all other participants are updated
// as part of the same logical operation.
func (m *Messages) Append(ctx context.Context, roomID string, sender Identity, in Compose) (*models.Message, error) {
	if err := validateCompose(in); err != nil {
		return nil, err
	}

	room, err := m.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("load room: %w", err)
	}
	if room == nil {
		return nil, ErrNotFound
	}
	if !room.HasParticipant(sender.UserID) {
		return nil, ErrAccessDenied
	}

	var reply *models.ReplySnapshot
	if in.ReplyToID != "" {
		parent, err := m.store.GetMessage(ctx, roomID, in.ReplyToID)
		if err != nil {
			return nil, fmt.Errorf("load reply target: %w", err)
		}
		if parent == nil {
			return nil, fmt.Errorf("%w: reply target", ErrNotFound)
		}
		reply = BuildReplySnapshot(parent)
	}

	msg := &models.Message{
		ID:         ulid.Make().String(),
		RoomID:     roomID,
		SenderID:   sender.UserID,
		SenderName: sender.DisplayName,
		Type:       in.Type,
		Text:       in.Text,
		MediaURL:   in.MediaURL,
		SurveyID:   in.SurveyID,
		ReadBy:     []string{sender.UserID},
		ReplyTo:    reply,
	}

	room, err = m.store.AppendMessage(ctx, msg)
	if err == store.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}

	metrics.MessagesAppended.WithLabelValues(string(msg.Type)).Inc()
	m.notifier.MessageAppended(ctx, room, msg)
	return msg, nil
}

// Window returns the most recent messages of a room in ascending order
// key, bounded by limit (DefaultWindow when limit <= 0).
func (m *Messages) Window(ctx context.Context, roomID, callerID string, limit int) ([]models.Message, error) {
	if limit <= 0 || limit > DefaultWindow {
		limit = DefaultWindow
	}

	room, err := m.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("load room: %w", err)
	}
	if room == nil {
		return nil, ErrNotFound
	}
	if !room.HasParticipant(callerID) {
		return nil, ErrAccessDenied
	}

	return m.store.MessageWindow(ctx, roomID, limit)
}
