package chat

import (
	"context"

	"github.com/kestrelvaluation/securechat/internal/models"
)

// Notifier receives change events after writes commit. The sync layer
// implements it; delivery is at-least-once and consumers reconcile by
// entity id, so publishing after the store write (rather than inside a
// transaction) is sufficient.
type Notifier interface {
	MessageAppended(ctx context.Context, room *models.Room, msg *models.Message)
	RoomUpdated(ctx context.Context, room *models.Room)
}

// NopNotifier discards all events. Used when no sync layer is attached.
type NopNotifier struct{}

func (NopNotifier) MessageAppended(context.Context, *models.Room, *models.Message) {}
func (NopNotifier) RoomUpdated(context.Context, *models.Room)                      {}
