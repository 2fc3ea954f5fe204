package sync

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/kestrelvaluation/securechat/internal/models"
)

// Publisher adapts a Bus to the chat layer's Notifier. Fan-out is best
// effort: a failed publish is logged, never surfaced to the writer whose
// store operation already committed.
type Publisher struct {
	bus    Bus
	logger zerolog.Logger
}

// NewPublisher creates a Publisher over the bus.
func NewPublisher(bus Bus, logger zerolog.Logger) *Publisher {
	return &Publisher{bus: bus, logger: logger}
}

// MessageAppended pushes the new message to the room's log subscribers
// and the updated room snapshot to every participant's room list.
func (p *Publisher) MessageAppended(ctx context.Context, room *models.Room, msg *models.Message) {
	ev := Event{Kind: KindMessage, RoomID: room.ID, Room: room, Message: msg}
	if err := p.bus.PublishRoom(ctx, room.ID, ev); err != nil {
		p.logger.Warn().Err(err).Str("room_id", room.ID).Msg("publish message event failed")
	}
	p.RoomUpdated(ctx, room)
}

// RoomUpdated pushes the room snapshot to every participant's room list.
func (p *Publisher) RoomUpdated(ctx context.Context, room *models.Room) {
	ev := Event{Kind: KindRoomUpdated, RoomID: room.ID, Room: room}
	for _, userID := range room.Participants {
		if err := p.bus.PublishRoomList(ctx, userID, ev); err != nil {
			p.logger.Warn().Err(err).Str("room_id", room.ID).Str("user_id", userID).Msg("publish room event failed")
		}
	}
}
