package sync

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/kestrelvaluation/securechat/internal/metrics"
)

const (
	roomSubjectPrefix     = "chat.room."
	roomListSubjectPrefix = "chat.roomlist."
)

// NatsBus implements Bus on NATS core subjects, one per room log and one
// per user's room list, so events cross instance boundaries.
type NatsBus struct {
	nc     *nats.Conn
	logger zerolog.Logger
}

// ConnectNats connects to NATS with unlimited reconnects and returns a
// bus over the connection.
func ConnectNats(url string, logger zerolog.Logger) (*NatsBus, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info().Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, err
	}
	return &NatsBus{nc: nc, logger: logger}, nil
}

// Close drains the connection.
func (b *NatsBus) Close() error {
	return b.nc.Drain()
}

// Ping checks the NATS connection.
func (b *NatsBus) Ping(ctx context.Context) error {
	if !b.nc.IsConnected() {
		return nats.ErrConnectionClosed
	}
	return nil
}

func (b *NatsBus) publish(subject string, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.nc.Publish(subject, data)
}

// PublishRoom publishes an event on a room's message-log subject.
func (b *NatsBus) PublishRoom(ctx context.Context, roomID string, ev Event) error {
	return b.publish(roomSubjectPrefix+roomID, ev)
}

// PublishRoomList publishes an event on a user's room-list subject.
func (b *NatsBus) PublishRoomList(ctx context.Context, userID string, ev Event) error {
	return b.publish(roomListSubjectPrefix+userID, ev)
}

func (b *NatsBus) subscribe(subject string, h Handler) (Subscription, error) {
	g := &gate{}
	sub, err := b.nc.Subscribe(subject, func(m *nats.Msg) {
		var ev Event
		if err := json.Unmarshal(m.Data, &ev); err != nil {
			b.logger.Warn().Err(err).Str("subject", subject).Msg("bad event payload")
			return
		}
		g.call(h, ev)
	})
	if err != nil {
		return nil, err
	}
	metrics.ActiveSubscriptions.Inc()
	return &natsSubscription{gate: g, sub: sub}, nil
}

// SubscribeRoom subscribes to a room's message-log subject.
func (b *NatsBus) SubscribeRoom(roomID string, h Handler) (Subscription, error) {
	return b.subscribe(roomSubjectPrefix+roomID, h)
}

// SubscribeRoomList subscribes to a user's room-list subject.
func (b *NatsBus) SubscribeRoomList(userID string, h Handler) (Subscription, error) {
	return b.subscribe(roomListSubjectPrefix+userID, h)
}

type natsSubscription struct {
	gate *gate
	sub  *nats.Subscription
}

// Cancel closes the gate first so no handler runs after return, then
// drops the NATS subscription.
func (s *natsSubscription) Cancel() error {
	s.gate.close()
	metrics.ActiveSubscriptions.Dec()
	return s.sub.Unsubscribe()
}
