package sync

import (
	"context"
	"sync"

	"github.com/kestrelvaluation/securechat/internal/metrics"
)

// MemoryBus implements Bus in process memory. It backs tests and
// single-node deployments where no NATS URL is configured; the contract
// (at-least-once, per-subscription serial delivery, synchronous cancel)
// matches NatsBus.
type MemoryBus struct {
	mu   sync.RWMutex
	subs map[string]map[int]*memSubscription
	next int
}

// NewMemoryBus creates an empty in-process bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string]map[int]*memSubscription)}
}

// Close drops all subscriptions.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = make(map[string]map[int]*memSubscription)
	return nil
}

func (b *MemoryBus) publish(subject string, ev Event) error {
	b.mu.RLock()
	targets := make([]*memSubscription, 0, len(b.subs[subject]))
	for _, s := range b.subs[subject] {
		targets = append(targets, s)
	}
	b.mu.RUnlock()

	for _, s := range targets {
		s.gate.call(s.handler, ev)
	}
	return nil
}

// PublishRoom delivers an event to subscribers of a room's message log.
func (b *MemoryBus) PublishRoom(ctx context.Context, roomID string, ev Event) error {
	return b.publish(roomSubjectPrefix+roomID, ev)
}

// PublishRoomList delivers an event to subscribers of a user's room
// list.
func (b *MemoryBus) PublishRoomList(ctx context.Context, userID string, ev Event) error {
	return b.publish(roomListSubjectPrefix+userID, ev)
}

func (b *MemoryBus) subscribe(subject string, h Handler) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs[subject] == nil {
		b.subs[subject] = make(map[int]*memSubscription)
	}
	id := b.next
	b.next++

	s := &memSubscription{bus: b, subject: subject, id: id, handler: h, gate: &gate{}}
	b.subs[subject][id] = s
	metrics.ActiveSubscriptions.Inc()
	return s, nil
}

// SubscribeRoom subscribes to a room's message log.
func (b *MemoryBus) SubscribeRoom(roomID string, h Handler) (Subscription, error) {
	return b.subscribe(roomSubjectPrefix+roomID, h)
}

// SubscribeRoomList subscribes to a user's room list.
func (b *MemoryBus) SubscribeRoomList(userID string, h Handler) (Subscription, error) {
	return b.subscribe(roomListSubjectPrefix+userID, h)
}

type memSubscription struct {
	bus     *MemoryBus
	subject string
	id      int
	handler Handler
	gate    *gate
}

// Cancel closes the gate first so no handler runs after return, then
// unregisters the subscription.
func (s *memSubscription) Cancel() error {
	s.gate.close()

	s.bus.mu.Lock()
	if subs, ok := s.bus.subs[s.subject]; ok {
		delete(subs, s.id)
		if len(subs) == 0 {
			delete(s.bus.subs, s.subject)
		}
	}
	s.bus.mu.Unlock()

	metrics.ActiveSubscriptions.Dec()
	return nil
}
