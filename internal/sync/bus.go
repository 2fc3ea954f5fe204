package sync

import (
	"context"
	"sync"
)

// Handler consumes events for one subscription. Handlers for a single
// subscription are never invoked concurrently, and never after Cancel
// has returned.
type Handler func(Event)

// Subscription is a scoped resource. Cancel is synchronous: once it
// returns, the handler will not be invoked again, so callers can tear
// down the state the handler writes to.
type Subscription interface {
	Cancel() error
}

// Bus moves change events between writers and subscribed sessions.
// NatsBus is the multi-instance implementation; MemoryBus serves tests
// and single-node deployments.
type Bus interface {
	PublishRoom(ctx context.Context, roomID string, ev Event) error
	PublishRoomList(ctx context.Context, userID string, ev Event) error
	SubscribeRoom(roomID string, h Handler) (Subscription, error)
	SubscribeRoomList(userID string, h Handler) (Subscription, error)
	Close() error
}

// gate serializes handler invocations and makes cancellation
// synchronous: close blocks until any in-flight invocation finishes, and
// every later delivery sees closed and returns without calling the
// handler.
type gate struct {
	mu     sync.Mutex
	closed bool
}

func (g *gate) call(h Handler, ev Event) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	h(ev)
}

func (g *gate) close() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
}
