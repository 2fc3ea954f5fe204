package chat

import (
	"errors"
	"sync"
)

// SendState is the lifecycle of an optimistic send. The only legal
// transitions are Composing→Sending, Sending→Sent, Sending→Failed and
// Failed→Sending (retry); a failed send keeps its compose payload so
// the content is recoverable rather than silently lost.
type SendState int

const (
	StateComposing SendState = iota
	StateSending
	StateSent
	StateFailed
)

// ErrInvalidTransition marks a send-state transition outside the
// machine's legal edges.
var ErrInvalidTransition = errors.New("chat: invalid send-state transition")

// PendingSend is one optimistic send moving through the state machine.
type PendingSend struct {
	mu      sync.Mutex
	state   SendState
	roomID  string
	compose Compose
	lastErr error
}

// NewPendingSend creates a pending send in Composing state.
func NewPendingSend(roomID string, compose Compose) *PendingSend {
	return &PendingSend{state: StateComposing, roomID: roomID, compose: compose}
}

// State returns the current state.
func (p *PendingSend) State() SendState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// RoomID returns the target room.
func (p *PendingSend) RoomID() string { return p.roomID }

// Compose returns the retained payload. Valid in every state, so a
// failed send can always be resent.
func (p *PendingSend) Compose() Compose { return p.compose }

// LastErr returns the error of the most recent failed attempt.
func (p *PendingSend) LastErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

// Begin moves Composing→Sending.
func (p *PendingSend) Begin() error {
	return p.transition(StateComposing, StateSending, nil)
}

// Succeed moves Sending→Sent.
func (p *PendingSend) Succeed() error {
	return p.transition(StateSending, StateSent, nil)
}

// Fail moves Sending→Failed, retaining the cause.
func (p *PendingSend) Fail(cause error) error {
	return p.transition(StateSending, StateFailed, cause)
}

// Retry moves Failed→Sending. The sole path out of Failed.
func (p *PendingSend) Retry() error {
	return p.transition(StateFailed, StateSending, nil)
}

func (p *PendingSend) transition(from, to SendState, cause error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != from {
		return ErrInvalidTransition
	}
	p.state = to
	p.lastErr = cause
	return nil
}

// Outbox holds a session's pending sends keyed by a caller-chosen tag,
// so failed messages stay recoverable after the compose buffer has been
// optimistically cleared.
type Outbox struct {
	mu      sync.Mutex
	pending map[string]*PendingSend
}

// NewOutbox creates an empty outbox.
func NewOutbox() *Outbox {
	return &Outbox{pending: make(map[string]*PendingSend)}
}

// Put registers a pending send under tag.
func (o *Outbox) Put(tag string, p *PendingSend) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pending[tag] = p
}

// Get returns the pending send for tag, or nil.
func (o *Outbox) Get(tag string) *PendingSend {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.pending[tag]
}

// Remove drops a completed send.
func (o *Outbox) Remove(tag string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.pending, tag)
}

// Failed returns the tags of all sends currently in Failed state.
func (o *Outbox) Failed() []string {
	o.mu.Lock()
	defer o.mu.Unlock()

	var tags []string
	for tag, p := range o.pending {
		if p.State() == StateFailed {
			tags = append(tags, tag)
		}
	}
	return tags
}
