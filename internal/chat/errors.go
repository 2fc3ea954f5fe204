// Package chat implements the messaging core: room directory, message
// log, unread reconciliation, reply snapshots and presence tracking.
package chat

import "errors"

var (
	// ErrAccessDenied marks reads and writes rejected because the caller
	// is not a participant of the target room. Handlers hide the room
	// rather than surfacing a hard failure.
	ErrAccessDenied = errors.New("chat: access denied")

	// ErrNotFound marks operations referencing an absent room or message.
	// Reconciliation treats it as a no-op.
	ErrNotFound = errors.New("chat: not found")

	// ErrInvalidMessage marks a compose request whose fields do not match
	// its declared type.
	ErrInvalidMessage = errors.New("chat: invalid message")
)
