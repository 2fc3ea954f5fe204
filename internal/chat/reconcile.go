package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/kestrelvaluation/securechat/internal/metrics"
	"github.com/kestrelvaluation/securechat/internal/store"
)

// Reconciler keeps unread counters in agreement with the readBy sets of
// the message log. Opening a room runs the idempotent mark-read batch;
// a background sweep repairs drift left by partially applied batches.
type Reconciler struct {
	store    store.DataStore
	notifier Notifier
	logger   zerolog.Logger
}

// NewReconciler creates a Reconciler over the given store. A nil
// notifier disables change events.
func NewReconciler(s store.DataStore, n Notifier, logger zerolog.Logger) *Reconciler {
	if n == nil {
		n = NopNotifier{}
	}
	return &Reconciler{store: s, notifier: n, logger: logger}
}

// OnRoomOpened acknowledges the full backlog for userID: every message
// not yet carrying the user in its readBy set is marked read, then the
// user's unread counter is re-derived from the log. Acknowledgement is
// deliberately not limited to the visible window, since messages
// scrolled out of it would otherwise have no read path and pin the
// counter above zero. Both steps are idempotent, and because the
// counter is recomputed rather than blindly reset, a retry after
// partial failure converges to the same end state.
func (r *Reconciler) OnRoomOpened(ctx context.Context, roomID, userID string) error {
	room, err := r.store.GetRoom(ctx, roomID)
	if err != nil {
		return fmt.Errorf("load room: %w", err)
	}
	if room == nil {
		// Room deleted out-of-band; nothing to reconcile.
		return ErrNotFound
	}
	if !room.HasParticipant(userID) {
		return ErrAccessDenied
	}

	if err := r.store.MarkAllRead(ctx, roomID, userID); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}

	// Counter last: unions are commutative and idempotent, the counter
	// write is not, so it must follow the receipts it is derived from.
	n, err := r.store.CountUnread(ctx, roomID, userID)
	if err != nil {
		return fmt.Errorf("count unread: %w", err)
	}
	if err := r.store.SetUnreadCount(ctx, roomID, userID, n); err != nil {
		return fmt.Errorf("set unread: %w", err)
	}

	metrics.Reconciliations.Inc()

	if room, err := r.store.GetRoom(ctx, roomID); err == nil && room != nil {
		r.notifier.RoomUpdated(ctx, room)
	}
	return nil
}

// Sweep recomputes every participant's unread counter of every room from
// the authoritative readBy sets. Incremental counters are never trusted
// indefinitely: a crashed reconciliation can leave them high until the
// next sweep.
func (r *Reconciler) Sweep(ctx context.Context) error {
	rooms, err := r.store.AllRooms(ctx)
	if err != nil {
		return fmt.Errorf("list rooms: %w", err)
	}

	for _, room := range rooms {
		for _, p := range room.Participants {
			n, err := r.store.CountUnread(ctx, room.ID, p)
			if err != nil {
				r.logger.Warn().Err(err).Str("room_id", room.ID).Msg("sweep: count unread failed")
				continue
			}
			if n == room.UnreadCounts[p] {
				continue
			}
			if err := r.store.SetUnreadCount(ctx, room.ID, p, n); err != nil {
				r.logger.Warn().Err(err).Str("room_id", room.ID).Str("user_id", p).Msg("sweep: set unread failed")
			}
		}
	}

	metrics.UnreadSweeps.Inc()
	return nil
}

// RunSweeper runs Sweep on the given interval until ctx is cancelled.
// Transient store failures are retried with exponential backoff and
// otherwise invisible, per the best-effort reconciliation policy.
func (r *Reconciler) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
			if err := backoff.Retry(func() error { return r.Sweep(ctx) }, policy); err != nil {
				r.logger.Warn().Err(err).Msg("unread sweep failed")
			}
		}
	}
}
