package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/kestrelvaluation/securechat/internal/metrics"
	"github.com/kestrelvaluation/securechat/internal/models"
)

// DefaultHeartbeat is the interval active sessions heartbeat on.
const DefaultHeartbeat = 120 * time.Second

// PresenceStore is the slice of the presence backend the tracker needs.
// *store.RedisStore implements it.
type PresenceStore interface {
	SetPresence(ctx context.Context, userID string, online bool, lastSeen int64) error
	GetPresence(ctx context.Context, userID string) (*models.PresenceRecord, error)
}

// PresenceStatus is the derived, reader-computed presence of a user.
type PresenceStatus struct {
	Online   bool      `json:"online"`
	LastSeen time.Time `json:"last_seen"`
}

// Presence tracks heartbeat-driven online/last-seen state per user.
type Presence struct {
	store     PresenceStore
	heartbeat time.Duration
	now       func() time.Time
}

// NewPresence creates a tracker. heartbeat <= 0 selects
// DefaultHeartbeat.
func NewPresence(s PresenceStore, heartbeat time.Duration) *Presence {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	return &Presence{store: s, heartbeat: heartbeat, now: time.Now}
}

// Heartbeat records activity for userID: online with a fresh last-seen.
func (p *Presence) Heartbeat(ctx context.Context, userID string) error {
	metrics.Heartbeats.Inc()
	if err := p.store.SetPresence(ctx, userID, true, p.now().UnixMilli()); err != nil {
		return fmt.Errorf("heartbeat: %w", err)
	}
	return nil
}

// MarkOffline records an explicit sign-out. Best effort only: a crashed
// client never calls it, which is why Status corrects for staleness.
func (p *Presence) MarkOffline(ctx context.Context, userID string) error {
	if err := p.store.SetPresence(ctx, userID, false, p.now().UnixMilli()); err != nil {
		return fmt.Errorf("mark offline: %w", err)
	}
	return nil
}

// Status derives a user's presence from the stored record. The stored
// online flag can be stuck true after an uncommunicated disconnect, so a
// user only reads as online while the last heartbeat is younger than
// twice the heartbeat interval.
func (p *Presence) Status(ctx context.Context, userID string) (PresenceStatus, error) {
	rec, err := p.store.GetPresence(ctx, userID)
	if err != nil {
		return PresenceStatus{}, fmt.Errorf("get presence: %w", err)
	}

	lastSeen := time.UnixMilli(rec.LastSeen)
	online := rec.Online && p.now().Sub(lastSeen) < 2*p.heartbeat
	return PresenceStatus{Online: online, LastSeen: lastSeen}, nil
}
