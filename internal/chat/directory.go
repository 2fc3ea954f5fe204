package chat

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kestrelvaluation/securechat/internal/metrics"
	"github.com/kestrelvaluation/securechat/internal/models"
	"github.com/kestrelvaluation/securechat/internal/store"
)

// roomNamespace seeds deterministic room ids. Deriving the id from the
// logical key (direct pair or case id) makes resolve-or-create an
// idempotent upsert: concurrent first callers converge on one document
// instead of racing lookup-then-create.
var roomNamespace = uuid.MustParse("8f0f2a46-9c5e-4f11-b0d2-6a51c7a1f3de")

// DirectRoomID derives the room id for a pair of users. Symmetric in its
// arguments.
func DirectRoomID(userA, userB string) string {
	pair := []string{userA, userB}
	sort.Strings(pair)
	return uuid.NewSHA1(roomNamespace, []byte("direct:"+pair[0]+":"+pair[1])).String()
}

// CaseRoomID derives the room id for a case.
func CaseRoomID(caseID string) string {
	return uuid.NewSHA1(roomNamespace, []byte("case:"+caseID)).String()
}

// Directory owns room lifecycle: lookup, creation with dedup and
// participant membership.
type Directory struct {
	store    store.DataStore
	notifier Notifier
	logger   zerolog.Logger
}

// NewDirectory creates a Directory. A nil notifier disables change
// events.
func NewDirectory(s store.DataStore, n Notifier, logger zerolog.Logger) *Directory {
	if n == nil {
		n = NopNotifier{}
	}
	return &Directory{store: s, notifier: n, logger: logger}
}

// ResolveOrCreateDirectRoom returns the direct room for the pair,
// creating it on first contact. Safe to call repeatedly with the
// arguments in either order.
func (d *Directory) ResolveOrCreateDirectRoom(ctx context.Context, userA, nameA, userB, nameB string) (*models.Room, error) {
	id := DirectRoomID(userA, userB)

	room, err := d.store.GetRoom(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("lookup direct room: %w", err)
	}
	if room != nil {
		return room, nil
	}

	pair := []string{userA, userB}
	sort.Strings(pair)
	room = &models.Room{
		ID:           id,
		Type:         models.RoomTypeDirect,
		Participants: pair,
		ParticipantNames: map[string]string{
			userA: nameA,
			userB: nameB,
		},
		LastMessage:     "chat started",
		LastMessageTime: time.Now().UnixMilli(),
		UnreadCounts:    map[string]int64{userA: 0, userB: 0},
		CreatedAt:       time.Now().UTC(),
		CreatedBy:       userA,
	}

	created, err := d.store.InsertRoom(ctx, room)
	if err != nil {
		return nil, fmt.Errorf("create direct room: %w", err)
	}
	if !created {
		// Lost the creation race; the winner's document is authoritative.
		return d.store.GetRoom(ctx, id)
	}

	metrics.RoomsCreated.WithLabelValues(string(models.RoomTypeDirect)).Inc()
	d.logger.Info().Str("room_id", id).Msg("direct room created")
	d.notifier.RoomUpdated(ctx, room)
	return room, nil
}

// ResolveOrCreateCaseRoom returns the room bound to caseID, creating it
// on first request. The requester is added to the participant set either
// way (idempotent set-add).
func (d *Directory) ResolveOrCreateCaseRoom(ctx context.Context, caseID, caseName, requesterID, requesterName string) (*models.Room, error) {
	id := CaseRoomID(caseID)

	room := &models.Room{
		ID:               id,
		Type:             models.RoomTypeCase,
		CaseID:           caseID,
		CaseName:         caseName,
		Participants:     []string{requesterID},
		ParticipantNames: map[string]string{requesterID: requesterName},
		LastMessage:      "chat started",
		LastMessageTime:  time.Now().UnixMilli(),
		UnreadCounts:     map[string]int64{requesterID: 0},
		CreatedAt:        time.Now().UTC(),
		CreatedBy:        requesterID,
	}

	created, err := d.store.InsertRoom(ctx, room)
	if err != nil {
		return nil, fmt.Errorf("create case room: %w", err)
	}
	if created {
		metrics.RoomsCreated.WithLabelValues(string(models.RoomTypeCase)).Inc()
		d.logger.Info().Str("room_id", id).Str("case_id", caseID).Msg("case room created")
		d.notifier.RoomUpdated(ctx, room)
		return room, nil
	}

	// Room existed already: join the requester.
	if err := d.store.AddParticipant(ctx, id, requesterID, requesterName); err != nil {
		return nil, fmt.Errorf("join case room: %w", err)
	}
	room, err = d.store.GetRoom(ctx, id)
	if err != nil {
		return nil, err
	}
	if room == nil {
		return nil, ErrNotFound
	}
	d.notifier.RoomUpdated(ctx, room)
	return room, nil
}

// AddParticipant adds a user to a room. Adding an existing participant
// is a no-op.
func (d *Directory) AddParticipant(ctx context.Context, roomID, userID, name string) error {
	err := d.store.AddParticipant(ctx, roomID, userID, name)
	if err == store.ErrNotFound {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("add participant: %w", err)
	}
	if room, err := d.store.GetRoom(ctx, roomID); err == nil && room != nil {
		d.notifier.RoomUpdated(ctx, room)
	}
	return nil
}

// RemoveParticipant removes a user from a room. Removing an absent
// participant is a no-op.
func (d *Directory) RemoveParticipant(ctx context.Context, roomID, userID string) error {
	err := d.store.RemoveParticipant(ctx, roomID, userID)
	if err == store.ErrNotFound {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("remove participant: %w", err)
	}
	if room, err := d.store.GetRoom(ctx, roomID); err == nil && room != nil {
		d.notifier.RoomUpdated(ctx, room)
	}
	return nil
}

// RoomsFor returns the rooms userID participates in, most recent
// activity first.
func (d *Directory) RoomsFor(ctx context.Context, userID string, limit int) ([]models.Room, error) {
	return d.store.RoomsForUser(ctx, userID, limit)
}

// GetRoom returns a room the caller participates in. Non-participants
// get ErrAccessDenied regardless of whether the room exists.
func (d *Directory) GetRoom(ctx context.Context, roomID, callerID string) (*models.Room, error) {
	room, err := d.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room == nil {
		return nil, ErrNotFound
	}
	if !room.HasParticipant(callerID) {
		return nil, ErrAccessDenied
	}
	return room, nil
}
