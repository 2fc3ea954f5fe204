package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/kestrelvaluation/securechat/internal/models"
	"github.com/kestrelvaluation/securechat/internal/store"
)

func newTestDirectory(t *testing.T) (*Directory, *store.MemoryStore) {
	t.Helper()
	s := store.NewMemoryStore()
	return NewDirectory(s, nil, zerolog.Nop()), s
}

func TestDirectRoomIDSymmetric(t *testing.T) {
	if DirectRoomID("alice", "bob") != DirectRoomID("bob", "alice") {
		t.Fatal("direct room id should not depend on argument order")
	}
	if DirectRoomID("alice", "bob") == DirectRoomID("alice", "carol") {
		t.Fatal("different pairs should get different ids")
	}
}

func TestDirectRoomDedup(t *testing.T) {
	dir, _ := newTestDirectory(t)
	ctx := context.Background()

	first, err := dir.ResolveOrCreateDirectRoom(ctx, "alice", "Alice", "bob", "Bob")
	if err != nil {
		t.Fatal(err)
	}
	second, err := dir.ResolveOrCreateDirectRoom(ctx, "bob", "Bob", "alice", "Alice")
	if err != nil {
		t.Fatal(err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected one room, got %s and %s", first.ID, second.ID)
	}
	if !first.HasParticipant("alice") || !first.HasParticipant("bob") {
		t.Fatalf("room should contain both users, got %v", first.Participants)
	}
	if first.UnreadCounts["alice"] != 0 || first.UnreadCounts["bob"] != 0 {
		t.Fatalf("fresh room should have zero unread, got %v", first.UnreadCounts)
	}
}

func TestCaseRoomConcurrentResolve(t *testing.T) {
	dir, s := newTestDirectory(t)
	ctx := context.Background()

	const workers = 8
	ids := make([]string, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := fmt.Sprintf("user-%d", i)
			room, err := dir.ResolveOrCreateCaseRoom(ctx, "case-991", "12 Harbour Rd", user, "User "+user)
			if err != nil {
				errs[i] = err
				return
			}
			ids[i] = room.ID
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("worker %d: %v", i, err)
		}
	}
	for i := 1; i < workers; i++ {
		if ids[i] != ids[0] {
			t.Fatalf("concurrent resolvers diverged: %s vs %s", ids[0], ids[i])
		}
	}

	room, err := s.GetRoom(ctx, ids[0])
	if err != nil {
		t.Fatal(err)
	}
	if room.CaseID != "case-991" {
		t.Fatalf("expected case-991, got %s", room.CaseID)
	}
	if len(room.Participants) != workers {
		t.Fatalf("expected %d participants, got %d", workers, len(room.Participants))
	}
}

func TestCaseRoomResolveIdempotent(t *testing.T) {
	dir, _ := newTestDirectory(t)
	ctx := context.Background()

	first, err := dir.ResolveOrCreateCaseRoom(ctx, "case-12", "3 Mill Lane", "alice", "Alice")
	if err != nil {
		t.Fatal(err)
	}
	second, err := dir.ResolveOrCreateCaseRoom(ctx, "case-12", "3 Mill Lane", "alice", "Alice")
	if err != nil {
		t.Fatal(err)
	}
	if first.ID != second.ID {
		t.Fatal("same case should resolve to the same room")
	}
	if len(second.Participants) != 1 {
		t.Fatalf("re-resolving should not duplicate the participant, got %v", second.Participants)
	}
}

func TestAddParticipantIdempotent(t *testing.T) {
	dir, _ := newTestDirectory(t)
	ctx := context.Background()

	room, err := dir.ResolveOrCreateCaseRoom(ctx, "case-7", "", "alice", "Alice")
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		if err := dir.AddParticipant(ctx, room.ID, "bob", "Bob"); err != nil {
			t.Fatal(err)
		}
	}

	got, err := dir.GetRoom(ctx, room.ID, "bob")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Participants) != 2 {
		t.Fatalf("expected 2 participants, got %v", got.Participants)
	}
}

func TestRemoveParticipantIdempotent(t *testing.T) {
	dir, _ := newTestDirectory(t)
	ctx := context.Background()

	room, err := dir.ResolveOrCreateCaseRoom(ctx, "case-8", "", "alice", "Alice")
	if err != nil {
		t.Fatal(err)
	}
	if err := dir.AddParticipant(ctx, room.ID, "bob", "Bob"); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		if err := dir.RemoveParticipant(ctx, room.ID, "bob"); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := dir.GetRoom(ctx, room.ID, "bob"); !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("removed user should be denied, got %v", err)
	}
}

func TestParticipantOpsUnknownRoom(t *testing.T) {
	dir, _ := newTestDirectory(t)
	ctx := context.Background()

	if err := dir.AddParticipant(ctx, "no-such-room", "bob", "Bob"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := dir.RemoveParticipant(ctx, "no-such-room", "bob"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetRoomAccessControl(t *testing.T) {
	dir, _ := newTestDirectory(t)
	ctx := context.Background()

	room, err := dir.ResolveOrCreateDirectRoom(ctx, "alice", "Alice", "bob", "Bob")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := dir.GetRoom(ctx, room.ID, "mallory"); !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("outsider should be denied, got %v", err)
	}
	if _, err := dir.GetRoom(ctx, "no-such-room", "alice"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRoomsForOrderedByActivity(t *testing.T) {
	dir, s := newTestDirectory(t)
	msgs := NewMessages(s, nil, zerolog.Nop())
	ctx := context.Background()

	old, err := dir.ResolveOrCreateDirectRoom(ctx, "alice", "Alice", "bob", "Bob")
	if err != nil {
		t.Fatal(err)
	}
	recent, err := dir.ResolveOrCreateDirectRoom(ctx, "alice", "Alice", "carol", "Carol")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := msgs.Append(ctx, recent.ID, Identity{UserID: "carol", DisplayName: "Carol"}, Compose{
		Type: models.MessageTypeText, Text: "the draft report is up",
	}); err != nil {
		t.Fatal(err)
	}

	rooms, err := dir.RoomsFor(ctx, "alice", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(rooms) != 2 {
		t.Fatalf("expected 2 rooms, got %d", len(rooms))
	}
	if rooms[0].ID != recent.ID || rooms[1].ID != old.ID {
		t.Fatalf("expected most recent activity first, got %s then %s", rooms[0].ID, rooms[1].ID)
	}
}
