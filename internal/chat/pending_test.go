package chat

import (
	"errors"
	"testing"

	"github.com/kestrelvaluation/securechat/internal/models"
)

func TestPendingSendHappyPath(t *testing.T) {
	p := NewPendingSend("room-1", Compose{Type: models.MessageTypeText, Text: "hi"})

	if p.State() != StateComposing {
		t.Fatalf("new send should be composing, got %v", p.State())
	}
	if err := p.Begin(); err != nil {
		t.Fatal(err)
	}
	if err := p.Succeed(); err != nil {
		t.Fatal(err)
	}
	if p.State() != StateSent {
		t.Fatalf("expected sent, got %v", p.State())
	}
}

func TestPendingSendFailureRetainsContent(t *testing.T) {
	p := NewPendingSend("room-1", Compose{Type: models.MessageTypeText, Text: "keep me"})

	if err := p.Begin(); err != nil {
		t.Fatal(err)
	}
	cause := errors.New("gateway timeout")
	if err := p.Fail(cause); err != nil {
		t.Fatal(err)
	}

	if p.State() != StateFailed {
		t.Fatalf("expected failed, got %v", p.State())
	}
	if p.Compose().Text != "keep me" {
		t.Fatal("failed send must retain its compose payload")
	}
	if !errors.Is(p.LastErr(), cause) {
		t.Fatalf("last error %v, want %v", p.LastErr(), cause)
	}
}

func TestPendingSendRetryIsOnlyExitFromFailed(t *testing.T) {
	p := NewPendingSend("room-1", Compose{Type: models.MessageTypeText, Text: "again"})
	if err := p.Begin(); err != nil {
		t.Fatal(err)
	}
	if err := p.Fail(errors.New("boom")); err != nil {
		t.Fatal(err)
	}

	if err := p.Succeed(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("failed→sent should be illegal, got %v", err)
	}
	if err := p.Begin(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("failed→sending via Begin should be illegal, got %v", err)
	}

	if err := p.Retry(); err != nil {
		t.Fatal(err)
	}
	if p.State() != StateSending {
		t.Fatalf("retry should move back to sending, got %v", p.State())
	}
	if err := p.Succeed(); err != nil {
		t.Fatal(err)
	}
}

func TestPendingSendIllegalTransitions(t *testing.T) {
	p := NewPendingSend("room-1", Compose{Type: models.MessageTypeText, Text: "x"})

	if err := p.Succeed(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("composing→sent should be illegal, got %v", err)
	}
	if err := p.Fail(errors.New("boom")); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("composing→failed should be illegal, got %v", err)
	}
	if err := p.Retry(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("composing→sending via Retry should be illegal, got %v", err)
	}

	if err := p.Begin(); err != nil {
		t.Fatal(err)
	}
	if err := p.Begin(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("sending→sending should be illegal, got %v", err)
	}
	if err := p.Succeed(); err != nil {
		t.Fatal(err)
	}
	if err := p.Fail(errors.New("late")); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("sent is terminal, got %v", err)
	}
}

func TestOutboxTracksFailedSends(t *testing.T) {
	o := NewOutbox()

	ok := NewPendingSend("room-1", Compose{Type: models.MessageTypeText, Text: "a"})
	bad := NewPendingSend("room-1", Compose{Type: models.MessageTypeText, Text: "b"})
	o.Put("tag-ok", ok)
	o.Put("tag-bad", bad)

	_ = ok.Begin()
	_ = ok.Succeed()
	_ = bad.Begin()
	_ = bad.Fail(errors.New("boom"))

	failed := o.Failed()
	if len(failed) != 1 || failed[0] != "tag-bad" {
		t.Fatalf("expected only tag-bad failed, got %v", failed)
	}

	if o.Get("tag-bad") != bad {
		t.Fatal("outbox should return the registered send")
	}
	o.Remove("tag-bad")
	if o.Get("tag-bad") != nil {
		t.Fatal("removed send should be gone")
	}
}
