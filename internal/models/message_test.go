package models

import (
	"strings"
	"testing"
)

func TestPreviewText(t *testing.T) {
	cases := []struct {
		msg  Message
		want string
	}{
		{Message{Type: MessageTypeText, Text: "short note"}, "short note"},
		{Message{Type: MessageTypeImage, MediaURL: "https://cdn/x.jpg"}, "[image]"},
		{Message{Type: MessageTypeSurvey, SurveyID: "s-1"}, "[survey]"},
		{Message{Type: "unknown-kind", Text: "???"}, "[message]"},
	}
	for _, c := range cases {
		if got := c.msg.PreviewText(80); got != c.want {
			t.Fatalf("PreviewText(%q) = %q, want %q", c.msg.Type, got, c.want)
		}
	}
}

func TestPreviewTextTruncatesRunes(t *testing.T) {
	msg := Message{Type: MessageTypeText, Text: strings.Repeat("ä", 100)}
	got := msg.PreviewText(10)
	runes := []rune(got)
	if len(runes) != 11 {
		t.Fatalf("preview length %d runes, want 10 plus ellipsis", len(runes))
	}
	if runes[10] != '…' {
		t.Fatalf("preview should end with ellipsis, got %q", got)
	}

	// max <= 0 disables truncation
	if msg.PreviewText(0) != msg.Text {
		t.Fatal("zero max should return the full text")
	}
}

func TestReadBySet(t *testing.T) {
	msg := Message{ReadBy: []string{"alice", "bob"}}
	if !msg.ReadBySet("alice") || msg.ReadBySet("carol") {
		t.Fatal("readBy membership wrong")
	}
}

func TestRoomHasParticipant(t *testing.T) {
	room := Room{Participants: []string{"alice", "bob"}}
	if !room.HasParticipant("bob") {
		t.Fatal("bob is a participant")
	}
	if room.HasParticipant("mallory") {
		t.Fatal("mallory is not a participant")
	}
}
