package handlers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/kestrelvaluation/securechat/internal/api"
	"github.com/kestrelvaluation/securechat/internal/api/middleware"
	"github.com/kestrelvaluation/securechat/internal/chat"
	"github.com/kestrelvaluation/securechat/internal/handlers"
	"github.com/kestrelvaluation/securechat/internal/models"
	"github.com/kestrelvaluation/securechat/internal/store"
	"github.com/kestrelvaluation/securechat/internal/sync"
)

const testSecret = "test-secret"

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	logger := zerolog.Nop()
	s := store.NewMemoryStore()
	bus := sync.NewMemoryBus()
	pub := sync.NewPublisher(bus, logger)

	directory := chat.NewDirectory(s, pub, logger)
	messages := chat.NewMessages(s, pub, logger)
	reconciler := chat.NewReconciler(s, pub, logger)
	presence := chat.NewPresence(store.NewMemoryPresence(), chat.DefaultHeartbeat)
	hub := sync.NewHub(s, bus, reconciler, logger)

	h := handlers.NewHandler(handlers.Deps{
		Store:      s,
		Directory:  directory,
		Messages:   messages,
		Reconciler: reconciler,
		Presence:   presence,
		Hub:        hub,
		Bus:        bus,
		Logger:     logger,
	})

	return api.NewRouter(api.RouterConfig{
		Handler:   h,
		Auth:      middleware.NewAuthMiddleware(testSecret),
		SendLimit: middleware.NewRateLimiter(nil, 30, logger),
		Logger:    logger,
	})
}

func token(t *testing.T, userID, name string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  userID,
		"name": name,
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	signed, err := tok.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatal(err)
	}
	return signed
}

func call(t *testing.T, router http.Handler, method, path, bearer string, body interface{}, out interface{}) int {
	t.Helper()
	var payload *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		payload = bytes.NewBuffer(data)
	} else {
		payload = &bytes.Buffer{}
	}

	req := httptest.NewRequest(method, path, payload)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if out != nil && rec.Code < 300 {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("decode %s %s response: %v (%s)", method, path, err, rec.Body.String())
		}
	}
	return rec.Code
}

func TestDirectRoomFlow(t *testing.T) {
	router := newTestRouter(t)
	alice := token(t, "alice", "Alice Nguyen")
	bob := token(t, "bob", "Bob Okafor")

	// Alice opens a chat with Bob.
	var room models.Room
	if code := call(t, router, http.MethodPost, "/rooms/direct", alice,
		handlers.CreateDirectRoomRequest{PeerID: "bob", PeerName: "Bob Okafor"}, &room); code != http.StatusOK {
		t.Fatalf("create direct room: status %d", code)
	}

	// Bob resolving the same pair gets the same room.
	var same models.Room
	if code := call(t, router, http.MethodPost, "/rooms/direct", bob,
		handlers.CreateDirectRoomRequest{PeerID: "alice", PeerName: "Alice Nguyen"}, &same); code != http.StatusOK {
		t.Fatalf("resolve direct room: status %d", code)
	}
	if same.ID != room.ID {
		t.Fatalf("pair resolved to two rooms: %s vs %s", room.ID, same.ID)
	}

	// Alice sends; Bob's listing shows one unread.
	var msg models.Message
	if code := call(t, router, http.MethodPost, "/rooms/"+room.ID+"/messages", alice,
		handlers.PostMessageRequest{Type: "text", Text: "draft valuation attached"}, &msg); code != http.StatusCreated {
		t.Fatalf("post message: status %d", code)
	}
	if msg.Seq != 1 || msg.SenderID != "alice" {
		t.Fatalf("unexpected message %+v", msg)
	}

	var listing struct {
		Rooms []models.Room `json:"rooms"`
	}
	if code := call(t, router, http.MethodGet, "/rooms", bob, nil, &listing); code != http.StatusOK {
		t.Fatalf("list rooms: status %d", code)
	}
	if len(listing.Rooms) != 1 || listing.Rooms[0].UnreadCounts["bob"] != 1 {
		t.Fatalf("bob should have 1 unread, got %+v", listing.Rooms)
	}

	// Opening the room clears it.
	if code := call(t, router, http.MethodPost, "/rooms/"+room.ID+"/open", bob, nil, nil); code != http.StatusOK {
		t.Fatalf("open room: status %d", code)
	}
	if code := call(t, router, http.MethodGet, "/rooms", bob, nil, &listing); code != http.StatusOK {
		t.Fatalf("list rooms: status %d", code)
	}
	if listing.Rooms[0].UnreadCounts["bob"] != 0 {
		t.Fatalf("open should clear unread, got %d", listing.Rooms[0].UnreadCounts["bob"])
	}

	// Bob reads the window.
	var window struct {
		Messages []models.Message `json:"messages"`
	}
	if code := call(t, router, http.MethodGet, "/rooms/"+room.ID+"/messages", bob, nil, &window); code != http.StatusOK {
		t.Fatalf("get messages: status %d", code)
	}
	if len(window.Messages) != 1 || window.Messages[0].ID != msg.ID {
		t.Fatalf("window %+v", window.Messages)
	}
}

func TestDirectRoomRejectsSelfChat(t *testing.T) {
	router := newTestRouter(t)
	alice := token(t, "alice", "Alice")

	code := call(t, router, http.MethodPost, "/rooms/direct", alice,
		handlers.CreateDirectRoomRequest{PeerID: "alice"}, nil)
	if code != http.StatusUnprocessableEntity {
		t.Fatalf("self-chat should be 422, got %d", code)
	}
}

func TestRoomHiddenFromOutsiders(t *testing.T) {
	router := newTestRouter(t)
	alice := token(t, "alice", "Alice")
	mallory := token(t, "mallory", "Mallory")

	var room models.Room
	if code := call(t, router, http.MethodPost, "/rooms/direct", alice,
		handlers.CreateDirectRoomRequest{PeerID: "bob", PeerName: "Bob"}, &room); code != http.StatusOK {
		t.Fatalf("create: status %d", code)
	}

	// Outsiders see 404, not 403: existence is not disclosed.
	if code := call(t, router, http.MethodGet, "/rooms/"+room.ID+"/messages", mallory, nil, nil); code != http.StatusNotFound {
		t.Fatalf("outsider read should 404, got %d", code)
	}
	if code := call(t, router, http.MethodPost, "/rooms/"+room.ID+"/messages", mallory,
		handlers.PostMessageRequest{Type: "text", Text: "hi"}, nil); code != http.StatusNotFound {
		t.Fatalf("outsider post should 404, got %d", code)
	}
	if code := call(t, router, http.MethodPost, "/rooms/"+room.ID+"/open", mallory, nil, nil); code != http.StatusNotFound {
		t.Fatalf("outsider open should 404, got %d", code)
	}
}

func TestCaseRoomMembership(t *testing.T) {
	router := newTestRouter(t)
	alice := token(t, "alice", "Alice")
	carol := token(t, "carol", "Carol")

	var room models.Room
	if code := call(t, router, http.MethodPost, "/rooms/case", alice,
		handlers.CreateCaseRoomRequest{CaseID: "case-314", CaseName: "88 Quay St"}, &room); code != http.StatusOK {
		t.Fatalf("create case room: status %d", code)
	}
	if room.CaseID != "case-314" {
		t.Fatalf("case id %q", room.CaseID)
	}

	if code := call(t, router, http.MethodPost, "/rooms/"+room.ID+"/participants", alice,
		handlers.AddParticipantRequest{UserID: "carol", Name: "Carol"}, nil); code != http.StatusOK {
		t.Fatalf("add participant: status %d", code)
	}

	// Carol can now read the room.
	if code := call(t, router, http.MethodGet, "/rooms/"+room.ID+"/messages", carol, nil, nil); code != http.StatusOK {
		t.Fatalf("carol read: status %d", code)
	}

	if code := call(t, router, http.MethodDelete,
		fmt.Sprintf("/rooms/%s/participants/%s", room.ID, "carol"), alice, nil, nil); code != http.StatusOK {
		t.Fatalf("remove participant: status %d", code)
	}
	if code := call(t, router, http.MethodGet, "/rooms/"+room.ID+"/messages", carol, nil, nil); code != http.StatusNotFound {
		t.Fatalf("removed carol should 404, got %d", code)
	}
}

func TestPostMessageValidation(t *testing.T) {
	router := newTestRouter(t)
	alice := token(t, "alice", "Alice")

	var room models.Room
	if code := call(t, router, http.MethodPost, "/rooms/direct", alice,
		handlers.CreateDirectRoomRequest{PeerID: "bob"}, &room); code != http.StatusOK {
		t.Fatalf("create: status %d", code)
	}

	if code := call(t, router, http.MethodPost, "/rooms/"+room.ID+"/messages", alice,
		handlers.PostMessageRequest{Type: "text"}, nil); code != http.StatusUnprocessableEntity {
		t.Fatalf("empty text should 422, got %d", code)
	}
	if code := call(t, router, http.MethodPost, "/rooms/"+room.ID+"/messages", alice,
		handlers.PostMessageRequest{Type: "sticker", Text: "x"}, nil); code != http.StatusUnprocessableEntity {
		t.Fatalf("unknown type should 422, got %d", code)
	}
}

func TestPresenceEndpoints(t *testing.T) {
	router := newTestRouter(t)
	alice := token(t, "alice", "Alice")
	bob := token(t, "bob", "Bob")

	if code := call(t, router, http.MethodPost, "/presence/heartbeat", alice, nil, nil); code != http.StatusOK {
		t.Fatalf("heartbeat: status %d", code)
	}

	var status chat.PresenceStatus
	if code := call(t, router, http.MethodGet, "/presence/alice", bob, nil, &status); code != http.StatusOK {
		t.Fatalf("get presence: status %d", code)
	}
	if !status.Online {
		t.Fatal("alice just heartbeated, should read online")
	}

	if code := call(t, router, http.MethodPost, "/presence/offline", alice, nil, nil); code != http.StatusOK {
		t.Fatalf("offline: status %d", code)
	}
	if code := call(t, router, http.MethodGet, "/presence/alice", bob, nil, &status); code != http.StatusOK {
		t.Fatalf("get presence: status %d", code)
	}
	if status.Online {
		t.Fatal("alice signed out, should read offline")
	}
}

func TestUnauthenticatedRequests(t *testing.T) {
	router := newTestRouter(t)

	if code := call(t, router, http.MethodGet, "/rooms", "", nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("no token should 401, got %d", code)
	}
}

func TestHealthDegradedWithoutRedis(t *testing.T) {
	router := newTestRouter(t)

	// Memory-only wiring reports mongo pass, redis fail.
	var resp handlers.HealthResponse
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status %d, want 503 without redis", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "degraded" {
		t.Fatalf("status %q, want degraded", resp.Status)
	}
	if resp.Checks["mongo"].Status != "pass" {
		t.Fatalf("store check %+v", resp.Checks["mongo"])
	}
}
