package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/kestrelvaluation/securechat/internal/blob"
	"github.com/kestrelvaluation/securechat/internal/chat"
	"github.com/kestrelvaluation/securechat/internal/store"
	"github.com/kestrelvaluation/securechat/internal/sync"
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	store      store.DataStore
	redis      *store.RedisStore
	directory  *chat.Directory
	messages   *chat.Messages
	reconciler *chat.Reconciler
	presence   *chat.Presence
	hub        *sync.Hub
	bus        sync.Bus
	blobs      blob.Store
	logger     zerolog.Logger
}

// Deps bundles the collaborators a Handler needs.
type Deps struct {
	Store      store.DataStore
	Redis      *store.RedisStore
	Directory  *chat.Directory
	Messages   *chat.Messages
	Reconciler *chat.Reconciler
	Presence   *chat.Presence
	Hub        *sync.Hub
	Bus        sync.Bus
	Blobs      blob.Store
	Logger     zerolog.Logger
}

// NewHandler creates a new Handler with the given dependencies.
func NewHandler(d Deps) *Handler {
	return &Handler{
		store:      d.Store,
		redis:      d.Redis,
		directory:  d.Directory,
		messages:   d.Messages,
		reconciler: d.Reconciler,
		presence:   d.Presence,
		hub:        d.Hub,
		bus:        d.Bus,
		blobs:      d.Blobs,
		logger:     d.Logger,
	}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// chatError maps chat-layer sentinels to HTTP responses. Access denials
// answer 404: callers learn nothing about rooms they cannot see.
func (h *Handler) chatError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chat.ErrAccessDenied), errors.Is(err, chat.ErrNotFound):
		h.Error(w, http.StatusNotFound, "room not found")
	case errors.Is(err, chat.ErrInvalidMessage):
		h.Error(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.logger.Error().Err(err).Msg("request failed")
		h.Error(w, http.StatusInternalServerError, "internal error")
	}
}
