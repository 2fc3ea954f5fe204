package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kestrelvaluation/securechat/internal/api/middleware"
	"github.com/kestrelvaluation/securechat/internal/chat"
	"github.com/kestrelvaluation/securechat/internal/models"
)

// PostMessageRequest represents the append request.
type PostMessageRequest struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	MediaURL string `json:"media_url,omitempty"`
	SurveyID string `json:"survey_id,omitempty"`
	ReplyTo  string `json:"reply_to,omitempty"`
}

// PostMessage appends a message to a room (authenticated).
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())
	if identity == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	roomID := chi.URLParam(r, "id")

	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	msg, err := h.messages.Append(r.Context(), roomID, *identity, chat.Compose{
		Type:      models.MessageType(req.Type),
		Text:      req.Text,
		MediaURL:  req.MediaURL,
		SurveyID:  req.SurveyID,
		ReplyToID: req.ReplyTo,
	})
	if err != nil {
		h.chatError(w, err)
		return
	}

	h.JSON(w, http.StatusCreated, msg)
}

// GetMessages returns the room's bounded recent window, order key
// ascending (authenticated).
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())
	if identity == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	roomID := chi.URLParam(r, "id")

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	msgs, err := h.messages.Window(r.Context(), roomID, identity.UserID, limit)
	if err != nil {
		h.chatError(w, err)
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}

	h.JSON(w, http.StatusOK, map[string]interface{}{"messages": msgs})
}

// OpenRoom acknowledges the room's visible window for the caller:
// read receipts are unioned and the unread counter re-derived
// (authenticated, idempotent).
func (h *Handler) OpenRoom(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())
	if identity == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	roomID := chi.URLParam(r, "id")

	if err := h.reconciler.OnRoomOpened(r.Context(), roomID, identity.UserID); err != nil {
		h.chatError(w, err)
		return
	}

	h.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
