package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kestrelvaluation/securechat/internal/api/middleware"
	"github.com/kestrelvaluation/securechat/internal/models"
)

// CreateDirectRoomRequest resolves or creates the direct room between
// the caller and a peer.
type CreateDirectRoomRequest struct {
	PeerID   string `json:"peer_id"`
	PeerName string `json:"peer_name"`
}

// CreateCaseRoomRequest resolves or creates the room bound to a case.
type CreateCaseRoomRequest struct {
	CaseID   string `json:"case_id"`
	CaseName string `json:"case_name"`
}

// AddParticipantRequest adds a user to a case room.
type AddParticipantRequest struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
}

// CreateDirectRoom handles direct-room resolution (authenticated).
// Calling it repeatedly for the same pair, in either order, returns the
// same room.
func (h *Handler) CreateDirectRoom(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())
	if identity == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req CreateDirectRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.PeerID == "" {
		h.Error(w, http.StatusBadRequest, "peer_id is required")
		return
	}
	if req.PeerID == identity.UserID {
		h.Error(w, http.StatusUnprocessableEntity, "cannot open a direct room with yourself")
		return
	}

	room, err := h.directory.ResolveOrCreateDirectRoom(r.Context(),
		identity.UserID, identity.DisplayName, req.PeerID, req.PeerName)
	if err != nil {
		h.chatError(w, err)
		return
	}

	h.JSON(w, http.StatusOK, room)
}

// CreateCaseRoom handles case-room resolution (authenticated). The
// caller joins the room's participant set either way.
func (h *Handler) CreateCaseRoom(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())
	if identity == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req CreateCaseRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.CaseID == "" {
		h.Error(w, http.StatusBadRequest, "case_id is required")
		return
	}

	room, err := h.directory.ResolveOrCreateCaseRoom(r.Context(),
		req.CaseID, req.CaseName, identity.UserID, identity.DisplayName)
	if err != nil {
		h.chatError(w, err)
		return
	}

	h.JSON(w, http.StatusOK, room)
}

// ListRooms returns the caller's rooms, most recent activity first.
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())
	if identity == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	rooms, err := h.directory.RoomsFor(r.Context(), identity.UserID, 0)
	if err != nil {
		h.chatError(w, err)
		return
	}
	if rooms == nil {
		rooms = []models.Room{}
	}

	h.JSON(w, http.StatusOK, map[string]interface{}{"rooms": rooms})
}

// AddParticipant adds a user to a room the caller participates in.
// Adding an existing participant is a no-op.
func (h *Handler) AddParticipant(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())
	if identity == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	roomID := chi.URLParam(r, "id")

	// Only participants may change membership.
	if _, err := h.directory.GetRoom(r.Context(), roomID, identity.UserID); err != nil {
		h.chatError(w, err)
		return
	}

	var req AddParticipantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UserID == "" {
		h.Error(w, http.StatusBadRequest, "user_id is required")
		return
	}

	if err := h.directory.AddParticipant(r.Context(), roomID, req.UserID, req.Name); err != nil {
		h.chatError(w, err)
		return
	}

	h.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// RemoveParticipant removes a user from a room the caller participates
// in. Removing an absent participant is a no-op.
func (h *Handler) RemoveParticipant(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())
	if identity == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	roomID := chi.URLParam(r, "id")
	userID := chi.URLParam(r, "userId")

	if _, err := h.directory.GetRoom(r.Context(), roomID, identity.UserID); err != nil {
		h.chatError(w, err)
		return
	}

	if err := h.directory.RemoveParticipant(r.Context(), roomID, userID); err != nil {
		h.chatError(w, err)
		return
	}

	h.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
