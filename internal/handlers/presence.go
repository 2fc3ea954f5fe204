package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kestrelvaluation/securechat/internal/api/middleware"
)

// Heartbeat records activity for the caller. Sessions call it on a
// fixed interval while active.
func (h *Handler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())
	if identity == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	if err := h.presence.Heartbeat(r.Context(), identity.UserID); err != nil {
		// Presence is best-effort; failures never block the session.
		h.logger.Warn().Err(err).Msg("heartbeat failed")
	}

	h.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// MarkOffline records an explicit sign-out for the caller.
func (h *Handler) MarkOffline(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())
	if identity == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	if err := h.presence.MarkOffline(r.Context(), identity.UserID); err != nil {
		h.logger.Warn().Err(err).Msg("mark offline failed")
	}

	h.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetPresence returns a user's derived presence status.
func (h *Handler) GetPresence(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")

	status, err := h.presence.Status(r.Context(), userID)
	if err != nil {
		h.logger.Warn().Err(err).Str("user_id", userID).Msg("presence lookup failed")
		h.Error(w, http.StatusInternalServerError, "presence unavailable")
		return
	}

	h.JSON(w, http.StatusOK, status)
}
