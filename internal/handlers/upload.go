package handlers

import (
	"net/http"

	"github.com/oklog/ulid/v2"

	"github.com/kestrelvaluation/securechat/internal/api/middleware"
)

// maxUploadBytes bounds image attachments.
const maxUploadBytes = 8 << 20

// Upload accepts a multipart image, hands it to the blob store and
// returns the durable URL to embed in an image message (authenticated).
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())
	if identity == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}
	if h.blobs == nil {
		h.Error(w, http.StatusServiceUnavailable, "uploads not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, _, err := r.FormFile("file")
	if err != nil {
		h.Error(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	url, err := h.blobs.Upload(r.Context(), ulid.Make().String(), file)
	if err != nil {
		h.logger.Error().Err(err).Msg("blob upload failed")
		h.Error(w, http.StatusBadGateway, "upload failed")
		return
	}

	h.JSON(w, http.StatusCreated, map[string]string{"url": url})
}
