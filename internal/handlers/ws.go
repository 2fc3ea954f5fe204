package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kestrelvaluation/securechat/internal/api/middleware"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Browsers send the back-office origin; token auth is what gates
	// access.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 54 * time.Second
)

// clientFrame is a control message from the client: which room's log to
// stream.
type clientFrame struct {
	Op     string `json:"op"` // "open" or "close"
	RoomID string `json:"room_id,omitempty"`
}

// Websocket upgrades the connection and runs a realtime session: the
// caller's room-list stream plus the log of at most one open room.
func (h *Handler) Websocket(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())
	if identity == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	session, err := h.hub.NewSession(r.Context(), *identity)
	if err != nil {
		h.logger.Error().Err(err).Msg("session start failed")
		conn.Close()
		return
	}

	// Writer: drains session frames onto the socket.
	go func() {
		ticker := time.NewTicker(wsPingPeriod)
		defer ticker.Stop()
		defer conn.Close()

		for {
			select {
			case frame := <-session.Frames():
				conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteJSON(frame); err != nil {
					return
				}
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-session.Done():
				return
			}
		}
	}()

	// Reader: handles open/close control frames until the socket drops.
	defer session.Close()

	conn.SetReadLimit(4096)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var frame clientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}

		switch frame.Op {
		case "open":
			if frame.RoomID == "" {
				continue
			}
			if err := session.OpenRoom(r.Context(), frame.RoomID); err != nil {
				h.logger.Warn().Err(err).Str("room_id", frame.RoomID).Msg("open room failed")
			}
		case "close":
			session.CloseRoom()
		}
	}
}
