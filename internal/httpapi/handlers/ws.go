package handlers

import (
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Cross-origin policy is enforced by the CORS layer in front of the
	// router, not per connection.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WebSocket upgrades the connection and subscribes it to job updates. The
// stream is push-only; inbound frames are discarded.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.FromContext(r.Context()).Warn("websocket upgrade failed", "error", err.Error())
		return
	}

	h.hub.RegisterClient(conn)

	go func() {
		defer h.hub.UnregisterClient(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
