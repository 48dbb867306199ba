// Package ws pushes job status transitions to websocket subscribers. Job
// state in the store remains the source of truth; the hub is advisory and a
// slow consumer is dropped rather than allowed to stall a worker.
package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"posterforge/internal/jobstore"
	"posterforge/internal/pkg/logger"
)

// JobUpdate is the wire shape pushed to subscribers on every transition.
type JobUpdate struct {
	Type      string          `json:"type"`
	JobID     string          `json:"job_id"`
	Status    jobstore.Status `json:"status"`
	Message   string          `json:"message,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Hub fans job updates out to connected clients.
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	log        *logger.Logger
}

func NewHub(log *logger.Logger) *Hub {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		log:        log.WithComponent("ws"),
	}
}

// Run owns the client set until ctx is canceled. All connections are closed
// on exit.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				client.Close()
			}
			return

		case client := <-h.register:
			h.clients[client] = true
			h.log.Debug("websocket client connected", "clients", len(h.clients))

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}
			h.log.Debug("websocket client disconnected", "clients", len(h.clients))

		case message := <-h.broadcast:
			for client := range h.clients {
				if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
					h.log.Warn("dropping websocket client", "error", err.Error())
					client.Close()
					delete(h.clients, client)
				}
			}
		}
	}
}

// JobUpdated broadcasts a job transition. Non-blocking: when the buffer is
// full the update is dropped, pollers still see the record.
func (h *Hub) JobUpdated(rec jobstore.Record) {
	update := JobUpdate{
		Type:      "job_update",
		JobID:     rec.JobID,
		Status:    rec.Status,
		Message:   rec.Message,
		Timestamp: time.Now().UTC(),
	}
	data, err := json.Marshal(update)
	if err != nil {
		return
	}
	select {
	case h.broadcast <- data:
	default:
		h.log.Warn("websocket broadcast buffer full, update dropped", "job_id", rec.JobID)
	}
}

// RegisterClient adds a connection to the hub.
func (h *Hub) RegisterClient(conn *websocket.Conn) {
	h.register <- conn
}

// UnregisterClient removes a connection from the hub.
func (h *Hub) UnregisterClient(conn *websocket.Conn) {
	h.unregister <- conn
}
