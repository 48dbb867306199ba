package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"posterforge/internal/jobstore"
	"posterforge/internal/pkg/logger"
)

func newHubConn(t *testing.T) (*Hub, *websocket.Conn) {
	t.Helper()

	hub := NewHub(logger.New(logger.Config{Level: "error", Output: os.Stderr}))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	upgrader := websocket.Upgrader{}
	registered := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		hub.RegisterClient(conn)
		close(registered)
	}))
	t.Cleanup(server.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })

	select {
	case <-registered:
	case <-time.After(time.Second):
		t.Fatal("client was not registered")
	}
	return hub, conn
}

func TestHubBroadcastsJobUpdates(t *testing.T) {
	hub, conn := newHubConn(t)

	hub.JobUpdated(jobstore.Record{
		JobID:   "abc123def4",
		Status:  jobstore.StatusRunning,
		Message: "Generating...",
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}

	var update JobUpdate
	if err := json.Unmarshal(data, &update); err != nil {
		t.Fatal(err)
	}
	if update.Type != "job_update" {
		t.Errorf("expected type job_update, got %q", update.Type)
	}
	if update.JobID != "abc123def4" || update.Status != jobstore.StatusRunning {
		t.Errorf("unexpected update: %+v", update)
	}
	if update.Timestamp.IsZero() {
		t.Error("expected a timestamp on the update")
	}
}

func TestHubDropsUpdatesWhenBufferFull(t *testing.T) {
	// No Run loop draining the buffer: fill it and confirm JobUpdated does
	// not block.
	hub := NewHub(logger.New(logger.Config{Level: "error", Output: os.Stderr}))

	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			hub.JobUpdated(jobstore.Record{JobID: "x", Status: jobstore.StatusDone})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("JobUpdated blocked on a full buffer")
	}
}
