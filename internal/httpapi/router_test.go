package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"posterforge/internal/artifact"
	"posterforge/internal/httpapi/handlers"
	"posterforge/internal/jobstore"
	"posterforge/internal/orchestrator"
	"posterforge/internal/pkg/logger"
	"posterforge/internal/poster"
	"posterforge/internal/render"
	"posterforge/internal/ws"
)

type fakeInvoker struct {
	mu      sync.Mutex
	calls   int
	delay   time.Duration
	err     error
	content []byte
}

func (f *fakeInvoker) Invoke(ctx context.Context, p poster.Params, destPath string) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.err != nil {
		return "", f.err
	}
	content := f.content
	if content == nil {
		content = []byte("png-bytes")
	}
	if err := os.WriteFile(destPath, content, 0o644); err != nil {
		return "", err
	}
	return destPath, nil
}

func (f *fakeInvoker) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fixture struct {
	server *httptest.Server
	jobs   jobstore.Store
}

func newFixture(t *testing.T, inv orchestrator.RenderInvoker) *fixture {
	t.Helper()

	root := t.TempDir()
	themesDir := filepath.Join(root, "themes")
	if err := os.MkdirAll(themesDir, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, theme := range []string{"noir", "pastel"} {
		if err := os.WriteFile(filepath.Join(themesDir, theme+".json"), []byte("{}"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	store, err := jobstore.NewFSStore(filepath.Join(root, "jobs"))
	if err != nil {
		t.Fatal(err)
	}
	cache, err := artifact.NewCache(filepath.Join(root, "cache"))
	if err != nil {
		t.Fatal(err)
	}

	log := logger.New(logger.Config{Level: "error", Output: os.Stderr})

	hub := ws.NewHub(log)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	catalog := poster.NewCatalog(themesDir)
	orch := orchestrator.New(orchestrator.Deps{
		Jobs:     store,
		Cache:    cache,
		Catalog:  catalog,
		Invoker:  inv,
		Gate:     render.NewGate(2 * time.Second),
		Notifier: hub,
		Log:      log,
	})

	h := handlers.New(handlers.Deps{
		Orchestrator: orch,
		Jobs:         store,
		Catalog:      catalog,
		CacheDir:     cache.Dir(),
		Hub:          hub,
		Log:          log,
	})

	server := httptest.NewServer(NewRouter(h, log, Config{AllowedOrigins: []string{"*"}}))
	t.Cleanup(server.Close)

	return &fixture{server: server, jobs: store}
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	return body
}

func waitDone(t *testing.T, fx *fixture, jobID string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(fx.server.URL + "/job/" + jobID)
		if err != nil {
			t.Fatal(err)
		}
		body := decodeBody(t, resp)
		switch body["status"] {
		case "DONE":
			return body
		case "ERROR":
			t.Fatalf("job failed: %v", body["message"])
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("job did not complete in time")
	return nil
}

func TestRootAndHealth(t *testing.T) {
	fx := newFixture(t, &fakeInvoker{})

	resp, err := http.Get(fx.server.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from /, got %d", resp.StatusCode)
	}
	if body := decodeBody(t, resp); body["service"] != "posterforge" {
		t.Errorf("unexpected banner: %v", body)
	}

	resp, err = http.Get(fx.server.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from /health, got %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["status"] != "ok" {
		t.Errorf("expected healthy status, got %v", body)
	}
	if themes, ok := body["themes"].([]any); !ok || len(themes) != 2 {
		t.Errorf("expected theme list in health body, got %v", body)
	}

	resp, err = http.Get(fx.server.URL + "/health?deep=true")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from deep health, got %d", resp.StatusCode)
	}
	body = decodeBody(t, resp)
	checks, ok := body["checks"].(map[string]any)
	if !ok {
		t.Fatalf("expected checks in deep health, got %v", body)
	}
	if checks["jobstore"] != "ok" || checks["cache"] != "ok" {
		t.Errorf("expected passing checks, got %v", checks)
	}
}

func TestThemes(t *testing.T) {
	fx := newFixture(t, &fakeInvoker{})

	resp, err := http.Get(fx.server.URL + "/themes")
	if err != nil {
		t.Fatal(err)
	}
	body := decodeBody(t, resp)

	themes, ok := body["themes"].([]any)
	if !ok || len(themes) != 2 {
		t.Fatalf("expected 2 themes, got %v", body)
	}
	if themes[0] != "noir" || themes[1] != "pastel" {
		t.Errorf("expected sorted theme names, got %v", themes)
	}
}

func TestGenerateAsyncLifecycle(t *testing.T) {
	inv := &fakeInvoker{content: []byte("rendered-poster")}
	fx := newFixture(t, inv)

	resp := postJSON(t, fx.server.URL+"/generate_async", map[string]any{
		"city": "Lisbon", "country": "Portugal", "theme": "noir", "distance": 3000,
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)

	jobID, _ := body["job_id"].(string)
	if len(jobID) != 10 {
		t.Fatalf("expected 10-char job id, got %q", jobID)
	}
	if body["status"] != "PENDING" {
		t.Errorf("expected PENDING, got %v", body["status"])
	}

	done := waitDone(t, fx, jobID)
	if done["result"] != "/download/"+jobID {
		t.Errorf("unexpected result path: %v", done["result"])
	}

	dl, err := http.Get(fx.server.URL + "/download/" + jobID)
	if err != nil {
		t.Fatal(err)
	}
	defer dl.Body.Close()
	if dl.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from download, got %d", dl.StatusCode)
	}
	if ct := dl.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("expected image/png, got %q", ct)
	}
	if cd := dl.Header.Get("Content-Disposition"); !strings.Contains(cd, jobID+".png") {
		t.Errorf("expected filename in disposition, got %q", cd)
	}
	data, err := io.ReadAll(dl.Body)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "rendered-poster" {
		t.Errorf("unexpected artifact bytes: %q", data)
	}
}

func TestGenerateAsyncCacheHit(t *testing.T) {
	inv := &fakeInvoker{}
	fx := newFixture(t, inv)

	req := map[string]any{"city": "Porto", "country": "Portugal", "theme": "pastel", "distance": 2000}

	first := decodeBody(t, postJSON(t, fx.server.URL+"/generate_async", req))
	waitDone(t, fx, first["job_id"].(string))

	resp := postJSON(t, fx.server.URL+"/generate_async", req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for cache hit, got %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["status"] != "DONE" {
		t.Errorf("expected DONE, got %v", body["status"])
	}
	if body["message"] != "Served from cache" {
		t.Errorf("expected cache message, got %v", body["message"])
	}
	if inv.callCount() != 1 {
		t.Errorf("expected a single render call, got %d", inv.callCount())
	}
}

func TestGenerateAsyncValidation(t *testing.T) {
	fx := newFixture(t, &fakeInvoker{})

	tests := []struct {
		name     string
		body     map[string]any
		wantCode string
	}{
		{
			"missing city",
			map[string]any{"country": "Portugal", "theme": "noir", "distance": 2000},
			"VALIDATION_ERROR",
		},
		{
			"distance above async bound",
			map[string]any{"city": "Lisbon", "country": "Portugal", "theme": "noir", "distance": 5000},
			"VALIDATION_ERROR",
		},
		{
			"unknown theme",
			map[string]any{"city": "Lisbon", "country": "Portugal", "theme": "vaporwave", "distance": 2000},
			"INVALID_THEME",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, fx.server.URL+"/generate_async", tt.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", resp.StatusCode)
			}
			body := decodeBody(t, resp)
			env, _ := body["error"].(map[string]any)
			if env["code"] != tt.wantCode {
				t.Errorf("expected code %s, got %v", tt.wantCode, env["code"])
			}
		})
	}
}

func TestGenerateAsyncDefaultDistance(t *testing.T) {
	fx := newFixture(t, &fakeInvoker{})

	resp := postJSON(t, fx.server.URL+"/generate_async", map[string]any{
		"city": "Lisbon", "country": "Portugal", "theme": "noir",
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202 with distance defaulted, got %d", resp.StatusCode)
	}
	decodeBody(t, resp)
}

func TestJobStatusUnknown(t *testing.T) {
	fx := newFixture(t, &fakeInvoker{})

	resp, err := http.Get(fx.server.URL + "/job/nope123456")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	env, _ := body["error"].(map[string]any)
	if env["code"] != "NOT_FOUND" {
		t.Errorf("expected NOT_FOUND, got %v", env["code"])
	}
}

func TestDownloadNotReady(t *testing.T) {
	fx := newFixture(t, &fakeInvoker{})

	rec := jobstore.Record{
		JobID:     "pending001",
		Status:    jobstore.StatusPending,
		CreatedAt: time.Now().UTC(),
		CacheKey:  "deadbeef",
		Message:   "Queued",
	}
	if err := fx.jobs.Create(context.Background(), rec.JobID, rec); err != nil {
		t.Fatal(err)
	}

	resp, err := http.Get(fx.server.URL + "/download/pending001")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	env, _ := body["error"].(map[string]any)
	if env["code"] != "JOB_NOT_READY" {
		t.Errorf("expected JOB_NOT_READY, got %v", env["code"])
	}
}

func TestGenerateSync(t *testing.T) {
	inv := &fakeInvoker{content: []byte("sync-poster")}
	fx := newFixture(t, inv)

	resp := postJSON(t, fx.server.URL+"/generate", map[string]any{
		"city": "Faro", "country": "Portugal", "theme": "noir", "distance": 10000,
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("expected image/png, got %q", ct)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "sync-poster" {
		t.Errorf("unexpected body: %q", data)
	}
}

func TestGenerateSyncRejectsOversizedDistance(t *testing.T) {
	fx := newFixture(t, &fakeInvoker{})

	resp := postJSON(t, fx.server.URL+"/generate", map[string]any{
		"city": "Faro", "country": "Portugal", "theme": "noir", "distance": 25000,
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	decodeBody(t, resp)
}

func TestWebSocketReceivesJobUpdates(t *testing.T) {
	inv := &fakeInvoker{}
	fx := newFixture(t, inv)

	wsURL := "ws" + strings.TrimPrefix(fx.server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	// The hub registers the client asynchronously; give it a beat before
	// the first transition is broadcast.
	time.Sleep(50 * time.Millisecond)

	body := decodeBody(t, postJSON(t, fx.server.URL+"/generate_async", map[string]any{
		"city": "Braga", "country": "Portugal", "theme": "noir", "distance": 2000,
	}))
	jobID := body["job_id"].(string)

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	seen := map[string]bool{}
	for !seen["DONE"] {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read failed before DONE (saw %v): %v", seen, err)
		}
		var update ws.JobUpdate
		if err := json.Unmarshal(data, &update); err != nil {
			t.Fatal(err)
		}
		if update.Type != "job_update" {
			t.Errorf("unexpected message type %q", update.Type)
		}
		if update.JobID == jobID {
			seen[string(update.Status)] = true
		}
	}
	if !seen["PENDING"] && !seen["RUNNING"] {
		t.Errorf("expected at least one intermediate status, saw %v", seen)
	}
}

func TestCORSPreflight(t *testing.T) {
	fx := newFixture(t, &fakeInvoker{})

	req, err := http.NewRequest(http.MethodOptions, fx.server.URL+"/generate_async", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "https://example.com" {
		t.Errorf("expected origin echoed, got %q", got)
	}
}

func TestUnknownRoute(t *testing.T) {
	fx := newFixture(t, &fakeInvoker{})

	resp, err := http.Get(fx.server.URL + "/nope")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if _, ok := body["error"]; !ok {
		t.Errorf("expected error envelope, got %v", body)
	}
}
