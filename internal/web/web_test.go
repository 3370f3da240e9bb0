package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"beegreen/auth"
	"beegreen/internal/devices"
	"beegreen/internal/engine"
	"beegreen/internal/models"
	"beegreen/internal/schedule"
	"beegreen/internal/storage"

	"github.com/benbjohnson/clock"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type recordingTransport struct {
	mu   sync.Mutex
	pubs []string
}

func (r *recordingTransport) Publish(topic string, payload []byte) {
	r.mu.Lock()
	r.pubs = append(r.pubs, topic+" "+string(payload))
	r.mu.Unlock()
}

func (r *recordingTransport) Subscribe(string)   {}
func (r *recordingTransport) Unsubscribe(string) {}

func (r *recordingTransport) published() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.pubs...)
}

type fixture struct {
	server *WebServer
	eng    *engine.Engine
	tr     *recordingTransport
	token  string
}

func newFixture(t *testing.T, withAuth bool) *fixture {
	t.Helper()
	ctx := context.Background()
	registry := devices.NewKVRegistry(storage.NewMemory())
	if err := registry.UpsertDevice(ctx, models.Device{ID: "D1", Name: "Lawn", Active: true}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	tr := &recordingTransport{}
	eng := engine.New(tr, schedule.NewStore(storage.NewMemory()), registry, engine.Options{Clock: clock.NewMock()})
	if err := eng.RefreshDevices(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	f := &fixture{eng: eng, tr: tr}
	var authModule *auth.AuthModule
	if withAuth {
		hash, err := auth.HashPassword("pw")
		if err != nil {
			t.Fatalf("hash: %v", err)
		}
		authModule = auth.NewAuthModule("test-secret", "admin", hash)
	}
	f.server = NewWebServer(eng, authModule)
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)
	return w
}

func TestAuthRequired(t *testing.T) {
	f := newFixture(t, true)
	if w := f.do(t, http.MethodGet, "/api/devices", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if w := f.do(t, http.MethodPost, "/auth/login", gin.H{"username": "admin", "password": "nope"}); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad password, got %d", w.Code)
	}

	w := f.do(t, http.MethodPost, "/auth/login", gin.H{"username": "admin", "password": "pw"})
	if w.Code != http.StatusOK {
		t.Fatalf("login: %d %s", w.Code, w.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	f.token = resp.Token

	w = f.do(t, http.MethodGet, "/api/devices", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var list []map[string]any
	json.Unmarshal(w.Body.Bytes(), &list)
	if len(list) != 1 || list[0]["id"] != "D1" || list[0]["status"] != "unknown" || list[0]["next_run"] != "unknown" {
		t.Fatalf("unexpected device list %s", w.Body.String())
	}
}

func TestScheduleWriteGatedByAvailability(t *testing.T) {
	f := newFixture(t, false)
	slot := gin.H{"hour": 8, "min": 0, "dur": 60, "dow": 62, "enabled": true}

	if w := f.do(t, http.MethodPut, "/api/devices/D1/schedules/0", slot); w.Code != http.StatusConflict {
		t.Fatalf("expected 409 for unavailable device, got %d", w.Code)
	}
	if len(f.tr.published()) != 0 {
		t.Fatalf("rejected write published %v", f.tr.published())
	}

	f.eng.HandleMessage("D1/status", []byte(`{"payload":"online"}`))
	w := f.do(t, http.MethodPut, "/api/devices/D1/schedules/0", slot)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", w.Code, w.Body.String())
	}
	var resp struct {
		ActiveSlots int `json:"active_slots"`
		Slots       []struct {
			Index int    `json:"index"`
			Days  string `json:"days"`
			Empty bool   `json:"empty"`
		} `json:"slots"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.ActiveSlots != 1 || len(resp.Slots) != models.SlotCount || resp.Slots[0].Days != "weekdays" || resp.Slots[0].Empty {
		t.Fatalf("unexpected response %s", w.Body.String())
	}
	if pubs := f.tr.published(); len(pubs) != 1 || pubs[0] != "D1/set_schedule 0:8:0:60:62:1" {
		t.Fatalf("unexpected publishes %v", pubs)
	}

	if w := f.do(t, http.MethodPut, "/api/devices/D1/schedules/0", gin.H{"hour": 30, "dur": 5}); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid slot, got %d", w.Code)
	}
	if w := f.do(t, http.MethodDelete, "/api/devices/D1/schedules/x", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad index, got %d", w.Code)
	}
	if w := f.do(t, http.MethodDelete, "/api/devices/D1/schedules/10", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for out of range index, got %d", w.Code)
	}
	if w := f.do(t, http.MethodDelete, "/api/devices/D1/schedules/0", nil); w.Code != http.StatusOK {
		t.Fatalf("expected 200 for delete, got %d", w.Code)
	}
}

func TestRefreshRequestsAndBusy(t *testing.T) {
	f := newFixture(t, false)
	if w := f.do(t, http.MethodPost, "/api/devices/D1/next-run/refresh", nil); w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", w.Code)
	}
	if w := f.do(t, http.MethodPost, "/api/devices/D1/next-run/refresh", nil); w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 while pending, got %d", w.Code)
	}
	w := f.do(t, http.MethodGet, "/api/pending", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"device_id":"D1"`) {
		t.Fatalf("unexpected pending %d %s", w.Code, w.Body.String())
	}

	f.eng.HandleMessage("D1/next_schedule_due", []byte(`{"payload":"2025-06-05 08:00:00"}`))
	w = f.do(t, http.MethodGet, "/api/devices/D1/next-run", nil)
	if !strings.Contains(w.Body.String(), `"next_run":"2025-06-05 08:00:00"`) {
		t.Fatalf("unexpected next run %s", w.Body.String())
	}
	if w := f.do(t, http.MethodPost, "/api/devices/NOPE/schedules/refresh", nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestDeviceLifecycle(t *testing.T) {
	f := newFixture(t, false)
	if w := f.do(t, http.MethodPost, "/api/devices", gin.H{"id": "bad/id"}); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad id, got %d", w.Code)
	}
	w := f.do(t, http.MethodPost, "/api/devices", gin.H{"id": "D2", "name": "Orchard"})
	if w.Code != http.StatusCreated || !strings.Contains(w.Body.String(), `"active":true`) {
		t.Fatalf("unexpected create %d %s", w.Code, w.Body.String())
	}
	w = f.do(t, http.MethodPatch, "/api/devices/D2", gin.H{"active": false, "name": "Back"})
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"name":"Back"`) || !strings.Contains(w.Body.String(), `"active":false`) {
		t.Fatalf("unexpected patch %d %s", w.Code, w.Body.String())
	}
	if w := f.do(t, http.MethodDelete, "/api/devices/D2", nil); w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if w := f.do(t, http.MethodGet, "/api/devices/D2", nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestPumpTrigger(t *testing.T) {
	f := newFixture(t, false)
	f.eng.HandleMessage("D1/status", []byte("online"))
	if w := f.do(t, http.MethodPost, "/api/devices/D1/pump", gin.H{"seconds": 30}); w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d %s", w.Code, w.Body.String())
	}
	if pubs := f.tr.published(); len(pubs) != 1 || pubs[0] != "D1/pump_trigger 30" {
		t.Fatalf("unexpected publishes %v", pubs)
	}
	if w := f.do(t, http.MethodPost, "/api/devices/D1/pump", gin.H{"seconds": -5}); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestEventStream(t *testing.T) {
	f := newFixture(t, false)
	srv := httptest.NewServer(f.server.Handler())
	defer srv.Close()

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()

	deadline := time.Now().Add(time.Second)
	for f.server.Hub().Clients() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	f.eng.HandleMessage("D1/status", []byte("online"))

	ws.SetReadDeadline(time.Now().Add(time.Second))
	var ev engine.Event
	if err := ws.ReadJSON(&ev); err != nil {
		t.Fatalf("read: %v", err)
	}
	if ev.Type != engine.EventStatus || ev.DeviceID != "D1" || ev.Status != "online" {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestHealthzReportsBrokerSession(t *testing.T) {
	f := newFixture(t, true)
	if w := f.do(t, http.MethodGet, "/healthz", nil); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before connecting, got %d", w.Code)
	}
	f.eng.OnConnect()
	w := f.do(t, http.MethodGet, "/healthz", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"connected"`) {
		t.Fatalf("unexpected health %d %s", w.Code, w.Body.String())
	}
}
