package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/chroniclehq/chronicle/internal/device"
	"github.com/chroniclehq/chronicle/internal/recording"
	"github.com/chroniclehq/chronicle/internal/storage"
)

type staticEnumerator struct {
	devices []device.Device
}

func (s staticEnumerator) List() ([]device.Device, error) { return s.devices, nil }
func (s staticEnumerator) DefaultInput() (device.Device, error) {
	return s.devices[0], nil
}
func (s staticEnumerator) DefaultOutput() (device.Device, error) {
	return s.devices[len(s.devices)-1], nil
}

type testHarness struct {
	server   *Server
	store    *storage.Store
	state    *recording.State
	registry *device.Registry
	bus      *device.ControlBus
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	store, err := storage.Open(filepath.Join(t.TempDir(), "test.sqlite"))
	if err != nil {
		t.Fatalf("Failed to open test store: %v", err)
	}

	enum := staticEnumerator{devices: []device.Device{
		{Name: "mic", Kind: device.KindInput},
		{Name: "speakers.monitor", Kind: device.KindOutput},
	}}
	registry, err := device.NewRegistry(enum)
	if err != nil {
		t.Fatalf("Failed to build registry: %v", err)
	}

	state := recording.NewState()
	bus := device.NewControlBus()
	return &testHarness{
		server:   New(store, state, registry, bus, ":0"),
		store:    store,
		state:    state,
		registry: registry,
		bus:      bus,
	}
}

func (h *testHarness) do(t *testing.T, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth_IdleDaemon(t *testing.T) {
	h := newTestHarness(t)

	rec := h.do(t, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got: %d", rec.Code)
	}

	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Status != "healthy" {
		t.Errorf("Expected healthy status, got: %s", resp.Status)
	}
	if resp.Recording {
		t.Error("Expected recording false for idle state")
	}
	if resp.LastActivity != nil {
		t.Errorf("Expected no last activity on empty store, got: %v", resp.LastActivity)
	}
	if len(resp.Devices) != 2 {
		t.Errorf("Expected 2 devices in snapshot, got: %d", len(resp.Devices))
	}
}

func TestHealth_ReflectsRecordingState(t *testing.T) {
	h := newTestHarness(t)
	if _, err := h.state.TryStart(context.Background()); err != nil {
		t.Fatalf("Failed to claim state: %v", err)
	}

	rec := h.do(t, http.MethodGet, "/health", nil)
	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if !resp.Recording {
		t.Error("Expected recording true while state is claimed")
	}
}

func TestHealth_MethodNotAllowed(t *testing.T) {
	h := newTestHarness(t)
	rec := h.do(t, http.MethodPost, "/health", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got: %d", rec.Code)
	}
}

func TestDevices_Snapshot(t *testing.T) {
	h := newTestHarness(t)
	h.registry.SetStatus(device.Device{Name: "mic", Kind: device.KindInput}, device.Control{IsRunning: true})

	rec := h.do(t, http.MethodGet, "/devices", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got: %d", rec.Code)
	}

	var resp DevicesResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(resp.Devices) != 2 {
		t.Fatalf("Expected 2 devices, got: %d", len(resp.Devices))
	}

	byName := map[string]DeviceStatus{}
	for _, d := range resp.Devices {
		byName[d.Device] = d
	}
	if !byName["mic"].IsRunning {
		t.Error("Expected mic to report running")
	}
	if byName["speakers.monitor"].IsRunning {
		t.Error("Expected speakers.monitor to report not running")
	}
}

func TestToggleDevice_PublishesOnBus(t *testing.T) {
	h := newTestHarness(t)

	body, _ := json.Marshal(ToggleRequest{Device: "mic (input)", IsRunning: true})
	rec := h.do(t, http.MethodPost, "/devices/toggle", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got: %d (body: %s)", rec.Code, rec.Body.String())
	}

	cmd, ok := h.bus.DrainNext()
	if !ok {
		t.Fatal("Expected a command on the control bus")
	}
	if cmd.Device.Name != "mic" || cmd.Device.Kind != device.KindInput {
		t.Errorf("Unexpected device on bus: %v", cmd.Device)
	}
	if !cmd.Control.IsRunning || cmd.Control.IsPaused {
		t.Errorf("Unexpected control on bus: %+v", cmd.Control)
	}

	status := h.registry.Status()
	if !status[cmd.Device].IsRunning {
		t.Error("Expected registry status updated by toggle")
	}
}

func TestToggleDevice_Validation(t *testing.T) {
	h := newTestHarness(t)

	rec := h.do(t, http.MethodPost, "/devices/toggle", []byte("{not json"))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for malformed JSON, got: %d", rec.Code)
	}

	body, _ := json.Marshal(ToggleRequest{IsRunning: true})
	rec = h.do(t, http.MethodPost, "/devices/toggle", body)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing device, got: %d", rec.Code)
	}

	rec = h.do(t, http.MethodGet, "/devices/toggle", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405 for GET, got: %d", rec.Code)
	}
}

func TestSearch_ReturnsStoredMatches(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	if err := h.store.InsertFrame(ctx, &storage.Frame{Text: "standup meeting agenda"}); err != nil {
		t.Fatalf("Failed to insert frame: %v", err)
	}

	rec := h.do(t, http.MethodGet, "/search?q=standup", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got: %d", rec.Code)
	}

	var resp SearchResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Query != "standup" {
		t.Errorf("Expected query echoed back, got: %s", resp.Query)
	}
	if resp.Count != 1 || len(resp.Results) != 1 {
		t.Fatalf("Expected one result, got count=%d len=%d", resp.Count, len(resp.Results))
	}
	if resp.Results[0].Kind != "frame" {
		t.Errorf("Expected frame result, got: %s", resp.Results[0].Kind)
	}
}

func TestSearch_Validation(t *testing.T) {
	h := newTestHarness(t)

	rec := h.do(t, http.MethodGet, "/search", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing query, got: %d", rec.Code)
	}

	rec = h.do(t, http.MethodGet, "/search?q=x&limit=zero", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad limit, got: %d", rec.Code)
	}
}
