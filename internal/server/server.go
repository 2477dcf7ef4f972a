package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/chroniclehq/chronicle/internal/device"
	"github.com/chroniclehq/chronicle/internal/recording"
	"github.com/chroniclehq/chronicle/internal/storage"
)

// Server exposes the daemon's query and control surface: health snapshots,
// device status, externally triggered device toggling and text search. It
// holds a handle to the control bus so toggles flow through the same FIFO
// the supervisor uses.
type Server struct {
	store    *storage.Store
	state    *recording.State
	registry *device.Registry
	bus      *device.ControlBus
	addr     string
}

// HealthResponse is the JSON body of the health endpoint.
type HealthResponse struct {
	Status       string         `json:"status"`
	Recording    bool           `json:"recording"`
	LastActivity *time.Time     `json:"last_activity,omitempty"`
	FrameCount   int64          `json:"frame_count"`
	AudioCount   int64          `json:"audio_count"`
	Devices      []DeviceStatus `json:"devices"`
}

// DeviceStatus is one device's control state in a snapshot.
type DeviceStatus struct {
	Device    string `json:"device"`
	Kind      string `json:"kind"`
	IsRunning bool   `json:"is_running"`
	IsPaused  bool   `json:"is_paused"`
}

// DevicesResponse is the JSON body of the devices endpoint.
type DevicesResponse struct {
	Devices []DeviceStatus `json:"devices"`
}

// ToggleRequest asks for a device's control state to change. The command is
// published on the control bus; the capture engine applies it when it drains
// the queue.
type ToggleRequest struct {
	Device    string `json:"device"`
	IsRunning bool   `json:"is_running"`
	IsPaused  bool   `json:"is_paused"`
}

// SearchResponse is the JSON body of the search endpoint.
type SearchResponse struct {
	Query   string                 `json:"query"`
	Results []storage.SearchResult `json:"results"`
	Count   int                    `json:"count"`
}

// GenericResponse is used for simple success/error replies.
type GenericResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// New creates a server bound to addr.
func New(store *storage.Store, state *recording.State, registry *device.Registry, bus *device.ControlBus, addr string) *Server {
	return &Server{
		store:    store,
		state:    state,
		registry: registry,
		bus:      bus,
		addr:     addr,
	}
}

// Start registers the routes and serves until the listener fails. It blocks.
func (s *Server) Start() error {
	slog.Info("Starting HTTP server", "addr", s.addr)
	return http.ListenAndServe(s.addr, s.Handler())
}

// Handler builds the route mux. Split out from Start for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/devices", s.handleDevices)
	mux.HandleFunc("/devices/toggle", s.handleToggleDevice)
	mux.HandleFunc("/search", s.handleSearch)
	return mux
}

// handleHealth returns the recording snapshot and device statuses.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w)
		return
	}

	resp := HealthResponse{
		Status:    "healthy",
		Recording: s.state.IsRunning(),
		Devices:   s.deviceStatuses(),
	}

	if last, err := s.store.LastActivity(r.Context()); err == nil && !last.IsZero() {
		resp.LastActivity = &last
	}
	if frames, chunks, err := s.store.Counts(r.Context()); err == nil {
		resp.FrameCount = frames
		resp.AudioCount = chunks
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// handleDevices returns the per-device control status snapshot.
func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(DevicesResponse{Devices: s.deviceStatuses()})
}

// handleToggleDevice publishes a control command for one device.
func (s *Server) handleToggleDevice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w)
		return
	}

	var req ToggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	if req.Device == "" {
		s.sendError(w, http.StatusBadRequest, "Device is required")
		return
	}

	d, err := device.Parse(req.Device)
	if err != nil {
		s.sendError(w, http.StatusBadRequest, fmt.Sprintf("Invalid device: %v", err))
		return
	}

	control := device.Control{IsRunning: req.IsRunning, IsPaused: req.IsPaused}
	s.registry.SetStatus(d, control)
	s.bus.Publish(d, control)

	slog.Info("Device toggle requested", "device", d.String(), "is_running", control.IsRunning, "is_paused", control.IsPaused)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(GenericResponse{
		Success: true,
		Message: fmt.Sprintf("Control command queued for %s", d.String()),
	})
}

// handleSearch runs a text search over stored frames and transcripts.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w)
		return
	}

	query := r.URL.Query().Get("q")
	if query == "" {
		s.sendError(w, http.StatusBadRequest, "Query parameter 'q' is required")
		return
	}

	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed <= 0 {
			s.sendError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = parsed
	}

	results, err := s.store.SearchText(r.Context(), query, limit)
	if err != nil {
		slog.Error("Search failed", "query", query, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Search failed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(SearchResponse{Query: query, Results: results, Count: len(results)})
}

func (s *Server) deviceStatuses() []DeviceStatus {
	snapshot := s.registry.Status()
	statuses := make([]DeviceStatus, 0, len(snapshot))
	for d, c := range snapshot {
		statuses = append(statuses, DeviceStatus{
			Device:    d.Name,
			Kind:      string(d.Kind),
			IsRunning: c.IsRunning,
			IsPaused:  c.IsPaused,
		})
	}
	return statuses
}

func (s *Server) methodNotAllowed(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusMethodNotAllowed)
	json.NewEncoder(w).Encode(GenericResponse{Success: false, Error: "Method not allowed"})
}

func (s *Server) sendError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(GenericResponse{Success: false, Error: message})
}
