// Package webmonitor is the display layer: it shows the live source
// letterboxed into the display surface with the overlay composited on top,
// and exposes the result stream, status, recording and history over HTTP.
package webmonitor

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rommelskii/foundation/internal/capture"
	"github.com/rommelskii/foundation/internal/history"
	"github.com/rommelskii/foundation/internal/logger"
	"github.com/rommelskii/foundation/internal/metrics"
	"github.com/rommelskii/foundation/internal/overlay"
	"github.com/rommelskii/foundation/internal/recorder"
	"github.com/rommelskii/foundation/internal/webrtc"
	"github.com/rommelskii/foundation/pkg/types"
)

// Deps are the pipeline components the monitor displays. Recorder, WebRTC
// and History are optional.
type Deps struct {
	Source        capture.Source
	View          *overlay.View
	Metrics       *metrics.Metrics
	Recorder      *recorder.Recorder
	WebRTC        *webrtc.Server
	History       *history.Store
	OverlayRadius float64
}

// Server serves the web monitor endpoints.
type Server struct {
	cfg      Config
	view     *overlay.View
	metrics  *metrics.Metrics
	monitor  *Monitor
	recorder *recorder.Recorder
	webrtc   *webrtc.Server

	frames *FrameBroadcaster
	events *EventBroadcaster
	status *StatusBroadcaster

	publishMu sync.Mutex // Keeps events leaving in sequence order
}

// NewServer returns a configured monitor server. Call Start before serving.
func NewServer(cfg Config, deps Deps) *Server {
	def := DefaultConfig()
	if cfg.TargetFPS <= 0 {
		cfg.TargetFPS = def.TargetFPS
	}
	if cfg.StatusInterval == 0 {
		cfg.StatusInterval = def.StatusInterval
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = def.HistoryLimit
	}
	if cfg.Display.Empty() {
		cfg.Display = def.Display
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}

	monitor := NewMonitor(deps.View, deps.Metrics, deps.History, cfg.TargetFPS, cfg.HistoryLimit, deps.OverlayRadius)

	s := &Server{
		cfg:      cfg,
		view:     deps.View,
		metrics:  deps.Metrics,
		monitor:  monitor,
		recorder: deps.Recorder,
		webrtc:   deps.WebRTC,
		frames:   NewFrameBroadcaster(deps.Source, deps.View, deps.Recorder, deps.Metrics, cfg.Display, cfg.TargetFPS, cfg.JPEGQuality),
		events:   NewEventBroadcaster(deps.Metrics),
		status:   NewStatusBroadcaster(monitor, cfg.StatusInterval),
	}

	deps.View.OnApply(s.onApply)
	deps.View.Resize(cfg.Display, cfg.Mirrored)
	return s
}

// Start launches the background loops.
func (s *Server) Start() {
	s.monitor.Start()
	s.frames.Start()
	s.status.Start()
}

// Stop halts the background loops and flushes pending history writes.
func (s *Server) Stop() {
	s.frames.Stop()
	s.status.Stop()
	s.monitor.Stop()
}

// onApply runs on the dispatcher goroutine for every accepted result. Hooks
// for different results can race, so anything older than the last recorded
// result is not published.
func (s *Server) onApply(u overlay.Update) {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	ev, ok := s.monitor.Record(u)
	if !ok {
		return
	}
	event := s.events.Publish(ev)
	if event != nil && s.webrtc != nil {
		s.webrtc.Broadcast(event.JSONData)
	}
}

// maxSurfaceSide caps reported surfaces; the overlay and every composed
// frame are allocated at this size.
const maxSurfaceSide = 8192

func validSurface(width, height int) bool {
	return width >= 0 && height >= 0 && width <= maxSurfaceSide && height <= maxSurfaceSide
}

func (s *Server) resizeSurface(size types.Size, mirrored bool) {
	s.view.Resize(size, mirrored)
	logger.Debug("WebMonitor", "Surface now %dx%d (mirrored=%v)", size.Width, size.Height, mirrored)
}

// Handler exposes the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/", s.handleIndex)
	mux.Handle("/assets/", http.StripPrefix("/assets/", newAssetHandler(s.cfg.AssetsDir)))
	mux.HandleFunc("/stream", s.handleStream)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/status/stream", s.handleStatusStream)
	mux.HandleFunc("/api/detections/stream", s.handleDetectionsStream)
	mux.HandleFunc("/api/surface", s.handleSurface)
	mux.HandleFunc("/api/history", s.handleHistory)
	mux.HandleFunc("/api/recording/start", s.handleRecordingStart)
	mux.HandleFunc("/api/recording/stop", s.handleRecordingStop)
	mux.HandleFunc("/api/recording/status", s.handleRecordingStatus)
	mux.HandleFunc("/api/webrtc/offer", s.handleWebRTCOffer)
	if s.cfg.ServeMetrics {
		mux.Handle("/metrics", s.metrics.Handler())
	}

	return mux
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(indexHTML))
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id, frameCh := s.frames.Subscribe()
	defer s.frames.Unsubscribe(id)
	streamMJPEGFromChannel(r.Context(), w, frameCh)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.view.State()
	writeJSON(w, map[string]any{
		"status":      "ok",
		"view_closed": st.Closed,
		"last_seq":    st.Seq,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.monitor.Snapshot())
}

func (s *Server) handleStatusStream(w http.ResponseWriter, r *http.Request) {
	id, eventCh := s.status.Subscribe()
	defer s.status.Unsubscribe(id)
	streamEventsFromChannel(r.Context(), w, eventCh, wantsProtobuf(r))
}

func (s *Server) handleDetectionsStream(w http.ResponseWriter, r *http.Request) {
	id, eventCh := s.events.Subscribe()
	defer s.events.Unsubscribe(id)
	streamEventsFromChannel(r.Context(), w, eventCh, wantsProtobuf(r))
}

func wantsProtobuf(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "application/protobuf") ||
		strings.Contains(accept, "application/x-protobuf")
}

// handleSurface reports (GET) or sets (POST) the display surface.
func (s *Server) handleSurface(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		st := s.view.State()
		writeJSON(w, SurfaceState{Width: st.Surface.Width, Height: st.Surface.Height, Mirrored: st.Mirrored})

	case http.MethodPost:
		var req SurfaceState
		if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&req); err != nil {
			writeJSONWithStatus(w, map[string]any{"error": "Invalid surface data"}, http.StatusBadRequest)
			return
		}
		if !validSurface(req.Width, req.Height) {
			writeJSONWithStatus(w, map[string]any{
				"error": fmt.Sprintf("Surface size must be between 0 and %d per side", maxSurfaceSide),
			}, http.StatusBadRequest)
			return
		}
		s.resizeSurface(types.Size{Width: req.Width, Height: req.Height}, req.Mirrored)
		writeJSON(w, req)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := s.cfg.HistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSONWithStatus(w, map[string]any{"error": "Invalid limit"}, http.StatusBadRequest)
			return
		}
		limit = min(n, 1000)
	}

	recs, err := s.monitor.History(r.Context(), limit)
	if err != nil {
		logger.Error("WebMonitor", "History query failed: %v", err)
		writeJSONWithStatus(w, map[string]any{"error": "History unavailable"}, http.StatusInternalServerError)
		return
	}
	if recs == nil {
		recs = []history.Record{}
	}
	writeJSON(w, map[string]any{"results": recs})
}

func (s *Server) handleRecordingStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.recorder == nil {
		writeJSONWithStatus(w, map[string]any{"error": "Recording is not configured"}, http.StatusServiceUnavailable)
		return
	}

	var req struct {
		Filename string `json:"filename"`
	}
	_ = json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&req)

	filename, err := s.recorder.Start(req.Filename)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, recorder.ErrAlreadyRecording) {
			status = http.StatusBadRequest
		}
		writeJSONWithStatus(w, map[string]any{"error": err.Error()}, status)
		return
	}

	writeJSON(w, map[string]any{
		"status":     "recording",
		"file":       filename,
		"started_at": float64(time.Now().Unix()),
	})
}

func (s *Server) handleRecordingStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.recorder == nil {
		writeJSONWithStatus(w, map[string]any{"error": "Recording is not configured"}, http.StatusServiceUnavailable)
		return
	}

	filename, err := s.recorder.Stop()
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, recorder.ErrNotRecording) {
			status = http.StatusBadRequest
		}
		writeJSONWithStatus(w, map[string]any{"error": err.Error()}, status)
		return
	}

	writeJSON(w, map[string]any{
		"status":     "stopped",
		"file":       filename,
		"stats":      s.recorder.Status(),
		"stopped_at": float64(time.Now().Unix()),
	})
}

func (s *Server) handleRecordingStatus(w http.ResponseWriter, r *http.Request) {
	if s.recorder == nil {
		writeJSON(w, recorder.Status{})
		return
	}
	writeJSON(w, s.recorder.Status())
}

func (s *Server) handleWebRTCOffer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	if err != nil {
		writeJSONWithStatus(w, map[string]any{"error": "Invalid offer data"}, http.StatusBadRequest)
		return
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil || payload["sdp"] == nil || payload["type"] == nil {
		writeJSONWithStatus(w, map[string]any{"error": "Invalid offer data"}, http.StatusBadRequest)
		return
	}

	if s.webrtc == nil {
		writeJSONWithStatus(w, map[string]any{"error": "WebRTC is not configured"}, http.StatusServiceUnavailable)
		return
	}

	answer, err := s.webrtc.HandleOffer(body)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, webrtc.ErrTooManyClients) {
			status = http.StatusServiceUnavailable
		}
		logger.Warn("WebMonitor", "WebRTC offer failed: %v", err)
		writeJSONWithStatus(w, map[string]any{"error": err.Error()}, status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(answer)
}

func writeJSON(w http.ResponseWriter, payload any) {
	writeJSONWithStatus(w, payload, http.StatusOK)
}

func writeJSONWithStatus(w http.ResponseWriter, payload any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		_, _ = fmt.Fprintf(w, `{"error":%q}`, err.Error())
	}
}
