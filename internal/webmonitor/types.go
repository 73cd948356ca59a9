package webmonitor

import (
	"github.com/rommelskii/foundation/internal/detector"
	"github.com/rommelskii/foundation/pkg/types"
)

// MappedDetection is a detection in display-surface pixels.
type MappedDetection struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Radius float64 `json:"radius"`
	Label  string  `json:"label,omitempty"`
}

// SurfaceState is the display surface the overlay is rendered for.
type SurfaceState struct {
	Width    int  `json:"width"`
	Height   int  `json:"height"`
	Mirrored bool `json:"mirrored"`
}

// ResultEvent is the payload for /api/detections/stream, /ws and the
// WebRTC data channel.
type ResultEvent struct {
	Seq           uint64               `json:"seq"`
	Version       int                  `json:"version"`
	Kind          string               `json:"kind"`
	Timestamp     float64              `json:"timestamp"`
	Source        types.Size           `json:"source"`
	NumDetections int                  `json:"num_detections"`
	Detections    []detector.Detection `json:"detections"`
	Mapped        []MappedDetection    `json:"mapped"`
	Surface       SurfaceState         `json:"surface"`
}

// MonitorStats summarises the pipeline counters.
type MonitorStats struct {
	FramesCaptured   uint64  `json:"frames_captured"`
	FramesDispatched uint64  `json:"frames_dispatched"`
	FramesDropped    uint64  `json:"frames_dropped"`
	InFlight         int64   `json:"in_flight"`
	ResultsApplied   uint64  `json:"results_applied"`
	ResultsStale     uint64  `json:"results_stale"`
	TransportErrors  uint64  `json:"transport_errors"`
	RequestLatencyMs uint64  `json:"request_latency_ms"`
	DetectionCount   int     `json:"detection_count"`
	CurrentFPS       float64 `json:"current_fps"`
	TargetFPS        int     `json:"target_fps"`
}

// StatusPayload is the body of /api/status and /api/status/stream.
type StatusPayload struct {
	Monitor       MonitorStats  `json:"monitor"`
	Surface       SurfaceState  `json:"surface"`
	LatestResult  *ResultEvent  `json:"latest_result"`
	ResultHistory []ResultEvent `json:"result_history"`
	Timestamp     float64       `json:"timestamp"`
}
