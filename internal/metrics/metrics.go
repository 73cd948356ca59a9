package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics
type Metrics struct {
	// Capture loop counters
	Ticks          atomic.Uint64
	FramesCaptured atomic.Uint64
	FramesNotReady atomic.Uint64
	EncodeErrors   atomic.Uint64

	// Dispatcher counters
	FramesDispatched   atomic.Uint64
	FramesDropped      atomic.Uint64 // No free in-flight slot
	InFlight           atomic.Int64
	TransportErrors    atomic.Uint64
	MalformedResponses atomic.Uint64

	// Overlay counters
	ResultsApplied   atomic.Uint64
	ResultsStale     atomic.Uint64 // Older than the displayed result
	ResultsDiscarded atomic.Uint64 // Arrived after the view was closed
	Renders          atomic.Uint64
	RendersSkipped   atomic.Uint64 // Degenerate surface

	// Latency tracking
	RequestLatencyMs atomic.Uint64 // Last detector round trip in ms
	RenderLatencyUs  atomic.Uint64 // Last render duration in µs

	// Viewer tracking
	StreamClients atomic.Int64
	EventClients  atomic.Int64
	WebRTCClients atomic.Int64

	// Recording state
	RecordingActive atomic.Uint64 // 0 = inactive, 1 = active
	RecordingBytes  atomic.Uint64
	RecordingFrames atomic.Uint64

	// Prometheus collectors
	registry *prometheus.Registry
}

// New creates a new Metrics instance with Prometheus collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.registerPrometheusMetrics()

	return m
}

func (m *Metrics) counter(name, help string, v *atomic.Uint64) {
	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{Name: name, Help: help},
		func() float64 { return float64(v.Load()) },
	))
}

func (m *Metrics) gauge(name, help string, fn func() float64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Name: name, Help: help},
		fn,
	))
}

// registerPrometheusMetrics registers all metrics with Prometheus
func (m *Metrics) registerPrometheusMetrics() {
	m.counter("overlay_capture_ticks_total", "Capture timer ticks", &m.Ticks)
	m.counter("overlay_frames_captured_total", "Frames snapshotted and encoded", &m.FramesCaptured)
	m.counter("overlay_frames_not_ready_total", "Ticks skipped because the source had no frame", &m.FramesNotReady)
	m.counter("overlay_encode_errors_total", "Frames that failed to encode", &m.EncodeErrors)

	m.counter("overlay_frames_dispatched_total", "Frames sent to the detector", &m.FramesDispatched)
	m.counter("overlay_frames_dropped_total", "Frames dropped because every in-flight slot was busy", &m.FramesDropped)
	m.gauge("overlay_requests_in_flight", "Detector requests currently in flight",
		func() float64 { return float64(m.InFlight.Load()) })
	m.counter("overlay_transport_errors_total", "Detector requests that failed or returned non-2xx", &m.TransportErrors)
	m.counter("overlay_malformed_responses_total", "Detector responses with neither coords nor image", &m.MalformedResponses)

	m.counter("overlay_results_applied_total", "Results accepted as the current overlay", &m.ResultsApplied)
	m.counter("overlay_results_stale_total", "Results discarded for being older than the displayed one", &m.ResultsStale)
	m.counter("overlay_results_discarded_total", "Results discarded after view teardown", &m.ResultsDiscarded)
	m.counter("overlay_renders_total", "Overlay renders", &m.Renders)
	m.counter("overlay_renders_skipped_total", "Renders skipped for a zero-sized surface", &m.RendersSkipped)

	m.gauge("overlay_request_latency_ms", "Last detector round trip in milliseconds",
		func() float64 { return float64(m.RequestLatencyMs.Load()) })
	m.gauge("overlay_render_latency_us", "Last render duration in microseconds",
		func() float64 { return float64(m.RenderLatencyUs.Load()) })

	m.gauge("overlay_stream_clients", "Connected MJPEG viewers",
		func() float64 { return float64(m.StreamClients.Load()) })
	m.gauge("overlay_event_clients", "Connected SSE/WebSocket event subscribers",
		func() float64 { return float64(m.EventClients.Load()) })
	m.gauge("overlay_webrtc_clients", "Connected WebRTC data channel peers",
		func() float64 { return float64(m.WebRTCClients.Load()) })

	m.gauge("overlay_recording_active", "Recording active (0=inactive, 1=active)",
		func() float64 { return float64(m.RecordingActive.Load()) })
	m.gauge("overlay_recording_bytes", "Total bytes written to recording",
		func() float64 { return float64(m.RecordingBytes.Load()) })
	m.gauge("overlay_recording_frames", "Total frames written to recording",
		func() float64 { return float64(m.RecordingFrames.Load()) })
}

// UpdateRequestLatency records the duration of the last detector round trip
func (m *Metrics) UpdateRequestLatency(d time.Duration) {
	m.RequestLatencyMs.Store(uint64(d.Milliseconds()))
}

// UpdateRenderLatency records the duration of the last render
func (m *Metrics) UpdateRenderLatency(d time.Duration) {
	m.RenderLatencyUs.Store(uint64(d.Microseconds()))
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
