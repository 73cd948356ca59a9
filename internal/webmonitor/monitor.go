package webmonitor

import (
	"context"
	"sync"
	"time"

	"github.com/rommelskii/foundation/internal/detector"
	"github.com/rommelskii/foundation/internal/history"
	"github.com/rommelskii/foundation/internal/logger"
	"github.com/rommelskii/foundation/internal/metrics"
	"github.com/rommelskii/foundation/internal/overlay"
	"github.com/rommelskii/foundation/internal/transform"
	"github.com/rommelskii/foundation/pkg/types"
)

// Monitor tracks accepted results and derives the status payloads.
// Accepted results are optionally persisted to a history store.
type Monitor struct {
	startTime    time.Time
	targetFPS    int
	historyLimit int
	radius       float64 // Source-space radius for detections without one
	view         *overlay.View
	metrics      *metrics.Metrics
	store        *history.Store

	mu           sync.Mutex
	lastSeq      uint64
	version      int
	latest       *ResultEvent
	history      []ResultEvent
	fps          float64
	fpsSampledAt time.Time
	fpsFrames    uint64

	persistCh chan history.Record
	stop      chan struct{}
	done      chan struct{}
}

// NewMonitor creates a Monitor. store may be nil.
func NewMonitor(view *overlay.View, m *metrics.Metrics, store *history.Store, targetFPS, historyLimit int, radius float64) *Monitor {
	if historyLimit <= 0 {
		historyLimit = 8
	}
	return &Monitor{
		startTime:    time.Now(),
		targetFPS:    targetFPS,
		historyLimit: historyLimit,
		radius:       radius,
		view:         view,
		metrics:      m,
		store:        store,
		fpsSampledAt: time.Now(),
		persistCh:    make(chan history.Record, 64),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Start launches the history writer.
func (m *Monitor) Start() {
	go m.persistLoop()
}

// Stop drains pending history writes and stops the writer.
func (m *Monitor) Stop() {
	select {
	case <-m.stop:
	default:
		close(m.stop)
	}
	<-m.done
}

// Record turns an accepted overlay update into an event and stores it.
// Updates arriving after a newer one was recorded are dropped and false is
// returned.
func (m *Monitor) Record(u overlay.Update) (ResultEvent, bool) {
	st := m.view.State()

	m.mu.Lock()
	if u.Seq <= m.lastSeq {
		last := m.lastSeq
		m.mu.Unlock()
		logger.Debug("Monitor", "Ignoring result #%d, already showing #%d", u.Seq, last)
		return ResultEvent{}, false
	}
	m.lastSeq = u.Seq
	m.version++
	ev := buildEvent(u, st, m.version, m.radius)
	m.latest = &ev
	if ev.NumDetections > 0 {
		m.history = append([]ResultEvent{ev}, m.history...)
		if len(m.history) > m.historyLimit {
			m.history = m.history[:m.historyLimit]
		}
	}

	// Queued under the lock so rows land in sequence order.
	if m.store != nil {
		select {
		case m.persistCh <- history.NewRecord(u.Seq, u.Result):
		default:
			logger.Warn("Monitor", "History writer behind, dropping result #%d", u.Seq)
		}
	}
	m.mu.Unlock()
	return ev, true
}

// Snapshot returns the current status payload.
func (m *Monitor) Snapshot() StatusPayload {
	st := m.view.State()

	m.mu.Lock()
	defer m.mu.Unlock()

	captured := m.metrics.FramesCaptured.Load()
	if elapsed := time.Since(m.fpsSampledAt); elapsed >= time.Second {
		m.fps = float64(captured-m.fpsFrames) / elapsed.Seconds()
		m.fpsFrames = captured
		m.fpsSampledAt = time.Now()
	}

	stats := MonitorStats{
		FramesCaptured:   captured,
		FramesDispatched: m.metrics.FramesDispatched.Load(),
		FramesDropped:    m.metrics.FramesDropped.Load(),
		InFlight:         m.metrics.InFlight.Load(),
		ResultsApplied:   m.metrics.ResultsApplied.Load(),
		ResultsStale:     m.metrics.ResultsStale.Load(),
		TransportErrors:  m.metrics.TransportErrors.Load(),
		RequestLatencyMs: m.metrics.RequestLatencyMs.Load(),
		CurrentFPS:       m.fps,
		TargetFPS:        m.targetFPS,
	}

	var latest *ResultEvent
	if m.latest != nil {
		cp := *m.latest
		latest = &cp
		stats.DetectionCount = cp.NumDetections
	}

	historyCopy := make([]ResultEvent, len(m.history))
	copy(historyCopy, m.history)

	return StatusPayload{
		Monitor:       stats,
		Surface:       SurfaceState{Width: st.Surface.Width, Height: st.Surface.Height, Mirrored: st.Mirrored},
		LatestResult:  latest,
		ResultHistory: historyCopy,
		Timestamp:     float64(time.Now().UnixMilli()) / 1000,
	}
}

// History returns up to n past results, from the store when configured.
func (m *Monitor) History(ctx context.Context, n int) ([]history.Record, error) {
	if m.store != nil {
		return m.store.Recent(ctx, n)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	recs := make([]history.Record, 0, min(n, len(m.history)))
	for _, ev := range m.history {
		if len(recs) == n {
			break
		}
		recs = append(recs, history.Record{
			Seq:          int64(ev.Seq),
			Kind:         ev.Kind,
			Detections:   ev.Detections,
			SourceWidth:  ev.Source.Width,
			SourceHeight: ev.Source.Height,
			ReceivedAt:   time.UnixMilli(int64(ev.Timestamp * 1000)).UTC(),
		})
	}
	return recs, nil
}

func (m *Monitor) persistLoop() {
	defer close(m.done)

	write := func(rec history.Record) {
		if m.store == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := m.store.Insert(ctx, rec); err != nil {
			logger.Warn("Monitor", "Failed to persist result #%d: %v", rec.Seq, err)
		}
	}

	for {
		select {
		case rec := <-m.persistCh:
			write(rec)
		case <-m.stop:
			for {
				select {
				case rec := <-m.persistCh:
					write(rec)
				default:
					return
				}
			}
		}
	}
}

// buildEvent maps every detection onto the current surface so clients that
// draw their own overlay can use the display coordinates directly.
func buildEvent(u overlay.Update, st overlay.State, version int, radius float64) ResultEvent {
	res := u.Result
	src := types.Size{Width: res.Source.X, Height: res.Source.Y}

	ev := ResultEvent{
		Seq:           u.Seq,
		Version:       version,
		Kind:          res.Kind.String(),
		Timestamp:     float64(u.Applied.UnixMilli()) / 1000,
		Source:        src,
		NumDetections: len(res.Detections),
		Detections:    res.Detections,
		Mapped:        []MappedDetection{},
		Surface:       SurfaceState{Width: st.Surface.Width, Height: st.Surface.Height, Mirrored: st.Mirrored},
	}
	if ev.Detections == nil {
		ev.Detections = []detector.Detection{}
	}

	params, ok := transform.Compute(src, st.Surface, st.Mirrored)
	if !ok {
		return ev
	}
	for _, d := range res.Detections {
		r := d.Radius
		if r <= 0 {
			r = radius
		}
		x, y := params.MapPoint(d.X, d.Y)
		ev.Mapped = append(ev.Mapped, MappedDetection{
			X:      x,
			Y:      y,
			Radius: params.MapRadius(r),
			Label:  d.Label,
		})
	}
	return ev
}
