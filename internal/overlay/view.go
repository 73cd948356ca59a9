// Package overlay owns the overlay surface: the latest accepted detector
// result and the pixels drawn from it.
package overlay

import (
	"image"
	"image/color"
	"slices"
	"sync"
	"time"

	"golang.org/x/image/draw"

	"github.com/rommelskii/foundation/internal/detector"
	"github.com/rommelskii/foundation/internal/logger"
	"github.com/rommelskii/foundation/internal/metrics"
	"github.com/rommelskii/foundation/internal/transform"
	"github.com/rommelskii/foundation/pkg/types"
)

// Style controls how detections are drawn.
type Style struct {
	Radius      float64 // Source-space radius used when a detection has none
	StrokeWidth float64 // Display pixels
	Stroke      color.RGBA
	Fill        color.RGBA
	Labels      bool
}

// DefaultStyle draws red 25px circles with a translucent fill.
func DefaultStyle() Style {
	return Style{
		Radius:      25,
		StrokeWidth: 3,
		Stroke:      color.RGBA{R: 255, A: 255},
		Fill:        color.RGBA{R: 64, A: 64},
		Labels:      true,
	}
}

// Update describes an accepted result, handed to hooks registered with OnApply.
type Update struct {
	Seq     uint64
	Result  detector.Result
	Applied time.Time
}

// State is a point-in-time copy of the view's bookkeeping.
type State struct {
	Seq        uint64
	Kind       detector.Kind
	Detections []detector.Detection
	Surface    types.Size
	Mirrored   bool
	Closed     bool
	UpdatedAt  time.Time
}

// View keeps the newest accepted result and renders it onto an RGBA
// surface sized to the display. All methods are safe for concurrent use.
type View struct {
	mu       sync.Mutex
	style    Style
	source   types.Size // Fallback source size when a result carries none
	surface  *image.RGBA
	size     types.Size
	mirrored bool

	lastSeq   uint64
	current   *detector.Result
	updatedAt time.Time
	closed    bool

	hooks   []func(Update)
	metrics *metrics.Metrics
}

// NewView creates a view. source is the expected video size; m may be nil.
func NewView(style Style, source types.Size, m *metrics.Metrics) *View {
	if m == nil {
		m = metrics.New()
	}
	return &View{
		style:   style,
		source:  source,
		metrics: m,
	}
}

// OnApply registers fn to run after each accepted result. Hooks run on the
// dispatcher's goroutine and must not block.
func (v *View) OnApply(fn func(Update)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.hooks = append(v.hooks, fn)
}

// Apply installs res as the current overlay if seq is newer than the last
// applied result and the view is still open. It reports whether res was taken.
func (v *View) Apply(seq uint64, res detector.Result) bool {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		v.metrics.ResultsDiscarded.Add(1)
		return false
	}
	if seq <= v.lastSeq {
		last := v.lastSeq
		v.mu.Unlock()
		v.metrics.ResultsStale.Add(1)
		logger.Debug("Overlay", "Dropping stale result #%d (showing #%d)", seq, last)
		return false
	}

	v.lastSeq = seq
	v.current = &res
	v.updatedAt = time.Now()
	v.renderLocked()

	update := Update{Seq: seq, Result: res, Applied: v.updatedAt}
	hooks := slices.Clone(v.hooks)
	v.mu.Unlock()

	v.metrics.ResultsApplied.Add(1)
	for _, fn := range hooks {
		fn(update)
	}
	return true
}

// Resize sets the display surface size and mirroring, then re-renders.
// A zero size is ignored: surface, size and mirroring all stay as they were.
func (v *View) Resize(size types.Size, mirrored bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return
	}
	if size.Empty() {
		v.metrics.RendersSkipped.Add(1)
		return
	}
	v.mirrored = mirrored
	if size != v.size || v.surface == nil {
		v.surface = image.NewRGBA(image.Rect(0, 0, size.Width, size.Height))
		v.size = size
	}
	v.renderLocked()
}

// Close tears the view down. Later Apply calls are discarded.
func (v *View) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	v.hooks = nil
}

// State returns a copy of the current bookkeeping.
func (v *View) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()

	st := State{
		Seq:       v.lastSeq,
		Surface:   v.size,
		Mirrored:  v.mirrored,
		Closed:    v.closed,
		UpdatedAt: v.updatedAt,
	}
	if v.current != nil {
		st.Kind = v.current.Kind
		st.Detections = append([]detector.Detection(nil), v.current.Detections...)
	}
	return st
}

// CompositeOnto draws the overlay surface over dst, which must share the
// surface's dimensions. It returns false when there is nothing to draw.
func (v *View) CompositeOnto(dst draw.Image) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.surface == nil || v.current == nil {
		return false
	}
	draw.Draw(dst, dst.Bounds(), v.surface, image.Point{}, draw.Over)
	return true
}

// Surface returns a copy of the overlay pixels, or nil before the first resize.
func (v *View) Surface() *image.RGBA {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.surface == nil {
		return nil
	}
	cp := image.NewRGBA(v.surface.Bounds())
	copy(cp.Pix, v.surface.Pix)
	return cp
}

// renderLocked clears the surface and redraws the current result. The
// transform is recomputed each time from the current sizes.
func (v *View) renderLocked() {
	if v.surface == nil || v.current == nil {
		return
	}
	start := time.Now()

	src := v.source
	if v.current.Source.X > 0 && v.current.Source.Y > 0 {
		src = types.Size{Width: v.current.Source.X, Height: v.current.Source.Y}
	}

	if v.current.Kind == detector.KindImage {
		if v.current.Image == nil {
			v.metrics.RendersSkipped.Add(1)
			return
		}
		// The processed frame is placed by its own size.
		b := v.current.Image.Bounds()
		src = types.Size{Width: b.Dx(), Height: b.Dy()}
	}

	params, ok := transform.Compute(src, v.size, v.mirrored)
	if !ok {
		v.metrics.RendersSkipped.Add(1)
		logger.Debug("Overlay", "Skipping render: source %dx%d, surface %dx%d",
			src.Width, src.Height, v.size.Width, v.size.Height)
		return
	}

	wipe(v.surface)
	switch v.current.Kind {
	case detector.KindCoords:
		for _, d := range v.current.Detections {
			drawDetection(v.surface, params, d, v.style)
		}
	case detector.KindImage:
		drawImage(v.surface, params, v.current.Image)
	}

	v.metrics.Renders.Add(1)
	v.metrics.UpdateRenderLatency(time.Since(start))
}
