package overlay

import (
	"bytes"
	"image"
	"image/color"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rommelskii/foundation/internal/detector"
	"github.com/rommelskii/foundation/internal/metrics"
	"github.com/rommelskii/foundation/pkg/types"
)

var hd = types.Size{Width: 1280, Height: 720}

func coords(pts ...detector.Detection) detector.Result {
	return detector.Result{
		Kind:       detector.KindCoords,
		Detections: pts,
		Source:     image.Pt(hd.Width, hd.Height),
	}
}

func alphaAt(t *testing.T, v *View, x, y int) uint8 {
	t.Helper()
	s := v.Surface()
	if s == nil {
		t.Fatal("surface not allocated")
	}
	return s.RGBAAt(x, y).A
}

func TestApplyRejectsStaleResults(t *testing.T) {
	m := metrics.New()
	v := NewView(DefaultStyle(), hd, m)
	v.Resize(hd, false)

	if !v.Apply(2, coords(detector.Detection{X: 100, Y: 100})) {
		t.Fatal("first result rejected")
	}
	if v.Apply(1, coords(detector.Detection{X: 900, Y: 500})) {
		t.Fatal("older result accepted")
	}
	if v.Apply(2, coords(detector.Detection{X: 900, Y: 500})) {
		t.Fatal("duplicate sequence accepted")
	}

	st := v.State()
	if st.Seq != 2 || st.Detections[0].X != 100 {
		t.Fatalf("state = %+v, want seq 2 at x=100", st)
	}
	if got := m.ResultsStale.Load(); got != 2 {
		t.Fatalf("ResultsStale = %d, want 2", got)
	}
	if alphaAt(t, v, 900, 500) != 0 {
		t.Fatal("stale result was drawn")
	}
}

func TestApplyUnderAnyInterleaving(t *testing.T) {
	const n = 64
	for round := 0; round < 20; round++ {
		m := metrics.New()
		v := NewView(DefaultStyle(), hd, m)
		v.Resize(types.Size{Width: 320, Height: 180}, false)

		var hookCalls atomic.Int64
		v.OnApply(func(Update) { hookCalls.Add(1) })

		var wg sync.WaitGroup
		var accepted atomic.Int64
		for _, i := range rand.Perm(n) {
			wg.Add(1)
			go func(seq uint64) {
				defer wg.Done()
				if v.Apply(seq, coords(detector.Detection{X: float64(seq), Y: 1})) {
					accepted.Add(1)
				}
			}(uint64(i + 1))
		}
		wg.Wait()

		st := v.State()
		if st.Seq != n || st.Detections[0].X != n {
			t.Fatalf("round %d: final state %+v, want seq %d", round, st, n)
		}
		if got := accepted.Load() + int64(m.ResultsStale.Load()); got != n {
			t.Fatalf("round %d: accepted+stale = %d, want %d", round, got, n)
		}
		if hookCalls.Load() != accepted.Load() {
			t.Fatalf("round %d: %d hook calls for %d accepted results", round, hookCalls.Load(), accepted.Load())
		}
	}
}

func TestWorkedExampleMirroredFullHD(t *testing.T) {
	v := NewView(DefaultStyle(), hd, nil)
	v.Resize(types.Size{Width: 1920, Height: 1080}, true)
	v.Apply(1, coords(detector.Detection{X: 640, Y: 360}))

	// Fill at the centre, stroke on the 37.5px circle, nothing far away.
	if alphaAt(t, v, 960, 540) == 0 {
		t.Fatal("no fill at mapped centre (960,540)")
	}
	stroke := v.Surface().RGBAAt(960+37, 540)
	if stroke.R < 200 || stroke.A < 200 {
		t.Fatalf("stroke pixel = %+v, want opaque red", stroke)
	}
	if alphaAt(t, v, 960+60, 540) != 0 {
		t.Fatal("pixels drawn outside the circle")
	}
}

func TestMirroringMovesCircle(t *testing.T) {
	v := NewView(DefaultStyle(), hd, nil)
	v.Resize(hd, true)
	v.Apply(1, coords(detector.Detection{X: 100, Y: 360}))

	if alphaAt(t, v, 1180, 360) == 0 {
		t.Fatal("mirrored circle missing at x=1180")
	}
	if alphaAt(t, v, 100, 360) != 0 {
		t.Fatal("unmirrored position drawn on a mirrored surface")
	}

	v.Resize(hd, false)
	if alphaAt(t, v, 100, 360) == 0 || alphaAt(t, v, 1180, 360) != 0 {
		t.Fatal("resize without mirroring did not move the circle back")
	}
}

func TestLetterboxOffsetApplied(t *testing.T) {
	v := NewView(DefaultStyle(), hd, nil)
	v.Resize(types.Size{Width: 1280, Height: 1280}, false)
	v.Apply(1, coords(detector.Detection{X: 640, Y: 360}))

	if alphaAt(t, v, 640, 640) == 0 {
		t.Fatal("circle not shifted by the vertical letterbox offset")
	}
	if alphaAt(t, v, 640, 360) != 0 {
		t.Fatal("circle drawn without the letterbox offset")
	}
}

func TestDetectionRadiusOverridesDefault(t *testing.T) {
	v := NewView(DefaultStyle(), hd, nil)
	v.Resize(hd, false)
	v.Apply(1, coords(detector.Detection{X: 640, Y: 360, Radius: 100}))

	if px := v.Surface().RGBAAt(640+100, 360); px.R < 200 {
		t.Fatalf("stroke at r=100 = %+v", px)
	}
}

func TestRenderClearsPreviousResult(t *testing.T) {
	v := NewView(DefaultStyle(), hd, nil)
	v.Resize(hd, false)
	v.Apply(1, coords(detector.Detection{X: 100, Y: 100}))
	v.Apply(2, coords(detector.Detection{X: 1000, Y: 600}))

	if alphaAt(t, v, 100, 100) != 0 {
		t.Fatal("previous detection still on the surface")
	}
	if alphaAt(t, v, 1000, 600) == 0 {
		t.Fatal("new detection missing")
	}

	v.Apply(3, coords())
	if alphaAt(t, v, 1000, 600) != 0 {
		t.Fatal("empty result did not clear the surface")
	}
}

func TestZeroSurfaceLeavesOverlayUnchanged(t *testing.T) {
	m := metrics.New()
	v := NewView(DefaultStyle(), hd, m)

	// No surface yet: accepted but nothing to draw.
	if !v.Apply(1, coords(detector.Detection{X: 10, Y: 10})) {
		t.Fatal("result rejected before first resize")
	}

	v.Resize(hd, false)
	before := v.Surface()

	v.Resize(types.Size{}, true)
	v.Resize(types.Size{Width: 640}, true)

	after := v.Surface()
	if !bytes.Equal(before.Pix, after.Pix) {
		t.Fatal("overlay changed on a zero-sized report")
	}
	st := v.State()
	if st.Surface != hd || st.Mirrored {
		t.Fatalf("zero-sized report changed state: surface=%+v mirrored=%v", st.Surface, st.Mirrored)
	}
	if got := m.RendersSkipped.Load(); got != 2 {
		t.Fatalf("RendersSkipped = %d, want 2", got)
	}

	// Later results still render onto the previous surface.
	v.Apply(2, coords(detector.Detection{X: 900, Y: 500}))
	if bytes.Equal(before.Pix, v.Surface().Pix) {
		t.Fatal("result after a zero-sized report was not rendered")
	}
}

func TestCloseDiscardsLateResults(t *testing.T) {
	m := metrics.New()
	v := NewView(DefaultStyle(), hd, m)
	v.Resize(hd, false)
	v.Close()

	if v.Apply(1, coords(detector.Detection{X: 10, Y: 10})) {
		t.Fatal("result accepted after Close")
	}
	if got := m.ResultsDiscarded.Load(); got != 1 {
		t.Fatalf("ResultsDiscarded = %d, want 1", got)
	}
	if !v.State().Closed {
		t.Fatal("state does not report closed")
	}
}

func TestImageModeBlitsThroughTransform(t *testing.T) {
	processed := image.NewRGBA(image.Rect(0, 0, 16, 9))
	for i := 0; i < len(processed.Pix); i += 4 {
		processed.Pix[i] = 255   // R
		processed.Pix[i+3] = 255 // A
	}

	v := NewView(DefaultStyle(), hd, nil)
	v.Resize(types.Size{Width: 32, Height: 32}, false)
	v.Apply(1, detector.Result{Kind: detector.KindImage, Image: processed})

	// 16x9 scaled x2 into 32x32 leaves 7px bars top and bottom.
	if px := v.Surface().RGBAAt(16, 16); px.R < 250 || px.A < 250 {
		t.Fatalf("content pixel = %+v, want opaque red", px)
	}
	if px := v.Surface().RGBAAt(16, 2); px != (color.RGBA{}) {
		t.Fatalf("letterbox bar pixel = %+v, want transparent", px)
	}
}

func TestCompositeOnto(t *testing.T) {
	v := NewView(DefaultStyle(), hd, nil)
	dst := image.NewRGBA(image.Rect(0, 0, hd.Width, hd.Height))
	if v.CompositeOnto(dst) {
		t.Fatal("composited with no surface")
	}

	v.Resize(hd, false)
	v.Apply(1, coords(detector.Detection{X: 640, Y: 360}))
	if !v.CompositeOnto(dst) {
		t.Fatal("composite reported nothing to draw")
	}
	if dst.RGBAAt(640+25, 360).R < 200 {
		t.Fatal("stroke not composited onto destination")
	}
}
