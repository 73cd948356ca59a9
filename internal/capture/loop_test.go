package capture

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"sync"
	"testing"
	"time"

	"github.com/rommelskii/foundation/internal/metrics"
	"github.com/rommelskii/foundation/pkg/types"
)

type stubSource struct {
	mu  sync.Mutex
	img image.Image
}

func (s *stubSource) Snapshot() (image.Image, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.img, s.img != nil
}

func (s *stubSource) set(img image.Image) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.img = img
}

type stubDispatcher struct {
	mu     sync.Mutex
	frames []types.Frame
	full   bool
}

func (d *stubDispatcher) Dispatch(ctx context.Context, f types.Frame) (uint64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.full {
		return 0, false
	}
	d.frames = append(d.frames, f)
	return uint64(len(d.frames)), true
}

func (d *stubDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.frames)
}

func TestTickSkipsWhenNotReady(t *testing.T) {
	m := metrics.New()
	disp := &stubDispatcher{}
	l := NewLoop(&stubSource{}, disp, DefaultConfig(), m)

	if _, err := l.Tick(context.Background()); !errors.Is(err, ErrNotReady) {
		t.Fatalf("err = %v, want ErrNotReady", err)
	}
	if disp.count() != 0 {
		t.Fatal("not-ready tick dispatched a frame")
	}
	if got := m.FramesNotReady.Load(); got != 1 {
		t.Fatalf("FramesNotReady = %d, want 1", got)
	}
}

func TestTickEncodesAndDispatches(t *testing.T) {
	src := &stubSource{}
	src.set(ColorBars(types.Size{Width: 64, Height: 36}))
	disp := &stubDispatcher{}
	l := NewLoop(src, disp, DefaultConfig(), nil)

	seq, err := l.Tick(context.Background())
	if err != nil || seq != 1 {
		t.Fatalf("Tick = (%d, %v), want (1, nil)", seq, err)
	}

	f := disp.frames[0]
	if f.MimeType != types.MimeJPEG || f.Width != 64 || f.Height != 36 {
		t.Fatalf("frame = %s %dx%d", f.MimeType, f.Width, f.Height)
	}
	img, err := jpeg.Decode(bytes.NewReader(f.Data))
	if err != nil {
		t.Fatalf("frame is not a JPEG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 64 || b.Dy() != 36 {
		t.Fatalf("decoded bounds = %v", b)
	}
}

func TestTickReportsDrop(t *testing.T) {
	src := &stubSource{}
	src.set(ColorBars(types.Size{Width: 16, Height: 16}))
	l := NewLoop(src, &stubDispatcher{full: true}, DefaultConfig(), nil)

	if _, err := l.Tick(context.Background()); !errors.Is(err, ErrDropped) {
		t.Fatalf("err = %v, want ErrDropped", err)
	}
}

func TestEncodeFailureIsSkipped(t *testing.T) {
	src := &stubSource{}
	src.set(ColorBars(types.Size{Width: 16, Height: 16}))
	m := metrics.New()
	disp := &stubDispatcher{}
	l := NewLoop(src, disp, Config{Interval: time.Millisecond, Format: "bmp"}, m)

	if _, err := l.Tick(context.Background()); err == nil {
		t.Fatal("unsupported format encoded")
	}
	if disp.count() != 0 || m.EncodeErrors.Load() != 1 {
		t.Fatalf("dispatched=%d encodeErrors=%d", disp.count(), m.EncodeErrors.Load())
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	src := &stubSource{}
	src.set(ColorBars(types.Size{Width: 16, Height: 16}))
	disp := &stubDispatcher{}
	l := NewLoop(src, disp, Config{Interval: 5 * time.Millisecond, Format: FormatPNG}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for disp.count() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("only %d frames dispatched", disp.count())
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	n := disp.count()
	time.Sleep(30 * time.Millisecond)
	if disp.count() != n {
		t.Fatal("ticks continued after cancel")
	}
	if disp.frames[0].MimeType != types.MimePNG {
		t.Fatalf("mime = %s, want png", disp.frames[0].MimeType)
	}
}

func TestTestPatternWarmup(t *testing.T) {
	p := NewTestPattern(types.Size{Width: 80, Height: 60})
	p.SetWarmup(time.Hour)
	if _, ok := p.Snapshot(); ok {
		t.Fatal("pattern ready during warmup")
	}
	p.SetWarmup(0)
	img, ok := p.Snapshot()
	if !ok {
		t.Fatal("pattern not ready")
	}
	if b := img.Bounds(); b.Dx() != 80 || b.Dy() != 60 {
		t.Fatalf("bounds = %v", b)
	}
}

func TestColorBars(t *testing.T) {
	img := ColorBars(types.Size{Width: 800, Height: 10})

	tests := []struct {
		x    int
		want [3]uint8
	}{
		{50, [3]uint8{255, 255, 255}},
		{350, [3]uint8{0, 255, 0}},
		{550, [3]uint8{255, 0, 0}},
		{799, [3]uint8{0, 0, 0}},
	}
	for _, tt := range tests {
		c := img.RGBAAt(tt.x, 5)
		if got := [3]uint8{c.R, c.G, c.B}; got != tt.want || c.A != 255 {
			t.Fatalf("pixel at x=%d = %v (alpha %d), want %v", tt.x, got, c.A, tt.want)
		}
	}
}

func TestTestPatternDrawsSquare(t *testing.T) {
	p := NewTestPattern(types.Size{Width: 120, Height: 60})
	img, ok := p.Snapshot()
	if !ok {
		t.Fatal("pattern not ready")
	}

	// The square sweeps horizontally but always sits on the middle row.
	rgba := img.(*image.RGBA)
	grey := 0
	for x := 0; x < 120; x++ {
		if c := rgba.RGBAAt(x, 30); c.R == 128 && c.G == 128 && c.B == 128 {
			grey++
		}
	}
	if grey != 10 {
		t.Fatalf("grey pixels on middle row = %d, want 10", grey)
	}
}
