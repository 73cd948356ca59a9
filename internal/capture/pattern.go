package capture

import (
	"image"
	"image/color"
	"sync"
	"time"

	"golang.org/x/image/draw"

	"github.com/rommelskii/foundation/pkg/types"
)

// Color bars: White, Yellow, Cyan, Green, Magenta, Red, Blue, Black
var barColors = []color.RGBA{
	{R: 255, G: 255, B: 255, A: 255},
	{R: 255, G: 255, B: 0, A: 255},
	{R: 0, G: 255, B: 255, A: 255},
	{R: 0, G: 255, B: 0, A: 255},
	{R: 255, G: 0, B: 255, A: 255},
	{R: 255, G: 0, B: 0, A: 255},
	{R: 0, G: 0, B: 255, A: 255},
	{R: 0, G: 0, B: 0, A: 255},
}

// ColorBars renders the eight-bar test card at the given size.
func ColorBars(size types.Size) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, size.Width, size.Height))
	barWidth := size.Width / len(barColors)
	if barWidth == 0 {
		barWidth = 1
	}
	for i, c := range barColors {
		x0 := i * barWidth
		x1 := x0 + barWidth
		if i == len(barColors)-1 {
			x1 = size.Width
		}
		draw.Draw(img, image.Rect(x0, 0, x1, size.Height), image.NewUniform(c), image.Point{}, draw.Src)
	}
	return img
}

// TestPattern is a synthetic Source: colour bars with a grey square that
// sweeps across the frame so motion is visible in the stream.
type TestPattern struct {
	size   types.Size
	bars   *image.RGBA
	period time.Duration
	start  time.Time

	mu    sync.Mutex
	delay time.Duration // Not ready until this much time has passed
}

// NewTestPattern creates a test pattern source.
func NewTestPattern(size types.Size) *TestPattern {
	return &TestPattern{
		size:   size,
		bars:   ColorBars(size),
		period: 4 * time.Second,
		start:  time.Now(),
	}
}

// SetWarmup makes Snapshot report not-ready for d after creation.
func (p *TestPattern) SetWarmup(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delay = d
}

// Size returns the frame size.
func (p *TestPattern) Size() types.Size {
	return p.size
}

// Snapshot implements Source.
func (p *TestPattern) Snapshot() (image.Image, bool) {
	p.mu.Lock()
	delay := p.delay
	p.mu.Unlock()

	elapsed := time.Since(p.start)
	if elapsed < delay || p.size.Empty() {
		return nil, false
	}

	img := image.NewRGBA(p.bars.Bounds())
	copy(img.Pix, p.bars.Pix)

	side := p.size.Height / 6
	phase := float64(elapsed%p.period) / float64(p.period)
	x := int(phase * float64(p.size.Width-side))
	y := (p.size.Height - side) / 2
	draw.Draw(img, image.Rect(x, y, x+side, y+side),
		image.NewUniform(color.RGBA{R: 128, G: 128, B: 128, A: 255}), image.Point{}, draw.Src)

	return img, true
}
