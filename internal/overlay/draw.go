package overlay

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/rommelskii/foundation/internal/detector"
	"github.com/rommelskii/foundation/internal/transform"
)

var labelBackground = color.RGBA{A: 160}

// ring is an alpha mask covering the annulus between inner and outer around
// (cx, cy), with a one-pixel soft edge. inner == 0 gives a filled disc.
type ring struct {
	cx, cy       float64
	inner, outer float64
}

func (r *ring) ColorModel() color.Model { return color.AlphaModel }

func (r *ring) Bounds() image.Rectangle {
	return image.Rect(
		int(math.Floor(r.cx-r.outer-1)), int(math.Floor(r.cy-r.outer-1)),
		int(math.Ceil(r.cx+r.outer+1)), int(math.Ceil(r.cy+r.outer+1)),
	)
}

func (r *ring) At(x, y int) color.Color {
	d := math.Hypot(float64(x)+0.5-r.cx, float64(y)+0.5-r.cy)
	a := clamp01(r.outer-d+0.5)
	if r.inner > 0 {
		a *= clamp01(d - r.inner + 0.5)
	}
	return color.Alpha{A: uint8(a * 255)}
}

func clamp01(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}

// wipe makes every pixel of img fully transparent.
func wipe(img *image.RGBA) {
	draw.Draw(img, img.Bounds(), image.Transparent, image.Point{}, draw.Src)
}

// drawDetection draws one detection as a filled, stroked circle with an
// optional label to its right.
func drawDetection(dst *image.RGBA, p transform.Params, d detector.Detection, st Style) {
	radius := d.Radius
	if radius <= 0 {
		radius = st.Radius
	}
	cx, cy := p.MapPoint(d.X, d.Y)
	r := p.MapRadius(radius)

	if st.Fill.A > 0 {
		fillRing(dst, &ring{cx: cx, cy: cy, outer: r}, st.Fill)
	}
	if st.Stroke.A > 0 && st.StrokeWidth > 0 {
		half := st.StrokeWidth / 2
		fillRing(dst, &ring{cx: cx, cy: cy, inner: math.Max(r-half, 0), outer: r + half}, st.Stroke)
	}
	if st.Labels && d.Label != "" {
		drawLabel(dst, int(cx+r+st.StrokeWidth+4), int(cy), d.Label, st.Stroke)
	}
}

func fillRing(dst *image.RGBA, m *ring, c color.RGBA) {
	b := m.Bounds().Intersect(dst.Bounds())
	if b.Empty() {
		return
	}
	draw.DrawMask(dst, b, image.NewUniform(c), image.Point{}, m, b.Min, draw.Over)
}

// drawLabel renders text with its baseline centred vertically on y.
func drawLabel(dst *image.RGBA, x, y int, text string, c color.RGBA) {
	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: face,
	}
	w := d.MeasureString(text).Ceil()
	m := face.Metrics()
	ascent, descent := m.Ascent.Ceil(), m.Descent.Ceil()
	baseline := y + (ascent-descent)/2

	bg := image.Rect(x-2, baseline-ascent-2, x+w+2, baseline+descent+2)
	draw.Draw(dst, bg, image.NewUniform(labelBackground), image.Point{}, draw.Over)

	d.Dot = fixed.P(x, baseline)
	d.DrawString(text)
}

// drawImage blits a processed frame through the same letterbox transform.
func drawImage(dst *image.RGBA, p transform.Params, src image.Image) {
	draw.ApproxBiLinear.Transform(dst, p.Affine(), src, src.Bounds(), draw.Over, nil)
}
