// Package transform maps source-video pixel coordinates onto a display
// surface that letterboxes the video ("object-fit: contain") and may mirror it
// horizontally for a self-view.
package transform

import (
	"image"
	"math"

	"golang.org/x/image/math/f64"

	"github.com/rommelskii/foundation/pkg/types"
)

// Params is the mapping from source space to destination space.
type Params struct {
	Scale    float64
	OffsetX  float64
	OffsetY  float64
	Mirrored bool
	Dest     types.Size
}

// Compute derives the letterbox transform for a source of size src shown on a
// surface of size dst. ok is false when either size is degenerate, in which
// case callers must skip the render.
func Compute(src, dst types.Size, mirrored bool) (Params, bool) {
	if src.Empty() || dst.Empty() {
		return Params{}, false
	}

	srcW, srcH := float64(src.Width), float64(src.Height)
	dstW, dstH := float64(dst.Width), float64(dst.Height)

	p := Params{Mirrored: mirrored, Dest: dst}
	if dstW/dstH > srcW/srcH {
		// Destination relatively wider: fit height, bars left and right
		p.Scale = dstH / srcH
		p.OffsetX = (dstW - srcW*p.Scale) / 2
	} else {
		// Destination relatively taller (or equal): fit width, bars top and bottom
		p.Scale = dstW / srcW
		p.OffsetY = (dstH - srcH*p.Scale) / 2
	}
	return p, true
}

// MapPoint maps a source-space point to destination pixels.
func (p Params) MapPoint(x, y float64) (float64, float64) {
	sx := p.OffsetX + x*p.Scale
	if p.Mirrored {
		sx = float64(p.Dest.Width) - sx
	}
	return sx, p.OffsetY + y*p.Scale
}

// MapRadius scales a source-space length uniformly.
func (p Params) MapRadius(r float64) float64 {
	return r * p.Scale
}

// ContentRect is the destination rectangle covered by the scaled source.
// Mirroring flips the content inside the surface around its centre, and the
// letterbox is symmetric, so the rectangle is the same either way.
func (p Params) ContentRect(src types.Size) image.Rectangle {
	x0 := p.OffsetX
	y0 := p.OffsetY
	x1 := x0 + float64(src.Width)*p.Scale
	y1 := y0 + float64(src.Height)*p.Scale
	return image.Rect(
		int(math.Round(x0)), int(math.Round(y0)),
		int(math.Round(x1)), int(math.Round(y1)),
	)
}

// Affine returns the source-to-destination matrix equivalent to MapPoint, for
// use with golang.org/x/image/draw Transformers.
func (p Params) Affine() f64.Aff3 {
	if p.Mirrored {
		return f64.Aff3{
			-p.Scale, 0, float64(p.Dest.Width) - p.OffsetX,
			0, p.Scale, p.OffsetY,
		}
	}
	return f64.Aff3{
		p.Scale, 0, p.OffsetX,
		0, p.Scale, p.OffsetY,
	}
}
