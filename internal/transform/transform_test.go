package transform

import (
	"math"
	"testing"

	"github.com/rommelskii/foundation/pkg/types"
)

const eps = 1e-9

func near(a, b float64) bool {
	return math.Abs(a-b) < eps
}

var sizeCases = []struct {
	name string
	src  types.Size
	dst  types.Size
}{
	{"same aspect larger", types.Size{Width: 1280, Height: 720}, types.Size{Width: 1920, Height: 1080}},
	{"wider destination", types.Size{Width: 1280, Height: 720}, types.Size{Width: 2560, Height: 720}},
	{"taller destination", types.Size{Width: 1280, Height: 720}, types.Size{Width: 720, Height: 1280}},
	{"square destination", types.Size{Width: 640, Height: 480}, types.Size{Width: 500, Height: 500}},
	{"portrait source", types.Size{Width: 480, Height: 640}, types.Size{Width: 1024, Height: 600}},
	{"odd sizes", types.Size{Width: 333, Height: 217}, types.Size{Width: 1001, Height: 77}},
}

func TestComputeLetterbox(t *testing.T) {
	for _, tc := range sizeCases {
		t.Run(tc.name, func(t *testing.T) {
			p, ok := Compute(tc.src, tc.dst, false)
			if !ok {
				t.Fatalf("Compute returned !ok")
			}
			if p.Scale <= 0 {
				t.Fatalf("scale = %v, want > 0", p.Scale)
			}

			w := float64(tc.src.Width) * p.Scale
			h := float64(tc.src.Height) * p.Scale
			dw, dh := float64(tc.dst.Width), float64(tc.dst.Height)

			if p.OffsetX != 0 && p.OffsetY != 0 {
				t.Fatalf("both offsets non-zero: %+v", p)
			}
			if p.OffsetY == 0 && !near(h, dh) && !near(w, dw) {
				t.Fatalf("content %vx%v fills neither axis of %vx%v", w, h, dw, dh)
			}
			if p.OffsetX != 0 {
				if !near(h, dh) {
					t.Fatalf("height not filled: %v vs %v", h, dh)
				}
				if !near(2*p.OffsetX+w, dw) {
					t.Fatalf("horizontal margin not centred: offset=%v width=%v dest=%v", p.OffsetX, w, dw)
				}
			}
			if p.OffsetY != 0 {
				if !near(w, dw) {
					t.Fatalf("width not filled: %v vs %v", w, dw)
				}
				if !near(2*p.OffsetY+h, dh) {
					t.Fatalf("vertical margin not centred: offset=%v height=%v dest=%v", p.OffsetY, h, dh)
				}
			}
			if w > dw+eps || h > dh+eps {
				t.Fatalf("content %vx%v overflows %vx%v", w, h, dw, dh)
			}
		})
	}
}

func TestMapPointCentre(t *testing.T) {
	for _, tc := range sizeCases {
		for _, mirrored := range []bool{false, true} {
			p, ok := Compute(tc.src, tc.dst, mirrored)
			if !ok {
				t.Fatalf("%s: Compute returned !ok", tc.name)
			}
			x, y := p.MapPoint(float64(tc.src.Width)/2, float64(tc.src.Height)/2)
			if !near(x, float64(tc.dst.Width)/2) || !near(y, float64(tc.dst.Height)/2) {
				t.Fatalf("%s mirrored=%v: centre mapped to (%v, %v)", tc.name, mirrored, x, y)
			}
		}
	}
}

func TestMapPointMirroring(t *testing.T) {
	for _, tc := range sizeCases {
		p, _ := Compute(tc.src, tc.dst, true)
		dw := float64(tc.dst.Width)

		x0, _ := p.MapPoint(0, 0)
		if !near(x0, dw-p.OffsetX) {
			t.Fatalf("%s: x=0 mapped to %v, want %v", tc.name, x0, dw-p.OffsetX)
		}
		x1, _ := p.MapPoint(float64(tc.src.Width), 0)
		if !near(x1, p.OffsetX) {
			t.Fatalf("%s: x=srcW mapped to %v, want %v", tc.name, x1, p.OffsetX)
		}
	}
}

func TestWorkedExample(t *testing.T) {
	p, ok := Compute(types.Size{Width: 1280, Height: 720}, types.Size{Width: 1920, Height: 1080}, true)
	if !ok {
		t.Fatal("Compute returned !ok")
	}
	if !near(p.Scale, 1.5) || !near(p.OffsetX, 0) || !near(p.OffsetY, 0) {
		t.Fatalf("params = %+v, want scale 1.5 and zero offsets", p)
	}
	x, y := p.MapPoint(640, 360)
	if !near(x, 960) || !near(y, 540) {
		t.Fatalf("mapped = (%v, %v), want (960, 540)", x, y)
	}
	if r := p.MapRadius(25); !near(r, 37.5) {
		t.Fatalf("radius = %v, want 37.5", r)
	}
}

func TestComputeDegenerate(t *testing.T) {
	src := types.Size{Width: 1280, Height: 720}
	for _, dst := range []types.Size{{Width: 0, Height: 720}, {Width: 1280, Height: 0}, {}} {
		if _, ok := Compute(src, dst, false); ok {
			t.Fatalf("Compute(%v) ok = true, want false", dst)
		}
	}
	if _, ok := Compute(types.Size{}, types.Size{Width: 10, Height: 10}, false); ok {
		t.Fatal("zero source accepted")
	}
}

func TestAffineMatchesMapPoint(t *testing.T) {
	points := [][2]float64{{0, 0}, {1280, 720}, {17.5, 400}, {640, 360}}
	for _, mirrored := range []bool{false, true} {
		p, _ := Compute(types.Size{Width: 1280, Height: 720}, types.Size{Width: 1000, Height: 1000}, mirrored)
		m := p.Affine()
		for _, pt := range points {
			wantX, wantY := p.MapPoint(pt[0], pt[1])
			gotX := m[0]*pt[0] + m[1]*pt[1] + m[2]
			gotY := m[3]*pt[0] + m[4]*pt[1] + m[5]
			if !near(gotX, wantX) || !near(gotY, wantY) {
				t.Fatalf("mirrored=%v point %v: affine (%v, %v) != map (%v, %v)", mirrored, pt, gotX, gotY, wantX, wantY)
			}
		}
	}
}

func TestContentRect(t *testing.T) {
	p, _ := Compute(types.Size{Width: 1280, Height: 720}, types.Size{Width: 2560, Height: 720}, true)
	r := p.ContentRect(types.Size{Width: 1280, Height: 720})
	if r.Min.X != 640 || r.Max.X != 1920 || r.Min.Y != 0 || r.Max.Y != 720 {
		t.Fatalf("content rect = %v", r)
	}
}
