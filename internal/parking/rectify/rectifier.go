package rectify

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"sync"

	"github.com/banshee-data/parking.report/internal/parking/geometry"
)

// Margins are per-corner inward offsets, in pixels, from the raw frame
// corners to the corners of the region that should fill the rectified
// frame. Positive values move a corner towards the frame centre.
type Margins struct {
	TopLeft     geometry.Point
	TopRight    geometry.Point
	BottomRight geometry.Point
	BottomLeft  geometry.Point
}

// Quad resolves the margins against frame bounds b, returning the source
// quad in top-left, top-right, bottom-right, bottom-left order.
func (m Margins) Quad(b image.Rectangle) [4]geometry.Point {
	x0, y0 := float64(b.Min.X), float64(b.Min.Y)
	x1, y1 := float64(b.Max.X), float64(b.Max.Y)
	return [4]geometry.Point{
		{X: x0 + m.TopLeft.X, Y: y0 + m.TopLeft.Y},
		{X: x1 - m.TopRight.X, Y: y0 + m.TopRight.Y},
		{X: x1 - m.BottomRight.X, Y: y1 - m.BottomRight.Y},
		{X: x0 + m.BottomLeft.X, Y: y1 - m.BottomLeft.Y},
	}
}

// Calibration describes where the rectified region sits in the raw frame.
// Exactly one of Source or Margins is normally set; Margins wins when both
// are. The zero Calibration is disabled and rectification is the identity.
type Calibration struct {
	// Source is the quad in raw frame pixels, TL, TR, BR, BL.
	Source *[4]geometry.Point
	// Margins resolves the quad against each frame's bounds.
	Margins *Margins
}

// Enabled reports whether the calibration changes frames at all.
func (c Calibration) Enabled() bool {
	return c.Source != nil || c.Margins != nil
}

// Quad returns the source quad for a frame with bounds b.
func (c Calibration) Quad(b image.Rectangle) ([4]geometry.Point, bool) {
	switch {
	case c.Margins != nil:
		return c.Margins.Quad(b), true
	case c.Source != nil:
		return *c.Source, true
	default:
		return [4]geometry.Point{}, false
	}
}

func corners(b image.Rectangle) [4]geometry.Point {
	x0, y0 := float64(b.Min.X), float64(b.Min.Y)
	x1, y1 := float64(b.Max.X), float64(b.Max.Y)
	return [4]geometry.Point{{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1}}
}

// Rectifier warps frames so that the calibration quad fills the frame's
// own bounds. The homography is solved once per frame size and reused; it
// depends only on the calibration, so a Rectifier is safe for concurrent
// use.
type Rectifier struct {
	cal Calibration

	mu     sync.Mutex
	solved map[image.Rectangle]solution
	solves int
}

type solution struct {
	h   Homography
	err error
}

// NewRectifier returns a rectifier for cal.
func NewRectifier(cal Calibration) *Rectifier {
	return &Rectifier{cal: cal}
}

// Calibration returns the configured calibration.
func (r *Rectifier) Calibration() Calibration { return r.cal }

// Validate checks the calibration against a frame of the given bounds
// without warping anything.
func (r *Rectifier) Validate(b image.Rectangle) error {
	_, err := r.mapping(b)
	return err
}

// mapping returns the destination-to-source homography for bounds b,
// solving it on first use.
func (r *Rectifier) mapping(b image.Rectangle) (Homography, error) {
	if b.Empty() {
		return Homography{}, fmt.Errorf("%w: empty frame", ErrRectification)
	}
	src, ok := r.cal.Quad(b)
	if !ok {
		return Identity, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.solved[b]; ok {
		return s.h, s.err
	}
	h, err := SolveHomography(corners(b), src)
	if r.solved == nil {
		r.solved = make(map[image.Rectangle]solution)
	}
	r.solved[b] = solution{h: h, err: err}
	r.solves++
	return h, err
}

// Rectify returns a new image with the frame's bounds in which each pixel
// is bilinearly sampled from the calibration quad of frame. With a
// disabled calibration frame is returned as is. On failure frame is
// returned unmodified together with an error wrapping ErrRectification.
func (r *Rectifier) Rectify(frame image.Image) (image.Image, error) {
	if !r.cal.Enabled() {
		return frame, nil
	}
	if frame == nil {
		return frame, fmt.Errorf("%w: nil frame", ErrRectification)
	}
	b := frame.Bounds()
	h, err := r.mapping(b)
	if err != nil {
		return frame, err
	}
	if src, _ := r.cal.Quad(b); src == corners(b) {
		return frame, nil
	}

	// Work on RGBA so sampling does not go through the color.Model for
	// every tap.
	in, ok := frame.(*image.RGBA)
	if !ok {
		in = image.NewRGBA(b)
		draw.Draw(in, b, frame, b.Min, draw.Src)
	}

	out := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			p, ok := h.Apply(geometry.Point{X: float64(x) + 0.5, Y: float64(y) + 0.5})
			if !ok {
				continue
			}
			out.SetRGBA(x, y, bilinear(in, p.X-0.5, p.Y-0.5))
		}
	}
	return out, nil
}

// bilinear samples img at continuous pixel coordinates (x, y), where
// integer coordinates are pixel centres. Samples outside the image clamp
// to the nearest edge pixel.
func bilinear(img *image.RGBA, x, y float64) color.RGBA {
	b := img.Bounds()
	x0 := math.Floor(x)
	y0 := math.Floor(y)
	fx := x - x0
	fy := y - y0

	ix0 := clampInt(int(x0), b.Min.X, b.Max.X-1)
	iy0 := clampInt(int(y0), b.Min.Y, b.Max.Y-1)
	ix1 := clampInt(int(x0)+1, b.Min.X, b.Max.X-1)
	iy1 := clampInt(int(y0)+1, b.Min.Y, b.Max.Y-1)

	c00 := img.RGBAAt(ix0, iy0)
	c10 := img.RGBAAt(ix1, iy0)
	c01 := img.RGBAAt(ix0, iy1)
	c11 := img.RGBAAt(ix1, iy1)

	lerp := func(a, b, c, d uint8) uint8 {
		top := float64(a)*(1-fx) + float64(b)*fx
		bot := float64(c)*(1-fx) + float64(d)*fx
		return uint8(math.Round(top*(1-fy) + bot*fy))
	}
	return color.RGBA{
		R: lerp(c00.R, c10.R, c01.R, c11.R),
		G: lerp(c00.G, c10.G, c01.G, c11.G),
		B: lerp(c00.B, c10.B, c01.B, c11.B),
		A: lerp(c00.A, c10.A, c01.A, c11.A),
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
