package geometry

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	"math"
	"sync"

	"golang.org/x/image/vector"
)

// ErrInvalidGeometry is returned when a spot polygon cannot describe a
// physical parking space: fewer than three vertices, non-finite
// coordinates, or a non-positive area.
var ErrInvalidGeometry = errors.New("invalid spot geometry")

// Spot is the immutable geometry of one physical parking space.
type Spot struct {
	id      int
	polygon []Point
	rect    Rect
	area    float64

	maskOnce sync.Once
	mask     *image.Alpha
}

// NewSpot validates points and returns a Spot. The input slice is copied,
// so later changes by the caller are not observed.
func NewSpot(id int, points []Point) (*Spot, error) {
	if len(points) < 3 {
		return nil, fmt.Errorf("%w: spot %d has %d points, need at least 3", ErrInvalidGeometry, id, len(points))
	}
	for i, p := range points {
		if !p.Finite() {
			return nil, fmt.Errorf("%w: spot %d point %d is not finite", ErrInvalidGeometry, id, i)
		}
	}

	poly := append([]Point(nil), points...)
	area := math.Abs(PolygonArea(poly))
	if !(area > 0) {
		return nil, fmt.Errorf("%w: spot %d has zero area", ErrInvalidGeometry, id)
	}

	return &Spot{
		id:      id,
		polygon: poly,
		rect:    BoundingRect(poly),
		area:    area,
	}, nil
}

// ID returns the spot identifier, unique within a lot.
func (s *Spot) ID() int { return s.id }

// Polygon returns a copy of the spot outline in insertion order.
func (s *Spot) Polygon() []Point { return append([]Point(nil), s.polygon...) }

// BoundingRect returns the axis-aligned rectangle enclosing the polygon.
func (s *Spot) BoundingRect() Rect { return s.rect }

// Area returns the polygon area in square pixels. Always > 0.
func (s *Spot) Area() float64 { return s.area }

// vertices exposes the internal slice to package-local callers that
// promise not to mutate it.
func (s *Spot) vertices() []Point { return s.polygon }

// IntersectionArea returns the area of the spot covered by the convex
// polygon clip.
func (s *Spot) IntersectionArea(clip []Point) float64 {
	return IntersectionArea(s.vertices(), clip)
}

// Mask returns the filled spot polygon rasterised onto an alpha image. The
// image bounds are in frame pixel coordinates and cover the spot's bounding
// rectangle; pixels inside the polygon are opaque. The mask is built on
// first use and shared afterwards; callers must not modify it.
func (s *Spot) Mask() *image.Alpha {
	s.maskOnce.Do(func() {
		s.mask = rasterise(s.polygon, s.rect)
	})
	return s.mask
}

func rasterise(poly []Point, r Rect) *image.Alpha {
	ox := int(math.Floor(r.MinX))
	oy := int(math.Floor(r.MinY))
	w := int(math.Ceil(r.MaxX)) - ox
	h := int(math.Ceil(r.MaxY)) - oy
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}

	z := vector.NewRasterizer(w, h)
	z.DrawOp = draw.Src
	z.MoveTo(float32(poly[0].X-float64(ox)), float32(poly[0].Y-float64(oy)))
	for _, p := range poly[1:] {
		z.LineTo(float32(p.X-float64(ox)), float32(p.Y-float64(oy)))
	}
	z.ClosePath()

	dst := image.NewAlpha(image.Rect(ox, oy, ox+w, oy+h))
	z.Draw(dst, dst.Bounds(), image.Opaque, image.Point{})
	return dst
}
