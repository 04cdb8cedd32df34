package geometry

import "math"

// Point is a 2D position in frame pixel coordinates (X right, Y down).
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Sub returns p - q.
func (p Point) Sub(q Point) Point { return Point{X: p.X - q.X, Y: p.Y - q.Y} }

// Finite reports whether both coordinates are finite numbers.
func (p Point) Finite() bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0)
}

// Rect is an axis-aligned rectangle. Min is inclusive, Max exclusive when
// rasterised.
type Rect struct {
	MinX, MinY float64
	MaxX, MaxY float64
}

func (r Rect) Width() float64  { return r.MaxX - r.MinX }
func (r Rect) Height() float64 { return r.MaxY - r.MinY }

// Intersects reports whether r and o share any area. Touching edges do not
// count.
func (r Rect) Intersects(o Rect) bool {
	return r.MinX < o.MaxX && o.MinX < r.MaxX && r.MinY < o.MaxY && o.MinY < r.MaxY
}

// Box is a detection bounding box as reported by the detector: top-left
// (X1,Y1) and bottom-right (X2,Y2) corners in the same coordinate space as
// the spot polygons.
type Box struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Valid reports whether the box has finite coordinates and a strictly
// positive extent on both axes.
func (b Box) Valid() bool {
	for _, v := range [4]float64{b.X1, b.Y1, b.X2, b.Y2} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return b.X2 > b.X1 && b.Y2 > b.Y1
}

// Rect returns the box as a Rect.
func (b Box) Rect() Rect {
	return Rect{MinX: b.X1, MinY: b.Y1, MaxX: b.X2, MaxY: b.Y2}
}

// Area returns the box area, or 0 for an invalid box.
func (b Box) Area() float64 {
	if !b.Valid() {
		return 0
	}
	return (b.X2 - b.X1) * (b.Y2 - b.Y1)
}

// Polygon returns the four corners of the box in traversal order.
func (b Box) Polygon() []Point {
	return []Point{
		{X: b.X1, Y: b.Y1},
		{X: b.X2, Y: b.Y1},
		{X: b.X2, Y: b.Y2},
		{X: b.X1, Y: b.Y2},
	}
}

// Contains reports whether the box fully contains r.
func (b Box) Contains(r Rect) bool {
	return b.X1 <= r.MinX && b.Y1 <= r.MinY && b.X2 >= r.MaxX && b.Y2 >= r.MaxY
}
