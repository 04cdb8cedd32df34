package geometry

import "math"

// collinearEpsilon is the cross-product magnitude below which three points
// are treated as collinear when testing convexity.
const collinearEpsilon = 1e-12

// PolygonArea returns the signed shoelace area of the closed polygon pts.
// The sign follows the traversal order; callers wanting a magnitude take
// math.Abs.
func PolygonArea(pts []Point) float64 {
	n := len(pts)
	if n < 3 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += pts[i].X*pts[j].Y - pts[j].X*pts[i].Y
	}
	return sum / 2
}

// BoundingRect returns the axis-aligned rectangle enclosing pts.
func BoundingRect(pts []Point) Rect {
	if len(pts) == 0 {
		return Rect{}
	}
	r := Rect{MinX: math.Inf(1), MinY: math.Inf(1), MaxX: math.Inf(-1), MaxY: math.Inf(-1)}
	for _, p := range pts {
		r.MinX = math.Min(r.MinX, p.X)
		r.MinY = math.Min(r.MinY, p.Y)
		r.MaxX = math.Max(r.MaxX, p.X)
		r.MaxY = math.Max(r.MaxY, p.Y)
	}
	return r
}

// cross returns the z component of (b-a) × (p-a). Positive when p lies to
// the left of the directed line a→b in a counter-clockwise frame.
func cross(a, b, p Point) float64 {
	return (b.X-a.X)*(p.Y-a.Y) - (b.Y-a.Y)*(p.X-a.X)
}

// IsConvex reports whether pts describes a convex polygon. Collinear
// vertices are tolerated; fewer than three points is not a polygon.
func IsConvex(pts []Point) bool {
	n := len(pts)
	if n < 3 {
		return false
	}
	sign := 0
	for i := 0; i < n; i++ {
		c := cross(pts[i], pts[(i+1)%n], pts[(i+2)%n])
		if math.Abs(c) < collinearEpsilon {
			continue
		}
		s := 1
		if c < 0 {
			s = -1
		}
		if sign == 0 {
			sign = s
		} else if s != sign {
			return false
		}
	}
	return sign != 0
}

// ClipConvex clips subject against the convex polygon clip using the
// Sutherland–Hodgman algorithm and returns the intersection polygon.
//
// The subject may be concave; in that case the result can contain
// zero-width spurs along the clip boundary, which contribute no area. A
// nil result means the intersection is empty or clip is not convex.
func ClipConvex(subject, clip []Point) []Point {
	if len(subject) < 3 || !IsConvex(clip) {
		return nil
	}

	orient := 1.0
	if PolygonArea(clip) < 0 {
		orient = -1.0
	}

	out := append([]Point(nil), subject...)
	for i := range clip {
		if len(out) == 0 {
			return nil
		}
		a := clip[i]
		b := clip[(i+1)%len(clip)]

		in := out
		out = make([]Point, 0, len(in)+2)
		prev := in[len(in)-1]
		prevInside := orient*cross(a, b, prev) >= 0
		for _, cur := range in {
			curInside := orient*cross(a, b, cur) >= 0
			switch {
			case curInside && !prevInside:
				out = append(out, lineIntersection(prev, cur, a, b), cur)
			case curInside:
				out = append(out, cur)
			case prevInside:
				out = append(out, lineIntersection(prev, cur, a, b))
			}
			prev, prevInside = cur, curInside
		}
	}
	if len(out) < 3 {
		return nil
	}
	return out
}

// IntersectionArea returns the area shared by subject and the convex
// polygon clip.
func IntersectionArea(subject, clip []Point) float64 {
	return math.Abs(PolygonArea(ClipConvex(subject, clip)))
}

// lineIntersection returns the point where segment p→q crosses the
// infinite line through a and b.
func lineIntersection(p, q, a, b Point) Point {
	dp := q.Sub(p)
	da := b.Sub(a)
	denom := dp.X*da.Y - dp.Y*da.X
	if denom == 0 {
		return q
	}
	t := ((a.X-p.X)*da.Y - (a.Y-p.Y)*da.X) / denom
	return Point{X: p.X + t*dp.X, Y: p.Y + t*dp.Y}
}
