// Package rectify undoes the perspective of an off-axis camera so that
// frame pixels line up with the coordinate space spot polygons were drawn
// in.
package rectify

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/parking.report/internal/parking/geometry"
)

// ErrRectification is returned when a frame cannot be rectified. The
// accompanying image is always the unmodified input frame.
var ErrRectification = errors.New("frame rectification failed")

// Homography is a 3x3 projective transform stored row-major with the
// bottom-right element normalised to 1.
type Homography [9]float64

// Identity is the homography that maps every point to itself.
var Identity = Homography{1, 0, 0, 0, 1, 0, 0, 0, 1}

// SolveHomography returns the homography mapping each src[i] onto dst[i].
// Both quads must be convex with non-zero area.
func SolveHomography(src, dst [4]geometry.Point) (Homography, error) {
	for _, q := range [2][4]geometry.Point{src, dst} {
		if err := validateQuad(q); err != nil {
			return Homography{}, err
		}
	}

	// Eight equations in h0..h7 with h8 fixed at 1.
	a := mat.NewDense(8, 8, nil)
	b := mat.NewVecDense(8, nil)
	for i := 0; i < 4; i++ {
		x, y := src[i].X, src[i].Y
		u, v := dst[i].X, dst[i].Y
		a.SetRow(2*i, []float64{x, y, 1, 0, 0, 0, -u * x, -u * y})
		a.SetRow(2*i+1, []float64{0, 0, 0, x, y, 1, -v * x, -v * y})
		b.SetVec(2*i, u)
		b.SetVec(2*i+1, v)
	}

	var h mat.VecDense
	if err := h.SolveVec(a, b); err != nil {
		return Homography{}, fmt.Errorf("%w: %v", ErrRectification, err)
	}

	var out Homography
	for i := 0; i < 8; i++ {
		out[i] = h.AtVec(i)
		if math.IsNaN(out[i]) || math.IsInf(out[i], 0) {
			return Homography{}, fmt.Errorf("%w: non-finite homography", ErrRectification)
		}
	}
	out[8] = 1
	return out, nil
}

// Apply maps p through the homography. ok is false when p lies on the
// line at infinity of the transform.
func (h Homography) Apply(p geometry.Point) (q geometry.Point, ok bool) {
	w := h[6]*p.X + h[7]*p.Y + h[8]
	if math.Abs(w) < 1e-12 {
		return geometry.Point{}, false
	}
	return geometry.Point{
		X: (h[0]*p.X + h[1]*p.Y + h[2]) / w,
		Y: (h[3]*p.X + h[4]*p.Y + h[5]) / w,
	}, true
}

// Inverse returns the inverse transform, normalised so that its last
// element is 1.
func (h Homography) Inverse() (Homography, error) {
	m := mat.NewDense(3, 3, h[:])
	var inv mat.Dense
	if err := inv.Inverse(m); err != nil {
		return Homography{}, fmt.Errorf("%w: %v", ErrRectification, err)
	}
	var out Homography
	s := inv.At(2, 2)
	if math.Abs(s) < 1e-12 {
		return Homography{}, fmt.Errorf("%w: inverse not normalisable", ErrRectification)
	}
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			out[3*r+c] = inv.At(r, c) / s
		}
	}
	return out, nil
}

func validateQuad(q [4]geometry.Point) error {
	for i, p := range q {
		if !p.Finite() {
			return fmt.Errorf("%w: corner %d is not finite", ErrRectification, i)
		}
	}
	if !geometry.IsConvex(q[:]) || math.Abs(geometry.PolygonArea(q[:])) < 1 {
		return fmt.Errorf("%w: calibration quad is degenerate", ErrRectification)
	}
	return nil
}
