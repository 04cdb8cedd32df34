package overlap

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/parking.report/internal/parking/geometry"
)

// ErrScoring is returned when a score cannot be computed as a finite
// number. Callers skip the affected spot for the current frame.
var ErrScoring = errors.New("overlap scoring failed")

// Mode names accepted by New.
const (
	ModePolygon = "polygon"
	ModeRaster  = "raster"
)

// Scorer computes the fraction of a spot covered by a detection box.
// Implementations return a value in [0, 1] and must be safe for
// concurrent use.
type Scorer interface {
	Score(spot *geometry.Spot, box geometry.Box) (float64, error)
}

// New returns the scorer registered under mode. An empty mode selects the
// polygon scorer.
func New(mode string) (Scorer, error) {
	switch mode {
	case "", ModePolygon:
		return PolygonScorer{}, nil
	case ModeRaster:
		return MaskScorer{}, nil
	default:
		return nil, fmt.Errorf("unknown overlap mode %q", mode)
	}
}

// PolygonScorer computes the exact area of box ∩ spot by clipping the spot
// polygon against the box.
type PolygonScorer struct{}

// Score implements Scorer.
func (PolygonScorer) Score(spot *geometry.Spot, box geometry.Box) (float64, error) {
	if !box.Valid() {
		return 0, nil
	}
	sr := spot.BoundingRect()
	if !box.Rect().Intersects(sr) {
		return 0, nil
	}
	if box.Contains(sr) {
		return 1, nil
	}

	inter := spot.IntersectionArea(box.Polygon())
	return normalise(spot.ID(), inter/spot.Area())
}

// MaskScorer counts the spot's mask pixels whose centres fall inside the
// box. It trades exactness for behaviour that matches pixel-mask
// comparisons done on the raw frame.
type MaskScorer struct{}

// maskCutoff is the alpha at or above which a mask pixel belongs to the
// spot.
const maskCutoff = 0x80

// Score implements Scorer.
func (MaskScorer) Score(spot *geometry.Spot, box geometry.Box) (float64, error) {
	if !box.Valid() {
		return 0, nil
	}
	if !box.Rect().Intersects(spot.BoundingRect()) {
		return 0, nil
	}

	m := spot.Mask()
	b := m.Bounds()
	var total, inside int
	for y := b.Min.Y; y < b.Max.Y; y++ {
		cy := float64(y) + 0.5
		rowIn := cy >= box.Y1 && cy < box.Y2
		for x := b.Min.X; x < b.Max.X; x++ {
			if m.AlphaAt(x, y).A < maskCutoff {
				continue
			}
			total++
			if !rowIn {
				continue
			}
			cx := float64(x) + 0.5
			if cx >= box.X1 && cx < box.X2 {
				inside++
			}
		}
	}
	if total == 0 {
		return 0, fmt.Errorf("%w: spot %d mask is empty", ErrScoring, spot.ID())
	}
	return normalise(spot.ID(), float64(inside)/float64(total))
}

func normalise(id int, v float64) (float64, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: spot %d score %v", ErrScoring, id, v)
	}
	return math.Max(0, math.Min(1, v)), nil
}
