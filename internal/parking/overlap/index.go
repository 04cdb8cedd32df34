package overlap

import (
	"sort"

	"github.com/dhconnelly/rtreego"

	"github.com/banshee-data/parking.report/internal/parking/geometry"
)

// indexedSpot adapts a Spot to rtreego.Spatial.
type indexedSpot struct {
	spot     *geometry.Spot
	envelope rtreego.Rect
}

func (is *indexedSpot) Bounds() rtreego.Rect { return is.envelope }

// SpotIndex is an R-tree over spot bounding rectangles. It narrows each
// detection box to the spots it can possibly overlap; every other spot
// scores 0 for that box. The index is immutable after construction and
// safe for concurrent reads.
type SpotIndex struct {
	tree *rtreego.Rtree
	size int
}

// NewSpotIndex bulk-loads spots into a 2D R-tree.
func NewSpotIndex(spots []*geometry.Spot) *SpotIndex {
	objs := make([]rtreego.Spatial, 0, len(spots))
	for _, s := range spots {
		r := s.BoundingRect()
		env, err := rtreego.NewRectFromPoints(
			rtreego.Point{r.MinX, r.MinY},
			rtreego.Point{r.MaxX, r.MaxY},
		)
		if err != nil {
			continue
		}
		objs = append(objs, &indexedSpot{spot: s, envelope: env})
	}
	return &SpotIndex{
		tree: rtreego.NewTree(2, 25, 50, objs...),
		size: len(objs),
	}
}

// Len returns the number of indexed spots.
func (ix *SpotIndex) Len() int { return ix.size }

// Candidates returns the spots whose bounding rectangle intersects box,
// in ascending id order. Invalid boxes have no candidates.
func (ix *SpotIndex) Candidates(box geometry.Box) []*geometry.Spot {
	if ix == nil || !box.Valid() {
		return nil
	}
	q, err := rtreego.NewRectFromPoints(
		rtreego.Point{box.X1, box.Y1},
		rtreego.Point{box.X2, box.Y2},
	)
	if err != nil {
		return nil
	}

	hits := ix.tree.SearchIntersect(q)
	out := make([]*geometry.Spot, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.(*indexedSpot).spot)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}
