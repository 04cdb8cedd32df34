// Package detect provides engine.Detector implementations: a replay of
// recorded detections, an HTTP client for an inference service and a
// class and confidence filter.
package detect

import (
	"context"

	"github.com/banshee-data/parking.report/internal/parking/engine"
)

// COCO class ids counted as parked vehicles.
const (
	ClassCar   = 2
	ClassBus   = 5
	ClassTruck = 7
)

// DefaultClassIDs is the default vehicle allow-set.
var DefaultClassIDs = []int{ClassCar, ClassBus, ClassTruck}

// DefaultMinConfidence drops detections the model is unsure of.
const DefaultMinConfidence = 0.6

// Filter keeps only detections of allowed classes at or above a minimum
// confidence.
type Filter struct {
	next          engine.Detector
	classes       map[int]bool
	minConfidence float64
}

// NewFilter wraps next. An empty classIDs keeps every class.
func NewFilter(next engine.Detector, classIDs []int, minConfidence float64) *Filter {
	f := &Filter{next: next, minConfidence: minConfidence}
	if len(classIDs) > 0 {
		f.classes = make(map[int]bool, len(classIDs))
		for _, id := range classIDs {
			f.classes[id] = true
		}
	}
	return f
}

// Detect implements engine.Detector.
func (f *Filter) Detect(ctx context.Context, frame engine.Frame) ([]engine.Detection, error) {
	dets, err := f.next.Detect(ctx, frame)
	if err != nil {
		return nil, err
	}
	out := dets[:0:0]
	for _, d := range dets {
		if f.classes != nil && !f.classes[d.ClassID] {
			continue
		}
		if d.Confidence < f.minConfidence {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}
