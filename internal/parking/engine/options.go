package engine

import (
	"github.com/banshee-data/parking.report/internal/parking/overlap"
	"github.com/banshee-data/parking.report/internal/parking/rectify"
	"github.com/banshee-data/parking.report/internal/timeutil"
)

// Option customises an Engine at construction.
type Option func(*Engine)

// WithDetector sets the detector consulted by ProcessFrame. Without one
// every frame has no detections.
func WithDetector(d Detector) Option {
	return func(e *Engine) { e.detector = d }
}

// WithSink sets the reporting sink. Without one reports are dropped.
func WithSink(s ReportingSink) Option {
	return func(e *Engine) { e.sink = s }
}

// WithClock replaces the wall clock used for pacing and for frames that
// carry no timestamp.
func WithClock(c timeutil.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithScorer overrides the scorer selected by Config.OverlapMode.
func WithScorer(s overlap.Scorer) Option {
	return func(e *Engine) { e.scorer = s }
}

// WithRectifier overrides the rectifier built from Config.Calibration.
func WithRectifier(r *rectify.Rectifier) Option {
	return func(e *Engine) { e.rectifier = r }
}

// WithRunID fixes the run identifier stamped on reports.
func WithRunID(id string) Option {
	return func(e *Engine) { e.runID = id }
}
