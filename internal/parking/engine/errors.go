package engine

import (
	"errors"
	"fmt"

	"github.com/banshee-data/parking.report/internal/parking/geometry"
	"github.com/banshee-data/parking.report/internal/parking/overlap"
	"github.com/banshee-data/parking.report/internal/parking/rectify"
)

var (
	// ErrInvalidGeometry fails engine construction for the whole lot.
	ErrInvalidGeometry = geometry.ErrInvalidGeometry

	// ErrFrameUnavailable is returned by a FrameSource when it has no more
	// frames. Run treats it as a normal end of stream.
	ErrFrameUnavailable = errors.New("frame unavailable")

	// ErrRectification marks a frame processed without rectification.
	ErrRectification = rectify.ErrRectification

	// ErrScoring marks a spot skipped for one frame.
	ErrScoring = overlap.ErrScoring

	// ErrDetection marks a frame skipped because the detector failed.
	ErrDetection = errors.New("detection failed")
)

// ReportingError wraps a sink failure. The report's changes stay pending
// and are delivered with the next report.
type ReportingError struct {
	LotID string
	Frame uint64
	Err   error
}

func (e *ReportingError) Error() string {
	return fmt.Sprintf("lot %s frame %d: report failed: %v", e.LotID, e.Frame, e.Err)
}

func (e *ReportingError) Unwrap() error { return e.Err }
