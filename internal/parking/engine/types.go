package engine

import (
	"context"
	"image"
	"time"

	"github.com/banshee-data/parking.report/internal/parking/geometry"
)

// Detection is one vehicle found by the detector in a rectified frame.
type Detection struct {
	Box        geometry.Box `json:"box"`
	ClassID    int          `json:"class_id"`
	Confidence float64      `json:"confidence"`
}

// Frame is one image from a video source. Image may be nil for sources
// that replay recorded detections only.
type Frame struct {
	Seq       uint64
	Timestamp time.Time
	Image     image.Image
}

// Detector finds vehicles in a frame. Implementations apply their own
// class and confidence filtering and own any timeout policy; an empty
// result is valid.
type Detector interface {
	Detect(ctx context.Context, frame Frame) ([]Detection, error)
}

// DetectorFunc adapts a function to Detector.
type DetectorFunc func(ctx context.Context, frame Frame) ([]Detection, error)

func (f DetectorFunc) Detect(ctx context.Context, frame Frame) ([]Detection, error) {
	return f(ctx, frame)
}

// FrameSource supplies frames in order. Next returns an error wrapping
// ErrFrameUnavailable (or io.EOF) when the stream is exhausted.
type FrameSource interface {
	Next(ctx context.Context) (Frame, error)
	Close() error
}

// ReportingSink receives occupancy reports. It is called synchronously
// from the frame loop with a context bounded by the configured report
// timeout.
type ReportingSink interface {
	Report(ctx context.Context, r Report) error
}

// ReportingSinkFunc adapts a function to ReportingSink.
type ReportingSinkFunc func(ctx context.Context, r Report) error

func (f ReportingSinkFunc) Report(ctx context.Context, r Report) error { return f(ctx, r) }

// SpotConfig is one spot as supplied by the lot configuration.
type SpotConfig struct {
	ID     int              `json:"id" yaml:"id"`
	Points []geometry.Point `json:"points" yaml:"points"`
}

// SpotChange is the committed state of a spot included in a report.
type SpotChange struct {
	ID        int       `json:"id"`
	Occupied  bool      `json:"occupied"`
	Frame     uint64    `json:"frame"`
	ChangedAt time.Time `json:"changed_at,omitzero"`
}

// Report is emitted for every frame in which the free count or any spot's
// committed state changed.
type Report struct {
	LotID      string    `json:"lot_id"`
	RunID      string    `json:"run_id"`
	Frame      uint64    `json:"frame"`
	Timestamp  time.Time `json:"timestamp"`
	FreeCount  int       `json:"free_count"`
	TotalSpots int       `json:"total_spots"`
	// Probability is the chance of finding a free space: FreeCount/TotalSpots.
	Probability float64 `json:"probability"`
	// Baseline is set on the first report of a run, and on the next report
	// after a baseline that could not be delivered.
	Baseline       bool         `json:"baseline"`
	ChangedSpotIDs []int        `json:"changed_spot_ids"`
	Spots          []SpotChange `json:"spots"`
}

// SpotSnapshot is the read-only view of one spot.
type SpotSnapshot struct {
	ID               int              `json:"id"`
	Occupied         bool             `json:"occupied"`
	OccupiedFraction float64          `json:"occupied_fraction"`
	LastChangedFrame uint64           `json:"last_changed_frame"`
	LastChangedAt    time.Time        `json:"last_changed_at,omitzero"`
	Polygon          []geometry.Point `json:"polygon"`
}

// LotSnapshot is an immutable copy of a lot's state after a frame.
type LotSnapshot struct {
	LotID      string         `json:"lot_id"`
	Name       string         `json:"name"`
	RunID      string         `json:"run_id"`
	Frame      uint64         `json:"frame"`
	Timestamp  time.Time      `json:"timestamp"`
	FreeCount  int            `json:"free_count"`
	TotalSpots int            `json:"total_spots"`
	Spots      []SpotSnapshot `json:"spots"`
	Stats      StatsSnapshot  `json:"stats"`
}
