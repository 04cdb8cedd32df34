package engine

import (
	"sync/atomic"
	"time"
)

// Stats are the engine's lifetime counters. All fields are updated
// atomically by the frame loop and may be read from any goroutine.
type Stats struct {
	Frames                 atomic.Uint64
	SilentFrames           atomic.Uint64
	Reports                atomic.Uint64
	ReportFailures         atomic.Uint64
	DetectorFailures       atomic.Uint64
	RectificationFailures  atomic.Uint64
	SkippedSpots           atomic.Uint64
	Detections             atomic.Uint64
	lastFrameLatencyMicros atomic.Int64
}

// LastFrameLatency returns how long the most recent frame took end to end.
func (s *Stats) LastFrameLatency() time.Duration {
	return time.Duration(s.lastFrameLatencyMicros.Load()) * time.Microsecond
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Frames                uint64  `json:"frames"`
	SilentFrames          uint64  `json:"silent_frames"`
	Reports               uint64  `json:"reports"`
	ReportFailures        uint64  `json:"report_failures"`
	DetectorFailures      uint64  `json:"detector_failures"`
	RectificationFailures uint64  `json:"rectification_failures"`
	SkippedSpots          uint64  `json:"skipped_spots"`
	Detections            uint64  `json:"detections"`
	LastFrameLatencyMs    float64 `json:"last_frame_latency_ms"`
}

// Snapshot copies the counters.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Frames:                s.Frames.Load(),
		SilentFrames:          s.SilentFrames.Load(),
		Reports:               s.Reports.Load(),
		ReportFailures:        s.ReportFailures.Load(),
		DetectorFailures:      s.DetectorFailures.Load(),
		RectificationFailures: s.RectificationFailures.Load(),
		SkippedSpots:          s.SkippedSpots.Load(),
		Detections:            s.Detections.Load(),
		LastFrameLatencyMs:    float64(s.lastFrameLatencyMicros.Load()) / 1000,
	}
}
