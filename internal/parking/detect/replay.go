package detect

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/banshee-data/parking.report/internal/parking/engine"
)

// ReplayLine is one line of a detections file.
type ReplayLine struct {
	Frame      uint64             `json:"frame"`
	Detections []engine.Detection `json:"detections"`
}

// Replay returns recorded detections by frame number. Frames missing from
// the recording have no detections.
type Replay struct {
	byFrame map[uint64][]engine.Detection
	last    uint64
}

// LoadReplay reads a JSON Lines file of ReplayLine records. A frame listed
// twice has its detections concatenated.
func LoadReplay(path string) (*Replay, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open detections: %w", err)
	}
	defer f.Close()

	r := &Replay{byFrame: make(map[uint64][]engine.Detection)}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		b := sc.Bytes()
		if len(b) == 0 {
			continue
		}
		var rec ReplayLine
		if err := json.Unmarshal(b, &rec); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		r.byFrame[rec.Frame] = append(r.byFrame[rec.Frame], rec.Detections...)
		if rec.Frame > r.last {
			r.last = rec.Frame
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read detections: %w", err)
	}
	return r, nil
}

// NewReplay builds a Replay from memory.
func NewReplay(lines []ReplayLine) *Replay {
	r := &Replay{byFrame: make(map[uint64][]engine.Detection, len(lines))}
	for _, l := range lines {
		r.byFrame[l.Frame] = append(r.byFrame[l.Frame], l.Detections...)
		if l.Frame > r.last {
			r.last = l.Frame
		}
	}
	return r
}

// LastFrame is the highest frame number in the recording.
func (r *Replay) LastFrame() uint64 { return r.last }

// Detect implements engine.Detector.
func (r *Replay) Detect(ctx context.Context, frame engine.Frame) ([]engine.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dets := r.byFrame[frame.Seq]
	return append([]engine.Detection(nil), dets...), nil
}
