package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/banshee-data/parking.report/internal/parking/geometry"
	"github.com/banshee-data/parking.report/internal/parking/rectify"
)

const maxLotsFileSize = 1 * 1024 * 1024

// LotsFile is the YAML document describing every monitored lot.
type LotsFile struct {
	Lots []LotConfig `yaml:"lots"`
}

// LotConfig describes one lot: its spots, how to rectify its camera and
// where its frames and detections come from.
type LotConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`

	// Spots are listed inline or loaded from SpotsFile; the file is
	// resolved relative to the lots file.
	SpotsFile string      `yaml:"spots_file"`
	Spots     []SpotEntry `yaml:"spots"`

	Calibration *CalibrationConfig `yaml:"calibration"`

	// Frame source: a directory of images, or a blank source of Frames
	// frames at FrameSize for detection-only replays.
	FramesDir string `yaml:"frames_dir"`
	FrameSize []int  `yaml:"frame_size"`
	Frames    int    `yaml:"frames"`

	// Detector: recorded detections (JSON Lines) or an inference endpoint.
	DetectionsFile string `yaml:"detections_file"`
	DetectorURL    string `yaml:"detector_url"`

	// FrameInterval overrides the occupancy config for this lot.
	FrameInterval string `yaml:"frame_interval"`
	// EnhanceContrast overrides enhance_contrast for this lot's camera.
	EnhanceContrast *bool `yaml:"enhance_contrast"`
}

// SpotEntry is one spot in the authoring tool's format: an id and a list
// of [x, y] pairs.
type SpotEntry struct {
	ID          int         `yaml:"id" json:"id"`
	Coordinates [][]float64 `yaml:"coordinates" json:"coordinates"`
}

// CalibrationConfig is the YAML form of rectify.Calibration.
type CalibrationConfig struct {
	Source  [][]float64    `yaml:"source"`
	Margins *MarginsConfig `yaml:"margins"`
}

// MarginsConfig holds per-corner [x, y] inward offsets in pixels.
type MarginsConfig struct {
	TopLeft     []float64 `yaml:"top_left"`
	TopRight    []float64 `yaml:"top_right"`
	BottomRight []float64 `yaml:"bottom_right"`
	BottomLeft  []float64 `yaml:"bottom_left"`
}

// LoadLots reads and validates a lots file. Spots referenced through
// spots_file are loaded into Spots.
func LoadLots(path string) (*LotsFile, error) {
	data, err := readYAML(path)
	if err != nil {
		return nil, err
	}

	var f LotsFile
	if err := yaml.UnmarshalWithOptions(data, &f, yaml.DisallowUnknownField()); err != nil {
		return nil, fmt.Errorf("failed to parse lots file: %s", yaml.FormatError(err, false, true))
	}

	base := filepath.Dir(filepath.Clean(path))
	for i := range f.Lots {
		lot := &f.Lots[i]
		if lot.SpotsFile == "" {
			continue
		}
		if len(lot.Spots) > 0 {
			return nil, fmt.Errorf("lot %q: set spots or spots_file, not both", lot.ID)
		}
		p := lot.SpotsFile
		if !filepath.IsAbs(p) {
			p = filepath.Join(base, p)
		}
		spots, err := LoadSpots(p)
		if err != nil {
			return nil, fmt.Errorf("lot %q: %w", lot.ID, err)
		}
		lot.Spots = spots
	}

	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("invalid lots file: %w", err)
	}
	return &f, nil
}

// LoadSpots reads a spot file: a YAML list of {id, coordinates}.
func LoadSpots(path string) ([]SpotEntry, error) {
	data, err := readYAML(path)
	if err != nil {
		return nil, err
	}
	var spots []SpotEntry
	if err := yaml.Unmarshal(data, &spots); err != nil {
		return nil, fmt.Errorf("failed to parse spots file: %s", yaml.FormatError(err, false, true))
	}
	return spots, nil
}

func readYAML(path string) ([]byte, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("file must have .yaml or .yml extension, got %q", ext)
	}
	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", cleanPath, err)
	}
	if info.Size() > maxLotsFileSize {
		return nil, fmt.Errorf("%s too large: %d bytes (max %d)", cleanPath, info.Size(), maxLotsFileSize)
	}
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", cleanPath, err)
	}
	return data, nil
}

// Validate checks lot ids and the shape of every field. Spot geometry
// itself is validated when the engine is built, so one bad polygon fails
// only its own lot.
func (f *LotsFile) Validate() error {
	if len(f.Lots) == 0 {
		return fmt.Errorf("no lots configured")
	}
	seen := make(map[string]bool, len(f.Lots))
	for _, lot := range f.Lots {
		if lot.ID == "" {
			return fmt.Errorf("lot id is required")
		}
		if seen[lot.ID] {
			return fmt.Errorf("duplicate lot id %q", lot.ID)
		}
		seen[lot.ID] = true

		if len(lot.FrameSize) != 0 && len(lot.FrameSize) != 2 {
			return fmt.Errorf("lot %q: frame_size must be [width, height]", lot.ID)
		}
		if lot.DetectionsFile != "" && lot.DetectorURL != "" {
			return fmt.Errorf("lot %q: set detections_file or detector_url, not both", lot.ID)
		}
		if lot.FrameInterval != "" {
			if _, err := time.ParseDuration(lot.FrameInterval); err != nil {
				return fmt.Errorf("lot %q: invalid frame_interval: %w", lot.ID, err)
			}
		}
		if lot.Calibration != nil {
			if _, err := lot.Calibration.Calibration(); err != nil {
				return fmt.Errorf("lot %q: %w", lot.ID, err)
			}
		}
	}
	return nil
}

// Points converts the coordinate pairs. Entries that are not [x, y] pairs
// are an error.
func (s SpotEntry) Points() ([]geometry.Point, error) {
	pts := make([]geometry.Point, 0, len(s.Coordinates))
	for i, c := range s.Coordinates {
		p, err := pair(c)
		if err != nil {
			return nil, fmt.Errorf("spot %d coordinate %d: %w", s.ID, i, err)
		}
		pts = append(pts, p)
	}
	return pts, nil
}

// Calibration converts the YAML form into a rectify.Calibration.
func (c *CalibrationConfig) Calibration() (rectify.Calibration, error) {
	var out rectify.Calibration
	if c == nil {
		return out, nil
	}
	if len(c.Source) > 0 {
		if len(c.Source) != 4 {
			return out, fmt.Errorf("calibration source needs 4 corners, got %d", len(c.Source))
		}
		var q [4]geometry.Point
		for i, s := range c.Source {
			p, err := pair(s)
			if err != nil {
				return out, fmt.Errorf("calibration source corner %d: %w", i, err)
			}
			q[i] = p
		}
		out.Source = &q
	}
	if c.Margins != nil {
		var m rectify.Margins
		for _, f := range []struct {
			name string
			in   []float64
			out  *geometry.Point
		}{
			{"top_left", c.Margins.TopLeft, &m.TopLeft},
			{"top_right", c.Margins.TopRight, &m.TopRight},
			{"bottom_right", c.Margins.BottomRight, &m.BottomRight},
			{"bottom_left", c.Margins.BottomLeft, &m.BottomLeft},
		} {
			if len(f.in) == 0 {
				continue
			}
			p, err := pair(f.in)
			if err != nil {
				return out, fmt.Errorf("calibration margin %s: %w", f.name, err)
			}
			*f.out = p
		}
		out.Margins = &m
	}
	return out, nil
}

func pair(c []float64) (geometry.Point, error) {
	if len(c) != 2 {
		return geometry.Point{}, fmt.Errorf("expected [x, y], got %d values", len(c))
	}
	return geometry.Point{X: c[0], Y: c[1]}, nil
}
