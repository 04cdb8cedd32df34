package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/parking.report/internal/parking/geometry"
)

const lotsYAML = `
lots:
  - id: north
    name: North lot
    spots_file: spots/north.yaml
    frames_dir: frames/north
    detections_file: detections/north.jsonl
    frame_interval: 200ms
    calibration:
      margins:
        top_left: [10, 5]
        bottom_right: [10, 5]
  - id: south
    spots:
      - id: 1
        coordinates: [[0, 0], [50, 0], [50, 80], [0, 80]]
    frame_size: [640, 480]
    frames: 100
    detector_url: http://localhost:8000/detect
    calibration:
      source: [[12, 40], [620, 10], [630, 470], [5, 450]]
`

const northSpots = `
- id: 1
  coordinates: [[0, 0], [40, 0], [40, 70], [0, 70]]
- id: 2
  coordinates: [[40, 0], [80, 0], [80, 70], [40, 70]]
`

func TestLoadLots(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "spots"), 0o755))
	writeFile(t, dir, "spots/north.yaml", northSpots)
	p := writeFile(t, dir, "lots.yaml", lotsYAML)

	f, err := LoadLots(p)
	require.NoError(t, err)
	require.Len(t, f.Lots, 2)

	north := f.Lots[0]
	assert.Equal(t, "North lot", north.Name)
	require.Len(t, north.Spots, 2, "spots_file is resolved relative to the lots file")
	pts, err := north.Spots[1].Points()
	require.NoError(t, err)
	assert.Equal(t, geometry.Point{X: 40, Y: 0}, pts[0])

	cal, err := north.Calibration.Calibration()
	require.NoError(t, err)
	require.NotNil(t, cal.Margins)
	assert.Nil(t, cal.Source)
	assert.Equal(t, geometry.Point{X: 10, Y: 5}, cal.Margins.TopLeft)
	assert.Equal(t, geometry.Point{}, cal.Margins.TopRight)

	south := f.Lots[1]
	assert.Equal(t, []int{640, 480}, south.FrameSize)
	assert.Equal(t, 100, south.Frames)
	cal, err = south.Calibration.Calibration()
	require.NoError(t, err)
	require.NotNil(t, cal.Source)
	assert.Equal(t, geometry.Point{X: 630, Y: 470}, cal.Source[2])
}

func TestLoadLots_Rejects(t *testing.T) {
	cases := []struct {
		name, body, want string
	}{
		{"empty", "lots: []\n", "no lots"},
		{"missing id", "lots:\n  - name: x\n", "id is required"},
		{"duplicate", "lots:\n  - id: a\n  - id: a\n", "duplicate"},
		{"unknown field", "lots:\n  - id: a\n    colour: red\n", "colour"},
		{"frame size", "lots:\n  - id: a\n    frame_size: [1]\n", "frame_size"},
		{"two detectors", "lots:\n  - id: a\n    detections_file: d.jsonl\n    detector_url: http://x\n", "not both"},
		{"interval", "lots:\n  - id: a\n    frame_interval: later\n", "frame_interval"},
		{"source corners", "lots:\n  - id: a\n    calibration:\n      source: [[0, 0], [1, 1]]\n", "4 corners"},
		{"margin pair", "lots:\n  - id: a\n    calibration:\n      margins:\n        top_left: [1, 2, 3]\n", "top_left"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			p := writeFile(t, dir, "lots.yaml", tc.body)
			_, err := LoadLots(p)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoadLots_SpotsAndSpotsFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "s.yaml", northSpots)
	body := "lots:\n  - id: a\n    spots_file: s.yaml\n    spots:\n      - id: 1\n        coordinates: [[0, 0], [1, 0], [1, 1]]\n"
	p := writeFile(t, dir, "lots.yml", body)
	_, err := LoadLots(p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not both")
}

func TestLoadLots_Extension(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "lots.json", "{}")
	_, err := LoadLots(p)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), ".yaml"))
}

func TestSpotEntry_Points(t *testing.T) {
	s := SpotEntry{ID: 3, Coordinates: [][]float64{{0, 0}, {1}}}
	_, err := s.Points()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "spot 3 coordinate 1")
}

func TestCalibrationConfig_Nil(t *testing.T) {
	var c *CalibrationConfig
	cal, err := c.Calibration()
	require.NoError(t, err)
	assert.False(t, cal.Enabled())
}

func TestLoadLots_Example(t *testing.T) {
	f, err := LoadLots("../../config/lots.example.yaml")
	require.NoError(t, err)
	require.Len(t, f.Lots, 2)

	north := f.Lots[0]
	assert.Equal(t, "north", north.ID)
	assert.Len(t, north.Spots, 3)
	cal, err := north.Calibration.Calibration()
	require.NoError(t, err)
	assert.True(t, cal.Enabled())

	east := f.Lots[1]
	assert.Equal(t, []int{640, 360}, east.FrameSize)
	for _, s := range east.Spots {
		pts, err := s.Points()
		require.NoError(t, err)
		assert.Len(t, pts, 4)
	}
}
