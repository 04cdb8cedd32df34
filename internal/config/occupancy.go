package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical occupancy defaults file.
const DefaultConfigPath = "config/occupancy.defaults.json"

// Built-in defaults, used when a field is absent from the JSON document.
const (
	defaultHistoryCapacity   = 4
	defaultOccupiedThreshold = 0.7
	defaultOverlapThreshold  = 0.1
	defaultOverlapMode       = "polygon"
	defaultMinConfidence     = 0.6
	defaultReportTimeout     = 5 * time.Second
	defaultContrastClipLimit = 3.0
	defaultContrastTiles     = 8
)

// defaultClassIDs are the COCO classes counted as parked vehicles: car,
// bus and truck.
var defaultClassIDs = []int{2, 5, 7}

// OccupancyConfig holds the tunable inference parameters shared by every
// lot. Fields are pointers so a partial file only overrides what it names.
type OccupancyConfig struct {
	// Temporal filter
	HistoryCapacity   *int     `json:"history_capacity,omitempty"`
	OccupiedThreshold *float64 `json:"occupied_threshold,omitempty"`
	FreeThreshold     *float64 `json:"free_threshold,omitempty"`

	// Overlap scoring
	OverlapThreshold *float64 `json:"overlap_threshold,omitempty"`
	OverlapMode      *string  `json:"overlap_mode,omitempty"` // "polygon" or "raster"

	// Detector-side filtering
	ClassIDs      []int    `json:"class_ids,omitempty"`
	MinConfidence *float64 `json:"min_confidence,omitempty"`

	// Frame preprocessing: CLAHE on the luma channel before detection
	EnhanceContrast   *bool    `json:"enhance_contrast,omitempty"`
	ContrastClipLimit *float64 `json:"contrast_clip_limit,omitempty"`
	ContrastTiles     *int     `json:"contrast_tiles,omitempty"`

	// Loop timing
	ReportTimeout *string `json:"report_timeout,omitempty"` // duration string like "5s"
	FrameInterval *string `json:"frame_interval,omitempty"` // duration string; empty means unpaced
}

// LoadOccupancyConfig loads an OccupancyConfig from a JSON file. The path
// must have a .json extension and the file must be under 1 MB.
func LoadOccupancyConfig(path string) (*OccupancyConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &OccupancyConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching upwards from the
// working directory. Panics if the file cannot be loaded; intended for
// tests.
func MustLoadDefaultConfig() *OccupancyConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,          // from internal/config/
		"../../../" + DefaultConfigPath,       // from internal/parking/engine/
		"../../../../" + DefaultConfigPath,    // deeper packages
		"../../../../../" + DefaultConfigPath, // even deeper
	}
	for _, path := range candidates {
		if cfg, err := LoadOccupancyConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configured values are usable.
func (c *OccupancyConfig) Validate() error {
	if c.HistoryCapacity != nil && *c.HistoryCapacity < 1 {
		return fmt.Errorf("history_capacity must be at least 1, got %d", *c.HistoryCapacity)
	}
	occ := c.GetOccupiedThreshold()
	if occ < 0 || occ >= 1 {
		return fmt.Errorf("occupied_threshold must be in [0, 1), got %f", occ)
	}
	if free := c.GetFreeThreshold(); free < 0 || free > occ {
		return fmt.Errorf("free_threshold must be in [0, occupied_threshold], got %f", free)
	}
	if ov := c.GetOverlapThreshold(); ov < 0 || ov >= 1 {
		return fmt.Errorf("overlap_threshold must be in [0, 1), got %f", ov)
	}
	if m := c.GetOverlapMode(); m != "polygon" && m != "raster" {
		return fmt.Errorf("overlap_mode must be \"polygon\" or \"raster\", got %q", m)
	}
	if mc := c.GetMinConfidence(); mc < 0 || mc > 1 {
		return fmt.Errorf("min_confidence must be between 0 and 1, got %f", mc)
	}
	if cl := c.GetContrastClipLimit(); cl <= 0 {
		return fmt.Errorf("contrast_clip_limit must be positive, got %f", cl)
	}
	if n := c.GetContrastTiles(); n < 1 {
		return fmt.Errorf("contrast_tiles must be at least 1, got %d", n)
	}
	for _, d := range []struct {
		name string
		v    *string
	}{{"report_timeout", c.ReportTimeout}, {"frame_interval", c.FrameInterval}} {
		if d.v == nil || *d.v == "" {
			continue
		}
		v, err := time.ParseDuration(*d.v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", d.name, *d.v, err)
		}
		if v < 0 {
			return fmt.Errorf("%s must not be negative, got %s", d.name, v)
		}
	}
	return nil
}

// GetHistoryCapacity returns the history_capacity value or the default.
func (c *OccupancyConfig) GetHistoryCapacity() int {
	if c.HistoryCapacity == nil {
		return defaultHistoryCapacity
	}
	return *c.HistoryCapacity
}

// GetOccupiedThreshold returns the occupied_threshold value or the default.
func (c *OccupancyConfig) GetOccupiedThreshold() float64 {
	if c.OccupiedThreshold == nil {
		return defaultOccupiedThreshold
	}
	return *c.OccupiedThreshold
}

// GetFreeThreshold returns free_threshold, defaulting to
// 1 - occupied_threshold.
func (c *OccupancyConfig) GetFreeThreshold() float64 {
	if c.FreeThreshold == nil {
		return 1 - c.GetOccupiedThreshold()
	}
	return *c.FreeThreshold
}

// GetOverlapThreshold returns the overlap_threshold value or the default.
func (c *OccupancyConfig) GetOverlapThreshold() float64 {
	if c.OverlapThreshold == nil {
		return defaultOverlapThreshold
	}
	return *c.OverlapThreshold
}

// GetOverlapMode returns the overlap_mode value or the default.
func (c *OccupancyConfig) GetOverlapMode() string {
	if c.OverlapMode == nil || *c.OverlapMode == "" {
		return defaultOverlapMode
	}
	return *c.OverlapMode
}

// GetClassIDs returns the detector class allow-set or the default.
func (c *OccupancyConfig) GetClassIDs() []int {
	if len(c.ClassIDs) == 0 {
		return append([]int(nil), defaultClassIDs...)
	}
	return append([]int(nil), c.ClassIDs...)
}

// GetMinConfidence returns the min_confidence value or the default.
func (c *OccupancyConfig) GetMinConfidence() float64 {
	if c.MinConfidence == nil {
		return defaultMinConfidence
	}
	return *c.MinConfidence
}

// GetEnhanceContrast reports whether frames are contrast-equalised before
// detection. Off by default.
func (c *OccupancyConfig) GetEnhanceContrast() bool {
	return c.EnhanceContrast != nil && *c.EnhanceContrast
}

// GetContrastClipLimit returns the contrast_clip_limit value or the default.
func (c *OccupancyConfig) GetContrastClipLimit() float64 {
	if c.ContrastClipLimit == nil {
		return defaultContrastClipLimit
	}
	return *c.ContrastClipLimit
}

// GetContrastTiles returns the contrast_tiles value or the default.
func (c *OccupancyConfig) GetContrastTiles() int {
	if c.ContrastTiles == nil {
		return defaultContrastTiles
	}
	return *c.ContrastTiles
}

// GetReportTimeout parses and returns report_timeout.
func (c *OccupancyConfig) GetReportTimeout() time.Duration {
	if c.ReportTimeout == nil || *c.ReportTimeout == "" {
		return defaultReportTimeout
	}
	d, err := time.ParseDuration(*c.ReportTimeout)
	if err != nil {
		return defaultReportTimeout
	}
	return d
}

// GetFrameInterval parses and returns frame_interval. Zero means frames
// are processed as fast as they arrive.
func (c *OccupancyConfig) GetFrameInterval() time.Duration {
	if c.FrameInterval == nil || *c.FrameInterval == "" {
		return 0
	}
	d, err := time.ParseDuration(*c.FrameInterval)
	if err != nil {
		return 0
	}
	return d
}
