package engine

import (
	"fmt"
	"time"

	"github.com/banshee-data/parking.report/internal/config"
	"github.com/banshee-data/parking.report/internal/parking/enhance"
	"github.com/banshee-data/parking.report/internal/parking/overlap"
	"github.com/banshee-data/parking.report/internal/parking/rectify"
	"github.com/banshee-data/parking.report/internal/parking/temporal"
)

// DefaultOverlapThreshold is the spot coverage above which a detection
// counts as an observation. It is low on purpose: a skewed camera sees only
// part of a parked car over its spot.
const DefaultOverlapThreshold = 0.1

// DefaultReportTimeout bounds each ReportingSink call.
const DefaultReportTimeout = 5 * time.Second

// Config holds the per-lot engine settings.
type Config struct {
	LotID string
	Name  string

	Filter           temporal.Params
	OverlapThreshold float64
	// OverlapMode selects the scorer: "polygon" (default) or "raster".
	OverlapMode string

	// ReportTimeout bounds each sink call. Zero means no bound.
	ReportTimeout time.Duration
	// FrameInterval paces Run. Zero processes frames as fast as the source
	// delivers them.
	FrameInterval time.Duration

	Calibration rectify.Calibration
	// Contrast, when set, equalises each frame after rectification and
	// before detection.
	Contrast *enhance.Params
}

// DefaultConfig returns the settings used when a lot overrides nothing.
func DefaultConfig(lotID string) Config {
	return Config{
		LotID:            lotID,
		Filter:           temporal.DefaultParams(),
		OverlapThreshold: DefaultOverlapThreshold,
		OverlapMode:      overlap.ModePolygon,
		ReportTimeout:    DefaultReportTimeout,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.LotID == "" {
		return fmt.Errorf("lot id is required")
	}
	if err := c.Filter.Validate(); err != nil {
		return fmt.Errorf("lot %s: %w", c.LotID, err)
	}
	if c.OverlapThreshold < 0 || c.OverlapThreshold >= 1 {
		return fmt.Errorf("lot %s: overlap threshold must be in [0, 1), got %v", c.LotID, c.OverlapThreshold)
	}
	if _, err := overlap.New(c.OverlapMode); err != nil {
		return fmt.Errorf("lot %s: %w", c.LotID, err)
	}
	if c.Contrast != nil {
		if err := c.Contrast.Validate(); err != nil {
			return fmt.Errorf("lot %s: %w", c.LotID, err)
		}
	}
	if c.ReportTimeout < 0 || c.FrameInterval < 0 {
		return fmt.Errorf("lot %s: durations must not be negative", c.LotID)
	}
	return nil
}

// ConfigFromOccupancy builds a lot Config from the shared occupancy
// settings. A nil oc yields DefaultConfig.
func ConfigFromOccupancy(lotID string, oc *config.OccupancyConfig) Config {
	if oc == nil {
		return DefaultConfig(lotID)
	}
	cfg := Config{
		LotID: lotID,
		Filter: temporal.Params{
			Capacity:          oc.GetHistoryCapacity(),
			OccupiedThreshold: oc.GetOccupiedThreshold(),
			FreeThreshold:     oc.GetFreeThreshold(),
		},
		OverlapThreshold: oc.GetOverlapThreshold(),
		OverlapMode:      oc.GetOverlapMode(),
		ReportTimeout:    oc.GetReportTimeout(),
		FrameInterval:    oc.GetFrameInterval(),
	}
	if oc.GetEnhanceContrast() {
		cfg.Contrast = &enhance.Params{ClipLimit: oc.GetContrastClipLimit(), Tiles: oc.GetContrastTiles()}
	}
	return cfg
}
