package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/parking.report/internal/config"
	"github.com/banshee-data/parking.report/internal/parking/enhance"
	"github.com/banshee-data/parking.report/internal/parking/temporal"
)

func TestConfigFromOccupancy_Defaults(t *testing.T) {
	cfg := ConfigFromOccupancy("north", config.MustLoadDefaultConfig())
	require.NoError(t, cfg.Validate())

	want := DefaultConfig("north")
	assert.Equal(t, want.Filter.Capacity, cfg.Filter.Capacity)
	assert.Equal(t, want.Filter.OccupiedThreshold, cfg.Filter.OccupiedThreshold)
	assert.InDelta(t, want.Filter.FreeThreshold, cfg.Filter.FreeThreshold, 1e-9)
	assert.Equal(t, want.OverlapThreshold, cfg.OverlapThreshold)
	assert.Equal(t, want.OverlapMode, cfg.OverlapMode)
	assert.Equal(t, want.ReportTimeout, cfg.ReportTimeout)
	assert.Zero(t, cfg.FrameInterval)
	assert.Nil(t, cfg.Contrast)
}

func TestConfigFromOccupancy_Overrides(t *testing.T) {
	capacity, occ, free := 6, 0.8, 0.1
	mode, interval := "raster", "1s"
	oc := &config.OccupancyConfig{
		HistoryCapacity:   &capacity,
		OccupiedThreshold: &occ,
		FreeThreshold:     &free,
		OverlapMode:       &mode,
		FrameInterval:     &interval,
	}
	cfg := ConfigFromOccupancy("south", oc)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, temporal.Params{Capacity: 6, OccupiedThreshold: 0.8, FreeThreshold: 0.1}, cfg.Filter)
	assert.Equal(t, "raster", cfg.OverlapMode)
	assert.Equal(t, time.Second, cfg.FrameInterval)
}

func TestConfigFromOccupancy_Contrast(t *testing.T) {
	on, tiles := true, 4
	cfg := ConfigFromOccupancy("dim", &config.OccupancyConfig{EnhanceContrast: &on, ContrastTiles: &tiles})
	require.NoError(t, cfg.Validate())
	require.NotNil(t, cfg.Contrast)
	assert.Equal(t, enhance.Params{ClipLimit: enhance.DefaultClipLimit, Tiles: 4}, *cfg.Contrast)
}

func TestConfigFromOccupancy_Nil(t *testing.T) {
	assert.Equal(t, DefaultConfig("x"), ConfigFromOccupancy("x", nil))
}

func TestConfig_Validate(t *testing.T) {
	cases := map[string]func(*Config){
		"no lot id":        func(c *Config) { c.LotID = "" },
		"filter":           func(c *Config) { c.Filter.Capacity = 0 },
		"overlap":          func(c *Config) { c.OverlapThreshold = 1 },
		"mode":             func(c *Config) { c.OverlapMode = "iou" },
		"negative timeout": func(c *Config) { c.ReportTimeout = -time.Second },
		"contrast":         func(c *Config) { c.Contrast = &enhance.Params{ClipLimit: 3} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig("lot")
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, DefaultConfig("lot").Validate())
}
