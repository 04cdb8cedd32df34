package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/banshee-data/parking.report/internal/config"
	"github.com/banshee-data/parking.report/internal/httputil"
	"github.com/banshee-data/parking.report/internal/parking/detect"
	"github.com/banshee-data/parking.report/internal/parking/engine"
	"github.com/banshee-data/parking.report/internal/parking/enhance"
	"github.com/banshee-data/parking.report/internal/parking/source"
	"github.com/banshee-data/parking.report/internal/parking/supervisor"
	"github.com/banshee-data/parking.report/internal/timeutil"
	"github.com/banshee-data/parking.report/internal/version"
)

// buildDeps are the shared pieces every lot is wired to.
type buildDeps struct {
	occupancy       *config.OccupancyConfig
	baseDir         string // relative lot paths resolve against this
	sink            engine.ReportingSink
	clock           timeutil.Clock
	detectorTimeout time.Duration
}

// buildLotSpecs converts the lots file into supervisor specs. A lot whose
// configuration cannot be converted gets a LotSpec carrying the error, so it
// fails alone.
func buildLotSpecs(lots *config.LotsFile, deps buildDeps) []supervisor.LotSpec {
	specs := make([]supervisor.LotSpec, 0, len(lots.Lots))
	for _, lc := range lots.Lots {
		spec, err := buildLotSpec(lc, deps)
		if err != nil {
			spec = supervisor.LotSpec{Config: engine.DefaultConfig(lc.ID), Err: err}
		}
		specs = append(specs, spec)
	}
	return specs
}

func buildLotSpec(lc config.LotConfig, deps buildDeps) (supervisor.LotSpec, error) {
	cfg := engine.ConfigFromOccupancy(lc.ID, deps.occupancy)
	cfg.Name = lc.Name
	if lc.FrameInterval != "" {
		d, err := time.ParseDuration(lc.FrameInterval)
		if err != nil {
			return supervisor.LotSpec{}, fmt.Errorf("frame_interval: %w", err)
		}
		cfg.FrameInterval = d
	}
	if lc.EnhanceContrast != nil {
		cfg.Contrast = nil
		if *lc.EnhanceContrast {
			p := enhance.DefaultParams()
			if oc := deps.occupancy; oc != nil {
				p = enhance.Params{ClipLimit: oc.GetContrastClipLimit(), Tiles: oc.GetContrastTiles()}
			}
			cfg.Contrast = &p
		}
	}
	cal, err := lc.Calibration.Calibration()
	if err != nil {
		return supervisor.LotSpec{}, err
	}
	cfg.Calibration = cal

	spots := make([]engine.SpotConfig, 0, len(lc.Spots))
	for _, s := range lc.Spots {
		pts, err := s.Points()
		if err != nil {
			return supervisor.LotSpec{}, err
		}
		spots = append(spots, engine.SpotConfig{ID: s.ID, Points: pts})
	}

	var opts []engine.Option
	if deps.clock != nil {
		opts = append(opts, engine.WithClock(deps.clock))
	}
	if deps.sink != nil {
		opts = append(opts, engine.WithSink(deps.sink))
	}

	var replayFrames int
	var det engine.Detector
	switch {
	case lc.DetectionsFile != "":
		replay, err := detect.LoadReplay(deps.resolve(lc.DetectionsFile))
		if err != nil {
			return supervisor.LotSpec{}, err
		}
		replayFrames = int(replay.LastFrame())
		det = replay
	case lc.DetectorURL != "":
		client := httputil.WithUserAgent(httputil.NewClient(deps.detectorTimeout), version.UserAgent())
		det = detect.NewHTTPDetector(lc.DetectorURL, client, 0)
	}
	if det != nil {
		classes, minConf := detect.DefaultClassIDs, detect.DefaultMinConfidence
		if deps.occupancy != nil {
			classes, minConf = deps.occupancy.GetClassIDs(), deps.occupancy.GetMinConfidence()
		}
		opts = append(opts, engine.WithDetector(detect.NewFilter(det, classes, minConf)))
	}

	open, err := frameOpener(lc, deps, replayFrames)
	if err != nil {
		return supervisor.LotSpec{}, err
	}

	return supervisor.LotSpec{Config: cfg, Spots: spots, Options: opts, Open: open}, nil
}

// frameOpener picks the lot's frame source: a directory of images, or a
// blank source sized to the frame_size and running for frames frames
// (or the length of the detection recording).
func frameOpener(lc config.LotConfig, deps buildDeps, replayFrames int) (supervisor.SourceOpener, error) {
	if lc.FramesDir != "" {
		dir := deps.resolve(lc.FramesDir)
		return func(context.Context) (engine.FrameSource, error) {
			return source.OpenImageDir(dir, deps.clock)
		}, nil
	}
	n := lc.Frames
	if n == 0 {
		n = replayFrames
	}
	if n == 0 {
		return nil, fmt.Errorf("lot %s: set frames_dir, frames or detections_file", lc.ID)
	}
	var w, h int
	if len(lc.FrameSize) == 2 {
		w, h = lc.FrameSize[0], lc.FrameSize[1]
	}
	return func(context.Context) (engine.FrameSource, error) {
		return source.NewBlank(n, w, h, deps.clock), nil
	}, nil
}

func (d buildDeps) resolve(p string) string {
	if filepath.IsAbs(p) || d.baseDir == "" {
		return p
	}
	return filepath.Join(d.baseDir, p)
}
