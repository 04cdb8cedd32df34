package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

func TestLoadOccupancyConfig_Defaults(t *testing.T) {
	cfg := MustLoadDefaultConfig()

	if got := cfg.GetHistoryCapacity(); got != 4 {
		t.Errorf("history capacity = %d, want 4", got)
	}
	if got := cfg.GetOccupiedThreshold(); got != 0.7 {
		t.Errorf("occupied threshold = %v, want 0.7", got)
	}
	if got := cfg.GetOverlapThreshold(); got != 0.1 {
		t.Errorf("overlap threshold = %v, want 0.1", got)
	}
	if got := cfg.GetOverlapMode(); got != "polygon" {
		t.Errorf("overlap mode = %q, want polygon", got)
	}
	if got := cfg.GetReportTimeout(); got != 5*time.Second {
		t.Errorf("report timeout = %v, want 5s", got)
	}
	if got := cfg.GetFrameInterval(); got != 0 {
		t.Errorf("frame interval = %v, want 0", got)
	}
	if cfg.GetEnhanceContrast() {
		t.Error("contrast enhancement should be off by default")
	}
	if got := cfg.GetContrastClipLimit(); got != 3 {
		t.Errorf("contrast clip limit = %v, want 3", got)
	}
	if got := cfg.GetContrastTiles(); got != 8 {
		t.Errorf("contrast tiles = %d, want 8", got)
	}
}

func TestOccupancyConfig_EmptyUsesBuiltins(t *testing.T) {
	cfg := &OccupancyConfig{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty config should validate: %v", err)
	}
	if got := cfg.GetFreeThreshold(); got < 0.2999 || got > 0.3001 {
		t.Errorf("free threshold = %v, want 1-0.7", got)
	}
	ids := cfg.GetClassIDs()
	if len(ids) != 3 || ids[0] != 2 || ids[1] != 5 || ids[2] != 7 {
		t.Errorf("class ids = %v, want [2 5 7]", ids)
	}
	ids[0] = 99
	if cfg.GetClassIDs()[0] != 2 {
		t.Error("GetClassIDs must return a copy")
	}
	if got := cfg.GetMinConfidence(); got != 0.6 {
		t.Errorf("min confidence = %v, want 0.6", got)
	}
}

func TestLoadOccupancyConfig_PartialOverride(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "lot.json", `{"history_capacity": 6, "overlap_mode": "raster", "frame_interval": "250ms"}`)

	cfg, err := LoadOccupancyConfig(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.GetHistoryCapacity() != 6 {
		t.Errorf("history capacity = %d, want 6", cfg.GetHistoryCapacity())
	}
	if cfg.GetOverlapMode() != "raster" {
		t.Errorf("overlap mode = %q, want raster", cfg.GetOverlapMode())
	}
	if cfg.GetFrameInterval() != 250*time.Millisecond {
		t.Errorf("frame interval = %v, want 250ms", cfg.GetFrameInterval())
	}
	if cfg.GetOccupiedThreshold() != 0.7 {
		t.Errorf("unset fields must keep defaults, got %v", cfg.GetOccupiedThreshold())
	}
}

func TestLoadOccupancyConfig_Rejects(t *testing.T) {
	dir := t.TempDir()
	cases := []struct {
		name, file, body, want string
	}{
		{"extension", "cfg.yaml", `{}`, ".json extension"},
		{"syntax", "syntax.json", `{`, "parse"},
		{"capacity", "cap.json", `{"history_capacity": 0}`, "history_capacity"},
		{"occupied", "occ.json", `{"occupied_threshold": 1.5}`, "occupied_threshold"},
		{"free above occupied", "free.json", `{"occupied_threshold": 0.5, "free_threshold": 0.6}`, "free_threshold"},
		{"overlap", "ov.json", `{"overlap_threshold": -0.1}`, "overlap_threshold"},
		{"mode", "mode.json", `{"overlap_mode": "iou"}`, "overlap_mode"},
		{"confidence", "conf.json", `{"min_confidence": 2}`, "min_confidence"},
		{"duration", "dur.json", `{"report_timeout": "soon"}`, "report_timeout"},
		{"negative duration", "neg.json", `{"frame_interval": "-1s"}`, "frame_interval"},
		{"clip limit", "clip.json", `{"contrast_clip_limit": 0}`, "contrast_clip_limit"},
		{"tiles", "tiles.json", `{"contrast_tiles": 0}`, "contrast_tiles"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := writeFile(t, dir, tc.file, tc.body)
			_, err := LoadOccupancyConfig(p)
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestLoadOccupancyConfig_TooLarge(t *testing.T) {
	dir := t.TempDir()
	body := `{"overlap_mode": "polygon"` + strings.Repeat(" ", 1024*1024) + `}`
	p := writeFile(t, dir, "big.json", body)
	if _, err := LoadOccupancyConfig(p); err == nil || !strings.Contains(err.Error(), "too large") {
		t.Fatalf("expected size error, got %v", err)
	}
}
