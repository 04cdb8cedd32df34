package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/parking.report/internal/parking/engine"
	"github.com/banshee-data/parking.report/internal/parking/geometry"
)

// value returns the value of the named metric for lot, or -1.
func value(t *testing.T, m *Metrics, name, lot string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, metric := range f.GetMetric() {
			if labelValue(metric, "lot") != lot {
				continue
			}
			switch {
			case metric.GetGauge() != nil:
				return metric.GetGauge().GetValue()
			case metric.GetCounter() != nil:
				return metric.GetCounter().GetValue()
			}
		}
	}
	return -1
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

func TestObserveReport(t *testing.T) {
	m := New()
	m.ObserveReport(engine.Report{LotID: "north", FreeCount: 3, TotalSpots: 4, Baseline: true})
	m.ObserveReport(engine.Report{LotID: "north", FreeCount: 1, TotalSpots: 4})
	m.ObserveReport(engine.Report{LotID: "south", FreeCount: 2, TotalSpots: 2})

	assert.Equal(t, 1.0, value(t, m, "parking_free_spaces", "north"))
	assert.Equal(t, 4.0, value(t, m, "parking_total_spaces", "north"))
	assert.Equal(t, 0.75, value(t, m, "parking_lot_occupancy_ratio", "north"))
	assert.Equal(t, 0.0, value(t, m, "parking_lot_occupancy_ratio", "south"))
}

func TestRegisterEngine(t *testing.T) {
	eng, err := engine.New(engine.DefaultConfig("north"), []engine.SpotConfig{{
		ID:     1,
		Points: []geometry.Point{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10}},
	}})
	require.NoError(t, err)

	m := New()
	require.NoError(t, m.RegisterEngine(eng))
	assert.Equal(t, 0.0, value(t, m, "parking_frames_total", "north"))

	eng.Stats().Frames.Add(7)
	eng.Stats().SkippedSpots.Add(2)
	assert.Equal(t, 7.0, value(t, m, "parking_frames_total", "north"))
	assert.Equal(t, 2.0, value(t, m, "parking_skipped_spots_total", "north"))

	assert.Error(t, m.RegisterEngine(eng), "the same lot cannot be registered twice")
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveReport(engine.Report{LotID: "north", FreeCount: 2, TotalSpots: 3})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `parking_free_spaces{lot="north"} 2`)
}
