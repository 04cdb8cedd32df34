// Package metrics exposes lot occupancy and engine health to Prometheus.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/banshee-data/parking.report/internal/parking/engine"
)

// Metrics owns a private registry so tests and multiple servers never
// collide on the default one.
type Metrics struct {
	registry *prometheus.Registry

	free    *prometheus.GaugeVec
	total   *prometheus.GaugeVec
	ratio   *prometheus.GaugeVec
	reports *prometheus.CounterVec
}

// New returns Metrics with the per-lot gauges registered.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		free: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "parking_free_spaces",
			Help: "Committed free spaces in the lot",
		}, []string{"lot"}),
		total: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "parking_total_spaces",
			Help: "Configured spaces in the lot",
		}, []string{"lot"}),
		ratio: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "parking_lot_occupancy_ratio",
			Help: "Occupied spaces divided by total spaces",
		}, []string{"lot"}),
		reports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "parking_reports_observed_total",
			Help: "Reports delivered to the metrics sink",
		}, []string{"lot", "kind"}),
	}
	m.registry.MustRegister(m.free, m.total, m.ratio, m.reports)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveReport updates the lot gauges from r.
func (m *Metrics) ObserveReport(r engine.Report) {
	m.free.WithLabelValues(r.LotID).Set(float64(r.FreeCount))
	m.total.WithLabelValues(r.LotID).Set(float64(r.TotalSpots))
	if r.TotalSpots > 0 {
		m.ratio.WithLabelValues(r.LotID).Set(float64(r.TotalSpots-r.FreeCount) / float64(r.TotalSpots))
	}
	kind := "change"
	if r.Baseline {
		kind = "baseline"
	}
	m.reports.WithLabelValues(r.LotID, kind).Inc()
}

// RegisterEngine exports e's counters, labelled with its lot id. The
// functions read the engine's atomics at scrape time.
func (m *Metrics) RegisterEngine(e *engine.Engine) error {
	labels := prometheus.Labels{"lot": e.LotID()}
	st := e.Stats()

	counters := []struct {
		name, help string
		read       func() uint64
	}{
		{"parking_frames_total", "Frames processed", st.Frames.Load},
		{"parking_silent_frames_total", "Frames that produced no report", st.SilentFrames.Load},
		{"parking_reports_total", "Reports delivered", st.Reports.Load},
		{"parking_report_failures_total", "Report deliveries that failed", st.ReportFailures.Load},
		{"parking_detector_failures_total", "Frames skipped because the detector failed", st.DetectorFailures.Load},
		{"parking_rectification_failures_total", "Frames processed unrectified", st.RectificationFailures.Load},
		{"parking_skipped_spots_total", "Spot observations skipped on scoring errors", st.SkippedSpots.Load},
		{"parking_detections_total", "Detections considered", st.Detections.Load},
	}
	for _, c := range counters {
		read := c.read
		cf := prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name:        c.name,
			Help:        c.help,
			ConstLabels: labels,
		}, func() float64 { return float64(read()) })
		if err := m.registry.Register(cf); err != nil {
			return fmt.Errorf("register %s for lot %s: %w", c.name, e.LotID(), err)
		}
	}

	latency := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "parking_frame_latency_seconds",
		Help:        "End-to-end latency of the most recent frame",
		ConstLabels: labels,
	}, func() float64 { return st.LastFrameLatency().Seconds() })
	if err := m.registry.Register(latency); err != nil {
		return fmt.Errorf("register latency for lot %s: %w", e.LotID(), err)
	}
	return nil
}
