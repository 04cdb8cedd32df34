package monitor

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/parking.report/internal/httputil"
)

const echartsAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// handleChart renders free spaces over time as an HTML line chart.
// Query params:
//   - hours (optional; default 24, max 720)
func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	eng, ok := s.lots.Engine(id)
	if !ok {
		httputil.NotFound(w, "unknown lot")
		return
	}
	if s.reports == nil {
		httputil.NotFound(w, "report history is not enabled")
		return
	}
	hours, err := intParam(r, "hours", 24, 1, 720)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	since := s.clock.Now().Add(-time.Duration(hours) * time.Hour)
	rows, err := s.reports.ReportsSince(r.Context(), id, since)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}

	xs := make([]string, 0, len(rows))
	free := make([]opts.LineData, 0, len(rows))
	occupied := make([]opts.LineData, 0, len(rows))
	for _, row := range rows {
		xs = append(xs, row.Timestamp.Local().Format("01-02 15:04:05"))
		free = append(free, opts.LineData{Value: row.FreeCount})
		occupied = append(occupied, opts.LineData{Value: row.TotalSpots - row.FreeCount})
	}

	total := eng.TotalSpots()
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Parking occupancy", Width: "100%", Height: "560px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: fmt.Sprintf("Lot %s", id), Subtitle: fmt.Sprintf("last %dh, %d reports, %d spaces", hours, len(rows), total)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "spaces", Min: 0, Max: total}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)
	line.SetXAxis(xs).
		AddSeries("free", free).
		AddSeries("occupied", occupied)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
