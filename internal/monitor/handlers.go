package monitor

import (
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/parking.report/internal/httputil"
	"github.com/banshee-data/parking.report/internal/parking/engine"
	"github.com/banshee-data/parking.report/internal/parking/supervisor"
	"github.com/banshee-data/parking.report/internal/version"
)

// LotSummary is one entry of GET /api/lots.
type LotSummary struct {
	LotID       string               `json:"lot_id"`
	Name        string               `json:"name,omitempty"`
	State       supervisor.State     `json:"state"`
	Error       string               `json:"error,omitempty"`
	Frame       uint64               `json:"frame"`
	Timestamp   time.Time            `json:"timestamp"`
	FreeCount   int                  `json:"free_count"`
	TotalSpots  int                  `json:"total_spots"`
	Probability float64              `json:"probability"`
	Stats       engine.StatsSnapshot `json:"stats"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]string{"status": "ok", "time": s.clock.Now().UTC().Format(time.RFC3339)})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, version.Get())
}

func (s *Server) handleLots(w http.ResponseWriter, r *http.Request) {
	status := s.lots.Status()
	out := make([]LotSummary, 0, len(status))
	for _, st := range status {
		sum := LotSummary{LotID: st.LotID, State: st.State, Error: st.Err}
		if eng, ok := s.lots.Engine(st.LotID); ok {
			fillSummary(&sum, eng.Snapshot())
		}
		out = append(out, sum)
	}
	httputil.WriteJSONOK(w, out)
}

func fillSummary(sum *LotSummary, snap engine.LotSnapshot) {
	sum.Name = snap.Name
	sum.Frame = snap.Frame
	sum.Timestamp = snap.Timestamp
	sum.FreeCount = snap.FreeCount
	sum.TotalSpots = snap.TotalSpots
	if snap.TotalSpots > 0 {
		sum.Probability = float64(snap.FreeCount) / float64(snap.TotalSpots)
	}
	sum.Stats = snap.Stats
}

func (s *Server) handleLot(w http.ResponseWriter, r *http.Request) {
	eng, ok := s.lots.Engine(r.PathValue("id"))
	if !ok {
		httputil.NotFound(w, "unknown lot")
		return
	}
	httputil.WriteJSONOK(w, eng.Snapshot())
}

func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.lots.Engine(id); !ok {
		httputil.NotFound(w, "unknown lot")
		return
	}
	if s.reports == nil {
		httputil.NotFound(w, "report history is not enabled")
		return
	}
	limit, err := intParam(r, "limit", 100, 1, 10000)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	rows, err := s.reports.RecentReports(r.Context(), id, limit)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, rows)
}

func (s *Server) handleSpotHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.lots.Engine(id); !ok {
		httputil.NotFound(w, "unknown lot")
		return
	}
	if s.reports == nil {
		httputil.NotFound(w, "report history is not enabled")
		return
	}
	spot, err := strconv.Atoi(r.PathValue("spot"))
	if err != nil {
		httputil.BadRequest(w, "spot must be an integer")
		return
	}
	limit, err := intParam(r, "limit", 100, 1, 10000)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	rows, err := s.reports.SpotHistory(r.Context(), id, spot, limit)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, rows)
}

type paramError struct{ name, value string }

func (e *paramError) Error() string { return "invalid " + e.name + " " + strconv.Quote(e.value) }

// intParam reads an integer query parameter within [min, max].
func intParam(r *http.Request, name string, def, min, max int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < min || n > max {
		return 0, &paramError{name: name, value: v}
	}
	return n, nil
}
