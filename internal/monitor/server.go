// Package monitor serves the read-only HTTP view of every lot: current
// occupancy from engine snapshots, report history from the store, an
// occupancy chart and Prometheus metrics.
package monitor

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/banshee-data/parking.report/internal/db"
	"github.com/banshee-data/parking.report/internal/monitoring"
	"github.com/banshee-data/parking.report/internal/parking/engine"
	"github.com/banshee-data/parking.report/internal/parking/supervisor"
	"github.com/banshee-data/parking.report/internal/timeutil"
)

// Lots is the view of running lots the server reads from.
// *supervisor.Supervisor satisfies it.
type Lots interface {
	Engine(lotID string) (*engine.Engine, bool)
	Engines() []*engine.Engine
	Status() []supervisor.LotStatus
}

// Reports is the report history the server reads from. *db.ReportStore
// satisfies it.
type Reports interface {
	RecentReports(ctx context.Context, lotID string, limit int) ([]db.StoredReport, error)
	ReportsSince(ctx context.Context, lotID string, since time.Time) ([]db.StoredReport, error)
	SpotHistory(ctx context.Context, lotID string, spotID, limit int) ([]db.SpotTransition, error)
}

// Config configures a Server. Reports and Metrics are optional; their
// routes answer 404 when unset.
type Config struct {
	Address string
	Lots    Lots
	Reports Reports
	Metrics http.Handler
	Clock   timeutil.Clock
}

// Server is the monitoring HTTP server.
type Server struct {
	lots    Lots
	reports Reports
	metrics http.Handler
	clock   timeutil.Clock
	server  *http.Server
}

// NewServer builds the server and its routes.
func NewServer(cfg Config) *Server {
	s := &Server{
		lots:    cfg.Lots,
		reports: cfg.Reports,
		metrics: cfg.Metrics,
		clock:   cfg.Clock,
	}
	if s.clock == nil {
		s.clock = timeutil.RealClock{}
	}
	s.server = &http.Server{
		Addr:              cfg.Address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the routed handler wrapped in request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/version", s.handleVersion)
	mux.HandleFunc("GET /api/lots", s.handleLots)
	mux.HandleFunc("GET /api/lots/{id}", s.handleLot)
	mux.HandleFunc("GET /api/lots/{id}/reports", s.handleReports)
	mux.HandleFunc("GET /api/lots/{id}/spots/{spot}/history", s.handleSpotHistory)
	mux.HandleFunc("GET /api/lots/{id}/chart", s.handleChart)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	return logRequests(mux)
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		monitoring.Logf("[monitor] listening on %s", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err, ok := <-errc:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		monitoring.Logf("[monitor] shutdown error: %v", err)
		if err := s.server.Close(); err != nil {
			monitoring.Logf("[monitor] force close error: %v", err)
		}
	}
	monitoring.Logf("[monitor] stopped")
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		monitoring.Logf("[monitor] %s %s %d %s", r.Method, r.URL.Path, rec.status, time.Since(start).Round(time.Microsecond))
	})
}
