// Package sink provides engine.ReportingSink implementations: fan-out,
// logging, MQTT publication and Prometheus gauges.
package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/banshee-data/parking.report/internal/parking/engine"
)

// Multi delivers every report to each sink in order. All sinks are called
// even when one fails; the failures are joined.
type Multi []engine.ReportingSink

// Report implements engine.ReportingSink.
func (m Multi) Report(ctx context.Context, r engine.Report) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Report(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Log writes one line per report.
type Log struct {
	logger *log.Logger
}

// NewLog returns a Log sink writing to w.
func NewLog(w io.Writer) *Log {
	return &Log{logger: log.New(w, "[report] ", log.LstdFlags|log.Lmicroseconds)}
}

// Report implements engine.ReportingSink.
func (l *Log) Report(_ context.Context, r engine.Report) error {
	kind := "change"
	if r.Baseline {
		kind = "baseline"
	}
	l.logger.Printf("lot=%s frame=%d %s free=%d/%d p=%.2f changed=%v",
		r.LotID, r.Frame, kind, r.FreeCount, r.TotalSpots, r.Probability, r.ChangedSpotIDs)
	return nil
}

// Observer receives reports for aggregation. *metrics.Metrics satisfies it.
type Observer interface {
	ObserveReport(r engine.Report)
}

// Metrics forwards reports to an Observer. It never fails.
type Metrics struct {
	Observer Observer
}

// Report implements engine.ReportingSink.
func (m Metrics) Report(_ context.Context, r engine.Report) error {
	if m.Observer == nil {
		return fmt.Errorf("metrics sink has no observer")
	}
	m.Observer.ObserveReport(r)
	return nil
}
