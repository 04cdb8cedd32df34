package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/banshee-data/parking.report/internal/parking/engine"
)

// ReportStore records engine reports. It implements engine.ReportingSink.
type ReportStore struct {
	db *DB
}

// NewReportStore returns a store writing to db.
func NewReportStore(db *DB) *ReportStore {
	return &ReportStore{db: db}
}

// Report stores r and the spot states it carries in one transaction.
func (s *ReportStore) Report(ctx context.Context, r engine.Report) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO lot_reports (lot_id, run_id, frame, ts_unix_nanos, free_count, total_spots, probability, baseline)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.LotID, r.RunID, int64(r.Frame), r.Timestamp.UnixNano(), r.FreeCount, r.TotalSpots, r.Probability, boolInt(r.Baseline))
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	reportID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("report id: %w", err)
	}

	if len(r.Spots) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO spot_transitions (report_id, lot_id, spot_id, occupied, frame, changed_unix_nanos)
			VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare transitions: %w", err)
		}
		defer stmt.Close()
		for _, sc := range r.Spots {
			if _, err := stmt.ExecContext(ctx, reportID, r.LotID, sc.ID, boolInt(sc.Occupied), int64(sc.Frame), nullableNanos(sc.ChangedAt)); err != nil {
				return fmt.Errorf("insert transition for spot %d: %w", sc.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// StoredReport is one row of lot_reports.
type StoredReport struct {
	ID          int64     `json:"id"`
	LotID       string    `json:"lot_id"`
	RunID       string    `json:"run_id"`
	Frame       uint64    `json:"frame"`
	Timestamp   time.Time `json:"timestamp"`
	FreeCount   int       `json:"free_count"`
	TotalSpots  int       `json:"total_spots"`
	Probability float64   `json:"probability"`
	Baseline    bool      `json:"baseline"`
}

// RecentReports returns up to limit reports for lotID, newest first.
func (s *ReportStore) RecentReports(ctx context.Context, lotID string, limit int) ([]StoredReport, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT report_id, lot_id, run_id, frame, ts_unix_nanos, free_count, total_spots, probability, baseline
		FROM lot_reports
		WHERE lot_id = ?
		ORDER BY ts_unix_nanos DESC, report_id DESC
		LIMIT ?`, lotID, limit)
	if err != nil {
		return nil, fmt.Errorf("query reports: %w", err)
	}
	defer rows.Close()
	return scanReports(rows)
}

// ReportsSince returns every report for lotID at or after since, oldest
// first.
func (s *ReportStore) ReportsSince(ctx context.Context, lotID string, since time.Time) ([]StoredReport, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT report_id, lot_id, run_id, frame, ts_unix_nanos, free_count, total_spots, probability, baseline
		FROM lot_reports
		WHERE lot_id = ? AND ts_unix_nanos >= ?
		ORDER BY ts_unix_nanos ASC, report_id ASC`, lotID, since.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("query reports: %w", err)
	}
	defer rows.Close()
	return scanReports(rows)
}

func scanReports(rows *sql.Rows) ([]StoredReport, error) {
	var out []StoredReport
	for rows.Next() {
		var (
			r        StoredReport
			frame    int64
			ts       int64
			baseline int
		)
		if err := rows.Scan(&r.ID, &r.LotID, &r.RunID, &frame, &ts, &r.FreeCount, &r.TotalSpots, &r.Probability, &baseline); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		r.Frame = uint64(frame)
		r.Timestamp = time.Unix(0, ts).UTC()
		r.Baseline = baseline != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// SpotTransition is one row of spot_transitions. ChangedAt is zero for a
// spot that had not changed state when the report was taken.
type SpotTransition struct {
	ReportID  int64     `json:"report_id"`
	SpotID    int       `json:"spot_id"`
	Occupied  bool      `json:"occupied"`
	Frame     uint64    `json:"frame"`
	ChangedAt time.Time `json:"changed_at,omitzero"`
}

// SpotHistory returns the recorded states of one spot, newest first.
func (s *ReportStore) SpotHistory(ctx context.Context, lotID string, spotID, limit int) ([]SpotTransition, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT report_id, spot_id, occupied, frame, changed_unix_nanos
		FROM spot_transitions
		WHERE lot_id = ? AND spot_id = ?
		ORDER BY frame DESC, transition_id DESC
		LIMIT ?`, lotID, spotID, limit)
	if err != nil {
		return nil, fmt.Errorf("query transitions: %w", err)
	}
	defer rows.Close()

	var out []SpotTransition
	for rows.Next() {
		var (
			t        SpotTransition
			occupied int
			frame    int64
			changed  sql.NullInt64
		)
		if err := rows.Scan(&t.ReportID, &t.SpotID, &occupied, &frame, &changed); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		t.Occupied = occupied != 0
		t.Frame = uint64(frame)
		if changed.Valid {
			t.ChangedAt = time.Unix(0, changed.Int64).UTC()
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// PruneBefore deletes reports older than cutoff, with their transitions.
// It returns the number of reports removed.
func (s *ReportStore) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM lot_reports WHERE ts_unix_nanos < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune reports: %w", err)
	}
	return res.RowsAffected()
}

// nullableNanos stores the zero time as NULL; its UnixNano is undefined.
func nullableNanos(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
