package quality

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/engagement-transform/pkg/postgres"
)

// ReportStore keeps the history of gate reports in PostgreSQL.
//
// It requires the `quality_reports` table created by the structured store
// migrations:
//
//	CREATE TABLE quality_reports (
//	    id          BIGSERIAL PRIMARY KEY,
//	    run_id      TEXT NOT NULL,
//	    passed      BOOLEAN NOT NULL,
//	    data        JSONB NOT NULL,
//	    captured_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
type ReportStore struct {
	db     *postgres.Client
	logger *slog.Logger
}

// NewReportStore creates a store over the quality_reports table.
func NewReportStore(db *postgres.Client) *ReportStore {
	return &ReportStore{
		db:     db,
		logger: slog.Default().With("component", "quality-store"),
	}
}

// Save appends a report.
func (s *ReportStore) Save(ctx context.Context, report *Report) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshaling quality report: %w", err)
	}

	_, err = s.db.DB.ExecContext(ctx,
		`INSERT INTO quality_reports (run_id, passed, data, captured_at) VALUES ($1, $2, $3, $4)`,
		report.RunID, report.Passed, data, report.CheckedAt,
	)
	if err != nil {
		return fmt.Errorf("saving quality report: %w", err)
	}

	s.logger.Info("quality report saved",
		"run_id", report.RunID,
		"passed", report.Passed,
		"violations", report.TotalViolations,
	)
	return nil
}

// Latest loads the most recent report. Returns nil, nil if none exist yet.
func (s *ReportStore) Latest(ctx context.Context) (*Report, error) {
	var data []byte
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT data FROM quality_reports ORDER BY captured_at DESC, id DESC LIMIT 1`,
	).Scan(&data)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest quality report: %w", err)
	}

	var report Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("unmarshaling quality report: %w", err)
	}
	return &report, nil
}

// List returns the last limit reports, newest first. Rows that no longer
// decode are skipped.
func (s *ReportStore) List(ctx context.Context, limit int) ([]Report, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT data FROM quality_reports ORDER BY captured_at DESC, id DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing quality reports: %w", err)
	}
	defer rows.Close()

	var reports []Report
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning quality report row: %w", err)
		}
		var r Report
		if err := json.Unmarshal(data, &r); err != nil {
			s.logger.Warn("skipping corrupt quality report", "error", err)
			continue
		}
		reports = append(reports, r)
	}

	return reports, rows.Err()
}
