package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type RunRepository struct {
	db *DB
}

func NewRunRepository(db *DB) *RunRepository {
	return &RunRepository{db: db}
}

const runColumns = `id, start_month, end_month, table_name, status,
		releases_fetched, releases_skipped, index_failures, rows_written, duplicates,
		error, started_at, finished_at`

func (r *RunRepository) StartRun(ctx context.Context, run *Run) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	run.Status = RunStatusRunning

	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO acquisition_runs (id, start_month, end_month, table_name, status, started_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`), run.ID.String(), run.StartMonth, run.EndMonth, run.TableName, string(run.Status), run.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	return nil
}

func (r *RunRepository) FinishRun(ctx context.Context, run *Run) error {
	if run.FinishedAt == nil {
		now := time.Now().UTC()
		run.FinishedAt = &now
	}

	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE acquisition_runs
		SET status = $2, releases_fetched = $3, releases_skipped = $4, index_failures = $5,
		    rows_written = $6, duplicates = $7, error = $8, finished_at = $9
		WHERE id = $1
	`), run.ID.String(), string(run.Status), run.ReleasesFetched, run.ReleasesSkipped, run.IndexFailures,
		run.RowsWritten, run.Duplicates, run.Error, *run.FinishedAt)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run %s not found", run.ID)
	}

	return nil
}

func (r *RunRepository) GetRecentRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := r.db.QueryContext(ctx, r.db.Rebind(`
		SELECT `+runColumns+`
		FROM acquisition_runs
		ORDER BY started_at DESC
		LIMIT $1
	`), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		runs = append(runs, *run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run rows: %w", err)
	}

	return runs, nil
}

// GetLastRun returns nil when no run has been recorded yet.
func (r *RunRepository) GetLastRun(ctx context.Context) (*Run, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+runColumns+`
		FROM acquisition_runs
		ORDER BY started_at DESC
		LIMIT 1
	`)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last run: %w", err)
	}

	return run, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var (
		run        Run
		id         string
		status     string
		finishedAt sql.NullTime
	)

	err := s.Scan(&id, &run.StartMonth, &run.EndMonth, &run.TableName, &status,
		&run.ReleasesFetched, &run.ReleasesSkipped, &run.IndexFailures, &run.RowsWritten, &run.Duplicates,
		&run.Error, &run.StartedAt, &finishedAt)
	if err != nil {
		return nil, err
	}

	if err := run.ID.UnmarshalText([]byte(id)); err != nil {
		return nil, fmt.Errorf("invalid run id %q: %w", id, err)
	}
	run.Status = RunStatus(status)
	if finishedAt.Valid {
		t := finishedAt.Time
		run.FinishedAt = &t
	}

	return &run, nil
}
