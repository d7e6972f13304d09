package database

import (
	"context"

	"github.com/lysyi3m/ae-comb/app/table"
)

type RunRepositoryInterface interface {
	StartRun(ctx context.Context, run *Run) error
	FinishRun(ctx context.Context, run *Run) error
	GetRecentRuns(ctx context.Context, limit int) ([]Run, error)
	GetLastRun(ctx context.Context) (*Run, error)
}

type DatasetRepositoryInterface interface {
	// ReplaceTable drops any existing table of that name and writes t in its place.
	ReplaceTable(ctx context.Context, name string, t *table.Table) error
	LatestRows(ctx context.Context, name string, limit int) (*table.Table, error)
	CountRows(ctx context.Context, name string) (int, error)
	LatestPeriod(ctx context.Context, name string) (string, error)
}

var (
	_ RunRepositoryInterface     = (*RunRepository)(nil)
	_ DatasetRepositoryInterface = (*DatasetRepository)(nil)
)
