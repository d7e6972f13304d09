package api

import (
	"context"
	"time"

	"github.com/lysyi3m/ae-comb/app/cache"
	"github.com/lysyi3m/ae-comb/app/database"
	"github.com/lysyi3m/ae-comb/app/pipeline"
	"github.com/lysyi3m/ae-comb/app/tasks"
)

type LastRunProvider interface {
	LastRun() *database.Run
}

var (
	_ LastRunProvider    = (*pipeline.Runner)(nil)
	_ RunLister          = (*database.RunRepository)(nil)
	_ CacheHealthChecker = (*cache.Cache)(nil)
)

type RunLister interface {
	GetRecentRuns(ctx context.Context, limit int) ([]database.Run, error)
	GetLastRun(ctx context.Context) (*database.Run, error)
}

// CacheHealthChecker reports the state of the release cache.
type CacheHealthChecker interface {
	Health(ctx context.Context) map[string]interface{}
}

// Handler serves the dataset and run ledger. datasetRepo and runRepo are nil
// when the service runs without a database.
type Handler struct {
	datasetRepo database.DatasetRepositoryInterface
	runRepo     RunLister
	runner      LastRunProvider
	scheduler   tasks.TaskSchedulerInterface
	taskRunner  tasks.DatasetRunner
	cache       CacheHealthChecker
	tableName   string
	startMonth  string
	version     string
}

type RefreshRequest struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type RunResponse struct {
	ID              string     `json:"id"`
	StartMonth      string     `json:"start_month"`
	EndMonth        string     `json:"end_month"`
	Table           string     `json:"table"`
	Status          string     `json:"status"`
	ReleasesFetched int        `json:"releases_fetched"`
	ReleasesSkipped int        `json:"releases_skipped"`
	IndexFailures   int        `json:"index_failures"`
	RowsWritten     int        `json:"rows_written"`
	Duplicates      int        `json:"duplicates"`
	Error           string     `json:"error,omitempty"`
	StartedAt       time.Time  `json:"started_at"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
	Duration        string     `json:"duration,omitempty"`
}

func newRunResponse(run *database.Run) RunResponse {
	resp := RunResponse{
		ID:              run.ID.String(),
		StartMonth:      run.StartMonth,
		EndMonth:        run.EndMonth,
		Table:           run.TableName,
		Status:          string(run.Status),
		ReleasesFetched: run.ReleasesFetched,
		ReleasesSkipped: run.ReleasesSkipped,
		IndexFailures:   run.IndexFailures,
		RowsWritten:     run.RowsWritten,
		Duplicates:      run.Duplicates,
		Error:           run.Error,
		StartedAt:       run.StartedAt,
		FinishedAt:      run.FinishedAt,
	}
	if run.FinishedAt != nil {
		resp.Duration = run.Duration().String()
	}
	return resp
}
