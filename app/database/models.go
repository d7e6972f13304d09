package database

import (
	"time"

	"github.com/google/uuid"
)

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// Run is one acquisition recorded in the acquisition_runs ledger.
type Run struct {
	ID              uuid.UUID
	StartMonth      string // YYYY-MM
	EndMonth        string // YYYY-MM
	TableName       string
	Status          RunStatus
	ReleasesFetched int
	ReleasesSkipped int
	IndexFailures   int
	RowsWritten     int
	Duplicates      int
	Error           string
	StartedAt       time.Time
	FinishedAt      *time.Time
}

func (r *Run) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
