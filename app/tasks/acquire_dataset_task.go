package tasks

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/ae-comb/app/period"
	"github.com/lysyi3m/ae-comb/app/pipeline"
	"github.com/lysyi3m/ae-comb/app/source"
)

type AcquireDatasetTask struct {
	Task
	StartMonth string
	EndMonth   string
	runner     DatasetRunner
}

// NewAcquireDatasetTask acquires and loads start..end; an empty end means the
// current month at execution time.
func NewAcquireDatasetTask(start, end string, runner DatasetRunner) *AcquireDatasetTask {
	return &AcquireDatasetTask{
		Task:       NewTask(TaskTypeAcquireDataset, fmt.Sprintf("%s - %s", start, cmp.Or(end, "current month"))),
		StartMonth: start,
		EndMonth:   end,
		runner:     runner,
	}
}

func (t *AcquireDatasetTask) Execute(ctx context.Context) error {

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	res, err := t.runner.Run(ctx, t.StartMonth, t.EndMonth)
	if err != nil {
		// bad input and failed loads do not heal by retrying
		if errors.Is(err, period.ErrInvalidDateFormat) || errors.Is(err, pipeline.ErrPersistence) {
			t.NoRetry()
		}
		return fmt.Errorf("failed to acquire dataset: %w", err)
	}

	slog.Info("Task completed",
		"type", "AcquireDataset",
		"range", res.Range.String(),
		"duration", t.GetDuration(),
		"rows", res.Table.NumRows(),
		"releases", res.Report.Succeeded(source.StageRelease),
		"skipped", res.Report.Failed(source.StageRelease))

	return nil
}
