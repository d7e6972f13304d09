package tasks

import (
	"context"

	"github.com/lysyi3m/ae-comb/app/pipeline"
	"github.com/lysyi3m/ae-comb/app/source"
)

// TaskSchedulerInterface is what the API and other tasks use to queue work.
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
}

type DatasetRunner interface {
	Run(ctx context.Context, start, end string) (*pipeline.Result, error)
}

// ReleaseWatcher reports new announcements until they are acknowledged.
type ReleaseWatcher interface {
	Poll(ctx context.Context) ([]source.Announcement, error)
	Acknowledge(announcements []source.Announcement)
}

var (
	_ DatasetRunner  = (*pipeline.Runner)(nil)
	_ ReleaseWatcher = (*source.Watcher)(nil)
)
