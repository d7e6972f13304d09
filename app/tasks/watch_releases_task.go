package tasks

import (
	"context"
	"fmt"
	"log/slog"
)

type WatchReleasesTask struct {
	Task
	watcher   ReleaseWatcher
	runner    DatasetRunner
	scheduler TaskSchedulerInterface
	start     string
}

// NewWatchReleasesTask polls the release feed and queues an acquisition of
// start..current month when a new release is announced.
func NewWatchReleasesTask(feedURL string, watcher ReleaseWatcher, runner DatasetRunner, scheduler TaskSchedulerInterface, start string) *WatchReleasesTask {
	return &WatchReleasesTask{
		Task:      NewTask(TaskTypeWatchReleases, feedURL),
		watcher:   watcher,
		runner:    runner,
		scheduler: scheduler,
		start:     start,
	}
}

func (t *WatchReleasesTask) Execute(ctx context.Context) error {

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	announcements, err := t.watcher.Poll(ctx)
	if err != nil {
		return fmt.Errorf("failed to poll release feed: %w", err)
	}

	for _, a := range announcements {
		slog.Info("New release announced", "title", a.Title, "link", a.Link)
	}

	if len(announcements) > 0 {
		acquireTask := NewAcquireDatasetTask(t.start, "", t.runner)
		if err := t.scheduler.EnqueueTask(acquireTask); err != nil {
			return fmt.Errorf("failed to enqueue acquisition: %w", err)
		}
		t.watcher.Acknowledge(announcements)
	}

	slog.Info("Task completed",
		"type", "WatchReleases",
		"feed", t.Subject,
		"duration", t.GetDuration(),
		"new", len(announcements))

	return nil
}
