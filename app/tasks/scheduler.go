package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

type SchedulerOptions struct {
	StartMonth  string
	EndMonth    string
	FeedURL     string
	Interval    time.Duration
	WorkerCount int
	TaskTimeout time.Duration
	RetryBase   time.Duration
}

// Scheduler runs queued tasks on a worker pool. On start it queues one
// acquisition; afterwards it polls the release feed every interval, or
// re-acquires every interval when no watcher is configured.
type Scheduler struct {
	runner    DatasetRunner
	watcher   ReleaseWatcher
	opts      SchedulerOptions
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	taskQueue chan TaskInterface
	stopOnce  sync.Once
}

func NewScheduler(runner DatasetRunner, watcher ReleaseWatcher, opts SchedulerOptions) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	if opts.WorkerCount < 1 {
		opts.WorkerCount = 1
	}
	if opts.TaskTimeout <= 0 {
		opts.TaskTimeout = 30 * time.Minute
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = time.Second
	}

	return &Scheduler{
		runner:    runner,
		watcher:   watcher,
		opts:      opts,
		ctx:       ctx,
		cancel:    cancel,
		taskQueue: make(chan TaskInterface, 100),
	}
}

func (s *Scheduler) Start() {
	for i := 0; i < s.opts.WorkerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.opts.Interval)
		defer ticker.Stop()

		s.enqueueStartupTasks()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.enqueueTasks()
			}
		}
	}()
}

func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.cancel()
		s.wg.Wait()
	})
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	select {
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
	}

	select {
	case s.taskQueue <- task:
		return nil
	default:
		return fmt.Errorf("task queue is full")
	}
}

func (s *Scheduler) enqueueStartupTasks() {
	acquireTask := NewAcquireDatasetTask(s.opts.StartMonth, s.opts.EndMonth, s.runner)
	if err := s.EnqueueTask(acquireTask); err != nil {
		slog.Warn("Failed to enqueue AcquireDatasetTask", "range", acquireTask.Subject, "error", err)
	}

	// the first poll only learns what is already published
	if s.watcher != nil {
		s.enqueueWatch()
	}
}

func (s *Scheduler) enqueueTasks() {
	if s.watcher != nil {
		s.enqueueWatch()
		return
	}

	slog.Debug("No release feed configured, refreshing dataset")
	acquireTask := NewAcquireDatasetTask(s.opts.StartMonth, s.opts.EndMonth, s.runner)
	if err := s.EnqueueTask(acquireTask); err != nil {
		slog.Warn("Failed to enqueue AcquireDatasetTask", "range", acquireTask.Subject, "error", err)
	}
}

func (s *Scheduler) enqueueWatch() {
	watchTask := NewWatchReleasesTask(s.opts.FeedURL, s.watcher, s.runner, s, s.opts.StartMonth)
	if err := s.EnqueueTask(watchTask); err != nil {
		slog.Warn("Failed to enqueue WatchReleasesTask", "feed", s.opts.FeedURL, "error", err)
	}
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case task := <-s.taskQueue:
			s.executeTask(id, task)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(workerID int, task TaskInterface) {
	task.Start()

	taskCtx, cancel := context.WithTimeout(s.ctx, s.opts.TaskTimeout)
	defer cancel()

	err := task.Execute(taskCtx)
	if err == nil {
		return
	}

	slog.Error("Worker task execution failed", "worker_id", workerID, "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", err)

	retryDelay, ok := task.NextRetry(s.opts.RetryBase)
	if !ok {
		slog.Error("Task failed after maximum retries", "type", string(task.GetType()), "subject", task.GetSubject(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "last_error", err)
		return
	}

	slog.Warn("Task retry scheduled", "type", string(task.GetType()), "subject", task.GetSubject(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "delay", retryDelay.String())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		timer := time.NewTimer(retryDelay)
		defer timer.Stop()

		select {
		case <-s.ctx.Done():
			slog.Debug("Scheduler stopped, skipping task retry", "type", string(task.GetType()), "id", task.GetID())
		case <-timer.C:
			if retryErr := s.EnqueueTask(task); retryErr != nil {
				slog.Error("Failed to re-enqueue task for retry", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", retryErr)
			}
		}
	}()
}
