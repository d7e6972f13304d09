package tasks

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type TaskType string

const (
	TaskTypeAcquireDataset TaskType = "acquire_dataset"
	TaskTypeWatchReleases  TaskType = "watch_releases"
)

const (
	DefaultMaxRetries = 3

	// retry delays double per attempt up to this multiple of the base delay
	maxRetryFactor = 30
)

type TaskInterface interface {
	Execute(ctx context.Context) error
	GetID() string
	GetType() TaskType
	GetSubject() string
	GetRetryCount() int
	GetMaxRetries() int
	NextRetry(base time.Duration) (time.Duration, bool)
	Start()
	GetDuration() time.Duration
}

// Task carries the bookkeeping shared by all task kinds. Subject names what
// the task works on, a month range or a feed URL.
type Task struct {
	ID         string
	Type       TaskType
	Subject    string
	RetryCount int
	MaxRetries int
	CreatedAt  time.Time
	StartedAt  *time.Time
}

func NewTask(taskType TaskType, subject string) Task {
	return Task{
		ID:         uuid.NewString(),
		Type:       taskType,
		Subject:    subject,
		MaxRetries: DefaultMaxRetries,
		CreatedAt:  time.Now(),
	}
}

func (t *Task) GetID() string {
	return t.ID
}

func (t *Task) GetType() TaskType {
	return t.Type
}

func (t *Task) GetSubject() string {
	return t.Subject
}

func (t *Task) GetRetryCount() int {
	return t.RetryCount
}

func (t *Task) GetMaxRetries() int {
	return t.MaxRetries
}

func (t *Task) CanRetry() bool {
	return t.RetryCount < t.MaxRetries
}

// NextRetry consumes one retry and returns how long to wait before it:
// base, 2*base, 4*base ... capped at 30*base. It returns false once the
// retries are exhausted.
func (t *Task) NextRetry(base time.Duration) (time.Duration, bool) {
	if !t.CanRetry() {
		return 0, false
	}
	t.RetryCount++

	delay := base << (t.RetryCount - 1)
	if limit := maxRetryFactor * base; delay > limit || delay <= 0 {
		delay = limit
	}
	return delay, true
}

// NoRetry marks the task as failed for good.
func (t *Task) NoRetry() {
	t.MaxRetries = t.RetryCount
}

func (t *Task) Start() {
	now := time.Now()
	t.StartedAt = &now
}

func (t *Task) GetDuration() time.Duration {
	if t.StartedAt == nil {
		return 0
	}
	return time.Since(*t.StartedAt)
}
