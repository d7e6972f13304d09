package source

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lysyi3m/ae-comb/app/period"
)

var (
	ErrIndexFetch   = errors.New("index page fetch failed")
	ErrLinkParse    = errors.New("link text has no month and year")
	ErrReleaseFetch = errors.New("release fetch failed")
)

// StatusError reports a non-2xx response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP error: %d fetching %s", e.StatusCode, e.URL)
}

type Stage string

const (
	StageIndex   Stage = "index"
	StageLink    Stage = "link"
	StageRelease Stage = "release"
)

// Outcome is the result of handling one index page, candidate link or release.
// Err is nil on success.
type Outcome struct {
	Stage Stage
	URL   string
	Month period.MonthYear
	Rows  int
	Err   error
}

func (o Outcome) OK() bool {
	return o.Err == nil
}

// Report collects the outcomes of one acquisition run.
type Report struct {
	RunID    uuid.UUID
	Outcomes []Outcome
}

func NewReport() *Report {
	return &Report{RunID: uuid.New()}
}

func (r *Report) Add(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
}

func (r *Report) Succeeded(stage Stage) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Stage == stage && o.OK() {
			n++
		}
	}
	return n
}

func (r *Report) Failed(stage Stage) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Stage == stage && !o.OK() {
			n++
		}
	}
	return n
}

func (r *Report) Failures() []Outcome {
	var failures []Outcome
	for _, o := range r.Outcomes {
		if !o.OK() {
			failures = append(failures, o)
		}
	}
	return failures
}
