package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/lysyi3m/ae-comb/app/database"
	"github.com/lysyi3m/ae-comb/app/dataset"
	"github.com/lysyi3m/ae-comb/app/period"
	"github.com/lysyi3m/ae-comb/app/source"
	"github.com/lysyi3m/ae-comb/app/table"
)

var ErrPersistence = errors.New("failed to persist dataset")

// Sink receives the finished dataset. ReplaceTable overwrites any existing
// table of the same name.
type Sink interface {
	ReplaceTable(ctx context.Context, name string, t *table.Table) error
}

// Previewer reads back the newest rows after a load.
type Previewer interface {
	LatestRows(ctx context.Context, name string, limit int) (*table.Table, error)
}

type RunRecorder interface {
	StartRun(ctx context.Context, run *database.Run) error
	FinishRun(ctx context.Context, run *database.Run) error
}

const previewRows = 5

type RunnerOptions struct {
	TableName  string
	OutputFile string
}

// Runner executes at most one acquisition at a time and hands the result to
// the sink, the optional CSV export and the run ledger.
type Runner struct {
	acquirer *Acquirer
	sink     Sink
	runs     RunRecorder
	opts     RunnerOptions

	mu   sync.Mutex
	last atomic.Pointer[database.Run]
}

// NewRunner accepts a nil sink (nothing is loaded) and a nil recorder.
func NewRunner(acquirer *Acquirer, sink Sink, runs RunRecorder, opts RunnerOptions) *Runner {
	return &Runner{acquirer: acquirer, sink: sink, runs: runs, opts: opts}
}

func (r *Runner) Run(ctx context.Context, start, end string) (*Result, error) {
	rng, err := r.acquirer.Resolve(start, end)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	report := source.NewReport()
	run := &database.Run{
		ID:         report.RunID,
		StartMonth: rng.Start.Period(),
		EndMonth:   rng.End.Period(),
		TableName:  r.opts.TableName,
	}

	if r.runs != nil {
		if err := r.runs.StartRun(ctx, run); err != nil {
			slog.Warn("Failed to record run start", "run_id", run.ID.String(), "error", err)
		}
	}

	res, err := r.execute(ctx, rng, report, run)

	run.ReleasesFetched = report.Succeeded(source.StageRelease)
	run.ReleasesSkipped = report.Failed(source.StageRelease)
	run.IndexFailures = report.Failed(source.StageIndex)
	if err != nil {
		run.Status = database.RunStatusFailed
		run.Error = err.Error()
	} else {
		run.Status = database.RunStatusSucceeded
	}
	r.finish(ctx, run)

	return res, err
}

func (r *Runner) execute(ctx context.Context, rng period.Range, report *source.Report, run *database.Run) (*Result, error) {
	res, err := r.acquirer.Acquire(ctx, rng, report)
	if err != nil {
		return nil, err
	}
	run.Duplicates = res.Summary.Duplicates

	if r.sink != nil {
		if err := r.sink.ReplaceTable(ctx, r.opts.TableName, res.Table); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
		}
		run.RowsWritten = res.Table.NumRows()
		slog.Info("Dataset loaded", "table", r.opts.TableName, "rows", res.Table.NumRows(), "columns", res.Table.NumColumns())
		r.preview(ctx)
	}

	if r.opts.OutputFile != "" {
		if err := dataset.Export(res.Table, r.opts.OutputFile); err != nil {
			return nil, err
		}
	}

	logFailures(report)

	return res, nil
}

func (r *Runner) preview(ctx context.Context) {
	p, ok := r.sink.(Previewer)
	if !ok {
		return
	}

	rows, err := p.LatestRows(ctx, r.opts.TableName, previewRows)
	if err != nil {
		slog.Warn("Failed to read back latest rows", "table", r.opts.TableName, "error", err)
		return
	}

	for i := 0; i < rows.NumRows(); i++ {
		values := make([]string, 0, rows.NumColumns())
		for _, c := range rows.Row(i) {
			values = append(values, c.String())
		}
		slog.Info("Latest row", "table", r.opts.TableName, "values", strings.Join(values, " | "))
	}
}

func (r *Runner) finish(ctx context.Context, run *database.Run) {
	if r.runs != nil {
		// the outcome is recorded even when the run was cancelled
		if err := r.runs.FinishRun(context.WithoutCancel(ctx), run); err != nil {
			slog.Warn("Failed to record run result", "run_id", run.ID.String(), "error", err)
		}
	}

	snapshot := *run
	r.last.Store(&snapshot)

	slog.Info("Acquisition finished",
		"run_id", run.ID.String(),
		"status", string(run.Status),
		"fetched", run.ReleasesFetched,
		"skipped", run.ReleasesSkipped,
		"index_failures", run.IndexFailures,
		"rows", run.RowsWritten)
}

// LastRun returns a copy of the most recent run of this process, or nil.
func (r *Runner) LastRun() *database.Run {
	last := r.last.Load()
	if last == nil {
		return nil
	}
	run := *last
	return &run
}

func logFailures(report *source.Report) {
	for _, f := range report.Failures() {
		slog.Warn("Skipped during acquisition", "stage", string(f.Stage), "url", f.URL, "error", f.Err)
	}
}
