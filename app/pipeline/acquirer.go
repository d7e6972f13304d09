package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lysyi3m/ae-comb/app/dataset"
	"github.com/lysyi3m/ae-comb/app/period"
	"github.com/lysyi3m/ae-comb/app/source"
	"github.com/lysyi3m/ae-comb/app/table"
)

// Result is everything one acquisition produced.
type Result struct {
	Range   period.Range
	Table   *table.Table
	Report  *source.Report
	Summary *dataset.CleanSummary
}

// Acquirer turns a month range into the clean dataset: locate releases,
// fetch them, reconcile, assemble and clean.
type Acquirer struct {
	locator    *source.Locator
	fetcher    *source.Fetcher
	reconciler *dataset.Reconciler
	assembler  *dataset.Assembler
	cleaner    *dataset.Cleaner
	now        func() time.Time
}

func NewAcquirer(client source.Getter, cfg *source.Config) (*Acquirer, error) {
	assembler, err := dataset.NewAssembler(cfg.ParentColumn, cfg.TotalPattern)
	if err != nil {
		return nil, err
	}

	return &Acquirer{
		locator:    source.NewLocator(client, cfg),
		fetcher:    source.NewFetcher(client),
		reconciler: dataset.NewReconciler(cfg.ColumnSynonyms),
		assembler:  assembler,
		cleaner: dataset.NewCleaner(dataset.CleanOptions{
			CategoricalColumns: cfg.CategoricalColumns,
			KeepColumns:        cfg.KeepColumns,
		}),
		now: time.Now,
	}, nil
}

// UseReleaseGetter routes release downloads through g, leaving index pages
// on the publisher client.
func (a *Acquirer) UseReleaseGetter(g source.Getter) {
	a.fetcher = source.NewFetcher(g)
}

// AcquireDataset resolves "Month YYYY" bounds and runs the acquisition. An
// empty end selects the current month. Soft failures are only visible in the
// returned report.
func (a *Acquirer) AcquireDataset(ctx context.Context, start, end string) (*table.Table, *source.Report, error) {
	r, err := a.Resolve(start, end)
	if err != nil {
		return nil, nil, err
	}

	report := source.NewReport()
	res, err := a.Acquire(ctx, r, report)
	if err != nil {
		return nil, report, err
	}

	return res.Table, res.Report, nil
}

func (a *Acquirer) Resolve(start, end string) (period.Range, error) {
	return period.NewRange(start, end, a.now())
}

func (a *Acquirer) Acquire(ctx context.Context, r period.Range, report *source.Report) (*Result, error) {
	slog.Info("Acquiring dataset", "run_id", report.RunID.String(), "range", r.String(), "months", r.Len())

	links, err := a.locator.Locate(ctx, r, report)
	if err != nil {
		return nil, fmt.Errorf("failed to locate releases: %w", err)
	}
	slog.Info("Located releases", "links", len(links), "index_failures", report.Failed(source.StageIndex))

	releases, err := a.fetcher.Fetch(ctx, links, report)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch releases: %w", err)
	}

	normalized := make([]*table.Table, 0, len(releases))
	for _, rel := range releases {
		normalized = append(normalized, a.reconciler.Run(rel.Table, rel.Link.Month))
	}

	unified, err := a.assembler.Run(normalized)
	if err != nil {
		return nil, err
	}

	clean, summary, err := a.cleaner.Run(unified)
	if err != nil {
		return nil, fmt.Errorf("failed to clean dataset: %w", err)
	}

	return &Result{Range: r, Table: clean, Report: report, Summary: summary}, nil
}
