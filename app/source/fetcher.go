package source

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/ae-comb/app/table"
)

// Release is the raw table of one monthly file, schema as published.
type Release struct {
	Link  Link
	Table *table.Table
}

type Fetcher struct {
	client Getter
}

func NewFetcher(client Getter) *Fetcher {
	return &Fetcher{client: client}
}

// Fetch retrieves releases one at a time in link order. Failed or malformed
// files are recorded in the report and skipped.
func (f *Fetcher) Fetch(ctx context.Context, links []Link, report *Report) ([]Release, error) {
	releases := make([]Release, 0, len(links))

	for _, link := range links {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		t, err := f.fetchOne(ctx, link)
		if err != nil {
			err = fmt.Errorf("%w: %w", ErrReleaseFetch, err)
			slog.Warn("Failed to download release", "month", link.Month.String(), "url", link.URL, "error", err)
			report.Add(Outcome{Stage: StageRelease, URL: link.URL, Month: link.Month, Err: err})
			continue
		}

		slog.Info("Downloaded release", "month", link.Month.String(), "rows", t.NumRows(), "columns", t.NumColumns())
		report.Add(Outcome{Stage: StageRelease, URL: link.URL, Month: link.Month, Rows: t.NumRows()})
		releases = append(releases, Release{Link: link, Table: t})
	}

	return releases, nil
}

func (f *Fetcher) fetchOne(ctx context.Context, link Link) (*table.Table, error) {
	data, err := f.client.Get(ctx, link.URL)
	if err != nil {
		return nil, err
	}

	t, err := table.ReadCSV(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV: %w", err)
	}

	return t, nil
}
