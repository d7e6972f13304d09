package dataset

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/lysyi3m/ae-comb/app/period"
	"github.com/lysyi3m/ae-comb/app/table"
)

var (
	DefaultCategoricalColumns = []string{"Org Code", "Parent Org", "Org name"}
	DefaultKeepColumns        = []string{"Period", "Org Code", "Parent Org", "Org name"}
)

type CleanOptions struct {
	CategoricalColumns []string
	// KeepColumns are never dropped for holding missing values. Any other
	// column with at least one missing cell is removed dataset-wide.
	KeepColumns []string
}

type ColumnType struct {
	Column string
	Type   string
}

// CleanSummary records what the cleanup stage observed and removed.
type CleanSummary struct {
	MissingCounts      []table.ColumnCount
	MissingCategorical []string
	DroppedColumns     []string
	DroppedRows        int
	Duplicates         int
	ColumnTypes        []ColumnType
	Periods            []string
}

type Cleaner struct {
	opts CleanOptions
}

func NewCleaner(opts CleanOptions) *Cleaner {
	if opts.CategoricalColumns == nil {
		opts.CategoricalColumns = DefaultCategoricalColumns
	}
	if opts.KeepColumns == nil {
		opts.KeepColumns = DefaultKeepColumns
	}
	return &Cleaner{opts: opts}
}

// Run cleans t in place and returns it. The caller must not use t afterwards
// except through the returned table.
func (c *Cleaner) Run(t *table.Table) (*table.Table, *CleanSummary, error) {
	summary := &CleanSummary{}

	summary.MissingCounts = t.MissingCounts()
	for _, mc := range summary.MissingCounts {
		if mc.Count > 0 {
			slog.Info("Missing values", "column", mc.Column, "count", mc.Count)
		}
	}

	for _, name := range c.opts.CategoricalColumns {
		if err := t.SetCategorical(name); err != nil {
			slog.Warn("Categorical column not present", "column", name)
			summary.MissingCategorical = append(summary.MissingCategorical, name)
		}
	}

	for _, mc := range summary.MissingCounts {
		if mc.Count > 0 && !slices.Contains(c.opts.KeepColumns, mc.Column) {
			summary.DroppedColumns = append(summary.DroppedColumns, mc.Column)
		}
	}
	t.DropColumns(summary.DroppedColumns...)
	if len(summary.DroppedColumns) > 0 {
		slog.Info("Dropped columns with missing values", "columns", summary.DroppedColumns)
	}

	summary.DroppedRows = t.DropMissingRows()
	slog.Info("Dropped rows with missing values", "rows", summary.DroppedRows)

	summary.Duplicates = t.DropDuplicates()
	slog.Info("Removed duplicate rows", "count", summary.Duplicates)

	if err := setPeriod(t); err != nil {
		return nil, nil, err
	}

	for _, name := range t.Columns() {
		col, _ := t.Column(name)
		summary.ColumnTypes = append(summary.ColumnTypes, ColumnType{Column: name, Type: col.Type()})
	}
	summary.Periods = t.Unique(PeriodColumn)

	slog.Info("Dataset cleaned",
		"rows", t.NumRows(),
		"columns", t.NumColumns(),
		"periods", summary.Periods)

	return t, summary, nil
}

// setPeriod derives the "YYYY-MM" key of every row from its Month and Year.
func setPeriod(t *table.Table) error {
	if t.NumRows() == 0 {
		if t.NumColumns() > 0 {
			t.Fill(PeriodColumn, table.Missing())
		}
		return nil
	}

	cells := make([]table.Cell, t.NumRows())
	for i := range cells {
		month := t.Value(i, MonthColumn)
		year := t.Value(i, YearColumn)
		m, err := period.FromNames(month.String(), year.String())
		if err != nil {
			return fmt.Errorf("failed to build period for row %d: %w", i, err)
		}
		cells[i] = table.Text(m.Period())
	}

	return t.SetColumn(PeriodColumn, cells)
}
