package dataset

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"

	"github.com/lysyi3m/ae-comb/app/period"
	"github.com/lysyi3m/ae-comb/app/table"
)

var ErrEmptyResult = errors.New("no releases were retrieved")

// unknownMonth sorts rows with an unrecognised month name after December.
const unknownMonth = 13

type Assembler struct {
	parentColumn string
	totalPattern *regexp.Regexp
}

// NewAssembler matches totalPattern case-insensitively against parentColumn.
func NewAssembler(parentColumn, totalPattern string) (*Assembler, error) {
	re, err := regexp.Compile("(?i)" + totalPattern)
	if err != nil {
		return nil, fmt.Errorf("invalid total pattern: %w", err)
	}
	return &Assembler{parentColumn: parentColumn, totalPattern: re}, nil
}

// Run stacks the normalized releases, removes aggregate rows and orders the
// result chronologically. Rows of the same month keep their input order.
func (a *Assembler) Run(releases []*table.Table) (*table.Table, error) {
	if len(releases) == 0 {
		return nil, ErrEmptyResult
	}

	stacked := table.Concat(releases...)

	unified := stacked.Filter(func(row int) bool {
		parent := stacked.Value(row, a.parentColumn)
		if parent.IsMissing() {
			return true
		}
		return !a.totalPattern.MatchString(parent.String())
	})

	slog.Info("Removed total rows", "column", a.parentColumn, "removed", stacked.NumRows()-unified.NumRows(), "remaining", unified.NumRows())

	years := make([]int, unified.NumRows())
	months := make([]int, unified.NumRows())
	for i := range years {
		years[i] = yearKey(unified.Value(i, YearColumn))
		months[i] = monthKey(unified.Value(i, MonthColumn))
	}

	return unified.SortStable(func(x, y int) bool {
		if years[x] != years[y] {
			return years[x] < years[y]
		}
		return months[x] < months[y]
	}), nil
}

func yearKey(c table.Cell) int {
	y, err := strconv.Atoi(c.String())
	if c.IsMissing() || err != nil {
		return math.MaxInt
	}
	return y
}

func monthKey(c table.Cell) int {
	if c.IsMissing() {
		return unknownMonth
	}
	n, ok := period.MonthNumber(c.String())
	if !ok {
		return unknownMonth
	}
	return n
}
