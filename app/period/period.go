package period

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const layout = "January 2006"

var (
	ErrInvalidDateFormat = errors.New("invalid date format, expected \"Month YYYY\"")
	ErrInvalidRange      = fmt.Errorf("%w: start month is after end month", ErrInvalidDateFormat)
)

// MonthYear identifies a single calendar month.
type MonthYear struct {
	Year  int
	Month time.Month
}

// Parse accepts full month names followed by a four digit year, e.g. "April 2018".
func Parse(s string) (MonthYear, error) {
	t, err := time.Parse(layout, strings.TrimSpace(s))
	if err != nil {
		return MonthYear{}, fmt.Errorf("%w: %q", ErrInvalidDateFormat, s)
	}
	return MonthYear{Year: t.Year(), Month: t.Month()}, nil
}

// FromNames builds a MonthYear from a full month name and a year string,
// the way releases are tagged.
func FromNames(month, year string) (MonthYear, error) {
	return Parse(month + " " + year)
}

func Current(now time.Time) MonthYear {
	return MonthYear{Year: now.Year(), Month: now.Month()}
}

func (m MonthYear) String() string {
	return m.firstDay().Format(layout)
}

// Period returns the canonical "YYYY-MM" key.
func (m MonthYear) Period() string {
	return m.firstDay().Format("2006-01")
}

func (m MonthYear) YearString() string {
	return strconv.Itoa(m.Year)
}

func (m MonthYear) Index() int {
	return m.Year*12 + int(m.Month) - 1
}

func (m MonthYear) IsZero() bool {
	return m.Year == 0 && m.Month == 0
}

func (m MonthYear) Before(o MonthYear) bool {
	return m.Index() < o.Index()
}

// Next jumps to day 1 of the following month, so day-of-month arithmetic
// can never skip or repeat a month.
func (m MonthYear) Next() MonthYear {
	next := m.firstDay().AddDate(0, 1, 0)
	return MonthYear{Year: next.Year(), Month: next.Month()}
}

func (m MonthYear) firstDay() time.Time {
	return time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC)
}

// MonthNumber maps a full month name to its calendar number.
func MonthNumber(name string) (int, bool) {
	t, err := time.Parse("January", strings.TrimSpace(name))
	if err != nil {
		return 0, false
	}
	return int(t.Month()), true
}
