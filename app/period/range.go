package period

import (
	"fmt"
	"strconv"
	"time"
)

// Range is an inclusive span of calendar months.
type Range struct {
	Start MonthYear
	End   MonthYear
}

// NewRange parses both ends. An empty end defaults to the month of now.
func NewRange(start, end string, now time.Time) (Range, error) {
	s, err := Parse(start)
	if err != nil {
		return Range{}, fmt.Errorf("start: %w", err)
	}

	e := Current(now)
	if end != "" {
		e, err = Parse(end)
		if err != nil {
			return Range{}, fmt.Errorf("end: %w", err)
		}
	}

	if e.Before(s) {
		return Range{}, fmt.Errorf("%w (%s > %s)", ErrInvalidRange, s, e)
	}

	return Range{Start: s, End: e}, nil
}

func (r Range) Len() int {
	return r.End.Index() - r.Start.Index() + 1
}

func (r Range) Months() []MonthYear {
	months := make([]MonthYear, 0, r.Len())
	for m := r.Start; !r.End.Before(m); m = m.Next() {
		months = append(months, m)
	}
	return months
}

func (r Range) Contains(m MonthYear) bool {
	return !m.Before(r.Start) && !r.End.Before(m)
}

// FiscalYears lists every reporting year overlapping [Start.Year-1, End.Year].
func (r Range) FiscalYears() []FiscalYear {
	years := make([]FiscalYear, 0, r.End.Year-r.Start.Year+2)
	for y := r.Start.Year - 1; y <= r.End.Year; y++ {
		years = append(years, FiscalYear(y))
	}
	return years
}

func (r Range) String() string {
	return r.Start.String() + " - " + r.End.String()
}

// FiscalYear is a reporting year starting in April of the given calendar year.
type FiscalYear int

func (f FiscalYear) StartYear() string {
	return strconv.Itoa(int(f))
}

// NextShort is the two digit suffix of the following calendar year.
func (f FiscalYear) NextShort() string {
	return fmt.Sprintf("%02d", (int(f)+1)%100)
}

// Label renders the publisher's label, e.g. "2018-19".
func (f FiscalYear) Label() string {
	return f.StartYear() + "-" + f.NextShort()
}
