package dataset

import (
	"log/slog"
	"maps"

	"github.com/lysyi3m/ae-comb/app/period"
	"github.com/lysyi3m/ae-comb/app/table"
)

const (
	YearColumn   = "Year"
	MonthColumn  = "Month"
	PeriodColumn = "Period"
)

// DefaultSynonyms maps historical column names to their canonical form.
var DefaultSynonyms = map[string]string{
	"Number of A&E attendances Type 1":                     "A&E attendances Type 1",
	"Number of A&E attendances Type 2":                     "A&E attendances Type 2",
	"Number of A&E attendances Other A&E Department":       "A&E attendances Other A&E Department",
	"Number of attendances over 4hrs Type 1":               "Attendances over 4hrs Type 1",
	"Number of attendances over 4hrs Type 2":               "Attendances over 4hrs Type 2",
	"Number of attendances over 4hrs Other A&E Department": "Attendances over 4hrs Other Department",
}

// Reconciler maps one release onto the canonical schema and tags it with its
// reporting month.
type Reconciler struct {
	synonyms map[string]string
}

// NewReconciler uses DefaultSynonyms when synonyms is empty.
func NewReconciler(synonyms map[string]string) *Reconciler {
	if len(synonyms) == 0 {
		synonyms = DefaultSynonyms
	}
	return &Reconciler{synonyms: maps.Clone(synonyms)}
}

// Run returns a renamed copy of raw with Year and Month columns set to the
// release month. Running it on its own output changes nothing.
func (r *Reconciler) Run(raw *table.Table, month period.MonthYear) *table.Table {
	t := raw.Clone()

	renamed := t.Rename(r.synonyms)
	if len(renamed) > 0 {
		slog.Debug("Renamed historical columns", "month", month.String(), "columns", renamed)
	}

	t.Fill(YearColumn, table.Text(month.YearString()))
	t.Fill(MonthColumn, table.Text(month.Month.String()))

	return t
}
