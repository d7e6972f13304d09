package table

import (
	"fmt"
	"slices"
	"sort"
	"strings"
)

// Column is a named, typed vector of cells. Categorical columns carry the
// sorted label set of their values.
type Column struct {
	Name       string
	Cells      []Cell
	categories []string
}

func (c *Column) IsCategorical() bool {
	return c.categories != nil
}

func (c *Column) Categories() []string {
	return c.categories
}

// Type reports the effective column type: category, numeric, text, mixed or empty.
func (c *Column) Type() string {
	if c.IsCategorical() {
		return "category"
	}

	var numbers, texts int
	for _, cell := range c.Cells {
		switch cell.Kind() {
		case KindNumber:
			numbers++
		case KindText:
			texts++
		}
	}

	switch {
	case numbers > 0 && texts > 0:
		return "mixed"
	case numbers > 0:
		return "numeric"
	case texts > 0:
		return "text"
	default:
		return "empty"
	}
}

func (c *Column) clone() *Column {
	return &Column{
		Name:       c.Name,
		Cells:      slices.Clone(c.Cells),
		categories: slices.Clone(c.categories),
	}
}

// Table is an ordered set of equally long columns.
type Table struct {
	columns []*Column
	index   map[string]int
	rows    int
}

func New(names ...string) *Table {
	t := &Table{index: make(map[string]int)}
	for _, name := range names {
		t.addColumn(name, nil)
	}
	return t
}

func (t *Table) NumRows() int {
	return t.rows
}

func (t *Table) NumColumns() int {
	return len(t.columns)
}

func (t *Table) Columns() []string {
	names := make([]string, len(t.columns))
	for i, c := range t.columns {
		names[i] = c.Name
	}
	return names
}

func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[name]
	return ok
}

func (t *Table) Column(name string) (*Column, bool) {
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}
	return t.columns[i], true
}

// Value returns the cell at row i of the named column; absent columns read as missing.
func (t *Table) Value(row int, name string) Cell {
	c, ok := t.Column(name)
	if !ok {
		return Missing()
	}
	return c.Cells[row]
}

func (t *Table) Row(i int) []Cell {
	row := make([]Cell, len(t.columns))
	for j, c := range t.columns {
		row[j] = c.Cells[i]
	}
	return row
}

func (t *Table) AppendRow(cells []Cell) error {
	if len(cells) != len(t.columns) {
		return fmt.Errorf("row has %d cells, table has %d columns", len(cells), len(t.columns))
	}
	for j, c := range t.columns {
		c.Cells = append(c.Cells, cells[j])
	}
	t.rows++
	return nil
}

// SetColumn replaces the named column in place or appends it.
func (t *Table) SetColumn(name string, cells []Cell) error {
	if len(t.columns) > 0 && len(cells) != t.rows {
		return fmt.Errorf("column %q has %d cells, table has %d rows", name, len(cells), t.rows)
	}
	if len(t.columns) == 0 {
		t.rows = len(cells)
	}

	if i, ok := t.index[name]; ok {
		t.columns[i] = &Column{Name: name, Cells: cells}
		return nil
	}
	t.addColumn(name, cells)
	return nil
}

// Fill sets every row of the named column to the same value.
func (t *Table) Fill(name string, value Cell) {
	cells := make([]Cell, t.rows)
	for i := range cells {
		cells[i] = value
	}
	// lengths always match
	_ = t.SetColumn(name, cells)
}

// Rename applies old->new column names. Unknown names are ignored and a rename
// onto an already present name is skipped, so applying a mapping twice is a no-op.
func (t *Table) Rename(mapping map[string]string) []string {
	var renamed []string
	for _, c := range t.columns {
		target, ok := mapping[c.Name]
		if !ok || target == c.Name {
			continue
		}
		if _, exists := t.index[target]; exists {
			continue
		}
		delete(t.index, c.Name)
		renamed = append(renamed, c.Name)
		c.Name = target
		t.reindex()
	}
	return renamed
}

func (t *Table) DropColumns(names ...string) {
	if len(names) == 0 {
		return
	}
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}

	kept := t.columns[:0]
	for _, c := range t.columns {
		if !drop[c.Name] {
			kept = append(kept, c)
		}
	}
	t.columns = kept
	t.reindex()
	if len(t.columns) == 0 {
		t.rows = 0
	}
}

// SetCategorical types a column as categorical with its distinct labels.
func (t *Table) SetCategorical(name string) error {
	c, ok := t.Column(name)
	if !ok {
		return fmt.Errorf("column %q not found", name)
	}

	seen := make(map[string]bool)
	labels := make([]string, 0)
	for _, cell := range c.Cells {
		if cell.IsMissing() {
			continue
		}
		s := cell.String()
		if !seen[s] {
			seen[s] = true
			labels = append(labels, s)
		}
	}
	sort.Strings(labels)
	c.categories = labels
	return nil
}

func (t *Table) Clone() *Table {
	out := &Table{index: make(map[string]int, len(t.columns)), rows: t.rows}
	for _, c := range t.columns {
		out.index[c.Name] = len(out.columns)
		out.columns = append(out.columns, c.clone())
	}
	return out
}

// Filter returns a new table with the rows for which keep returns true.
func (t *Table) Filter(keep func(row int) bool) *Table {
	idx := make([]int, 0, t.rows)
	for i := 0; i < t.rows; i++ {
		if keep(i) {
			idx = append(idx, i)
		}
	}
	return t.take(idx)
}

// SortStable returns a new table ordered by less, keeping the input order of ties.
func (t *Table) SortStable(less func(a, b int) bool) *Table {
	idx := make([]int, t.rows)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return less(idx[a], idx[b])
	})
	return t.take(idx)
}

// MissingCounts reports the number of missing cells per column, in column order.
func (t *Table) MissingCounts() []ColumnCount {
	counts := make([]ColumnCount, 0, len(t.columns))
	for _, c := range t.columns {
		n := 0
		for _, cell := range c.Cells {
			if cell.IsMissing() {
				n++
			}
		}
		counts = append(counts, ColumnCount{Column: c.Name, Count: n})
	}
	return counts
}

// DropMissingRows removes in place every row holding a missing cell.
func (t *Table) DropMissingRows() int {
	before := t.rows
	filtered := t.Filter(func(i int) bool {
		for _, c := range t.columns {
			if c.Cells[i].IsMissing() {
				return false
			}
		}
		return true
	})
	t.replace(filtered)
	return before - t.rows
}

func (t *Table) DuplicateCount() int {
	seen := make(map[string]bool, t.rows)
	dups := 0
	for i := 0; i < t.rows; i++ {
		k := t.rowKey(i)
		if seen[k] {
			dups++
			continue
		}
		seen[k] = true
	}
	return dups
}

// DropDuplicates removes in place every row equal to an earlier one.
func (t *Table) DropDuplicates() int {
	before := t.rows
	seen := make(map[string]bool, t.rows)
	filtered := t.Filter(func(i int) bool {
		k := t.rowKey(i)
		if seen[k] {
			return false
		}
		seen[k] = true
		return true
	})
	t.replace(filtered)
	return before - t.rows
}

// Unique lists the distinct string values of a column in order of first appearance.
func (t *Table) Unique(name string) []string {
	c, ok := t.Column(name)
	if !ok {
		return nil
	}
	seen := make(map[string]bool)
	var values []string
	for _, cell := range c.Cells {
		s := cell.String()
		if !seen[s] {
			seen[s] = true
			values = append(values, s)
		}
	}
	return values
}

// Concat stacks tables vertically. The result has the union of all columns in
// order of first appearance; cells of columns a table lacks are missing.
func Concat(tables ...*Table) *Table {
	out := New()
	for _, t := range tables {
		for _, c := range t.columns {
			if !out.HasColumn(c.Name) {
				out.addColumn(c.Name, make([]Cell, out.rows))
			}
		}
		for _, c := range out.columns {
			if src, ok := t.Column(c.Name); ok {
				c.Cells = append(c.Cells, src.Cells...)
			} else {
				c.Cells = append(c.Cells, make([]Cell, t.rows)...)
			}
		}
		out.rows += t.rows
	}
	return out
}

// ColumnCount pairs a column name with a count.
type ColumnCount struct {
	Column string
	Count  int
}

func (t *Table) addColumn(name string, cells []Cell) {
	t.index[name] = len(t.columns)
	t.columns = append(t.columns, &Column{Name: name, Cells: cells})
}

func (t *Table) reindex() {
	t.index = make(map[string]int, len(t.columns))
	for i, c := range t.columns {
		t.index[c.Name] = i
	}
}

func (t *Table) take(idx []int) *Table {
	out := &Table{index: make(map[string]int, len(t.columns)), rows: len(idx)}
	for _, c := range t.columns {
		cells := make([]Cell, len(idx))
		for j, i := range idx {
			cells[j] = c.Cells[i]
		}
		out.index[c.Name] = len(out.columns)
		out.columns = append(out.columns, &Column{Name: c.Name, Cells: cells, categories: c.categories})
	}
	return out
}

func (t *Table) replace(o *Table) {
	t.columns = o.columns
	t.index = o.index
	t.rows = o.rows
}

func (t *Table) rowKey(i int) string {
	var b strings.Builder
	for _, c := range t.columns {
		b.WriteString(c.Cells[i].key())
		b.WriteByte(0x1f)
	}
	return b.String()
}
