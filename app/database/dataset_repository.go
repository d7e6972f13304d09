package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lib/pq"
	"github.com/lysyi3m/ae-comb/app/table"
)

// DatasetRepository stores the clean dataset as a plain relational table.
type DatasetRepository struct {
	db *DB
}

func NewDatasetRepository(db *DB) *DatasetRepository {
	return &DatasetRepository{db: db}
}

// ReplaceTable drops name if it exists and recreates it from t inside one
// transaction, so readers see either the old or the new dataset.
func (r *DatasetRepository) ReplaceTable(ctx context.Context, name string, t *table.Table) error {
	if t.NumColumns() == 0 {
		return fmt.Errorf("table %q has no columns", name)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	quoted := pq.QuoteIdentifier(name)

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoted); err != nil {
		return fmt.Errorf("failed to drop table: %w", err)
	}

	if _, err := tx.ExecContext(ctx, createStatement(quoted, t)); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	switch r.db.Driver {
	case DriverPostgres:
		err = copyRows(ctx, tx, name, t)
	default:
		err = insertRows(ctx, tx, quoted, t)
	}
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	slog.Debug("Table replaced", "table", name, "rows", t.NumRows(), "columns", t.NumColumns())
	return nil
}

func createStatement(quoted string, t *table.Table) string {
	defs := make([]string, 0, t.NumColumns())
	for _, name := range t.Columns() {
		col, _ := t.Column(name)
		sqlType := "TEXT"
		if col.Type() == "numeric" {
			sqlType = "NUMERIC"
		}
		defs = append(defs, pq.QuoteIdentifier(name)+" "+sqlType)
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", quoted, strings.Join(defs, ", "))
}

func copyRows(ctx context.Context, tx *sql.Tx, name string, t *table.Table) error {
	stmt, err := tx.PrepareContext(ctx, pq.CopyIn(name, t.Columns()...))
	if err != nil {
		return fmt.Errorf("failed to prepare copy: %w", err)
	}
	defer stmt.Close()

	for i := 0; i < t.NumRows(); i++ {
		if _, err := stmt.ExecContext(ctx, rowValues(t, i)...); err != nil {
			return fmt.Errorf("failed to copy row %d: %w", i, err)
		}
	}

	if _, err := stmt.ExecContext(ctx); err != nil {
		return fmt.Errorf("failed to flush copy: %w", err)
	}

	return nil
}

func insertRows(ctx context.Context, tx *sql.Tx, quoted string, t *table.Table) error {
	columns := make([]string, 0, t.NumColumns())
	placeholders := make([]string, 0, t.NumColumns())
	for _, name := range t.Columns() {
		columns = append(columns, pq.QuoteIdentifier(name))
		placeholders = append(placeholders, "?")
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quoted, strings.Join(columns, ", "), strings.Join(placeholders, ", "))
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i := 0; i < t.NumRows(); i++ {
		if _, err := stmt.ExecContext(ctx, rowValues(t, i)...); err != nil {
			return fmt.Errorf("failed to insert row %d: %w", i, err)
		}
	}

	return nil
}

func rowValues(t *table.Table, row int) []any {
	cells := t.Row(row)
	values := make([]any, len(cells))
	for j, c := range cells {
		values[j] = c.Value()
	}
	return values
}

// LatestRows reads back the newest rows ordered by Period.
func (r *DatasetRepository) LatestRows(ctx context.Context, name string, limit int) (*table.Table, error) {
	query := fmt.Sprintf(`SELECT * FROM %s ORDER BY %s DESC LIMIT %d`,
		pq.QuoteIdentifier(name), pq.QuoteIdentifier("Period"), limit)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest rows: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	out := table.New(columns...)
	raw := make([]any, len(columns))
	dest := make([]any, len(columns))
	for i := range raw {
		dest[i] = &raw[i]
	}

	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan dataset row: %w", err)
		}

		cells := make([]table.Cell, len(raw))
		for i, v := range raw {
			cells[i] = cellFromDriver(v)
		}
		if err := out.AppendRow(cells); err != nil {
			return nil, err
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dataset rows: %w", err)
	}

	return out, nil
}

func cellFromDriver(v any) table.Cell {
	switch x := v.(type) {
	case nil:
		return table.Missing()
	case []byte:
		return table.Parse(string(x))
	case string:
		return table.Parse(x)
	default:
		return table.Parse(fmt.Sprint(x))
	}
}

func (r *DatasetRepository) CountRows(ctx context.Context, name string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+pq.QuoteIdentifier(name)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count rows: %w", err)
	}
	return count, nil
}

func (r *DatasetRepository) LatestPeriod(ctx context.Context, name string) (string, error) {
	var latest sql.NullString
	query := fmt.Sprintf("SELECT MAX(%s) FROM %s", pq.QuoteIdentifier("Period"), pq.QuoteIdentifier(name))
	if err := r.db.QueryRowContext(ctx, query).Scan(&latest); err != nil {
		return "", fmt.Errorf("failed to get latest period: %w", err)
	}
	return latest.String, nil
}
