package dataset

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/lysyi3m/ae-comb/app/table"
)

// Export writes t as CSV to path. The file is written next to its final
// location and renamed, so readers never see a partial dataset.
func Export(t *table.Table, path string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".ae-comb-*.csv")
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := t.WriteCSV(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write CSV: %w", err)
	}

	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set export file mode: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close export file: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move export file: %w", err)
	}

	slog.Info("Dataset exported", "path", path, "rows", t.NumRows())
	return nil
}
