package local

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/palantir/palantir-compute-module-wine-enricher/pkg/pipeline/table"
)

// ReadTable reads a delimited table from r using the default dialect.
func ReadTable(r io.Reader) (table.Table, error) {
	return table.ParseReader(r)
}

// ReadTableFile reads and parses the table at path.
func ReadTableFile(path string, d table.Dialect) (table.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return table.Table{}, fmt.Errorf("open input: %w", err)
	}
	defer func() { _ = f.Close() }()

	t, err := d.ParseReader(f)
	if err != nil {
		return table.Table{}, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return t, nil
}

// WriteTableFile serializes t to path, creating parent directories as needed. The file
// is written to a temporary name first and renamed into place.
func WriteTableFile(path string, t table.Table, d table.Dialect) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	tmpName := tmp.Name()
	if err := d.Write(tmp, t); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write output: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close output: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename output: %w", err)
	}
	return nil
}
