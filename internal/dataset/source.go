// Package dataset reads the tabular data the dashboard visualizes and
// computes per-column statistics for inspect_column. Sources are read-only.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"dashagent/internal/logging"
)

var (
	// ErrColumnNotFound is returned when a column name is not in the source.
	ErrColumnNotFound = errors.New("column not found")

	// ErrUnsupportedFormat is returned for file types without a reader.
	ErrUnsupportedFormat = errors.New("unsupported dataset format")
)

// SampleMode selects which rows a row limit keeps.
type SampleMode string

const (
	SampleHead   SampleMode = "head"
	SampleRandom SampleMode = "random"
)

// Cell is one value as read from the source. Missing covers SQL NULL and
// the usual textual null markers in CSV files.
type Cell struct {
	Value   string
	Missing bool
}

// ColumnData is the sampled contents of one column.
type ColumnData struct {
	Name      string
	Cells     []Cell
	RowsTotal int
}

// Source is a tabular dataset.
type Source interface {
	// Columns lists column names in file order.
	Columns(ctx context.Context) ([]string, error)

	// Column reads one column, keeping at most limit rows chosen by mode.
	// A limit of zero keeps every row.
	Column(ctx context.Context, name string, limit int, mode SampleMode) (*ColumnData, error)

	// Describe names the source for log lines and reports.
	Describe() string

	Close() error
}

// Open picks a reader by file extension. table is required for SQLite files
// holding more than one table.
func Open(path, table string) (Source, error) {
	ext := strings.ToLower(filepath.Ext(path))
	logging.DatasetDebug("opening dataset %s (ext=%s table=%q)", path, ext, table)

	switch ext {
	case ".csv", ".tsv":
		return NewCSV(path), nil
	case ".db", ".sqlite", ".sqlite3":
		return OpenSQLite(path, table)
	default:
		return nil, fmt.Errorf("%w: %q (supported: .csv, .tsv, .db, .sqlite, .sqlite3)", ErrUnsupportedFormat, ext)
	}
}

func columnNotFound(name string, columns []string) error {
	return fmt.Errorf("%w: %q (have %d columns)", ErrColumnNotFound, name, len(columns))
}

// nullMarkers are CSV cell values read as missing.
var nullMarkers = map[string]bool{
	"":     true,
	"NA":   true,
	"N/A":  true,
	"n/a":  true,
	"NaN":  true,
	"nan":  true,
	"NULL": true,
	"null": true,
	"None": true,
	"<NA>": true,
	"#N/A": true,
}

func textCell(s string) Cell {
	trimmed := strings.TrimSpace(s)
	if nullMarkers[trimmed] {
		return Cell{Missing: true}
	}
	return Cell{Value: trimmed}
}
