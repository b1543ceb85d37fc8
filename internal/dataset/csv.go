package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// CSVSource reads a delimited file with a header row. Each call opens the
// file afresh, so concurrent Column calls are safe.
type CSVSource struct {
	path  string
	comma rune
}

// NewCSV returns a source for path. Files ending in .tsv are tab separated.
func NewCSV(path string) *CSVSource {
	comma := ','
	if strings.EqualFold(filepath.Ext(path), ".tsv") {
		comma = '\t'
	}
	return &CSVSource{path: path, comma: comma}
}

func (s *CSVSource) Describe() string { return s.path }

func (s *CSVSource) Close() error { return nil }

func (s *CSVSource) open() (*os.File, *csv.Reader, []string, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open dataset: %w", err)
	}
	r := csv.NewReader(f)
	r.Comma = s.comma
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.ReuseRecord = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		f.Close()
		return nil, nil, nil, fmt.Errorf("dataset %s has no header row", s.path)
	}
	if err != nil {
		f.Close()
		return nil, nil, nil, fmt.Errorf("read header: %w", err)
	}

	names := make([]string, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		names[i] = strings.TrimSpace(h)
	}
	return f, r, names, nil
}

func (s *CSVSource) Columns(ctx context.Context) ([]string, error) {
	f, _, names, err := s.open()
	if err != nil {
		return nil, err
	}
	f.Close()
	return names, nil
}

func (s *CSVSource) Column(ctx context.Context, name string, limit int, mode SampleMode) (*ColumnData, error) {
	f, r, names, err := s.open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	idx := -1
	for i, n := range names {
		if n == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, columnNotFound(name, names)
	}

	smp := newSampler(limit, mode)
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", s.path, err)
		}
		if smp.seen%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if idx >= len(record) {
			smp.add(Cell{Missing: true})
			continue
		}
		smp.add(textCell(record[idx]))
	}

	return &ColumnData{Name: name, Cells: smp.result(), RowsTotal: smp.seen}, nil
}
