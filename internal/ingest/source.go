// Package ingest feeds external data files into a pixie store: it reads CSV,
// JSON-array, and NDJSON sources, maps source field names onto property codes
// through the table's header rules, and writes records in committed batches.
package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"pixie/internal/schema"
)

// Record is one decoded source row, keyed by mapped property code.
type Record map[string]any

// Source yields records from one data file. Next returns io.EOF when the
// source is exhausted.
type Source interface {
	Next() (Record, error)
	Close() error
}

// Open opens the data file and picks a reader by extension. The table's
// header-mapping rules apply to CSV columns and JSON attribute names alike.
func Open(path string, table *schema.Table) (Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		src, err := newCSVSource(f, table)
		if err != nil {
			_ = f.Close()

			return nil, err
		}

		return src, nil
	case ".ndjson", ".jsonl":
		return newLinesSource(f, table), nil
	case ".json":
		src, err := newArraySource(f, table)
		if err != nil {
			_ = f.Close()

			return nil, err
		}

		return src, nil
	default:
		_ = f.Close()

		return nil, fmt.Errorf("unsupported source format %q", filepath.Ext(path))
	}
}
