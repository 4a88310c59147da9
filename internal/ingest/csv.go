package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"pixie/internal/schema"
)

// csvSource reads one CSV file. The header row is mapped to property codes
// once; a source column whose original header ends in a list separator is
// split into a slice on that separator.
type csvSource struct {
	closer io.Closer
	reader *csv.Reader
	table  *schema.Table

	columns    []string
	separators []string
}

func newCSVSource(f io.ReadCloser, table *schema.Table) (*csvSource, error) {
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("csv source: empty file")
		}

		return nil, fmt.Errorf("csv source: read header: %w", err)
	}

	columns, err := table.MapHeader(header)
	if err != nil {
		return nil, fmt.Errorf("csv source: %w", err)
	}

	separators := make([]string, len(header))

	for i, field := range header {
		name := strings.TrimSpace(field)
		if name == "" {
			continue
		}

		switch name[len(name)-1] {
		case ',', '|', ';':
			separators[i] = string(name[len(name)-1])
		}
	}

	return &csvSource{
		closer:     f,
		reader:     r,
		table:      table,
		columns:    columns,
		separators: separators,
	}, nil
}

func (s *csvSource) Next() (Record, error) {
	row, err := s.reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}

		return nil, fmt.Errorf("csv source: %w", err)
	}

	record := make(Record, len(row))

	for i, cell := range row {
		if i >= len(s.columns) {
			break
		}

		cell = strings.TrimSpace(cell)
		if cell == "" {
			continue
		}

		code := s.columns[i]

		if sep := s.separators[i]; sep != "" {
			parts := strings.Split(cell, sep)
			values := make([]any, 0, len(parts))

			for _, part := range parts {
				if part = strings.TrimSpace(part); part != "" {
					values = append(values, part)
				}
			}

			record[code] = values

			continue
		}

		record[code] = coerce(s.table, code, cell)
	}

	return record, nil
}

func (s *csvSource) Close() error {
	return s.closer.Close()
}

// coerce converts a CSV cell to the declared property type. Unparseable
// values stay strings; the store serializes whatever it is handed.
func coerce(table *schema.Table, code, cell string) any {
	p := table.Property(code)
	if p == nil || p.Type != schema.TypeInt {
		return cell
	}

	n, err := strconv.ParseInt(cell, 10, 64)
	if err != nil {
		return cell
	}

	return n
}
