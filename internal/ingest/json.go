package ingest

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"pixie/internal/schema"
)

// arraySource streams a JSON file holding one top-level array of objects.
// Records are decoded one element at a time, so file size is bounded by the
// largest record, not the whole array.
type arraySource struct {
	closer  io.Closer
	decoder *json.Decoder
	table   *schema.Table
}

func newArraySource(f io.ReadCloser, table *schema.Table) (*arraySource, error) {
	dec := json.NewDecoder(f)

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("json source: %w", err)
	}

	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return nil, fmt.Errorf("json source: expected a top-level array, got %v", tok)
	}

	return &arraySource{closer: f, decoder: dec, table: table}, nil
}

func (s *arraySource) Next() (Record, error) {
	if !s.decoder.More() {
		return nil, io.EOF
	}

	var raw map[string]any

	err := s.decoder.Decode(&raw)
	if err != nil {
		return nil, fmt.Errorf("json source: %w", err)
	}

	return mapRecord(s.table, raw)
}

func (s *arraySource) Close() error {
	return s.closer.Close()
}

// linesSource reads newline-delimited JSON, one object per line. Blank lines
// are skipped.
type linesSource struct {
	closer  io.Closer
	scanner *bufio.Scanner
	table   *schema.Table
}

func newLinesSource(f io.ReadCloser, table *schema.Table) *linesSource {
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	return &linesSource{closer: f, scanner: scanner, table: table}
}

func (s *linesSource) Next() (Record, error) {
	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" {
			continue
		}

		var raw map[string]any

		err := json.Unmarshal([]byte(line), &raw)
		if err != nil {
			return nil, fmt.Errorf("ndjson source: %w", err)
		}

		return mapRecord(s.table, raw)
	}

	err := s.scanner.Err()
	if err != nil {
		return nil, fmt.Errorf("ndjson source: %w", err)
	}

	return nil, io.EOF
}

func (s *linesSource) Close() error {
	return s.closer.Close()
}

// mapRecord renames the attributes of one decoded object through the table's
// header rules. Values pass through untouched.
func mapRecord(table *schema.Table, raw map[string]any) (Record, error) {
	fields := make([]string, 0, len(raw))
	for field := range raw {
		fields = append(fields, field)
	}

	mapped, err := table.MapHeader(fields)
	if err != nil {
		return nil, err
	}

	record := make(Record, len(raw))
	for i, field := range fields {
		record[mapped[i]] = raw[field]
	}

	return record, nil
}
