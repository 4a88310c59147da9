package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"pixie/internal/store"
)

// defaultBatch is the number of writes grouped into one transaction when the
// importer is not configured otherwise.
const defaultBatch = 500

// Importer drives one bulk load of a single table.
type Importer struct {
	Store *store.Store
	Table string

	// Batch is the number of records per transaction; zero means the default.
	Batch int

	// Limit caps the number of records read from the source; zero means all.
	Limit int

	// SkipExisting makes the importer pass over records whose primary key is
	// already present, using the preloaded key set for the existence checks.
	SkipExisting bool

	// Mode is the write mode applied to every record; empty means replace.
	Mode store.Mode

	// Filter scopes existence checks and the key cache to a subset of the
	// table, matching the where filter of store.Has.
	Filter map[string]any
}

// Stats summarizes one import run.
type Stats struct {
	// RunID identifies the run; time-ordered so runs sort chronologically.
	RunID uuid.UUID

	Read     int
	Written  int
	Skipped  int
	Rejected int

	Elapsed time.Duration
}

// Run reads the source to exhaustion (or the configured limit) and writes
// every record into the table. Records the store rejects for a missing
// primary key are counted and skipped; any other error aborts the run with
// the current batch rolled back.
func (imp *Importer) Run(ctx context.Context, src Source) (Stats, error) {
	stats := Stats{}

	runID, err := uuid.NewV7()
	if err != nil {
		return stats, fmt.Errorf("import %s: run id: %w", imp.Table, err)
	}

	stats.RunID = runID

	batchSize := imp.Batch
	if batchSize <= 0 {
		batchSize = defaultBatch
	}

	started := time.Now()

	err = imp.Store.Begin(ctx)
	if err != nil {
		return stats, fmt.Errorf("import %s: %w", imp.Table, err)
	}

	inBatch := 0

	fail := func(cause error) (Stats, error) {
		_ = imp.Store.Rollback(ctx)
		stats.Elapsed = time.Since(started)

		return stats, fmt.Errorf("import %s: %w", imp.Table, cause)
	}

	for {
		if err = ctx.Err(); err != nil {
			return fail(err)
		}

		if imp.Limit > 0 && stats.Read >= imp.Limit {
			break
		}

		record, err := src.Next()
		if err != nil {
			if err == io.EOF {
				break
			}

			return fail(err)
		}

		stats.Read++

		if imp.SkipExisting {
			key := recordKey(imp.Store, imp.Table, record)
			if key != "" {
				exists, err := imp.Store.Has(ctx, imp.Table, key, true, imp.Filter)
				if err != nil {
					return fail(err)
				}

				if exists {
					stats.Skipped++

					continue
				}
			}
		}

		err = imp.Store.Set(ctx, imp.Table, record, &store.SetOptions{
			Mode:   imp.Mode,
			Filter: imp.Filter,
		})
		if err != nil {
			if errors.Is(err, store.ErrIntegrity) {
				stats.Rejected++

				continue
			}

			return fail(err)
		}

		stats.Written++
		inBatch++

		if inBatch >= batchSize {
			err = imp.Store.Commit(ctx)
			if err != nil {
				return fail(err)
			}

			err = imp.Store.Begin(ctx)
			if err != nil {
				return fail(err)
			}

			inBatch = 0
		}
	}

	err = imp.Store.Commit(ctx)
	if err != nil {
		return fail(err)
	}

	stats.Elapsed = time.Since(started)

	return stats, nil
}

// recordKey resolves the record's primary-key value without writing it.
func recordKey(s *store.Store, table string, record Record) string {
	t := s.Schema().Table(table)
	if t == nil {
		return ""
	}

	value, ok := record[t.PkName]
	if !ok {
		return ""
	}

	return fmt.Sprintf("%v", value)
}
