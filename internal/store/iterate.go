package store

import (
	"context"
	"errors"
	"fmt"
	"iter"
)

// Iterate returns a lazy sequence over the records matching the query. The
// row set is fetched when Iterate is called so query errors surface here;
// payload decoding happens per record as the sequence is consumed. Rows whose
// payload fails to decode are skipped rather than aborting the walk. Ranging
// over the sequence again replays the same snapshot.
func (s *Store) Iterate(ctx context.Context, table string, q Query) (iter.Seq2[string, *Item], error) {
	t, err := s.table(table)
	if err != nil {
		return nil, err
	}

	query, args, err := buildSelect(t, q)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify("iterate "+table, err)
	}

	defer func() { _ = rows.Close() }()

	type rawRow struct {
		cols []string
		vals []any
	}

	fetched := make([]rawRow, 0)

	for rows.Next() {
		cols, vals, err := scanDynamic(rows)
		if err != nil {
			return nil, fmt.Errorf("iterate %s: %w", table, err)
		}

		fetched = append(fetched, rawRow{cols: cols, vals: vals})
	}

	err = rows.Err()
	if err != nil {
		return nil, classify("iterate "+table, err)
	}

	owner := s.schema.Code

	return func(yield func(string, *Item) bool) {
		for _, row := range fetched {
			item, err := decodeRow(t, owner, row.cols, row.vals)
			if err != nil {
				if errors.Is(err, ErrDecode) {
					continue
				}

				return
			}

			if !yield(item.Key, item) {
				return
			}
		}
	}, nil
}
