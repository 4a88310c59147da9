package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/zeebo/xxh3"
)

// Get reads one record by primary key. A missing row is reported as a nil
// Item, not an error, so "not yet ingested" call sites stay simple.
func (s *Store) Get(ctx context.Context, table, key string) (*Item, error) {
	t, err := s.table(table)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT * FROM %s WHERE %s = ?", t.Name, t.PkName)

	rows, err := s.db.QueryContext(ctx, query, key)
	if err != nil {
		return nil, classify("get "+table, err)
	}

	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		err = rows.Err()
		if err != nil {
			return nil, classify("get "+table, err)
		}

		return nil, nil
	}

	cols, vals, err := scanDynamic(rows)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", table, err)
	}

	item, err := decodeRow(t, s.schema.Code, cols, vals)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", table, err)
	}

	return item, nil
}

// Has reports whether the key exists in the table.
//
// With preload unset it runs one COUNT query per call. With preload set, the
// first call for a given (table, filter) pair loads all matching primary keys
// into memory and every later call answers from that set; intended for
// high-volume existence checks during bulk ingestion where the same filter
// repeats thousands of times. The preloaded set is append-only (Set adds new
// keys) and is never invalidated on Delete.
func (s *Store) Has(ctx context.Context, table, key string, preload bool, where map[string]any) (bool, error) {
	t, err := s.table(table)
	if err != nil {
		return false, err
	}

	if !s.tableOnDisk(table) {
		return false, nil
	}

	if preload {
		bucket, err := s.preloadKeys(ctx, t.Name, where)
		if err != nil {
			return false, err
		}

		_, ok := bucket[key]

		return ok, nil
	}

	clauses := []string{t.PkName + " = ?"}
	args := []any{key}

	filterClauses, filterArgs, err := whereClauses(t, Query{Where: where})
	if err != nil {
		return false, err
	}

	clauses = append(clauses, filterClauses...)
	args = append(args, filterArgs...)

	query := fmt.Sprintf("SELECT COUNT(%s) FROM %s WHERE %s",
		t.PkName, t.Name, strings.Join(clauses, " AND "))

	var count int64

	err = s.db.QueryRowContext(ctx, query, args...).Scan(&count)
	if err != nil {
		return false, classify("has "+table, err)
	}

	return count > 0, nil
}

// Count returns the filtered row count. The bool result is false when the
// table does not physically exist yet or names a template; both are normal
// during bootstrap, not errors.
func (s *Store) Count(ctx context.Context, table string, where map[string]any) (int64, bool, error) {
	if strings.HasPrefix(table, "@") {
		return 0, false, nil
	}

	t, err := s.table(table)
	if err != nil {
		return 0, false, err
	}

	if !s.tableOnDisk(table) {
		return 0, false, nil
	}

	query := fmt.Sprintf("SELECT COUNT(%s) FROM %s", t.PkName, t.Name)

	clauses, args, err := whereClauses(t, Query{Where: where})
	if err != nil {
		return 0, false, err
	}

	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}

	var count int64

	err = s.db.QueryRowContext(ctx, query, args...).Scan(&count)
	if err != nil {
		return 0, false, classify("count "+table, err)
	}

	if len(where) == 0 {
		t.Total = count
	}

	return count, true, nil
}

// GetByIndex reads the record at the given position in primary-key order.
// Offset -1 picks a uniformly random row. Positional access is an O(n) scan;
// fine for sampling, wrong for paging.
//
// The random path draws against Count without re-checking concurrent
// deletions; under the single-writer model that is the caller's race to
// avoid.
func (s *Store) GetByIndex(ctx context.Context, table string, offset int) (*Item, error) {
	t, err := s.table(table)
	if err != nil {
		return nil, err
	}

	if offset == -1 {
		count, ok, err := s.Count(ctx, table, nil)
		if err != nil {
			return nil, err
		}

		if !ok || count == 0 {
			return nil, nil
		}

		offset = rand.IntN(int(count))
	}

	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s LIMIT 1 OFFSET ?", t.PkName, t.Name, t.PkName)

	var key string

	err = s.db.QueryRowContext(ctx, query, offset).Scan(&key)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}

		return nil, classify("get by index "+table, err)
	}

	return s.Get(ctx, table, key)
}

// Keys returns every primary key of the table, in primary-key order.
func (s *Store) Keys(ctx context.Context, table string) ([]string, error) {
	t, err := s.table(table)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s", t.PkName, t.Name, t.PkName)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, classify("keys "+table, err)
	}

	defer func() { _ = rows.Close() }()

	keys := make([]string, 0)

	for rows.Next() {
		var key string

		err = rows.Scan(&key)
		if err != nil {
			return nil, fmt.Errorf("keys %s: scan: %w", table, err)
		}

		keys = append(keys, key)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("keys %s: rows: %w", table, err)
	}

	return keys, nil
}

// preloadKeys loads (once) and returns the key set for a (table, filter)
// bucket.
func (s *Store) preloadKeys(ctx context.Context, table string, where map[string]any) (map[string]struct{}, error) {
	bucketKey := filterKey(table, where)

	if bucket, ok := s.keys[bucketKey]; ok {
		return bucket, nil
	}

	t, err := s.table(table)
	if err != nil {
		return nil, err
	}

	query, args, err := buildSelect(t, Query{Where: where, KeyOnly: true})
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify("preload keys "+table, err)
	}

	defer func() { _ = rows.Close() }()

	bucket := make(map[string]struct{})

	for rows.Next() {
		var key string

		err = rows.Scan(&key)
		if err != nil {
			return nil, fmt.Errorf("preload keys %s: scan: %w", table, err)
		}

		bucket[key] = struct{}{}
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("preload keys %s: rows: %w", table, err)
	}

	s.keys[bucketKey] = bucket

	return bucket, nil
}

// filterKey identifies a preload bucket. encoding/json sorts map keys, so
// identical filters hash identically.
func filterKey(table string, where map[string]any) string {
	encoded, err := json.Marshal(where)
	if err != nil {
		encoded = []byte(fmt.Sprintf("%v", where))
	}

	return fmt.Sprintf("%s-%x", table, xxh3.Hash(encoded))
}

// tableOnDisk reports whether the table has been created in the backing file.
func (s *Store) tableOnDisk(name string) bool {
	_, ok := s.existing[name]

	return ok
}

// scanDynamic scans the current row into generic values keyed by column.
func scanDynamic(rows *sql.Rows) ([]string, []any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("columns: %w", err)
	}

	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))

	for i := range vals {
		ptrs[i] = &vals[i]
	}

	err = rows.Scan(ptrs...)
	if err != nil {
		return nil, nil, fmt.Errorf("scan: %w", err)
	}

	return cols, vals, nil
}
