package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"maps"
	"reflect"
	"sort"
	"strings"

	"github.com/zeebo/xxh3"

	"pixie/internal/schema"
)

// Mode selects how Set treats the raw payload.
type Mode string

const (
	// ModeReplace replaces the entire raw payload.
	ModeReplace Mode = "replace"

	// ModePatch shallow-merges the new payload into the existing one.
	ModePatch Mode = "patch"

	// ModeNoop leaves the raw payload alone and writes only side columns,
	// e.g. a workflow marking.
	ModeNoop Mode = "noop"
)

// SetOptions carries the optional parts of a write.
type SetOptions struct {
	// Key overrides the primary key; when empty it is read from the payload.
	Key string

	// Mode defaults to ModeReplace.
	Mode Mode

	// Properties are declared writable columns set alongside the payload.
	// They are removed from the payload before it is serialized so a value is
	// never duplicated between the raw column and a plain column.
	Properties map[string]any

	// Filter names the preload bucket the new key is appended to, matching
	// the where filter a bulk importer passes to Has.
	Filter map[string]any
}

// Set writes one record. The primary key comes from the options or, failing
// that, from the payload itself; a record with no resolvable primary key is
// rejected with ErrIntegrity.
//
// Bulk writers are expected to wrap batches in Begin/Commit; Set itself does
// not manage transactions.
func (s *Store) Set(ctx context.Context, table string, value map[string]any, opts *SetOptions) error {
	t, err := s.table(table)
	if err != nil {
		return err
	}

	options := SetOptions{}
	if opts != nil {
		options = *opts
	}

	if options.Mode == "" {
		options.Mode = ModeReplace
	}

	var payload map[string]any
	if value != nil {
		payload = maps.Clone(value)
	}

	key := options.Key
	if key == "" && payload != nil {
		if raw, ok := payload[t.PkName]; ok {
			key = formatKey(raw)
		}
	}

	if key == "" {
		return fmt.Errorf("%w: no %s in payload for table %s", ErrIntegrity, t.PkName, t.Name)
	}

	if options.Mode == ModePatch {
		existing, ok, err := s.rawPayload(ctx, t, key)
		if err != nil {
			return err
		}

		if ok {
			merged := maps.Clone(existing)
			maps.Copy(merged, payload)
			payload = merged
		}
	}

	columns := make(map[string]any, len(options.Properties)+2)

	for code, propValue := range options.Properties {
		p := t.Property(code)
		if p == nil && code != MarkingColumn {
			return fmt.Errorf("table %s has no property %q", t.Name, code)
		}

		if p != nil && p.Generated {
			return fmt.Errorf("table %s property %q is generated and not writable", t.Name, code)
		}

		columns[code] = propValue
		delete(payload, code)
	}

	columns[t.PkName] = key

	if options.Mode != ModeNoop && payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("set %s: encode payload: %w", t.Name, err)
		}

		columns[RawColumn] = string(encoded)
	}

	err = s.execWrite(ctx, t, key, columns, options.Mode)
	if err != nil {
		return err
	}

	// Keep an already-preloaded bucket in sync with the write. Buckets are
	// only ever appended to; Delete does not remove keys (valid for one
	// import session, see Has).
	if bucket, ok := s.keys[filterKey(t.Name, options.Filter)]; ok {
		bucket[key] = struct{}{}
	}

	return nil
}

// execWrite runs the cached statement for the given column set. Replace and
// patch modes upsert the whole row; noop updates side columns in place so the
// raw payload survives.
func (s *Store) execWrite(ctx context.Context, t *schema.Table, key string, columns map[string]any, mode Mode) error {
	cols := make([]string, 0, len(columns))
	for col := range columns {
		cols = append(cols, col)
	}

	sort.Strings(cols)

	stmt, err := s.prepared(ctx, t, cols, mode)
	if err != nil {
		return err
	}

	args := make([]any, 0, len(cols))

	if mode == ModeNoop {
		for _, col := range cols {
			if col == t.PkName {
				continue
			}

			args = append(args, bindValue(columns[col]))
		}

		if len(args) == 0 {
			return nil
		}

		args = append(args, key)
	} else {
		for _, col := range cols {
			args = append(args, bindValue(columns[col]))
		}
	}

	_, err = stmt.ExecContext(ctx, args...)
	if err != nil {
		return classify("set "+t.Name, err)
	}

	return nil
}

// prepared returns the cached statement for (table, columns, mode), building
// and caching it on first use. The cache belongs to this store instance and
// is closed with it.
func (s *Store) prepared(ctx context.Context, t *schema.Table, cols []string, mode Mode) (*sql.Stmt, error) {
	sig := xxh3.HashString(t.Name + "\x00" + string(mode) + "\x00" + strings.Join(cols, ","))

	if stmt, ok := s.stmts[sig]; ok {
		return stmt, nil
	}

	var query string

	if mode == ModeNoop {
		sets := make([]string, 0, len(cols))

		for _, col := range cols {
			if col == t.PkName {
				continue
			}

			sets = append(sets, col+" = ?")
		}

		if len(sets) == 0 {
			// Nothing besides the key; prepare a harmless no-op update.
			sets = append(sets, t.PkName+" = "+t.PkName)
		}

		query = fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?",
			t.Name, strings.Join(sets, ", "), t.PkName)
	} else {
		query = fmt.Sprintf("INSERT OR REPLACE INTO %s(%s) VALUES(%s)",
			t.Name, strings.Join(cols, ", "), placeholders(len(cols)))
	}

	stmt, err := s.db.PrepareContext(ctx, query)
	if err != nil {
		return nil, classify("prepare "+t.Name, err)
	}

	s.stmts[sig] = stmt

	return stmt, nil
}

// Delete removes a record by primary key and reports whether a row was
// actually removed. Preloaded key sets are deliberately left stale; see Has.
func (s *Store) Delete(ctx context.Context, table, key string) (bool, error) {
	t, err := s.table(table)
	if err != nil {
		return false, err
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", t.Name, t.PkName)

	res, err := s.db.ExecContext(ctx, query, key)
	if err != nil {
		return false, classify("delete "+table, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", table, err)
	}

	return affected > 0, nil
}

// rawPayload reads and decodes only the raw column for a key.
func (s *Store) rawPayload(ctx context.Context, t *schema.Table, key string) (map[string]any, bool, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?", RawColumn, t.Name, t.PkName)

	var raw sql.NullString

	err := s.db.QueryRowContext(ctx, query, key).Scan(&raw)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}

		return nil, false, classify("get "+t.Name, err)
	}

	if !raw.Valid || raw.String == "" {
		return map[string]any{}, true, nil
	}

	payload := make(map[string]any)

	err = json.Unmarshal([]byte(raw.String), &payload)
	if err != nil {
		return nil, false, fmt.Errorf("%w: table %s key %s: %v", ErrDecode, t.Name, key, err)
	}

	return payload, true, nil
}

// bindValue converts a payload value into a driver-bindable one. Structured
// values are serialized; scalars pass through.
func bindValue(v any) any {
	if v == nil {
		return nil
	}

	switch v.(type) {
	case string, []byte, bool, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, float32, float64:
		return v
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Map || rv.Kind() == reflect.Slice || rv.Kind() == reflect.Struct {
		encoded, err := json.Marshal(v)
		if err == nil {
			return string(encoded)
		}
	}

	return fmt.Sprintf("%v", v)
}
