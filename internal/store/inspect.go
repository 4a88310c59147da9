package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"pixie/internal/schema"
)

// TableNames lists the tables physically present in the backing file, in
// creation order. Internal SQLite bookkeeping tables are excluded.
func (s *Store) TableNames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'")
	if err != nil {
		return nil, classify("list tables", err)
	}

	defer func() { _ = rows.Close() }()

	names := make([]string, 0)

	for rows.Next() {
		var name string

		err = rows.Scan(&name)
		if err != nil {
			return nil, fmt.Errorf("list tables: scan: %w", err)
		}

		names = append(names, name)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("list tables: rows: %w", err)
	}

	return names, nil
}

// TableExists reports whether the table is physically present in the file,
// regardless of what the compiled schema declares.
func (s *Store) TableExists(ctx context.Context, name string) (bool, error) {
	var count int64

	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name).Scan(&count)
	if err != nil {
		return false, classify("table exists", err)
	}

	return count > 0, nil
}

// PrimaryKey reads the primary-key column of a physical table from SQLite's
// own metadata rather than the compiled schema.
func (s *Store) PrimaryKey(ctx context.Context, table string) (string, error) {
	if !identRe.MatchString(table) {
		return "", fmt.Errorf("%w: invalid table name %q", schema.ErrSchema, table)
	}

	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT name FROM pragma_table_info('%s') WHERE pk = 1", table))
	if err != nil {
		return "", classify("primary key "+table, err)
	}

	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		err = rows.Err()
		if err != nil {
			return "", classify("primary key "+table, err)
		}

		return "", fmt.Errorf("%w: table %s has no primary key", schema.ErrSchema, table)
	}

	var name string

	err = rows.Scan(&name)
	if err != nil {
		return "", fmt.Errorf("primary key %s: scan: %w", table, err)
	}

	return name, nil
}

// Indexes lists the indexes of a physical table. Index names carry a table
// prefix on disk; the prefix is stripped so callers see property codes. The
// implicit primary-key index is included first.
func (s *Store) Indexes(ctx context.Context, table string) ([]schema.Index, error) {
	indexes := make([]schema.Index, 0)

	pk, err := s.PrimaryKey(ctx, table)
	if err == nil {
		indexes = append(indexes, schema.Index{
			Name:      pk,
			Type:      "btree",
			IsUnique:  true,
			IsPrimary: true,
		})
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT name, sql FROM sqlite_master WHERE type = 'index' AND tbl_name = ? AND name NOT LIKE 'sqlite_%'",
		table)
	if err != nil {
		return nil, classify("list indexes "+table, err)
	}

	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			name string
			stmt sql.NullString
		)

		err = rows.Scan(&name, &stmt)
		if err != nil {
			return nil, fmt.Errorf("list indexes %s: scan: %w", table, err)
		}

		indexes = append(indexes, schema.Index{
			Name:     strings.TrimPrefix(name, table+"_"),
			Type:     "btree",
			IsUnique: strings.Contains(strings.ToUpper(stmt.String), "UNIQUE"),
		})
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("list indexes %s: rows: %w", table, err)
	}

	return indexes, nil
}

// ColumnInfo is one physical column of a table.
type ColumnInfo struct {
	Name string
	Type string
}

// Columns reads the physical column layout of a table: name and declared
// type, in column order. Generated columns are hidden from table_info, so the
// extended pragma is used to see them.
func (s *Store) Columns(ctx context.Context, table string) ([]ColumnInfo, error) {
	if !identRe.MatchString(table) {
		return nil, fmt.Errorf("%w: invalid table name %q", schema.ErrSchema, table)
	}

	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT name, type FROM pragma_table_xinfo('%s')", table))
	if err != nil {
		return nil, classify("columns "+table, err)
	}

	defer func() { _ = rows.Close() }()

	cols := make([]ColumnInfo, 0)

	for rows.Next() {
		var name, typ string

		err = rows.Scan(&name, &typ)
		if err != nil {
			return nil, fmt.Errorf("columns %s: scan: %w", table, err)
		}

		cols = append(cols, ColumnInfo{Name: name, Type: typ})
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("columns %s: rows: %w", table, err)
	}

	return cols, nil
}

// InspectSchema reconstructs a best-effort schema from an existing dataset
// file without a schema definition: every physical table with its primary key
// and indexed properties. Raw and generated details cannot be recovered from
// SQLite metadata alone, so the result describes shape, not provenance.
func InspectSchema(ctx context.Context, path string) (map[string]*schema.Table, error) {
	db, err := openSqlite(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("inspect %s: %w", path, err)
	}

	defer func() { _ = db.Close() }()

	s := &Store{path: path, db: db}

	names, err := s.TableNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("inspect %s: %w", path, err)
	}

	tables := make(map[string]*schema.Table, len(names))

	for _, name := range names {
		pk, err := s.PrimaryKey(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("inspect %s: %w", path, err)
		}

		cols, err := s.Columns(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("inspect %s: %w", path, err)
		}

		indexed, err := s.Indexes(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("inspect %s: %w", path, err)
		}

		indexedSet := make(map[string]struct{}, len(indexed))
		for _, idx := range indexed {
			if !idx.IsPrimary {
				indexedSet[idx.Name] = struct{}{}
			}
		}

		t := &schema.Table{Name: name, PkName: pk}

		for _, col := range cols {
			if col.Name == RawColumn {
				continue
			}

			p := &schema.Property{Code: col.Name, Type: schema.TypeText}
			if strings.EqualFold(col.Type, "INTEGER") {
				p.Type = schema.TypeInt
			}

			if col.Name == pk {
				p.Index = schema.IndexPrimary
			} else if _, ok := indexedSet[col.Name]; ok {
				p.Index = schema.IndexSecondary
			}

			t.Properties = append(t.Properties, p)
		}

		tables[name] = t
	}

	return tables, nil
}
