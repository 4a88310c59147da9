// Package store implements the per-dataset multi-table document store: one
// SQLite file per pixie dataset, one raw JSON payload column per table, and
// generated columns projecting declared properties out of the payload for
// indexing and filtering.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver

	"pixie/internal/schema"
)

// RawColumn holds the full original JSON document for every record. All
// generated columns are pure functions of it.
const RawColumn = "_raw"

// MarkingColumn is the workflow-state side column. It is written through Set
// properties, never through the raw payload.
const MarkingColumn = schema.MarkingProperty

// busyTimeoutMS is the time SQLite waits on a locked database file before
// returning SQLITE_BUSY. Configured once at connection open.
const busyTimeoutMS = 5000

// Store owns one open connection to one dataset file. It is single-writer:
// the caller serializes access, and the in-process caches (prepared
// statements, preloaded key sets) live and die with the instance.
type Store struct {
	path   string
	schema *schema.Schema
	db     *sql.DB

	// existing caches the table names present in the file so table creation
	// stays idempotent without re-parsing DDL.
	existing map[string]struct{}

	// stmts caches prepared INSERT/UPDATE statements keyed by a hash of
	// (table, sorted column list); the column list varies with which optional
	// properties are present on a given Set call.
	stmts map[uint64]*sql.Stmt

	// keys holds preloaded primary-key sets per (table, filter) bucket.
	// Buckets are append-only and never invalidated on delete; they are valid
	// for the lifetime of one bulk-import session only.
	keys map[string]map[string]struct{}

	inTx bool
}

// Open opens (creating if necessary) the dataset file and applies the
// compiled schema's DDL. The schema is compiled in place when the caller has
// not already done so; compilation is idempotent.
func Open(ctx context.Context, path string, sch *schema.Schema) (*Store, error) {
	if path == "" {
		return nil, errors.New("open store: path is empty")
	}

	if sch == nil {
		return nil, errors.New("open store: schema is nil")
	}

	err := schema.Compile(sch)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	err = os.MkdirAll(filepath.Dir(path), 0o750)
	if err != nil {
		return nil, fmt.Errorf("open store: create data directory: %w", err)
	}

	db, err := openSqlite(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	s := &Store{
		path:     path,
		schema:   sch,
		db:       db,
		existing: make(map[string]struct{}),
		stmts:    make(map[uint64]*sql.Stmt),
		keys:     make(map[string]map[string]struct{}),
	}

	err = s.EnsureSchema(ctx)
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("open store: %w", err)
	}

	return s, nil
}

// openSqlite opens the backing file and applies the connection pragmas. The
// pool is capped at one connection to enforce the single-writer model and
// keep explicit BEGIN/COMMIT pinned to the same connection.
func openSqlite(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)

	err = db.PingContext(ctx)
	if err != nil {
		_ = db.Close()

		return nil, classify("ping sqlite", err)
	}

	_, err = db.ExecContext(ctx, fmt.Sprintf(`
		PRAGMA busy_timeout = %d;
		PRAGMA journal_mode = WAL;
		PRAGMA synchronous = NORMAL;
		PRAGMA temp_store = MEMORY;
	`, busyTimeoutMS))
	if err != nil {
		_ = db.Close()

		return nil, classify("apply pragmas", err)
	}

	return db, nil
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Schema returns the compiled schema the store was opened with.
func (s *Store) Schema() *schema.Schema {
	return s.schema
}

// Close releases the prepared-statement cache and the SQLite handle. An open
// transaction is committed first, matching the batch-write contract.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}

	if s.inTx {
		err := s.Commit(context.Background())
		if err != nil {
			return err
		}
	}

	for _, stmt := range s.stmts {
		_ = stmt.Close()
	}

	s.stmts = nil

	err := s.db.Close()
	if err != nil {
		return fmt.Errorf("close store: %w", err)
	}

	return nil
}

// EnsureSchema creates every missing table the compiled schema defines.
// Tables already present in the file are left untouched, so re-running
// against an existing store is a no-op.
func (s *Store) EnsureSchema(ctx context.Context) error {
	names, err := s.TableNames(ctx)
	if err != nil {
		return err
	}

	for _, name := range names {
		s.existing[name] = struct{}{}
	}

	for _, t := range s.schema.Tables {
		if t.IsTemplate() {
			continue
		}

		if _, ok := s.existing[t.Name]; ok {
			continue
		}

		err = s.CreateTable(ctx, t)
		if err != nil {
			return err
		}
	}

	return nil
}

// CreateTable applies one table's DDL: the CREATE TABLE statement plus one
// CREATE INDEX per indexed non-primary property.
func (s *Store) CreateTable(ctx context.Context, t *schema.Table) error {
	create, indexes, err := BuildDDL(s.schema, t)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, create)
	if err != nil {
		return classify(fmt.Sprintf("create table %s", t.Name), err)
	}

	for _, stmt := range indexes {
		_, err = s.db.ExecContext(ctx, stmt)
		if err != nil {
			return classify(fmt.Sprintf("create index on %s", t.Name), err)
		}
	}

	s.existing[t.Name] = struct{}{}

	return nil
}

// Begin opens an explicit transaction for a write batch. Beginning while a
// transaction is already open is a programming error, not a nested
// transaction.
func (s *Store) Begin(ctx context.Context) error {
	if s.inTx {
		return errors.New("begin: already in a transaction")
	}

	_, err := s.db.ExecContext(ctx, "BEGIN IMMEDIATE")
	if err != nil {
		return classify("begin", err)
	}

	s.inTx = true

	return nil
}

// Commit commits the transaction opened by Begin.
func (s *Store) Commit(ctx context.Context) error {
	if !s.inTx {
		return errors.New("commit: not in a transaction")
	}

	_, err := s.db.ExecContext(ctx, "COMMIT")
	if err != nil {
		return classify("commit", err)
	}

	s.inTx = false

	return nil
}

// Rollback aborts the transaction opened by Begin.
func (s *Store) Rollback(ctx context.Context) error {
	if !s.inTx {
		return errors.New("rollback: not in a transaction")
	}

	_, err := s.db.ExecContext(ctx, "ROLLBACK")
	if err != nil {
		return classify("rollback", err)
	}

	s.inTx = false

	return nil
}

// InTransaction reports whether a Begin is pending.
func (s *Store) InTransaction() bool {
	return s.inTx
}

// table resolves a table name against the compiled schema.
func (s *Store) table(name string) (*schema.Table, error) {
	t := s.schema.Table(name)
	if t == nil || t.IsTemplate() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, name)
	}

	return t, nil
}
