package store

import (
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

// ErrNotFound reports a get/delete against a key with no row. Read paths
// report missing rows as empty results instead; the sentinel exists for
// callers that need to distinguish "absent" from other failures.
var ErrNotFound = errors.New("not found")

// ErrIntegrity reports an attempt to write a record without a resolvable
// primary key.
var ErrIntegrity = errors.New("integrity")

// ErrDecode reports a raw payload that is not valid JSON. Iteration skips
// such rows; point reads surface the error.
var ErrDecode = errors.New("decode")

// ErrLocked reports a busy or locked database file. It is retryable: callers
// holding the single-writer role can back off and try again.
var ErrLocked = errors.New("database locked")

// ErrUnknownTable reports an operation against a table the compiled schema
// does not define.
var ErrUnknownTable = errors.New("unknown table")

// classify maps driver-level lock contention onto ErrLocked so callers can
// implement backoff without matching on driver internals.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		if sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked {
			return fmt.Errorf("%s: %w: %v", op, ErrLocked, err)
		}
	}

	return fmt.Errorf("%s: %w", op, err)
}
