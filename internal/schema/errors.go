package schema

import "errors"

// ErrSchema reports a fatal configuration defect: a table with no properties,
// a missing primary key after inference, an invalid rename rule, or a
// malformed property definition. Schema errors are never recoverable at
// runtime.
var ErrSchema = errors.New("schema")
