package store

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"pixie/internal/schema"
)

// Order is one ORDER BY term.
type Order struct {
	Column string
	Desc   bool
}

// Query holds the filters shared by iteration and counting. Zero values mean
// "no filter"; Limit/Offset are only emitted when positive.
type Query struct {
	// Where filters by equality per column. A nil value matches IS NULL; a
	// slice value becomes an IN (...) list.
	Where map[string]any

	// Order overrides the default primary-key-ascending ordering.
	Order []Order

	// PKs is an optional primary-key allow list.
	PKs []string

	Offset int
	Limit  int

	// KeyOnly selects only the primary key column.
	KeyOnly bool

	// Columns selects specific columns; empty means "*". Ignored when
	// KeyOnly is set.
	Columns []string
}

// buildSelect assembles parameterized SQL for the given table and query. All
// values are bound as parameters; identifiers come from the compiled schema
// and are validated against it, never from user input.
func buildSelect(t *schema.Table, q Query) (string, []any, error) {
	var (
		b    strings.Builder
		args []any
	)

	b.WriteString("SELECT ")

	switch {
	case q.KeyOnly:
		b.WriteString(t.PkName)
	case len(q.Columns) > 0:
		for _, col := range q.Columns {
			err := validateColumn(t, col)
			if err != nil {
				return "", nil, err
			}
		}

		b.WriteString(strings.Join(q.Columns, ", "))
	default:
		b.WriteString("*")
	}

	b.WriteString(" FROM ")
	b.WriteString(t.Name)

	clauses, clauseArgs, err := whereClauses(t, q)
	if err != nil {
		return "", nil, err
	}

	if len(clauses) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(clauses, " AND "))

		args = append(args, clauseArgs...)
	}

	order := q.Order
	if len(order) == 0 {
		order = []Order{{Column: t.PkName}}
	}

	terms := make([]string, 0, len(order))

	for _, o := range order {
		err = validateColumn(t, o.Column)
		if err != nil {
			return "", nil, err
		}

		term := o.Column
		if o.Desc {
			term += " DESC"
		}

		terms = append(terms, term)
	}

	b.WriteString(" ORDER BY ")
	b.WriteString(strings.Join(terms, ", "))

	switch {
	case q.Limit > 0:
		b.WriteString(" LIMIT ?")

		args = append(args, q.Limit)

		if q.Offset > 0 {
			b.WriteString(" OFFSET ?")

			args = append(args, q.Offset)
		}
	case q.Offset > 0:
		// SQLite requires a LIMIT with OFFSET; -1 means unbounded.
		b.WriteString(" LIMIT -1 OFFSET ?")

		args = append(args, q.Offset)
	}

	return b.String(), args, nil
}

// whereClauses renders the equality filters and the primary-key allow list.
// Filter columns are visited in sorted order so identical filters produce
// identical SQL.
func whereClauses(t *schema.Table, q Query) ([]string, []any, error) {
	var (
		clauses []string
		args    []any
	)

	cols := make([]string, 0, len(q.Where))
	for col := range q.Where {
		cols = append(cols, col)
	}

	sort.Strings(cols)

	for _, col := range cols {
		err := validateColumn(t, col)
		if err != nil {
			return nil, nil, err
		}

		value := q.Where[col]
		if value == nil {
			clauses = append(clauses, col+" IS NULL")

			continue
		}

		rv := reflect.ValueOf(value)
		if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
			n := rv.Len()
			if n == 0 {
				// An empty allow list matches nothing.
				clauses = append(clauses, "1 = 0")

				continue
			}

			clauses = append(clauses, col+" IN ("+placeholders(n)+")")

			for i := range n {
				args = append(args, rv.Index(i).Interface())
			}

			continue
		}

		clauses = append(clauses, col+" = ?")
		args = append(args, value)
	}

	if q.PKs != nil {
		if len(q.PKs) == 0 {
			clauses = append(clauses, "1 = 0")
		} else {
			clauses = append(clauses, t.PkName+" IN ("+placeholders(len(q.PKs))+")")

			for _, pk := range q.PKs {
				args = append(args, pk)
			}
		}
	}

	return clauses, args, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func validateColumn(t *schema.Table, col string) error {
	if col == RawColumn || col == t.PkName || t.Property(col) != nil {
		return nil
	}

	return fmt.Errorf("table %s has no column %q", t.Name, col)
}
