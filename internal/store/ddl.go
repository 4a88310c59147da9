package store

import (
	"fmt"
	"regexp"
	"strings"

	"pixie/internal/schema"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// BuildDDL turns one compiled table into its CREATE TABLE statement and the
// CREATE INDEX statements for its indexed non-primary properties.
//
// Every table gets a trailing raw-payload column; each generated property
// becomes a column computed by json_extract over it. The statements use IF
// NOT EXISTS so applying them to an existing store is a no-op.
func BuildDDL(sch *schema.Schema, t *schema.Table) (string, []string, error) {
	if len(t.Properties) == 0 {
		return "", nil, fmt.Errorf("%w: table %s has no properties", schema.ErrSchema, t.Name)
	}

	if !identRe.MatchString(t.Name) {
		return "", nil, fmt.Errorf("%w: invalid table name %q", schema.ErrSchema, t.Name)
	}

	columns := make([]string, 0, len(t.Properties)+1)
	indexes := make([]string, 0)

	for _, p := range t.Properties {
		if !identRe.MatchString(p.Code) {
			return "", nil, fmt.Errorf("%w: table %s: invalid property code %q", schema.ErrSchema, t.Name, p.Code)
		}

		col, err := buildColumn(sch, t, p)
		if err != nil {
			return "", nil, err
		}

		columns = append(columns, col)

		if p.Index == schema.IndexSecondary {
			indexes = append(indexes, fmt.Sprintf(
				"CREATE INDEX IF NOT EXISTS %s_%s ON %s(%s)", t.Name, p.Code, t.Name, p.Code))
		}
	}

	// The raw payload is the single source of truth for every generated
	// column above it.
	columns = append(columns, RawColumn+" TEXT")

	create := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n    %s\n)",
		t.Name, strings.Join(columns, ",\n    "))

	return create, indexes, nil
}

func buildColumn(sch *schema.Schema, t *schema.Table, p *schema.Property) (string, error) {
	// The primary key is implicitly indexed and always directly writable.
	if p.Code == t.PkName {
		return fmt.Sprintf("%s %s PRIMARY KEY", p.Code, p.ColumnType()), nil
	}

	extract := fmt.Sprintf("GENERATED ALWAYS AS (json_extract(%s, '$.%s'))", RawColumn, p.Code)

	switch {
	case p.ListTable != "":
		// Reference values are text (a content hash of a label), never an
		// auto-increment id, and always projected from the payload.
		target := "id"
		if listTable := sch.Table(p.ListTable); listTable != nil && listTable.PkName != "" {
			target = listTable.PkName
		}

		return fmt.Sprintf("%s TEXT REFERENCES %s(%s) %s STORED", p.Code, p.ListTable, target, extract), nil

	case p.Translatable:
		// The column holds the string hash; the localized text lives in the
		// translation table.
		return fmt.Sprintf("%s TEXT %s", p.Code, extract), nil

	case p.Generated:
		// The declared type matters: column affinity applies to the extracted
		// value, so an int property must not end up with TEXT affinity.
		return fmt.Sprintf("%s %s %s", p.Code, p.ColumnType(), extract), nil
	}

	col := fmt.Sprintf("%s %s", p.Code, p.ColumnType())

	if p.Initial != nil {
		def, err := defaultLiteral(p.Initial)
		if err != nil {
			return "", fmt.Errorf("%w: table %s property %q: %v", schema.ErrSchema, t.Name, p.Code, err)
		}

		col += " DEFAULT " + def
	}

	return col, nil
}

// defaultLiteral renders a property default as a SQL literal. Only scalars
// are allowed; structured defaults belong in the payload.
func defaultLiteral(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return "'" + strings.ReplaceAll(val, "'", "''") + "'", nil
	case bool:
		if val {
			return "1", nil
		}

		return "0", nil
	case int, int64:
		return fmt.Sprintf("%d", val), nil
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val)), nil
		}

		return fmt.Sprintf("%g", val), nil
	default:
		return "", fmt.Errorf("unsupported default %T", v)
	}
}
