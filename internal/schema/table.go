package schema

import (
	"fmt"
	"regexp"
	"strings"
)

// TemplatePrefix marks a table definition as a property template rather than
// a real table. Templates contribute properties via "uses"/"extends" and are
// never created in the store.
const TemplatePrefix = "@"

// NamePolicy controls how incoming field names are normalized during header
// mapping.
type NamePolicy string

const (
	NamePreserve NamePolicy = "preserve"
	NameSnake    NamePolicy = "snake"
	NameCamel    NamePolicy = "camel"
)

// Rule renames incoming source fields whose name matches a regular
// expression. Rules apply in declaration order; the first match wins.
type Rule struct {
	Match string `json:"match"`
	To    string `json:"to"`

	re *regexp.Regexp
}

// Index describes one index of a compiled table. At most one index per table
// is primary.
type Index struct {
	Name      string
	Type      string
	IsUnique  bool
	IsPrimary bool
}

// Table is a named collection of properties plus table-level policy: the
// primary-key name, translatable field list, field-renaming rules, and
// template composition. A Table is read from declarative configuration and
// compiled exactly once; after compilation only the cached Total is mutated.
type Table struct {
	Name         string
	Properties   []*Property
	PkName       string
	Translatable []string
	Rules        []Rule
	Uses         []string
	Extends      string
	Naming       NamePolicy
	Workflow     string

	// Total caches the last full row count the store observed. It is a hint
	// for reporting, not a consistency guarantee.
	Total int64
}

// IsTemplate reports whether the table is a property template ("@"-prefixed)
// rather than a real table.
func (t *Table) IsTemplate() bool {
	return strings.HasPrefix(t.Name, TemplatePrefix)
}

// Property returns the property with the given code, or nil.
func (t *Table) Property(code string) *Property {
	for _, p := range t.Properties {
		if p.Code == code {
			return p
		}
	}

	return nil
}

// PropertiesByCode returns the table's properties keyed by code.
func (t *Table) PropertiesByCode() map[string]*Property {
	byCode := make(map[string]*Property, len(t.Properties))
	for _, p := range t.Properties {
		byCode[p.Code] = p
	}

	return byCode
}

// JSONProperties returns the properties declared with the json type. The
// iterator decodes their column values back into structured data.
func (t *Table) JSONProperties() []*Property {
	var props []*Property

	for _, p := range t.Properties {
		if p.Type == TypeJSON {
			props = append(props, p)
		}
	}

	return props
}

// isTranslatable reports whether code is in the table's translatable list.
func (t *Table) isTranslatable(code string) bool {
	for _, c := range t.Translatable {
		if c == code {
			return true
		}
	}

	return false
}

// MapHeader maps an incoming header (CSV columns or JSON attribute names)
// onto property codes. Empty names become "col-N", rename rules apply first
// match wins, a trailing list separator (",", "|", ";") is stripped, and the
// name policy is applied last. Two source fields mapping to the same target
// is a configuration defect and fails the whole import.
func (t *Table) MapHeader(header []string) ([]string, error) {
	err := t.compileRules()
	if err != nil {
		return nil, err
	}

	policy := t.Naming
	if policy == "" {
		policy = NamePreserve
	}

	mapped := make([]string, 0, len(header))
	seen := make(map[string]int, len(header))

	for idx, field := range header {
		name := strings.TrimSpace(field)
		if name == "" {
			name = fmt.Sprintf("col-%d", idx)
		}

		for i := range t.Rules {
			if t.Rules[i].re.MatchString(name) {
				name = t.Rules[i].To

				break
			}
		}

		// A trailing separator marks a multi-valued source field; the
		// separator is not part of the name.
		if last := name[len(name)-1]; last == ',' || last == '|' || last == ';' {
			name = name[:len(name)-1]
		}

		switch policy {
		case NameSnake:
			name = toSnake(name)
		case NameCamel:
			name = toCamel(name)
		case NamePreserve:
		default:
			return nil, fmt.Errorf("%w: unknown name policy %q", ErrSchema, policy)
		}

		if prev, dup := seen[name]; dup {
			return nil, fmt.Errorf("%w: fields %q and %q both map to %q",
				ErrSchema, header[prev], field, name)
		}

		seen[name] = idx
		mapped = append(mapped, name)
	}

	return mapped, nil
}

// compileRules compiles the rename regexes once. Invalid patterns surface as
// schema errors before any row is read.
func (t *Table) compileRules() error {
	for i := range t.Rules {
		if t.Rules[i].re != nil {
			continue
		}

		re, err := regexp.Compile(t.Rules[i].Match)
		if err != nil {
			return fmt.Errorf("%w: table %s rule %q: %v", ErrSchema, t.Name, t.Rules[i].Match, err)
		}

		t.Rules[i].re = re
	}

	return nil
}

func toSnake(s string) string {
	var b strings.Builder

	prevLower := false

	for _, r := range s {
		switch {
		case r == ' ' || r == '-' || r == '.':
			if b.Len() > 0 && !strings.HasSuffix(b.String(), "_") {
				b.WriteByte('_')
			}

			prevLower = false
		case r >= 'A' && r <= 'Z':
			if prevLower {
				b.WriteByte('_')
			}

			b.WriteRune(r - 'A' + 'a')
			prevLower = false
		default:
			b.WriteRune(r)
			prevLower = r >= 'a' && r <= 'z' || r >= '0' && r <= '9'
		}
	}

	return strings.Trim(b.String(), "_")
}

func toCamel(s string) string {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '-' || r == '.' || r == '_'
	})

	var b strings.Builder

	for i, part := range parts {
		if i == 0 {
			b.WriteString(strings.ToLower(part[:1]) + part[1:])

			continue
		}

		b.WriteString(strings.ToUpper(part[:1]) + part[1:])
	}

	return b.String()
}
