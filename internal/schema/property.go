// Package schema defines the declarative table/property model for a pixie
// dataset and compiles raw definitions into a form the store can turn into DDL.
package schema

import (
	"fmt"
	"strings"
)

// PropertyType is the declared type of a property. The store maps these onto
// SQLite column types; json properties are always projected from the raw
// payload and tr_text properties hold translation-string hashes.
type PropertyType string

const (
	TypeText           PropertyType = "text"
	TypeInt            PropertyType = "int"
	TypeJSON           PropertyType = "json"
	TypeTranslatedText PropertyType = "tr_text"
)

// IndexKind says whether a property is indexed and how.
type IndexKind string

const (
	IndexNone      IndexKind = ""
	IndexPrimary   IndexKind = "PRIMARY"
	IndexSecondary IndexKind = "INDEX"
)

// Property describes one field of one table: its code, declared type, index
// kind, and the flags that control column generation. Properties are built
// once during compilation and treated as immutable afterwards.
type Property struct {
	Code         string
	Type         PropertyType
	Index        IndexKind
	Generated    bool
	Translatable bool

	// ListTable marks the property as a reference to another table. The
	// stored value is a text foreign key (typically a content hash of a
	// label), never an auto-increment id.
	ListTable string

	// Initial is the DEFAULT value for plain writable columns. Ignored for
	// generated properties.
	Initial any
}

// parseShorthand parses the compact string form of a property definition.
//
// Grammar (dexie-style, carried over from the CSV header syntax):
//
//	"code"       plain text property
//	"&code"      indexed property (unique intent; first & in a table is the
//	             primary-key candidate when no pk is declared)
//	"code|int"   typed property
//	"&id|int"    both
func parseShorthand(s string) (*Property, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty property definition", ErrSchema)
	}

	p := &Property{Type: TypeText, Generated: true}

	if rest, ok := strings.CutPrefix(s, "&"); ok {
		p.Index = IndexSecondary
		s = rest
	}

	code, typ, hasType := strings.Cut(s, "|")

	p.Code = strings.TrimSpace(code)
	if p.Code == "" {
		return nil, fmt.Errorf("%w: property definition %q has no code", ErrSchema, s)
	}

	if hasType {
		parsed, err := parsePropertyType(typ)
		if err != nil {
			return nil, err
		}

		p.Type = parsed
	}

	return p, nil
}

func parsePropertyType(s string) (PropertyType, error) {
	switch PropertyType(strings.ToLower(strings.TrimSpace(s))) {
	case TypeText:
		return TypeText, nil
	case TypeInt:
		return TypeInt, nil
	case TypeJSON:
		return TypeJSON, nil
	case TypeTranslatedText:
		return TypeTranslatedText, nil
	case "":
		return TypeText, nil
	default:
		return "", fmt.Errorf("%w: unknown property type %q", ErrSchema, s)
	}
}

// ColumnType maps the property's declared type to its SQLite storage type.
// Everything not numeric is stored as text; json stays text until SQLite
// grows a real json column type.
func (p *Property) ColumnType() string {
	if p.Type == TypeInt {
		return "INTEGER"
	}

	return "TEXT"
}
