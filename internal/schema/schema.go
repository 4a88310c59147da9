package schema

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tailscale/hujson"
)

// Schema is the declarative definition of one pixie dataset: its code and the
// tables backed by the dataset's store file. A Schema is loaded from a JSONC
// file, compiled once, and shared read-only afterwards.
type Schema struct {
	Code   string
	Tables []*Table

	compiled bool
}

// Table returns the table with the given name, or nil.
func (s *Schema) Table(name string) *Table {
	for _, t := range s.Tables {
		if t.Name == name {
			return t
		}
	}

	return nil
}

// AddTable appends a table definition. Existing names are replaced so the
// compiler can inject built-in tables idempotently.
func (s *Schema) AddTable(t *Table) {
	for i, existing := range s.Tables {
		if existing.Name == t.Name {
			s.Tables[i] = t

			return
		}
	}

	s.Tables = append(s.Tables, t)
}

// rawSchema mirrors the JSONC file layout. Properties accept either the
// compact string form ("&id|int") or the full object form.
type rawSchema struct {
	Code   string     `json:"code"`
	Tables []rawTable `json:"tables"`
}

type rawTable struct {
	Name         string            `json:"name"`
	Pk           string            `json:"pk"`
	Uses         []string          `json:"uses"`
	Extends      string            `json:"extends"`
	Translatable []string          `json:"translatable"`
	Rules        []Rule            `json:"rules"`
	Naming       string            `json:"naming"`
	Workflow     string            `json:"workflow"`
	Properties   []json.RawMessage `json:"properties"`
}

type rawProperty struct {
	Code string `json:"code"`
	Type string `json:"type"`
	Index string `json:"index"`

	// Generated defaults to true unless the property declares an initial
	// value; every non-raw column is a projection of the payload unless the
	// definition opts out.
	Generated *bool  `json:"generated"`
	List      string `json:"list"`
	Initial   any    `json:"initial"`
}

// Load reads and parses a schema definition file (JSONC).
func Load(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}

	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("load schema %s: %w", path, err)
	}

	return s, nil
}

// Parse parses a JSONC schema definition. The result is uncompiled; callers
// pass it through Compile before opening a store with it.
func Parse(data []byte) (*Schema, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid JSONC: %v", ErrSchema, err)
	}

	var raw rawSchema

	err = json.Unmarshal(standardized, &raw)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid JSON: %v", ErrSchema, err)
	}

	if raw.Code == "" {
		return nil, fmt.Errorf("%w: missing dataset code", ErrSchema)
	}

	s := &Schema{Code: raw.Code}

	for _, rt := range raw.Tables {
		if rt.Name == "" {
			return nil, fmt.Errorf("%w: table without a name in %s", ErrSchema, raw.Code)
		}

		t := &Table{
			Name:         rt.Name,
			PkName:       rt.Pk,
			Uses:         rt.Uses,
			Extends:      rt.Extends,
			Translatable: rt.Translatable,
			Rules:        rt.Rules,
			Naming:       NamePolicy(rt.Naming),
			Workflow:     rt.Workflow,
		}

		for _, rp := range rt.Properties {
			p, err := parseRawProperty(rp)
			if err != nil {
				return nil, fmt.Errorf("table %s: %w", rt.Name, err)
			}

			t.Properties = append(t.Properties, p)
		}

		s.AddTable(t)
	}

	return s, nil
}

func parseRawProperty(raw json.RawMessage) (*Property, error) {
	var short string
	if err := json.Unmarshal(raw, &short); err == nil {
		return parseShorthand(short)
	}

	var rp rawProperty

	err := json.Unmarshal(raw, &rp)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid property definition %s", ErrSchema, raw)
	}

	if rp.Code == "" {
		return nil, fmt.Errorf("%w: property definition %s has no code", ErrSchema, raw)
	}

	typ, err := parsePropertyType(rp.Type)
	if err != nil {
		return nil, err
	}

	generated := rp.Initial == nil
	if rp.Generated != nil {
		generated = *rp.Generated
	}

	p := &Property{
		Code:      rp.Code,
		Type:      typ,
		Generated: generated,
		ListTable: rp.List,
		Initial:   rp.Initial,
	}

	switch rp.Index {
	case "":
	case string(IndexPrimary):
		p.Index = IndexPrimary
	case string(IndexSecondary), "true":
		p.Index = IndexSecondary
	default:
		return nil, fmt.Errorf("%w: unknown index kind %q on %s", ErrSchema, rp.Index, rp.Code)
	}

	return p, nil
}
