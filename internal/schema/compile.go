package schema

import (
	"fmt"
)

const (
	// StringsTable is the translation string table, created in every dataset.
	// Rows are keyed by a content hash; translatable columns store that hash.
	StringsTable = "_strings"

	// TranslationKeyProperty names the column linking a string row back to the
	// field it translates.
	TranslationKeyProperty = "tr_key"

	// TranslatedStringsProperty is the extra generated projection added to
	// tables that declare translatable fields.
	TranslatedStringsProperty = "_translations"

	// MarkingProperty is the writable workflow-state column added to tables
	// that declare a workflow. It lives outside the raw payload so state
	// transitions never rewrite the document.
	MarkingProperty = "marking"
)

// Compile normalizes a parsed schema into fully resolved tables: template
// splicing ("uses"/"extends"), primary-key inference, generation flags, and
// the built-in translation string table. Compiling an already compiled schema
// is a no-op, so the result is idempotent.
//
// Compilation performs no I/O. Any error it returns is a configuration
// defect, not a recoverable runtime condition.
func Compile(s *Schema) error {
	if s.compiled {
		return nil
	}

	templates := make(map[string]*Table)
	shared := make(map[string]*Property)

	for _, t := range s.Tables {
		if !t.IsTemplate() {
			continue
		}

		templates[t.Name] = t

		for _, raw := range t.Properties {
			shared[raw.Code] = raw
		}
	}

	s.AddTable(stringsTable())

	for _, t := range s.Tables {
		if t.IsTemplate() {
			continue
		}

		err := compileTable(t, templates, shared)
		if err != nil {
			return fmt.Errorf("compile %s: %w", s.Code, err)
		}
	}

	s.compiled = true

	return nil
}

func compileTable(t *Table, templates map[string]*Table, shared map[string]*Property) error {
	props := make([]*Property, 0, len(t.Uses)+len(t.Properties))

	// Splice shared template properties first so tables can reuse one
	// definition instead of repeating it.
	for _, code := range t.Uses {
		p, ok := shared[code]
		if !ok {
			return fmt.Errorf("%w: table %s uses unknown template property %q", ErrSchema, t.Name, code)
		}

		props = append(props, cloneProperty(p))
	}

	if t.Extends != "" {
		parent, ok := templates[t.Extends]
		if !ok {
			parent, ok = templates[TemplatePrefix+t.Extends]
		}

		if !ok {
			return fmt.Errorf("%w: table %s extends unknown template %q", ErrSchema, t.Name, t.Extends)
		}

		if parent.Workflow != "" && t.Workflow == "" {
			t.Workflow = parent.Workflow
		}

		for i, raw := range parent.Properties {
			p := cloneProperty(raw)
			props = append(props, p)

			// The parent's first property seeds the primary key when the
			// child declares none of its own.
			if i == 0 && t.PkName == "" {
				t.PkName = p.Code
			}
		}
	}

	ownStart := len(props)
	props = append(props, t.Properties...)

	if len(props) == 0 {
		return fmt.Errorf("%w: table %s has no properties after composition", ErrSchema, t.Name)
	}

	seen := make(map[string]struct{}, len(props))
	for _, p := range props {
		if _, dup := seen[p.Code]; dup {
			return fmt.Errorf("%w: table %s declares property %q twice", ErrSchema, t.Name, p.Code)
		}

		seen[p.Code] = struct{}{}
	}

	inferPrimaryKey(t, props, ownStart)

	if t.PkName == "" {
		return fmt.Errorf("%w: table %s has no primary key", ErrSchema, t.Name)
	}

	foundPk := false

	for _, p := range props {
		if p.Code == t.PkName {
			p.Index = IndexPrimary
			p.Generated = false
			foundPk = true

			continue
		}

		if p.Index == IndexPrimary {
			return fmt.Errorf("%w: table %s declares a second primary key %q (pk is %q)",
				ErrSchema, t.Name, p.Code, t.PkName)
		}

		if p.ListTable != "" {
			p.Generated = true
		}

		if p.Type == TypeJSON {
			p.Generated = true
		}

		if t.isTranslatable(p.Code) {
			p.Generated = true
			p.Translatable = true
		}

		if p.Generated && p.Initial != nil {
			return fmt.Errorf("%w: table %s property %q is generated and cannot carry a default",
				ErrSchema, t.Name, p.Code)
		}
	}

	if !foundPk {
		return fmt.Errorf("%w: table %s primary key %q matches no property", ErrSchema, t.Name, t.PkName)
	}

	// Translatable fields that were never declared become tr_text projections,
	// and any table with translations gets the combined projection column.
	for _, code := range t.Translatable {
		if _, declared := seen[code]; declared {
			continue
		}

		props = append(props, &Property{
			Code:         code,
			Type:         TypeTranslatedText,
			Generated:    true,
			Translatable: true,
		})
		seen[code] = struct{}{}
	}

	if len(t.Translatable) > 0 {
		props = append(props, &Property{
			Code:      TranslatedStringsProperty,
			Type:      TypeText,
			Generated: true,
		})
	}

	if t.Workflow != "" {
		if _, declared := seen[MarkingProperty]; !declared {
			props = append(props, &Property{
				Code:  MarkingProperty,
				Type:  TypeText,
				Index: IndexSecondary,
			})
		}
	}

	err := t.compileRules()
	if err != nil {
		return err
	}

	t.Properties = props

	return nil
}

// inferPrimaryKey fills t.PkName when the definition declares none: an
// explicit PRIMARY index wins, then the first own-declared property, then the
// first spliced one.
func inferPrimaryKey(t *Table, props []*Property, ownStart int) {
	if t.PkName != "" {
		return
	}

	for _, p := range props {
		if p.Index == IndexPrimary {
			t.PkName = p.Code

			return
		}
	}

	if ownStart < len(props) {
		t.PkName = props[ownStart].Code

		return
	}

	t.PkName = props[0].Code
}

func cloneProperty(p *Property) *Property {
	clone := *p

	return &clone
}

func stringsTable() *Table {
	return &Table{
		Name:   StringsTable,
		PkName: "hash",
		Properties: []*Property{
			{Code: "hash", Type: TypeText, Index: IndexPrimary},
			{Code: "locale", Type: TypeText, Index: IndexSecondary},
			{Code: "text", Type: TypeText},
			{Code: TranslationKeyProperty, Type: TypeText},
		},
	}
}
