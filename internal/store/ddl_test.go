package store_test

import (
	"strings"
	"testing"

	"pixie/internal/schema"
	"pixie/internal/store"
)

func compiledSchema(t *testing.T, doc string) *schema.Schema {
	t.Helper()

	s, err := schema.Parse([]byte(doc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	err = schema.Compile(s)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	return s
}

func Test_BuildDDL_Projects_Properties_From_Raw_Payload(t *testing.T) {
	t.Parallel()

	s := compiledSchema(t, `{
		"code": "lib",
		"tables": [{
			"name": "books",
			"properties": [
				"&id|int",
				"title",
				{"code": "marking", "initial": "new"},
			],
		}],
	}`)

	create, indexes, err := store.BuildDDL(s, s.Table("books"))
	if err != nil {
		t.Fatalf("build ddl: %v", err)
	}

	if !strings.HasPrefix(create, "CREATE TABLE IF NOT EXISTS books") {
		t.Fatalf("ddl = %s", create)
	}

	if !strings.Contains(create, "id INTEGER PRIMARY KEY") {
		t.Fatalf("pk column missing:\n%s", create)
	}

	if !strings.Contains(create, "title TEXT GENERATED ALWAYS AS (json_extract(_raw, '$.title'))") {
		t.Fatalf("generated projection missing:\n%s", create)
	}

	if !strings.Contains(create, "marking TEXT DEFAULT 'new'") {
		t.Fatalf("writable column with default missing:\n%s", create)
	}

	if !strings.HasSuffix(strings.TrimSuffix(create, "\n)"), "_raw TEXT") {
		t.Fatalf("raw column must come last:\n%s", create)
	}

	if len(indexes) != 0 {
		t.Fatalf("unexpected index statements %v", indexes)
	}
}

func Test_BuildDDL_Emits_Index_Statements_For_Indexed_Properties(t *testing.T) {
	t.Parallel()

	s := compiledSchema(t, `{
		"code": "lib",
		"tables": [{"name": "books", "properties": ["id", "&year|int"]}],
	}`)

	_, indexes, err := store.BuildDDL(s, s.Table("books"))
	if err != nil {
		t.Fatalf("build ddl: %v", err)
	}

	if len(indexes) != 1 {
		t.Fatalf("indexes = %v, want one", indexes)
	}

	want := "CREATE INDEX IF NOT EXISTS books_year ON books(year)"
	if indexes[0] != want {
		t.Fatalf("index = %q, want %q", indexes[0], want)
	}
}

func Test_BuildDDL_References_List_Table_Primary_Key(t *testing.T) {
	t.Parallel()

	s := compiledSchema(t, `{
		"code": "lib",
		"tables": [
			{"name": "genres", "properties": ["code", "label"]},
			{"name": "books", "properties": [
				"id",
				{"code": "genre", "list": "genres"},
			]},
		],
	}`)

	create, _, err := store.BuildDDL(s, s.Table("books"))
	if err != nil {
		t.Fatalf("build ddl: %v", err)
	}

	if !strings.Contains(create, "genre TEXT REFERENCES genres(code)") {
		t.Fatalf("reference column missing:\n%s", create)
	}

	if !strings.Contains(create, "json_extract(_raw, '$.genre')) STORED") {
		t.Fatalf("reference column must be a stored projection:\n%s", create)
	}
}

func Test_BuildDDL_Generated_Columns_Keep_Declared_Type(t *testing.T) {
	t.Parallel()

	s := compiledSchema(t, `{
		"code": "lib",
		"tables": [{"name": "books", "properties": ["&id|int", "year|int", "title"]}],
	}`)

	create, _, err := store.BuildDDL(s, s.Table("books"))
	if err != nil {
		t.Fatalf("build ddl: %v", err)
	}

	if !strings.Contains(create, "year INTEGER GENERATED ALWAYS AS (json_extract(_raw, '$.year'))") {
		t.Fatalf("int projection must carry INTEGER affinity:\n%s", create)
	}

	if !strings.Contains(create, "title TEXT GENERATED ALWAYS AS") {
		t.Fatalf("text projection missing:\n%s", create)
	}
}

func Test_BuildDDL_Rejects_Invalid_Identifiers(t *testing.T) {
	t.Parallel()

	s := &schema.Schema{Code: "lib"}
	bad := &schema.Table{
		Name:       "books; DROP TABLE books",
		PkName:     "id",
		Properties: []*schema.Property{{Code: "id", Type: schema.TypeInt}},
	}

	_, _, err := store.BuildDDL(s, bad)
	if err == nil {
		t.Fatal("expected error for invalid table name")
	}
}

func Test_BuildDDL_Rejects_Hyphenated_Property_Codes(t *testing.T) {
	t.Parallel()

	s := &schema.Schema{Code: "lib"}
	bad := &schema.Table{
		Name:   "books",
		PkName: "id",
		Properties: []*schema.Property{
			{Code: "id", Type: schema.TypeInt},
			{Code: "col-0", Type: schema.TypeText, Generated: true},
		},
	}

	_, _, err := store.BuildDDL(s, bad)
	if err == nil {
		t.Fatal("expected error for hyphenated property code")
	}
}
