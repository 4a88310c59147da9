package schema_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"pixie/internal/schema"
)

func parse(t *testing.T, doc string) *schema.Schema {
	t.Helper()

	s, err := schema.Parse([]byte(doc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	return s
}

func compile(t *testing.T, doc string) *schema.Schema {
	t.Helper()

	s := parse(t, doc)

	err := schema.Compile(s)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	return s
}

func Test_Parse_Accepts_JSONC_With_Comments_And_Trailing_Commas(t *testing.T) {
	t.Parallel()

	s := parse(t, `{
		// dataset definition
		"code": "lib",
		"tables": [
			{"name": "books", "properties": ["&id|int", "title",]},
		],
	}`)

	if s.Code != "lib" {
		t.Fatalf("code = %q, want lib", s.Code)
	}

	if s.Table("books") == nil {
		t.Fatal("books table missing")
	}
}

func Test_Parse_Rejects_Missing_Dataset_Code(t *testing.T) {
	t.Parallel()

	_, err := schema.Parse([]byte(`{"tables": []}`))
	if !errors.Is(err, schema.ErrSchema) {
		t.Fatalf("err = %v, want ErrSchema", err)
	}
}

func Test_Parse_Property_Object_Form(t *testing.T) {
	t.Parallel()

	s := parse(t, `{
		"code": "lib",
		"tables": [
			{"name": "books", "properties": [
				{"code": "id", "type": "int", "index": "PRIMARY"},
				{"code": "marking", "initial": "new"},
				{"code": "tags", "type": "json"},
			]},
		],
	}`)

	books := s.Table("books")

	id := books.Property("id")
	if id == nil || id.Index != schema.IndexPrimary || id.Type != schema.TypeInt {
		t.Fatalf("id = %+v", id)
	}

	marking := books.Property("marking")
	if marking == nil || marking.Generated || marking.Initial != "new" {
		t.Fatalf("marking = %+v, want writable column with default", marking)
	}
}

func Test_Compile_Infers_Pk_From_First_Property(t *testing.T) {
	t.Parallel()

	s := compile(t, `{
		"code": "lib",
		"tables": [{"name": "books", "properties": ["isbn", "title"]}],
	}`)

	books := s.Table("books")
	if books.PkName != "isbn" {
		t.Fatalf("pk = %q, want isbn", books.PkName)
	}

	isbn := books.Property("isbn")
	if isbn.Index != schema.IndexPrimary || isbn.Generated {
		t.Fatalf("isbn = %+v, want non-generated primary key", isbn)
	}
}

func Test_Compile_Prefers_Declared_Primary_Index_Over_Position(t *testing.T) {
	t.Parallel()

	s := compile(t, `{
		"code": "lib",
		"tables": [{"name": "books", "properties": [
			"title",
			{"code": "isbn", "index": "PRIMARY"},
		]}],
	}`)

	if pk := s.Table("books").PkName; pk != "isbn" {
		t.Fatalf("pk = %q, want isbn", pk)
	}
}

func Test_Compile_Rejects_Two_Primary_Keys(t *testing.T) {
	t.Parallel()

	s := parse(t, `{
		"code": "lib",
		"tables": [{"name": "books", "properties": [
			{"code": "a", "index": "PRIMARY"},
			{"code": "b", "index": "PRIMARY"},
		]}],
	}`)

	err := schema.Compile(s)
	if !errors.Is(err, schema.ErrSchema) {
		t.Fatalf("err = %v, want ErrSchema", err)
	}
}

func Test_Compile_Rejects_Duplicate_Property_Codes(t *testing.T) {
	t.Parallel()

	s := parse(t, `{
		"code": "lib",
		"tables": [{"name": "books", "properties": ["id", "id"]}],
	}`)

	err := schema.Compile(s)
	if !errors.Is(err, schema.ErrSchema) {
		t.Fatalf("err = %v, want ErrSchema", err)
	}
}

func Test_Compile_Splices_Template_Properties_Via_Uses(t *testing.T) {
	t.Parallel()

	s := compile(t, `{
		"code": "lib",
		"tables": [
			{"name": "@shared", "properties": ["label", "sort|int"]},
			{"name": "genres", "uses": ["label"], "properties": ["id"]},
		],
	}`)

	genres := s.Table("genres")

	if genres.Property("label") == nil {
		t.Fatal("spliced label property missing")
	}

	if genres.Property("sort") != nil {
		t.Fatal("unrequested template property was spliced")
	}

	// Own declarations win pk inference over spliced ones.
	if genres.PkName != "id" {
		t.Fatalf("pk = %q, want id", genres.PkName)
	}
}

func Test_Compile_Extends_Copies_Parent_And_Seeds_Pk(t *testing.T) {
	t.Parallel()

	s := compile(t, `{
		"code": "lib",
		"tables": [
			{"name": "@base", "workflow": "review", "properties": ["code", "label"]},
			{"name": "genres", "extends": "base"},
		],
	}`)

	genres := s.Table("genres")

	if genres.PkName != "code" {
		t.Fatalf("pk = %q, want code from parent", genres.PkName)
	}

	if genres.Workflow != "review" {
		t.Fatalf("workflow = %q, want inherited review", genres.Workflow)
	}

	if genres.Property("label") == nil {
		t.Fatal("parent property missing")
	}
}

func Test_Compile_Extends_Unknown_Template_Fails(t *testing.T) {
	t.Parallel()

	s := parse(t, `{
		"code": "lib",
		"tables": [{"name": "genres", "extends": "ghost"}],
	}`)

	err := schema.Compile(s)
	if !errors.Is(err, schema.ErrSchema) {
		t.Fatalf("err = %v, want ErrSchema", err)
	}
}

func Test_Compile_Adds_Strings_Table(t *testing.T) {
	t.Parallel()

	s := compile(t, `{
		"code": "lib",
		"tables": [{"name": "books", "properties": ["id"]}],
	}`)

	strings := s.Table(schema.StringsTable)
	if strings == nil {
		t.Fatal("strings table missing")
	}

	if strings.PkName != "hash" {
		t.Fatalf("strings pk = %q, want hash", strings.PkName)
	}

	locale := strings.Property("locale")
	if locale == nil || locale.Index != schema.IndexSecondary {
		t.Fatalf("locale = %+v, want indexed property", locale)
	}
}

func Test_Compile_Translatable_Fields_Become_Generated_Projections(t *testing.T) {
	t.Parallel()

	s := compile(t, `{
		"code": "lib",
		"tables": [{
			"name": "books",
			"translatable": ["title", "blurb"],
			"properties": ["id", "title"],
		}],
	}`)

	books := s.Table("books")

	title := books.Property("title")
	if !title.Generated || !title.Translatable {
		t.Fatalf("title = %+v, want generated translatable", title)
	}

	// Undeclared translatable fields are appended as projections.
	blurb := books.Property("blurb")
	if blurb == nil || blurb.Type != schema.TypeTranslatedText {
		t.Fatalf("blurb = %+v", blurb)
	}

	if books.Property(schema.TranslatedStringsProperty) == nil {
		t.Fatal("combined translation projection missing")
	}
}

func Test_Compile_Workflow_Table_Gets_Marking_Column(t *testing.T) {
	t.Parallel()

	s := compile(t, `{
		"code": "lib",
		"tables": [{"name": "books", "workflow": "publish", "properties": ["id"]}],
	}`)

	marking := s.Table("books").Property(schema.MarkingProperty)
	if marking == nil {
		t.Fatal("marking column missing on workflow table")
	}

	if marking.Generated {
		t.Fatal("marking must be directly writable")
	}

	if marking.Index != schema.IndexSecondary {
		t.Fatalf("marking index = %q, want secondary", marking.Index)
	}
}

func Test_Compile_Is_Idempotent(t *testing.T) {
	t.Parallel()

	s := compile(t, `{
		"code": "lib",
		"tables": [{"name": "books", "properties": ["id", "title"]}],
	}`)

	before := len(s.Table("books").Properties)

	err := schema.Compile(s)
	if err != nil {
		t.Fatalf("second compile: %v", err)
	}

	if after := len(s.Table("books").Properties); after != before {
		t.Fatalf("property count changed %d -> %d on recompile", before, after)
	}
}

func Test_Compile_Rejects_Generated_Property_With_Default(t *testing.T) {
	t.Parallel()

	s := parse(t, `{
		"code": "lib",
		"tables": [{"name": "books", "properties": [
			"id",
			{"code": "title", "generated": true, "initial": "untitled"},
		]}],
	}`)

	err := schema.Compile(s)
	if !errors.Is(err, schema.ErrSchema) {
		t.Fatalf("err = %v, want ErrSchema", err)
	}
}

func Test_MapHeader_Applies_Rules_Policy_And_Fallbacks(t *testing.T) {
	t.Parallel()

	table := &schema.Table{
		Name:   "books",
		Naming: schema.NameSnake,
		Rules: []schema.Rule{
			{Match: "(?i)^isbn.*", To: "id"},
		},
	}

	got, err := table.MapHeader([]string{"ISBN-13", "Book Title", "", "tags,"})
	if err != nil {
		t.Fatalf("map header: %v", err)
	}

	want := []string{"id", "book_title", "col_2", "tags"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("header mismatch (-want +got):\n%s", diff)
	}
}

func Test_MapHeader_Camel_Policy(t *testing.T) {
	t.Parallel()

	table := &schema.Table{Name: "books", Naming: schema.NameCamel}

	got, err := table.MapHeader([]string{"book title", "release_year"})
	if err != nil {
		t.Fatalf("map header: %v", err)
	}

	want := []string{"bookTitle", "releaseYear"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("header mismatch (-want +got):\n%s", diff)
	}
}

func Test_MapHeader_Duplicate_Targets_Fail(t *testing.T) {
	t.Parallel()

	table := &schema.Table{
		Name:  "books",
		Rules: []schema.Rule{{Match: "^(name|title)$", To: "title"}},
	}

	_, err := table.MapHeader([]string{"name", "title"})
	if !errors.Is(err, schema.ErrSchema) {
		t.Fatalf("err = %v, want ErrSchema", err)
	}
}

func Test_MapHeader_Invalid_Rule_Pattern_Fails(t *testing.T) {
	t.Parallel()

	table := &schema.Table{
		Name:  "books",
		Rules: []schema.Rule{{Match: "([", To: "x"}},
	}

	_, err := table.MapHeader([]string{"anything"})
	if !errors.Is(err, schema.ErrSchema) {
		t.Fatalf("err = %v, want ErrSchema", err)
	}
}
