package ingest_test

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"pixie/internal/ingest"
	"pixie/internal/schema"
	"pixie/internal/store"
)

const booksSchema = `{
	"code": "lib",
	"tables": [
		{
			"name": "books",
			"naming": "snake",
			"properties": ["&id|int", "title", "&year|int", "tags|json"],
		},
	],
}`

func openBooks(t *testing.T) *store.Store {
	t.Helper()

	sch, err := schema.Parse([]byte(booksSchema))
	if err != nil {
		t.Fatalf("parse schema: %v", err)
	}

	s, err := store.Open(t.Context(), filepath.Join(t.TempDir(), "lib.pixie.db"), sch)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	t.Cleanup(func() { _ = s.Close() })

	return s
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)

	err := os.WriteFile(path, []byte(content), 0o600)
	if err != nil {
		t.Fatalf("write %s: %v", name, err)
	}

	return path
}

func openSource(t *testing.T, path string, table *schema.Table) ingest.Source {
	t.Helper()

	src, err := ingest.Open(path, table)
	if err != nil {
		t.Fatalf("open source: %v", err)
	}

	t.Cleanup(func() { _ = src.Close() })

	return src
}

const booksCSV = `ID,Title,Year,tags|
1,Neuromancer,1984,cyberpunk|classic
2,Count Zero,1986,cyberpunk
,No Key,2000,
`

func Test_Import_CSV_Loads_Mapped_Records(t *testing.T) {
	t.Parallel()

	s := openBooks(t)
	path := writeFile(t, "books.csv", booksCSV)
	src := openSource(t, path, s.Schema().Table("books"))

	imp := &ingest.Importer{Store: s, Table: "books", Batch: 1}

	stats, err := imp.Run(t.Context(), src)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if stats.Read != 3 || stats.Written != 2 || stats.Rejected != 1 {
		t.Fatalf("stats = %+v, want read 3 written 2 rejected 1", stats)
	}

	if stats.RunID.Version() != 7 {
		t.Fatalf("run id version = %d, want 7", stats.RunID.Version())
	}

	item, err := s.Get(t.Context(), "books", "1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	if item == nil {
		t.Fatal("imported record missing")
	}

	if item.Data["title"] != "Neuromancer" {
		t.Fatalf("title = %v", item.Data["title"])
	}

	if year, _ := item.Data["year"].(int64); year != 1984 {
		t.Fatalf("year = %v (%T), want typed 1984", item.Data["year"], item.Data["year"])
	}

	tags, ok := item.Data["tags"].([]any)
	if !ok {
		t.Fatalf("tags = %v (%T), want list", item.Data["tags"], item.Data["tags"])
	}

	if diff := cmp.Diff([]any{"cyberpunk", "classic"}, tags); diff != "" {
		t.Fatalf("tags mismatch (-want +got):\n%s", diff)
	}
}

func Test_Import_Skips_Existing_Records(t *testing.T) {
	t.Parallel()

	s := openBooks(t)
	path := writeFile(t, "books.csv", booksCSV)
	table := s.Schema().Table("books")

	imp := &ingest.Importer{Store: s, Table: "books"}

	_, err := imp.Run(t.Context(), openSource(t, path, table))
	if err != nil {
		t.Fatalf("first run: %v", err)
	}

	imp.SkipExisting = true

	stats, err := imp.Run(t.Context(), openSource(t, path, table))
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if stats.Skipped != 2 || stats.Written != 0 {
		t.Fatalf("stats = %+v, want skipped 2 written 0", stats)
	}

	count, _, err := s.Count(t.Context(), "books", nil)
	if err != nil {
		t.Fatalf("count: %v", err)
	}

	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}
}

func Test_Import_Respects_Limit(t *testing.T) {
	t.Parallel()

	s := openBooks(t)
	path := writeFile(t, "books.csv", booksCSV)
	src := openSource(t, path, s.Schema().Table("books"))

	imp := &ingest.Importer{Store: s, Table: "books", Limit: 1}

	stats, err := imp.Run(t.Context(), src)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if stats.Read != 1 || stats.Written != 1 {
		t.Fatalf("stats = %+v, want read 1 written 1", stats)
	}
}

func Test_NDJSON_Source_Reads_Objects_Per_Line(t *testing.T) {
	t.Parallel()

	s := openBooks(t)
	path := writeFile(t, "books.ndjson", `{"id": 1, "title": "Neuromancer"}

{"id": 2, "title": "Count Zero"}
`)
	src := openSource(t, path, s.Schema().Table("books"))

	imp := &ingest.Importer{Store: s, Table: "books"}

	stats, err := imp.Run(t.Context(), src)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if stats.Written != 2 {
		t.Fatalf("stats = %+v, want 2 written", stats)
	}
}

func Test_JSON_Array_Source_Streams_Elements(t *testing.T) {
	t.Parallel()

	s := openBooks(t)
	path := writeFile(t, "books.json", `[
		{"id": 1, "title": "Neuromancer"},
		{"id": 2, "title": "Count Zero"}
	]`)
	src := openSource(t, path, s.Schema().Table("books"))

	imp := &ingest.Importer{Store: s, Table: "books"}

	stats, err := imp.Run(t.Context(), src)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if stats.Written != 2 {
		t.Fatalf("stats = %+v, want 2 written", stats)
	}
}

func Test_JSON_Source_Rejects_Non_Array_Document(t *testing.T) {
	t.Parallel()

	s := openBooks(t)
	path := writeFile(t, "books.json", `{"id": 1}`)

	_, err := ingest.Open(path, s.Schema().Table("books"))
	if err == nil {
		t.Fatal("expected error for non-array document")
	}
}

func Test_Open_Rejects_Unknown_Extension(t *testing.T) {
	t.Parallel()

	s := openBooks(t)
	path := writeFile(t, "books.xml", "<books/>")

	_, err := ingest.Open(path, s.Schema().Table("books"))
	if err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func Test_Export_Writes_One_Payload_Per_Line(t *testing.T) {
	t.Parallel()

	s := openBooks(t)
	path := writeFile(t, "books.csv", booksCSV)
	src := openSource(t, path, s.Schema().Table("books"))

	imp := &ingest.Importer{Store: s, Table: "books"}

	_, err := imp.Run(t.Context(), src)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	out := filepath.Join(t.TempDir(), "books.ndjson")

	count, err := ingest.Export(t.Context(), s, "books", out)
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	if count != 2 {
		t.Fatalf("exported %d records, want 2", count)
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatalf("open export: %v", err)
	}

	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	lines := 0

	for scanner.Scan() {
		var payload map[string]any

		err = json.Unmarshal(scanner.Bytes(), &payload)
		if err != nil {
			t.Fatalf("line %d: %v", lines, err)
		}

		if payload["title"] == "" {
			t.Fatalf("line %d has no title: %v", lines, payload)
		}

		lines++
	}

	if lines != 2 {
		t.Fatalf("export has %d lines, want 2", lines)
	}
}
