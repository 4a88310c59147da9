package cli

import (
	"context"
	"errors"
	"sort"
	"strings"

	"pixie/internal/pixie"
	"pixie/internal/schema"
	"pixie/internal/store"
)

func cmdInspect(ctx context.Context, o *IO, cfg pixie.Config, args []string) error {
	if hasHelpFlag(args) {
		printInspectHelp(o)

		return nil
	}

	if len(args) != 1 {
		return errors.New("usage: pixie inspect <code|file>")
	}

	path := args[0]
	if !looksLikeStoreFile(path) {
		// Accept a dataset code as a convenience.
		path = cfg.StorePath(path)
	}

	tables, err := store.InspectSchema(ctx, path)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}

	sort.Strings(names)

	for _, name := range names {
		t := tables[name]

		o.Printf("%s (pk %s)\n", t.Name, t.PkName)

		for _, p := range t.Properties {
			marker := " "
			if p.Index == schema.IndexSecondary {
				marker = "*"
			}

			o.Printf("  %s %-20s %s\n", marker, p.Code, p.ColumnType())
		}

		o.Println("")
	}

	return nil
}

func looksLikeStoreFile(path string) bool {
	for _, suffix := range []string{".db", ".sqlite", ".sqlite3"} {
		if strings.HasSuffix(path, suffix) {
			return true
		}
	}

	return false
}

func printInspectHelp(o *IO) {
	o.Println("Usage: pixie inspect <code|file>")
	o.Println("")
	o.Println("Recover the table shape of an existing store file from the engine's")
	o.Println("own metadata: tables, primary keys, column types, and indexed")
	o.Println("properties (marked *). Accepts a dataset code or a file path.")
}
