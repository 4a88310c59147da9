package cli

import (
	"context"
	"errors"
	"io"

	flag "github.com/spf13/pflag"

	"pixie/internal/ingest"
	"pixie/internal/pixie"
)

func cmdExport(ctx context.Context, o *IO, cfg pixie.Config, args []string) error {
	if hasHelpFlag(args) {
		printExportHelp(o)

		return nil
	}

	flagSet := flag.NewFlagSet("export", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	out := flagSet.StringP("out", "o", "", "Output file (default: <table>.ndjson)")

	err := flagSet.Parse(args)
	if err != nil {
		return err
	}

	rest := flagSet.Args()
	if len(rest) != 2 {
		return errors.New("usage: pixie export <code> <table> [-o file]")
	}

	code, table := rest[0], rest[1]

	path := *out
	if path == "" {
		path = table + ".ndjson"
	}

	s, err := pixie.OpenDataset(ctx, cfg, code)
	if err != nil {
		return err
	}

	defer func() { _ = s.Close() }()

	count, err := ingest.Export(ctx, s, table, path)
	if err != nil {
		return err
	}

	o.Printf("exported %d records to %s\n", count, path)

	return nil
}

func printExportHelp(o *IO) {
	o.Println("Usage: pixie export <code> <table> [-o file]")
	o.Println("")
	o.Println("Write every record of the table as newline-delimited JSON, one payload")
	o.Println("per line in primary-key order. The output file is replaced atomically.")
	o.Println("")
	o.Println("Flags:")
	o.Println("  -o, --out <file>  Output file (default: <table>.ndjson)")
}
