package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	flag "github.com/spf13/pflag"

	"pixie/internal/ingest"
	"pixie/internal/pixie"
	"pixie/internal/store"
)

type importOptions struct {
	table        string
	limit        int
	batch        int
	skipExisting bool
	patch        bool
}

func cmdImport(ctx context.Context, o *IO, cfg pixie.Config, args []string) error {
	if hasHelpFlag(args) {
		printImportHelp(o)

		return nil
	}

	opts, rest, err := parseImportFlags(args)
	if err != nil {
		return err
	}

	if len(rest) != 2 {
		return errors.New("usage: pixie import <code> <file> [flags]")
	}

	code, file := rest[0], rest[1]

	table := opts.table
	if table == "" {
		table = strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	}

	s, err := pixie.OpenDataset(ctx, cfg, code)
	if err != nil {
		return err
	}

	defer func() { _ = s.Close() }()

	t := s.Schema().Table(table)
	if t == nil {
		return fmt.Errorf("dataset %s has no table %q", code, table)
	}

	src, err := ingest.Open(file, t)
	if err != nil {
		return err
	}

	defer func() { _ = src.Close() }()

	mode := store.ModeReplace
	if opts.patch {
		mode = store.ModePatch
	}

	imp := &ingest.Importer{
		Store:        s,
		Table:        table,
		Batch:        opts.batch,
		Limit:        opts.limit,
		SkipExisting: opts.skipExisting,
		Mode:         mode,
	}

	stats, err := imp.Run(ctx, src)
	if err != nil {
		return err
	}

	o.Printf("run %s: %d read, %d written, %d skipped in %s\n",
		stats.RunID, stats.Read, stats.Written, stats.Skipped, stats.Elapsed.Round(time.Millisecond))

	if stats.Rejected > 0 {
		o.Warn("%d records had no primary key and were not written", stats.Rejected)
	}

	return nil
}

func parseImportFlags(args []string) (importOptions, []string, error) {
	flagSet := flag.NewFlagSet("import", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	table := flagSet.String("table", "", "Target table (default: file name without extension)")
	limit := flagSet.Int("limit", 0, "Stop after N records (0 = all)")
	batch := flagSet.Int("batch", 0, "Records per transaction (0 = default)")
	skip := flagSet.Bool("skip-existing", false, "Skip records whose key already exists")
	patch := flagSet.Bool("patch", false, "Merge into existing payloads instead of replacing them")

	err := flagSet.Parse(args)
	if err != nil {
		return importOptions{}, nil, err
	}

	return importOptions{
		table:        *table,
		limit:        *limit,
		batch:        *batch,
		skipExisting: *skip,
		patch:        *patch,
	}, flagSet.Args(), nil
}

func printImportHelp(o *IO) {
	o.Println("Usage: pixie import <code> <file> [flags]")
	o.Println("")
	o.Println("Load records from a CSV, JSON-array, or NDJSON file into one table of")
	o.Println("the dataset. Source field names are mapped to property codes through")
	o.Println("the table's header rules; writes are grouped into transactions.")
	o.Println("")
	o.Println("Flags:")
	o.Println("  --table <name>    Target table (default: file name without extension)")
	o.Println("  --limit <n>       Stop after N records")
	o.Println("  --batch <n>       Records per transaction")
	o.Println("  --skip-existing   Skip records whose key already exists")
	o.Println("  --patch           Merge into existing payloads instead of replacing")
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "-h" || arg == helpFlag {
			return true
		}
	}

	return false
}
