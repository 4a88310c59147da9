package cli

import (
	"context"
	"errors"

	"pixie/internal/pixie"
)

func cmdTables(ctx context.Context, o *IO, cfg pixie.Config, args []string) error {
	if hasHelpFlag(args) {
		printTablesHelp(o)

		return nil
	}

	// Without a dataset code, list the datasets the data directory knows.
	if len(args) == 0 {
		codes, err := pixie.Datasets(cfg)
		if err != nil {
			return err
		}

		if len(codes) == 0 {
			o.Println("no datasets in", cfg.DataDirAbs)

			return nil
		}

		for _, code := range codes {
			o.Println(code)
		}

		return nil
	}

	if len(args) != 1 {
		return errors.New("usage: pixie tables [<code>]")
	}

	s, err := pixie.OpenDataset(ctx, cfg, args[0])
	if err != nil {
		return err
	}

	defer func() { _ = s.Close() }()

	o.Printf("%-24s %-12s %8s\n", "TABLE", "PK", "ROWS")

	for _, t := range s.Schema().Tables {
		if t.IsTemplate() {
			continue
		}

		count, ok, err := s.Count(ctx, t.Name, nil)
		if err != nil {
			return err
		}

		if !ok {
			o.Printf("%-24s %-12s %8s\n", t.Name, t.PkName, "-")

			continue
		}

		o.Printf("%-24s %-12s %8d\n", t.Name, t.PkName, count)
	}

	return nil
}

func printTablesHelp(o *IO) {
	o.Println("Usage: pixie tables [<code>]")
	o.Println("")
	o.Println("List the dataset's tables with their primary key and row count.")
	o.Println("Without a dataset code, list the datasets in the data directory.")
}
