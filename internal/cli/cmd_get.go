package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	flag "github.com/spf13/pflag"

	"pixie/internal/pixie"
	"pixie/internal/store"
)

func cmdGet(ctx context.Context, o *IO, cfg pixie.Config, args []string) error {
	if hasHelpFlag(args) {
		printGetHelp(o)

		return nil
	}

	flagSet := flag.NewFlagSet("get", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	index := flagSet.Int("index", -2, "Read the record at this position instead of by key")
	random := flagSet.Bool("random", false, "Read a uniformly random record")

	err := flagSet.Parse(args)
	if err != nil {
		return err
	}

	rest := flagSet.Args()

	byPosition := *random || flagSet.Changed("index")

	if byPosition && len(rest) != 2 {
		return errors.New("usage: pixie get <code> <table> [--index n | --random]")
	}

	if !byPosition && len(rest) != 3 {
		return errors.New("usage: pixie get <code> <table> <key>")
	}

	code, table := rest[0], rest[1]

	s, err := pixie.OpenDataset(ctx, cfg, code)
	if err != nil {
		return err
	}

	defer func() { _ = s.Close() }()

	var item *store.Item

	switch {
	case *random:
		item, err = s.GetByIndex(ctx, table, -1)
	case flagSet.Changed("index"):
		item, err = s.GetByIndex(ctx, table, *index)
	default:
		item, err = s.Get(ctx, table, rest[2])
	}

	if err != nil {
		return err
	}

	if item == nil {
		return fmt.Errorf("%w: %s in %s", store.ErrNotFound, describeTarget(rest, byPosition), table)
	}

	payload := item.Data
	if item.Marking != "" {
		payload[store.MarkingColumn] = item.Marking
	}

	encoded, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	o.Println(string(encoded))

	return nil
}

func describeTarget(rest []string, byPosition bool) string {
	if byPosition {
		return "requested position"
	}

	return "key " + rest[2]
}

func printGetHelp(o *IO) {
	o.Println("Usage: pixie get <code> <table> <key>")
	o.Println("       pixie get <code> <table> --index <n>")
	o.Println("       pixie get <code> <table> --random")
	o.Println("")
	o.Println("Print one record as indented JSON: the raw payload merged with the")
	o.Println("row's generated column values.")
	o.Println("")
	o.Println("Flags:")
	o.Println("  --index <n>  Read the record at position n in primary-key order")
	o.Println("  --random     Read a uniformly random record")
}
