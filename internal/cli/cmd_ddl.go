package cli

import (
	"context"
	"errors"
	"fmt"

	"pixie/internal/pixie"
	"pixie/internal/schema"
	"pixie/internal/store"
)

func cmdDDL(ctx context.Context, o *IO, cfg pixie.Config, args []string) error {
	if hasHelpFlag(args) {
		printDDLHelp(o)

		return nil
	}

	if len(args) != 1 {
		return errors.New("usage: pixie ddl <code>")
	}

	code := args[0]

	sch, err := schema.Load(cfg.SchemaPath(code))
	if err != nil {
		return err
	}

	err = schema.Compile(sch)
	if err != nil {
		return err
	}

	if err = ctx.Err(); err != nil {
		return err
	}

	for _, t := range sch.Tables {
		if t.IsTemplate() {
			continue
		}

		create, indexes, err := store.BuildDDL(sch, t)
		if err != nil {
			return fmt.Errorf("table %s: %w", t.Name, err)
		}

		o.Println(create + ";")

		for _, idx := range indexes {
			o.Println(idx + ";")
		}

		o.Println("")
	}

	return nil
}

func printDDLHelp(o *IO) {
	o.Println("Usage: pixie ddl <code>")
	o.Println("")
	o.Println("Print the CREATE TABLE and CREATE INDEX statements the dataset's")
	o.Println("compiled schema produces, without touching any store file.")
}
