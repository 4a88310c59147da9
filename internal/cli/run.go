package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"pixie/internal/pixie"
)

const (
	minArgs      = 2
	consumedOne  = 1
	consumedTwo  = 2
	consumedNone = 0
	helpFlag     = "--help"
)

// Run is the main entry point. Returns exit code.
func Run(in io.Reader, out, errOut io.Writer, args []string, env map[string]string, sig <-chan os.Signal) int {
	if len(args) < minArgs {
		printUsage(out)

		return 0
	}

	flags, err := parseGlobalFlags(args[1:])
	if err != nil {
		fprintln(errOut, "error:", err)

		return 1
	}

	if len(flags.remaining) == 0 {
		printUsage(out)

		return 0
	}

	cmd := flags.remaining[0]
	if cmd == "-h" || cmd == helpFlag {
		printUsage(out)

		return 0
	}

	cfg, err := pixie.LoadConfig(pixie.LoadConfigInput{
		WorkDirOverride: flags.workDir,
		ConfigPath:      flags.configPath,
		DataDirOverride: flags.dataDir,
		Env:             env,
	})
	if err != nil {
		fprintln(errOut, "error:", err)
		printUsage(errOut)

		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if sig != nil {
		go func() {
			select {
			case <-sig:
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	o := NewIO(out, errOut)

	var cmdErr error

	switch cmd {
	case "import":
		cmdErr = cmdImport(ctx, o, cfg, flags.remaining[1:])
	case "export":
		cmdErr = cmdExport(ctx, o, cfg, flags.remaining[1:])
	case "tables":
		cmdErr = cmdTables(ctx, o, cfg, flags.remaining[1:])
	case "get":
		cmdErr = cmdGet(ctx, o, cfg, flags.remaining[1:])
	case "ddl":
		cmdErr = cmdDDL(ctx, o, cfg, flags.remaining[1:])
	case "inspect":
		cmdErr = cmdInspect(ctx, o, cfg, flags.remaining[1:])
	case "shell":
		cmdErr = cmdShell(ctx, o, in, cfg, flags.remaining[1:])
	case "print-config":
		cmdErr = cmdPrintConfig(o, cfg)
	default:
		fprintln(errOut, "error: unknown command:", cmd)
		printUsage(errOut)

		return 1
	}

	if cmdErr != nil {
		fprintln(errOut, "error:", cmdErr)

		return 1
	}

	return o.Finish()
}

type globalFlags struct {
	workDir    string
	configPath string
	dataDir    string
	remaining  []string
}

func parseGlobalFlags(args []string) (globalFlags, error) {
	var flags globalFlags

	idx := 0
	for idx < len(args) {
		consumed, err := parseFlag(args, idx, &flags)
		if err != nil {
			return globalFlags{}, err
		}

		if consumed == 0 {
			// Not a flag, this is the command
			flags.remaining = args[idx:]

			break
		}

		idx += consumed
	}

	return flags, nil
}

// parseFlag tries to parse a global flag at args[idx]. Returns the number of
// args consumed (0 if not a flag).
func parseFlag(args []string, idx int, flags *globalFlags) (int, error) {
	arg := args[idx]

	if (arg == "-C" || arg == "--cwd") && idx+1 < len(args) {
		flags.workDir = args[idx+1]

		return consumedTwo, nil
	}

	if after, ok := strings.CutPrefix(arg, "--cwd="); ok {
		flags.workDir = after

		return consumedOne, nil
	}

	if arg == "-c" || arg == "--config" {
		if idx+1 >= len(args) {
			return consumedNone, fmt.Errorf("flag requires an argument: %s", arg)
		}

		flags.configPath = args[idx+1]

		return consumedTwo, nil
	}

	if after, ok := strings.CutPrefix(arg, "--config="); ok {
		flags.configPath = after

		return consumedOne, nil
	}

	if arg == "--data-dir" {
		if idx+1 >= len(args) {
			return consumedNone, fmt.Errorf("flag requires an argument: %s", arg)
		}

		flags.dataDir = args[idx+1]

		return consumedTwo, nil
	}

	if after, ok := strings.CutPrefix(arg, "--data-dir="); ok {
		flags.dataDir = after

		return consumedOne, nil
	}

	if arg == "-h" || arg == helpFlag {
		flags.remaining = []string{helpFlag}

		return len(args) - idx, nil
	}

	if strings.HasPrefix(arg, "-") && arg != "-" {
		return consumedNone, fmt.Errorf("unknown flag: %s", arg)
	}

	return consumedNone, nil
}

func cmdPrintConfig(o *IO, cfg pixie.Config) error {
	formatted, err := pixie.FormatConfig(cfg)
	if err != nil {
		return err
	}

	o.Println(formatted)
	o.Println("")
	o.Println("# Sources:")

	if cfg.Sources.Global != "" {
		o.Println("#   global:", cfg.Sources.Global)
	}

	if cfg.Sources.Project != "" {
		o.Println("#   project:", cfg.Sources.Project)
	}

	if cfg.Sources.Global == "" && cfg.Sources.Project == "" {
		o.Println("#   (using defaults only)")
	}

	return nil
}

func fprintln(w io.Writer, a ...any) {
	_, _ = fmt.Fprintln(w, a...)
}

func printUsage(w io.Writer) {
	fprintln(w, "Usage: pixie [global flags] <command> [args]")
	fprintln(w, "")
	fprintln(w, "Manage per-dataset document stores: one SQLite file per dataset,")
	fprintln(w, "schema-driven tables, raw JSON payloads with generated columns.")
	fprintln(w, "")
	fprintln(w, "Commands:")
	fprintln(w, "  import <code> <file>      Load CSV/JSON/NDJSON records into a table")
	fprintln(w, "  export <code> <table>     Write a table as newline-delimited JSON")
	fprintln(w, "  tables [<code>]           List datasets, or one dataset's tables")
	fprintln(w, "  get <code> <table> [key]  Print one record as JSON")
	fprintln(w, "  ddl <code>                Print the CREATE statements for the dataset")
	fprintln(w, "  inspect <code|file>       Recover the table shape of a store file")
	fprintln(w, "  shell <code>              Interactive dataset browser")
	fprintln(w, "  print-config              Show the effective configuration")
	fprintln(w, "")
	fprintln(w, "Global flags:")
	fprintln(w, "  -C, --cwd <dir>       Run as if started in <dir>")
	fprintln(w, "  -c, --config <file>   Use an explicit config file")
	fprintln(w, "      --data-dir <dir>  Override the data directory")
	fprintln(w, "  -h, --help            Show this help")
	fprintln(w, "")
	fprintln(w, "Datasets live in the data directory as <code>.pixie.db next to their")
	fprintln(w, "schema definition <code>.jsonc.")
}
