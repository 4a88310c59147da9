package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/peterh/liner"

	"pixie/internal/pixie"
	"pixie/internal/store"
)

// lineReader abstracts the prompt source so the shell works both on a real
// terminal (with history and editing via liner) and on piped input.
type lineReader interface {
	Prompt(prompt string) (string, error)
	Close() error
}

type plainLines struct {
	scanner *bufio.Scanner
}

func (p *plainLines) Prompt(string) (string, error) {
	if !p.scanner.Scan() {
		if err := p.scanner.Err(); err != nil {
			return "", err
		}

		return "", io.EOF
	}

	return p.scanner.Text(), nil
}

func (p *plainLines) Close() error { return nil }

type linerLines struct {
	state *liner.State
}

func (l *linerLines) Prompt(prompt string) (string, error) {
	line, err := l.state.Prompt(prompt)
	if err != nil {
		if errors.Is(err, liner.ErrPromptAborted) {
			return "", io.EOF
		}

		return "", err
	}

	if strings.TrimSpace(line) != "" {
		l.state.AppendHistory(line)
	}

	return line, nil
}

func (l *linerLines) Close() error { return l.state.Close() }

func newLineReader(in io.Reader) lineReader {
	if f, ok := in.(*os.File); ok && f == os.Stdin && liner.TerminalSupported() {
		return &linerLines{state: liner.NewLiner()}
	}

	return &plainLines{scanner: bufio.NewScanner(in)}
}

// shellState is the mutable session of one shell run.
type shellState struct {
	store *store.Store
	table string
}

func cmdShell(ctx context.Context, o *IO, in io.Reader, cfg pixie.Config, args []string) error {
	if hasHelpFlag(args) {
		printShellHelp(o)

		return nil
	}

	if len(args) != 1 {
		return errors.New("usage: pixie shell <code>")
	}

	s, err := pixie.OpenDataset(ctx, cfg, args[0])
	if err != nil {
		return err
	}

	defer func() { _ = s.Close() }()

	reader := newLineReader(in)

	defer func() { _ = reader.Close() }()

	state := &shellState{store: s}

	o.Println("pixie shell, dataset", args[0], "- type 'help' for commands")

	for {
		if err = ctx.Err(); err != nil {
			return nil
		}

		prompt := args[0]
		if state.table != "" {
			prompt += "/" + state.table
		}

		line, err := reader.Prompt(prompt + "> ")
		if err != nil {
			if err == io.EOF {
				return nil
			}

			return err
		}

		done, err := state.eval(ctx, o, line)
		if err != nil {
			o.ErrPrintln("error:", err)

			continue
		}

		if done {
			return nil
		}
	}
}

// eval runs one shell line. The bool result reports a quit request.
func (st *shellState) eval(ctx context.Context, o *IO, line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}

	cmd, rest := fields[0], fields[1:]

	switch cmd {
	case "quit", "exit":
		return true, nil

	case "help":
		printShellCommands(o)

		return false, nil

	case "tables":
		for _, t := range st.store.Schema().Tables {
			if t.IsTemplate() {
				continue
			}

			count, ok, err := st.store.Count(ctx, t.Name, nil)
			if err != nil {
				return false, err
			}

			if ok {
				o.Printf("%-24s %d\n", t.Name, count)
			} else {
				o.Printf("%-24s -\n", t.Name)
			}
		}

		return false, nil

	case "use":
		if len(rest) != 1 {
			return false, errors.New("usage: use <table>")
		}

		if st.store.Schema().Table(rest[0]) == nil {
			return false, fmt.Errorf("no table %q", rest[0])
		}

		st.table = rest[0]

		return false, nil

	case "get", "count", "keys", "random":
		if st.table == "" {
			return false, errors.New("no table selected, run: use <table>")
		}
	default:
		return false, fmt.Errorf("unknown command %q, type 'help'", cmd)
	}

	switch cmd {
	case "get":
		if len(rest) != 1 {
			return false, errors.New("usage: get <key>")
		}

		return false, st.printItem(ctx, o, func() (*store.Item, error) {
			return st.store.Get(ctx, st.table, rest[0])
		})

	case "random":
		return false, st.printItem(ctx, o, func() (*store.Item, error) {
			return st.store.GetByIndex(ctx, st.table, -1)
		})

	case "count":
		count, ok, err := st.store.Count(ctx, st.table, nil)
		if err != nil {
			return false, err
		}

		if !ok {
			o.Println("-")
		} else {
			o.Println(count)
		}

		return false, nil

	case "keys":
		keys, err := st.store.Keys(ctx, st.table)
		if err != nil {
			return false, err
		}

		for _, key := range keys {
			o.Println(key)
		}

		return false, nil
	}

	return false, nil
}

func (st *shellState) printItem(_ context.Context, o *IO, read func() (*store.Item, error)) error {
	item, err := read()
	if err != nil {
		return err
	}

	if item == nil {
		return errors.New("no such record")
	}

	encoded, err := json.MarshalIndent(item.Data, "", "  ")
	if err != nil {
		return err
	}

	o.Println(string(encoded))

	return nil
}

func printShellCommands(o *IO) {
	o.Println("  tables        list tables with row counts")
	o.Println("  use <table>   select the working table")
	o.Println("  get <key>     print one record")
	o.Println("  random        print a random record")
	o.Println("  count         count rows of the working table")
	o.Println("  keys          list primary keys of the working table")
	o.Println("  quit          leave the shell")
}

func printShellHelp(o *IO) {
	o.Println("Usage: pixie shell <code>")
	o.Println("")
	o.Println("Interactive dataset browser with line editing and history on a")
	o.Println("terminal; reads plain lines when input is piped.")
	o.Println("")
	printShellCommands(o)
}
