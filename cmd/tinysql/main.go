package main

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/hoangtv090103/godb/internal/engine"
)

// Config holds the REPL's runtime display configuration.
type Config struct {
	Header bool
	Echo   bool
	Timer  bool
	Null   string
	Mode   OutputMode
}

type OutputMode string

const (
	ModeColumn OutputMode = "column"
	ModeList   OutputMode = "list"
	ModeCSV    OutputMode = "csv"
	ModeJSON   OutputMode = "json"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("tinysql", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: tinysql [OPTIONS] FILENAME [SQL]\n")
		fs.PrintDefaults()
	}

	var (
		mode       = fs.String("mode", "column", "Output mode: column|list|csv|json")
		headers    = fs.Bool("header", true, "Include column headers")
		echo       = fs.Bool("echo", false, "Echo SQL before execution")
		cmd        = fs.String("cmd", "", "Run specific SQL and exit")
		poolSize   = fs.Int("pool-size", 64, "Buffer pool size, in pages")
		checkpoint = fs.String("checkpoint", "", `Cron expression for background checkpoints (e.g. "@every 1m"); empty disables`)
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	remaining := fs.Args()
	if len(remaining) < 1 {
		fs.Usage()
		return errors.New("a database file path is required")
	}
	dbPath := remaining[0]
	inlineSQL := strings.Join(remaining[1:], " ")

	eng, err := engine.Open(engine.Config{Path: dbPath, PoolSize: *poolSize, CheckpointSchedule: *checkpoint})
	if err != nil {
		return err
	}
	defer eng.Close()

	cfg := &Config{Header: *headers, Echo: *echo, Mode: OutputMode(*mode)}
	out := os.Stdout

	if *cmd != "" {
		return execAll(eng, cfg, *cmd, out)
	}
	if inlineSQL != "" {
		return execAll(eng, cfg, inlineSQL, out)
	}
	if isInputPiped() {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return err
		}
		return execAll(eng, cfg, string(data), out)
	}

	repl := &Repl{eng: eng, cfg: cfg, out: out}
	return repl.Run()
}

// ---- REPL --------------------------------------------------------------

type Repl struct {
	eng *engine.Engine
	cfg *Config
	out *os.File
	buf strings.Builder
}

func (r *Repl) Run() error {
	fmt.Fprintln(r.out, "tinysql (storage-engine-core) shell")
	fmt.Fprintln(r.out, `Enter ".help" for usage hints.`)

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 1024*1024), 10*1024*1024)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		for range sigChan {
			if r.buf.Len() > 0 {
				fmt.Fprintln(r.out, "^C")
				r.buf.Reset()
				r.printPrompt()
			} else {
				os.Exit(0)
			}
		}
	}()

	r.printPrompt()
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)

		if r.buf.Len() == 0 && strings.HasPrefix(trimmed, ".") {
			if err := r.handleMeta(trimmed); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}
			r.printPrompt()
			continue
		}

		r.buf.WriteString(line)
		r.buf.WriteByte('\n')
		if strings.HasSuffix(trimmed, ";") {
			sqlText := r.buf.String()
			r.buf.Reset()
			if err := execAll(r.eng, r.cfg, sqlText, r.out); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}
		}
		r.printPrompt()
	}
	return scanner.Err()
}

func (r *Repl) printPrompt() {
	if r.buf.Len() == 0 {
		fmt.Fprint(r.out, "tinysql> ")
	} else {
		fmt.Fprint(r.out, "   ...> ")
	}
}

func (r *Repl) handleMeta(line string) error {
	parts := strings.Fields(line)
	cmd := parts[0]
	args := parts[1:]

	switch cmd {
	case ".help":
		printHelp(r.out)
	case ".quit", ".exit":
		os.Exit(0)
	case ".tables":
		printTables(r.out, r.eng)
	case ".mode":
		if len(args) < 1 {
			return errors.New("usage: .mode column|list|csv|json")
		}
		r.cfg.Mode = OutputMode(args[0])
	case ".headers":
		if len(args) < 1 {
			return errors.New("usage: .headers on|off")
		}
		r.cfg.Header = args[0] == "on"
	case ".timer":
		if len(args) < 1 {
			return errors.New("usage: .timer on|off")
		}
		r.cfg.Timer = args[0] == "on"
	case ".nullvalue":
		if len(args) < 1 {
			return errors.New("usage: .nullvalue STRING")
		}
		r.cfg.Null = args[0]
	case ".read":
		if len(args) < 1 {
			return errors.New("usage: .read FILE")
		}
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		return execAll(r.eng, r.cfg, string(data), r.out)
	default:
		return fmt.Errorf("unknown command: %s", cmd)
	}
	return nil
}

func printHelp(out io.Writer) {
	fmt.Fprintln(out, `
.exit                  Exit this program
.headers on|off        Turn display of headers on or off
.help                  Show this message
.mode MODE             Set output mode (column, list, csv, json)
.nullvalue STRING      Use STRING in place of NULL values
.read FILENAME         Execute SQL in FILENAME
.tables                List names of tables
.timer on|off          Turn SQL timer on or off`)
}

// ---- Execution -----------------------------------------------------------

func execAll(eng *engine.Engine, cfg *Config, sqlText string, out io.Writer) error {
	for _, stmt := range splitStatements(sqlText) {
		if cfg.Echo {
			fmt.Fprintln(out, stmt)
		}
		start := time.Now()
		res, err := eng.Execute(stmt)
		elapsed := time.Since(start)
		if err != nil {
			return err
		}
		if res != nil && res.Columns != nil {
			if err := getPrinter(cfg.Mode).Print(out, res, cfg); err != nil {
				return err
			}
		} else if res != nil && res.Message != "" {
			fmt.Fprintln(out, res.Message)
		}
		if cfg.Timer {
			fmt.Fprintf(out, "Run Time: real %.3fs\n", elapsed.Seconds())
		}
	}
	return nil
}

// ---- Output formatters -----------------------------------------------------

type Printer interface {
	Print(w io.Writer, res *engine.Result, cfg *Config) error
}

func getPrinter(mode OutputMode) Printer {
	switch mode {
	case ModeCSV:
		return &csvPrinter{}
	case ModeJSON:
		return &jsonPrinter{}
	case ModeList:
		return &listPrinter{}
	default:
		return &columnPrinter{}
	}
}

type columnPrinter struct{}

func (columnPrinter) Print(out io.Writer, res *engine.Result, cfg *Config) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	if cfg.Header {
		fmt.Fprintln(w, strings.Join(res.Columns, "\t"))
		sep := make([]string, len(res.Columns))
		for i, c := range res.Columns {
			sep[i] = strings.Repeat("-", len(c))
		}
		fmt.Fprintln(w, strings.Join(sep, "\t"))
	}
	for _, row := range res.Rows {
		cells := make([]string, len(row.Values))
		for i, v := range row.Values {
			cells[i] = fmtScalar(v, cfg.Null)
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	return w.Flush()
}

type listPrinter struct{}

func (listPrinter) Print(out io.Writer, res *engine.Result, cfg *Config) error {
	for _, row := range res.Rows {
		cells := make([]string, len(row.Values))
		for i, v := range row.Values {
			cells[i] = fmtScalar(v, cfg.Null)
		}
		fmt.Fprintln(out, strings.Join(cells, "|"))
	}
	return nil
}

type csvPrinter struct{}

func (csvPrinter) Print(out io.Writer, res *engine.Result, cfg *Config) error {
	w := csv.NewWriter(out)
	if cfg.Header {
		if err := w.Write(res.Columns); err != nil {
			return err
		}
	}
	for _, row := range res.Rows {
		record := make([]string, len(row.Values))
		for i, v := range row.Values {
			record[i] = fmtScalar(v, "")
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

type jsonPrinter struct{}

func (jsonPrinter) Print(out io.Writer, res *engine.Result, cfg *Config) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	items := make([]map[string]any, 0, len(res.Rows))
	for _, row := range res.Rows {
		item := make(map[string]any, len(res.Columns))
		for i, c := range res.Columns {
			item[c] = row.Values[i]
		}
		items = append(items, item)
	}
	return enc.Encode(items)
}

// ---- Helpers ---------------------------------------------------------------

func fmtScalar(v any, nullVal string) string {
	if v == nil {
		return nullVal
	}
	return fmt.Sprintf("%v", v)
}

func isInputPiped() bool {
	info, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) == 0
}

func printTables(out io.Writer, eng *engine.Engine) {
	names := eng.Catalog().ListTables()
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintf(out, "%s  ", n)
	}
	fmt.Fprintln(out)
}

// splitStatements is a simple quote-aware state-machine splitter; it
// does not need a full lexer since statements here never nest.
func splitStatements(sql string) []string {
	var stmts []string
	var buf strings.Builder
	inSingle, inDouble := false, false

	for i := 0; i < len(sql); i++ {
		ch := sql[i]
		switch ch {
		case '\'':
			if !inDouble {
				inSingle = !inSingle
			}
		case '"':
			if !inSingle {
				inDouble = !inDouble
			}
		case ';':
			if !inSingle && !inDouble {
				if s := strings.TrimSpace(buf.String()); s != "" {
					stmts = append(stmts, s)
				}
				buf.Reset()
				continue
			}
		}
		buf.WriteByte(ch)
	}
	if s := strings.TrimSpace(buf.String()); s != "" {
		stmts = append(stmts, s)
	}
	return stmts
}
