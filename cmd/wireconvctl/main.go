package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/danmuck/wireconv/internal/logging"
	"github.com/danmuck/wireconv/internal/protocol"
	"github.com/danmuck/wireconv/internal/protocol/schema"
	"github.com/danmuck/wireconv/internal/store"
	"github.com/danmuck/wireconv/internal/store/sqlite"
	"github.com/danmuck/wireconv/internal/store/yamlfile"
	json "github.com/goccy/go-json"
)

const usage = `usage: wireconvctl <command> [flags]

commands:
  decode  -schema file.yaml [-in message.txt] [-pretty]
  import  -schema file.yaml -db schemas.db
  export  -db schemas.db [-out file.yaml]
  codes   (-schema file.yaml | -db schemas.db)
`

var errUsage = errors.New("invalid usage")

func main() {
	logging.ConfigureRuntime()
	if err := run(context.Background(), os.Args[1:], os.Stdin, os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
		}
		fatalf("%v", err)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "wireconvctl: "+format+"\n", args...)
	os.Exit(1)
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "decode":
		return runDecode(rest, stdin, stdout)
	case "import":
		return runImport(ctx, rest, stdout)
	case "export":
		return runExport(ctx, rest, stdout)
	case "codes":
		return runCodes(ctx, rest, stdout)
	case "help", "-h", "--help":
		_, err := fmt.Fprint(stdout, usage)
		return err
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

func runDecode(args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("decode", flag.ContinueOnError)
	schemaPath := fs.String("schema", "", "YAML schema file")
	in := fs.String("in", "", "message file (defaults to stdin)")
	pretty := fs.Bool("pretty", false, "indent JSON output")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if *schemaPath == "" {
		return fmt.Errorf("%w: decode requires -schema", errUsage)
	}

	src, err := readSchemaFile(*schemaPath)
	if err != nil {
		return err
	}
	reg := schema.NewRegistry()
	if err := reg.Load(src.Specs, src.Children); err != nil {
		return fmt.Errorf("decode: %w", err)
	}

	var raw []byte
	if *in == "" {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = os.ReadFile(*in)
	}
	if err != nil {
		return fmt.Errorf("decode: read message: %w", err)
	}

	rec, err := protocol.NewParser(reg).Parse(trimNewline(string(raw)))
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	out, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("decode: encode: %w", err)
	}
	if *pretty {
		var buf bytes.Buffer
		if err := json.Indent(&buf, out, "", "  "); err != nil {
			return fmt.Errorf("decode: indent: %w", err)
		}
		out = buf.Bytes()
	}
	_, err = fmt.Fprintln(stdout, string(out))
	return err
}

func runImport(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	schemaPath := fs.String("schema", "", "YAML schema file")
	dbPath := fs.String("db", "", "SQLite database path")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if *schemaPath == "" || *dbPath == "" {
		return fmt.Errorf("%w: import requires -schema and -db", errUsage)
	}

	src, err := readSchemaFile(*schemaPath)
	if err != nil {
		return err
	}
	// Reject what the daemon would refuse to load before touching the db.
	ix, err := schema.NewIndex(src.Specs, src.Children)
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}

	st, err := sqlite.Open(ctx, *dbPath)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.Replace(ctx, src.Specs, src.Children); err != nil {
		return err
	}
	stats := ix.Stats()
	_, err = fmt.Fprintf(stdout, "imported type_codes=%d fields=%d children=%d into %s\n",
		stats.TypeCodes, stats.Fields, stats.Children, *dbPath)
	return err
}

func runExport(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	dbPath := fs.String("db", "", "SQLite database path")
	outPath := fs.String("out", "", "output YAML file (defaults to stdout)")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if *dbPath == "" {
		return fmt.Errorf("%w: export requires -db", errUsage)
	}

	st, err := sqlite.Open(ctx, *dbPath)
	if err != nil {
		return err
	}
	defer st.Close()
	src, err := snapshot(ctx, st)
	if err != nil {
		return err
	}
	data, err := yamlfile.Marshal(src)
	if err != nil {
		return err
	}
	if *outPath == "" {
		_, err = stdout.Write(data)
		return err
	}
	return os.WriteFile(*outPath, data, 0o644)
}

func runCodes(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("codes", flag.ContinueOnError)
	schemaPath := fs.String("schema", "", "YAML schema file")
	dbPath := fs.String("db", "", "SQLite database path")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	var src store.Source
	switch {
	case *schemaPath != "" && *dbPath == "":
		src = yamlfile.New(*schemaPath)
	case *dbPath != "" && *schemaPath == "":
		st, err := sqlite.Open(ctx, *dbPath)
		if err != nil {
			return err
		}
		defer st.Close()
		src = st
	default:
		return fmt.Errorf("%w: codes requires exactly one of -schema or -db", errUsage)
	}

	reg := schema.NewRegistry()
	if err := store.Load(ctx, src, reg); err != nil {
		return err
	}
	ix := reg.Index()
	for _, code := range ix.TypeCodes() {
		if _, err := fmt.Fprintf(stdout, "%s\t%d\n", code, len(ix.SpecsFor(code))); err != nil {
			return err
		}
	}
	return nil
}

func readSchemaFile(path string) (store.Static, error) {
	return yamlfile.New(path).Snapshot(context.Background())
}

func snapshot(ctx context.Context, src store.Source) (store.Static, error) {
	specs, err := src.TopLevelSpecs(ctx)
	if err != nil {
		return store.Static{}, err
	}
	children, err := src.ChildSpecs(ctx)
	if err != nil {
		return store.Static{}, err
	}
	return store.Static{Specs: specs, Children: children}, nil
}

// trimNewline drops one trailing line ending added by editors and shells.
// Any other trailing characters count toward the declared length.
func trimNewline(s string) string {
	s = strings.TrimSuffix(s, "\n")
	return strings.TrimSuffix(s, "\r")
}
