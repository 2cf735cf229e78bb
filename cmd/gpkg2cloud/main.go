// Command gpkg2cloud exports the feature tables of a GeoPackage to
// cloud-friendly formats, one FlatGeobuf or GeoParquet file per table.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	flatgeobuf "github.com/tingold/gpkg-cloudformats"
	"github.com/tingold/gpkg-cloudformats/export"
	"github.com/tingold/gpkg-cloudformats/geoparquet"
	"github.com/tingold/gpkg-cloudformats/gpkg"
)

type config struct {
	input         string
	output        string
	tables        []string
	format        string
	provider      string
	indexNodeSize int
	rowGroupSize  int64
	compression   string
	logLevel      string
}

// parseFlags reads args into a config. Usage problems are reported as
// errors; the flag set has already printed its usage text by then.
func parseFlags(args []string, stderr io.Writer) (*config, error) {
	var (
		cfg    config
		tables string
	)
	fs := flag.NewFlagSet("gpkg2cloud", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&cfg.input, "input", "", "GeoPackage file to read")
	fs.StringVar(&cfg.output, "output", "", "Existing directory to write one file per table into")
	fs.StringVar(&tables, "tables", "", `Tables to export, each in double quotes and separated by ';' (e.g. '"roads";"rivers"'). Default: all`)
	fs.StringVar(&cfg.format, "format", "flatgeobuf", "Output format: flatgeobuf or parquet")
	fs.StringVar(&cfg.provider, "provider", "gpkg", "Table discovery: gpkg (gpkg_contents) or ili2db (T_ILI2DB_TABLE_PROP)")
	fs.IntVar(&cfg.indexNodeSize, "index-node-size", flatgeobuf.DefaultNodeSize, "FlatGeobuf spatial index fanout, 0 disables the index")
	fs.Int64Var(&cfg.rowGroupSize, "row-group-size", 0, "Maximum rows per Parquet row group, 0 for the library default")
	fs.StringVar(&cfg.compression, "compression", "snappy", "Parquet compression: none, snappy, gzip or zstd")
	fs.StringVar(&cfg.logLevel, "log-level", "info", "Log level: debug, info, warn or error")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	usage := func(format string, a ...any) (*config, error) {
		err := errors.Errorf(format, a...)
		fmt.Fprintf(stderr, "error: %v\n", err)
		fs.Usage()
		return nil, err
	}

	if cfg.input == "" {
		return usage("--input must be specified")
	}
	if fi, err := os.Stat(cfg.input); err != nil || !fi.Mode().IsRegular() {
		return usage("--input %s is not an existing file", cfg.input)
	}
	if cfg.output == "" {
		return usage("--output must be specified")
	}
	if fi, err := os.Stat(cfg.output); err != nil || !fi.IsDir() {
		return usage("--output %s is not an existing directory", cfg.output)
	}
	if tables != "" {
		names, err := parseTables(tables)
		if err != nil {
			return usage("--tables: %v", err)
		}
		cfg.tables = names
	}

	cfg.format = strings.ToLower(cfg.format)
	switch cfg.format {
	case "flatgeobuf", "parquet":
	default:
		return usage("--format %q must be flatgeobuf or parquet", cfg.format)
	}
	cfg.provider = strings.ToLower(cfg.provider)
	switch cfg.provider {
	case "gpkg", "ili2db":
	default:
		return usage("--provider %q must be gpkg or ili2db", cfg.provider)
	}
	if cfg.provider == "ili2db" && len(cfg.tables) > 0 {
		return usage("--tables cannot be combined with --provider ili2db")
	}
	return &cfg, nil
}

// parseTables splits a list like `"a";"b"`. Every name must be quoted and
// non-empty.
func parseTables(s string) ([]string, error) {
	var names []string
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if len(part) < 2 || part[0] != '"' || part[len(part)-1] != '"' {
			return nil, errors.Errorf("%q is not a double-quoted table name", part)
		}
		name := part[1 : len(part)-1]
		if strings.TrimSpace(name) == "" {
			return nil, errors.New("empty table name")
		}
		names = append(names, name)
	}
	return names, nil
}

func newLogger(w io.Writer, lvl string) (log.Logger, error) {
	var opt level.Option
	switch strings.ToLower(lvl) {
	case "debug":
		opt = level.AllowDebug()
	case "info":
		opt = level.AllowInfo()
	case "warn":
		opt = level.AllowWarn()
	case "error":
		opt = level.AllowError()
	default:
		return nil, errors.Errorf("unknown log level %q", lvl)
	}
	logger := log.NewLogfmtLogger(log.NewSyncWriter(w))
	logger = log.With(logger, "ts", log.DefaultTimestampUTC)
	return level.NewFilter(logger, opt), nil
}

func (c *config) exporter(logger log.Logger) *export.Exporter {
	e := &export.Exporter{Logger: logger}
	if c.provider == "ili2db" {
		e.Lister = gpkg.Ili2dbLister{}
	} else {
		e.Lister = gpkg.ContentsLister{Tables: c.tables}
	}
	if c.format == "parquet" {
		e.Writer = export.GeoParquet{Options: &geoparquet.Options{
			MaxRowsPerRowGroup: c.rowGroupSize,
			Compression:        c.compression,
			Logger:             logger,
		}}
	} else {
		e.Writer = export.FlatGeobuf{Options: &flatgeobuf.Options{
			IndexNodeSize: c.indexNodeSize,
			Logger:        logger,
		}}
	}
	return e
}

// readOnlyDSN returns a read-only SQLite URI for the file at path. The path
// is made absolute and escaped, so '?', '#' and '%' in file names survive.
func readOnlyDSN(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", errors.Wrapf(err, "resolve %s", path)
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs), RawQuery: "mode=ro"}
	if !strings.HasPrefix(u.Path, "/") {
		u.Path = "/" + u.Path
	}
	return u.String(), nil
}

func run(ctx context.Context, cfg *config, logger log.Logger) error {
	dsn, err := readOnlyDSN(cfg.input)
	if err != nil {
		return err
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return errors.Wrapf(err, "open %s", cfg.input)
	}
	defer db.Close()

	_, err = cfg.exporter(logger).ExportTables(ctx, db, cfg.output)
	return err
}

func main() {
	os.Exit(realMain(os.Args[1:]))
}

func realMain(args []string) int {
	cfg, err := parseFlags(args, os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		return 2
	}
	logger, err := newLogger(os.Stderr, cfg.logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 2
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		level.Error(logger).Log("msg", "export failed", "err", err)
		return 1
	}
	fmt.Printf("Export completed (%s).\n", cfg.format)
	return 0
}
