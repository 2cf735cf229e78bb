// Package export drives a whole-file export: it discovers the feature tables
// of a GeoPackage and writes one output file per table with a TableWriter.
package export

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	flatgeobuf "github.com/tingold/gpkg-cloudformats"
	"github.com/tingold/gpkg-cloudformats/geoparquet"
	"github.com/tingold/gpkg-cloudformats/gpkg"
)

// ErrUnsafeTableName is returned for table names that cannot be used as a
// file name inside the output directory.
var ErrUnsafeTableName = errors.New("export: table name is not a safe file name")

// TableWriter writes one feature table in a single output format.
type TableWriter interface {
	// Extension is the file extension of the format, without a dot.
	Extension() string

	// WriteTable writes table to w and returns the number of rows written.
	WriteTable(ctx context.Context, db gpkg.Queryer, table gpkg.TableDescriptor, w io.Writer) (int, error)
}

// FlatGeobuf writes tables as FlatGeobuf files.
type FlatGeobuf struct {
	Options *flatgeobuf.Options
}

func (FlatGeobuf) Extension() string { return "fgb" }

func (f FlatGeobuf) WriteTable(ctx context.Context, db gpkg.Queryer, table gpkg.TableDescriptor, w io.Writer) (int, error) {
	s, err := flatgeobuf.WriteTable(ctx, db, table, w, f.Options)
	if err != nil {
		return 0, err
	}
	return s.Features, nil
}

// GeoParquet writes tables as GeoParquet files.
type GeoParquet struct {
	Options *geoparquet.Options
}

func (GeoParquet) Extension() string { return "parquet" }

func (g GeoParquet) WriteTable(ctx context.Context, db gpkg.Queryer, table gpkg.TableDescriptor, w io.Writer) (int, error) {
	s, err := geoparquet.WriteTable(ctx, db, table, w, g.Options)
	if err != nil {
		return 0, err
	}
	return s.Rows, nil
}

// Result describes one exported table.
type Result struct {
	Table string
	Path  string
	Rows  int
}

// Exporter exports every table its Lister returns.
type Exporter struct {
	Lister gpkg.TableLister
	Writer TableWriter
	Logger log.Logger
}

// ExportTables writes <dir>/<table>.<ext> for each listed table, in listing
// order. Each file is written under a hidden partial name in dir and renamed
// once complete, so an existing output is only replaced by a finished one.
// The first failing table stops the export; the results of the tables
// finished before it are returned with the error.
func (e *Exporter) ExportTables(ctx context.Context, db gpkg.Queryer, dir string) ([]Result, error) {
	logger := e.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}
	logger = log.With(logger, "run", uuid.NewString())

	tables, err := e.Lister.ListTables(ctx, db)
	if err != nil {
		return nil, err
	}
	level.Info(logger).Log("msg", "export started", "tables", len(tables), "format", e.Writer.Extension(), "dir", dir)

	results := make([]Result, 0, len(tables))
	for _, table := range tables {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		start := time.Now()
		res, err := e.exportTable(ctx, db, table, dir)
		if err != nil {
			level.Error(logger).Log("msg", "table failed", "table", table.Name, "err", err)
			return results, errors.Wrapf(err, "export %s", table.Name)
		}
		level.Info(logger).Log("msg", "table written", "table", table.Name, "rows", res.Rows, "path", res.Path, "duration", time.Since(start))
		results = append(results, res)
	}
	return results, nil
}

func (e *Exporter) exportTable(ctx context.Context, db gpkg.Queryer, table gpkg.TableDescriptor, dir string) (Result, error) {
	if table.Name == "" || strings.ContainsAny(table.Name, "/\\\x00") {
		return Result{}, errors.Wrapf(ErrUnsafeTableName, "%q", table.Name)
	}
	name := table.Name + "." + e.Writer.Extension()
	path := filepath.Join(dir, name)
	partial := filepath.Join(dir, "."+name+"."+uuid.NewString()+".partial")

	f, err := os.OpenFile(partial, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return Result{}, errors.Wrap(err, "create output")
	}
	rows, err := e.Writer.WriteTable(ctx, db, table, f)
	if err == nil {
		err = errors.Wrap(f.Sync(), "sync output")
	}
	if cerr := f.Close(); err == nil && cerr != nil {
		err = errors.Wrap(cerr, "close output")
	}
	if err == nil {
		err = errors.Wrap(os.Rename(partial, path), "rename output")
	}
	if err != nil {
		_ = os.Remove(partial)
		return Result{}, err
	}
	return Result{Table: table.Name, Path: path, Rows: rows}, nil
}
