// Package geoparquet exports GeoPackage feature tables to GeoParquet.
//
// Every attribute column becomes one Parquet leaf with a type chosen from its
// declared SQL type. The geometry column is written as WKB and described by
// the GeoParquet "geo" file metadata. Rows are written in scan order; NULL
// geometries stay NULL.
package geoparquet

import (
	"encoding/json"
	"strings"

	"github.com/go-kit/log"
	"github.com/parquet-go/parquet-go"
	"github.com/pkg/errors"

	"github.com/tingold/gpkg-cloudformats/gpkg"
)

// Common errors returned by this package.
var (
	ErrInvalidOptions = errors.New("geoparquet: invalid options")
	ErrNullValue      = errors.New("geoparquet: null in required column")
	ErrInvalidValue   = errors.New("geoparquet: invalid value")
)

// Version is the GeoParquet metadata version written to files.
const Version = "1.1.0"

// batchSize is the number of rows handed to the parquet writer at once.
const batchSize = 1024

// Options configures GeoParquet writing.
type Options struct {
	// MaxRowsPerRowGroup caps row groups. 0 keeps the library default.
	MaxRowsPerRowGroup int64

	// Compression is one of none, snappy, gzip or zstd.
	Compression string

	// Logger receives progress. Defaults to a no-op logger.
	Logger log.Logger
}

// DefaultOptions returns default options for writing GeoParquet files.
func DefaultOptions() *Options {
	return &Options{Compression: "snappy"}
}

func (o *Options) writerOptions() ([]parquet.WriterOption, error) {
	if o.MaxRowsPerRowGroup < 0 {
		return nil, errors.Wrapf(ErrInvalidOptions, "row group size %d", o.MaxRowsPerRowGroup)
	}

	var opts []parquet.WriterOption
	switch strings.ToLower(o.Compression) {
	case "", "snappy":
		opts = append(opts, parquet.Compression(&parquet.Snappy))
	case "none", "uncompressed":
		opts = append(opts, parquet.Compression(&parquet.Uncompressed))
	case "gzip":
		opts = append(opts, parquet.Compression(&parquet.Gzip))
	case "zstd":
		opts = append(opts, parquet.Compression(&parquet.Zstd))
	default:
		return nil, errors.Wrapf(ErrInvalidOptions, "compression %q", o.Compression)
	}
	if o.MaxRowsPerRowGroup > 0 {
		opts = append(opts, parquet.MaxRowsPerRowGroup(o.MaxRowsPerRowGroup))
	}
	return opts, nil
}

func (o *Options) logger() log.Logger {
	if o.Logger == nil {
		return log.NewNopLogger()
	}
	return o.Logger
}

// Summary reports what WriteTable exported.
type Summary struct {
	Rows       int   // Rows written
	Geometries int   // Rows with a non-null geometry
	Bytes      int64 // Total bytes written
}

// kind is the Parquet representation of one column.
type kind int

const (
	kindString kind = iota
	kindInt32
	kindInt64
	kindFloat
	kindDouble
	kindBoolean
	kindDate
	kindTime
	kindTimestamp
	kindBinary
	kindGeometry
)

// kindOf maps a source type to its Parquet representation. Types without a
// mapping are written as UTF-8 strings.
func kindOf(t gpkg.SourceType) kind {
	switch t {
	case gpkg.SourceTinyInt, gpkg.SourceSmallInt, gpkg.SourceMediumInt:
		return kindInt32
	case gpkg.SourceInteger:
		return kindInt64
	case gpkg.SourceFloat:
		return kindFloat
	case gpkg.SourceDouble:
		return kindDouble
	case gpkg.SourceBoolean:
		return kindBoolean
	case gpkg.SourceDate:
		return kindDate
	case gpkg.SourceTime:
		return kindTime
	case gpkg.SourceTimestamp:
		return kindTimestamp
	case gpkg.SourceBlob:
		return kindBinary
	default:
		return kindString
	}
}

func (k kind) node() parquet.Node {
	switch k {
	case kindInt32:
		return parquet.Int(32)
	case kindInt64:
		return parquet.Int(64)
	case kindFloat:
		return parquet.Leaf(parquet.FloatType)
	case kindDouble:
		return parquet.Leaf(parquet.DoubleType)
	case kindBoolean:
		return parquet.Leaf(parquet.BooleanType)
	case kindDate:
		return parquet.Date()
	case kindTime:
		return parquet.Time(parquet.Millisecond)
	case kindTimestamp:
		return parquet.Timestamp(parquet.Millisecond)
	case kindBinary, kindGeometry:
		return parquet.Leaf(parquet.ByteArrayType)
	default:
		return parquet.String()
	}
}

// field is one output column.
type field struct {
	name     string
	kind     kind
	required bool
	column   int // leaf index in the schema
	pos      int // position in a scanned row
}

// buildSchema returns the schema of table and its fields. The geometry
// column is always optional.
func buildSchema(table gpkg.TableDescriptor, columns []gpkg.Column) (*parquet.Schema, []field, error) {
	group := parquet.Group{}
	fields := make([]field, 0, len(columns))
	for i, c := range columns {
		f := field{name: c.Name, kind: kindOf(c.Type), required: c.NotNull, pos: i}
		if table.HasGeometry() && strings.EqualFold(c.Name, table.GeometryColumn) {
			f.kind = kindGeometry
			f.required = false
		}
		if _, dup := group[f.name]; dup {
			return nil, nil, errors.Wrapf(ErrInvalidValue, "duplicate column %s", f.name)
		}
		node := f.kind.node()
		if !f.required {
			node = parquet.Optional(node)
		}
		group[f.name] = node
		fields = append(fields, f)
	}

	schema := parquet.NewSchema(table.Name, group)
	for i := range fields {
		leaf, ok := schema.Lookup(fields[i].name)
		if !ok {
			return nil, nil, errors.Wrapf(ErrInvalidValue, "column %s missing from schema", fields[i].name)
		}
		fields[i].column = leaf.ColumnIndex
	}
	return schema, fields, nil
}

// geoMetadata is the GeoParquet "geo" file metadata.
type geoMetadata struct {
	Version       string               `json:"version"`
	PrimaryColumn string               `json:"primary_column"`
	Columns       map[string]geoColumn `json:"columns"`
}

type geoColumn struct {
	Encoding      string          `json:"encoding"`
	GeometryTypes []string        `json:"geometry_types"`
	CRS           json.RawMessage `json:"crs"`
}

// projjsonID is the identifier-only PROJJSON form used for EPSG codes.
type projjsonID struct {
	ID struct {
		Authority string `json:"authority"`
		Code      int    `json:"code"`
	} `json:"id"`
}

// geoMetadataJSON describes the geometry column of table, named column in
// the file. Tables with an SRID of 0 or less get an explicit null CRS
// (unknown).
func geoMetadataJSON(table gpkg.TableDescriptor, column string) (string, error) {
	crs := json.RawMessage("null")
	if table.SRID > 0 {
		var id projjsonID
		id.ID.Authority = "EPSG"
		id.ID.Code = table.SRID
		b, err := json.Marshal(id)
		if err != nil {
			return "", errors.Wrap(err, "geoparquet: marshal crs")
		}
		crs = b
	}

	types := []string{}
	if table.GeometryType != gpkg.GeometryUnknown {
		types = append(types, table.GeometryType.String())
	}

	md := geoMetadata{
		Version:       Version,
		PrimaryColumn: column,
		Columns: map[string]geoColumn{
			column: {Encoding: "WKB", GeometryTypes: types, CRS: crs},
		},
	}
	b, err := json.Marshal(md)
	if err != nil {
		return "", errors.Wrap(err, "geoparquet: marshal metadata")
	}
	return string(b), nil
}
