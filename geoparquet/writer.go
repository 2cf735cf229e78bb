package geoparquet

import (
	"context"
	"io"
	"time"

	"github.com/go-kit/log/level"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/parquet-go/parquet-go"
	"github.com/pkg/errors"

	"github.com/tingold/gpkg-cloudformats/gpkg"
)

// WriteTable exports one feature table to w as a GeoParquet file. Every
// scanned row is written, in scan order.
func WriteTable(ctx context.Context, db gpkg.Queryer, table gpkg.TableDescriptor, w io.Writer, opts *Options) (*Summary, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	writerOpts, err := opts.writerOptions()
	if err != nil {
		return nil, err
	}
	logger := opts.logger()

	rows, err := gpkg.QueryRows(ctx, db, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	schema, fields, err := buildSchema(table, rows.Columns())
	if err != nil {
		return nil, err
	}
	for _, f := range fields {
		if f.kind != kindGeometry {
			continue
		}
		md, err := geoMetadataJSON(table, f.name)
		if err != nil {
			return nil, err
		}
		writerOpts = append(writerOpts, parquet.KeyValueMetadata("geo", md))
	}

	cw := &countingWriter{w: w}
	pw := parquet.NewWriter(cw, append([]parquet.WriterOption{schema}, writerOpts...)...)

	summary := &Summary{}
	numColumns := len(schema.Columns())
	batch := make([]parquet.Row, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if _, err := pw.WriteRows(batch); err != nil {
			return errors.Wrapf(err, "geoparquet: write rows of %s", table.Name)
		}
		batch = batch[:0]
		return nil
	}

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make(parquet.Row, numColumns)
		for _, f := range fields {
			v, err := parquetValue(f, values[f.pos])
			if err != nil {
				return nil, errors.Wrapf(err, "%s row %d", table.Name, summary.Rows+1)
			}
			if f.kind == kindGeometry && !v.IsNull() {
				summary.Geometries++
			}
			row[f.column] = v
		}
		batch = append(batch, row)
		summary.Rows++

		if len(batch) == batchSize {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "gpkg: scan %s", table.Name)
	}
	if err := flush(); err != nil {
		return nil, err
	}
	if err := pw.Close(); err != nil {
		return nil, errors.Wrapf(err, "geoparquet: close %s", table.Name)
	}
	summary.Bytes = cw.n

	level.Info(logger).Log("msg", "table exported", "table", table.Name, "rows", summary.Rows, "geometries", summary.Geometries, "bytes", summary.Bytes)
	return summary, nil
}

// parquetValue converts one scanned value for f, with levels set.
// Values that cannot be read as the column's temporal type become NULL.
func parquetValue(f field, v any) (parquet.Value, error) {
	value, err := convert(f.kind, v)
	if err != nil {
		return parquet.Value{}, errors.Wrapf(err, "column %s", f.name)
	}

	if value.IsNull() {
		if f.required {
			return parquet.Value{}, errors.Wrapf(ErrNullValue, "column %s", f.name)
		}
		return value.Level(0, 0, f.column), nil
	}
	def := 1
	if f.required {
		def = 0
	}
	return value.Level(0, def, f.column), nil
}

func convert(k kind, v any) (parquet.Value, error) {
	if v == nil {
		return parquet.NullValue(), nil
	}

	switch k {
	case kindInt32:
		i, ok := gpkg.ToInt64(v)
		if !ok {
			return parquet.Value{}, errors.Wrapf(ErrInvalidValue, "%T as int32", v)
		}
		return parquet.Int32Value(int32(i)), nil

	case kindInt64:
		i, ok := gpkg.ToInt64(v)
		if !ok {
			return parquet.Value{}, errors.Wrapf(ErrInvalidValue, "%T as int64", v)
		}
		return parquet.Int64Value(i), nil

	case kindFloat:
		f, ok := gpkg.ToFloat64(v)
		if !ok {
			return parquet.Value{}, errors.Wrapf(ErrInvalidValue, "%T as float", v)
		}
		return parquet.FloatValue(float32(f)), nil

	case kindDouble:
		f, ok := gpkg.ToFloat64(v)
		if !ok {
			return parquet.Value{}, errors.Wrapf(ErrInvalidValue, "%T as double", v)
		}
		return parquet.DoubleValue(f), nil

	case kindBoolean:
		return parquet.BooleanValue(gpkg.ToBool(v)), nil

	case kindDate:
		t, ok := gpkg.ToTime(v)
		if !ok {
			return parquet.NullValue(), nil
		}
		return parquet.Int32Value(epochDays(t)), nil

	case kindTime:
		d, ok := gpkg.ToTimeOfDay(v)
		if !ok {
			return parquet.NullValue(), nil
		}
		return parquet.Int32Value(int32(d.Milliseconds())), nil

	case kindTimestamp:
		t, ok := gpkg.ToTime(v)
		if !ok {
			return parquet.NullValue(), nil
		}
		return parquet.Int64Value(t.UnixMilli()), nil

	case kindBinary:
		switch b := v.(type) {
		case []byte:
			return parquet.ByteArrayValue(b), nil
		case string:
			return parquet.ByteArrayValue([]byte(b)), nil
		}
		return parquet.Value{}, errors.Wrapf(ErrInvalidValue, "%T as binary", v)

	case kindGeometry:
		return geometryValue(v)

	default:
		return parquet.ByteArrayValue([]byte(gpkg.ToString(v))), nil
	}
}

// geometryValue re-encodes a GeoPackage geometry blob as plain WKB.
func geometryValue(v any) (parquet.Value, error) {
	var blob []byte
	switch b := v.(type) {
	case []byte:
		blob = b
	case string:
		blob = []byte(b)
	default:
		return parquet.Value{}, errors.Wrapf(ErrInvalidValue, "%T as geometry", v)
	}

	geom, _, err := gpkg.DecodeGeometry(blob)
	if err != nil {
		return parquet.Value{}, err
	}
	if geom == nil {
		return parquet.NullValue(), nil
	}
	data, err := wkb.Marshal(geom)
	if err != nil {
		return parquet.Value{}, errors.Wrap(err, "geoparquet: encode wkb")
	}
	return parquet.ByteArrayValue(data), nil
}

// epochDays returns the days between 1970-01-01 and the calendar date of t.
func epochDays(t time.Time) int32 {
	y, m, d := t.Date()
	return int32(time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400)
}

// countingWriter counts bytes passed to w.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
