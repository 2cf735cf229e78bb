package flatgeobuf

import (
	"bufio"
	"context"
	"io"

	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	"github.com/go-kit/log/level"
	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/paulmach/orb"
	"github.com/pkg/errors"

	"github.com/tingold/gpkg-cloudformats/gpkg"
)

// WriteTable exports one feature table to w as a FlatGeobuf file.
//
// Rows with a NULL geometry are dropped. The first geometry that does not
// fit the table's declared type aborts the export. The scratch file is
// removed whether or not the export succeeds. w may hold a partial file
// when an error is returned.
func WriteTable(ctx context.Context, db gpkg.Queryer, table gpkg.TableDescriptor, w io.Writer, opts *Options) (*Summary, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	nodeSize, err := opts.nodeSize()
	if err != nil {
		return nil, err
	}
	geometryType, err := headerGeometryType(table.GeometryType)
	if err != nil {
		return nil, err
	}
	logger := opts.logger()

	rows, err := gpkg.QueryRows(ctx, db, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if table.HasGeometry() && rows.GeometryIndex() < 0 {
		return nil, errors.Wrapf(ErrInvalidData, "geometry column %s not found in %s", table.GeometryColumn, table.Name)
	}
	columns := MapColumns(rows.Columns(), table.GeometryColumn)

	arena, err := newScratch(opts.TempDir)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := arena.Close(); cerr != nil {
			level.Warn(logger).Log("msg", "scratch cleanup failed", "table", table.Name, "err", cerr)
		}
	}()

	level.Debug(logger).Log("msg", "scanning table", "table", table.Name, "columns", len(columns), "geometry_type", table.GeometryType)

	enc := newFeatureEncoder(columns)
	var (
		summary    = &Summary{}
		entries    []IndexEntry
		extent     = EmptyBox()
		sridWarned bool
	)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		summary.Rows++

		blob := rows.GeometryBlob(values)
		if blob == nil {
			continue
		}
		geom, srid, err := gpkg.DecodeGeometry(blob)
		if err != nil {
			return nil, errors.Wrapf(err, "%s row %d", table.Name, summary.Rows)
		}
		if geom == nil {
			continue
		}
		if !sridWarned && srid > 0 && int(srid) != table.SRID {
			level.Warn(logger).Log("msg", "geometry srid differs from table srid", "table", table.Name, "geometry_srid", srid, "table_srid", table.SRID)
			sridWarned = true
		}
		geom, err = normalizeGeometry(geom, table.GeometryType)
		if err != nil {
			return nil, errors.Wrapf(err, "%s row %d", table.Name, summary.Rows)
		}

		data, err := enc.encode(geom, values)
		if err != nil {
			return nil, errors.Wrapf(err, "%s row %d", table.Name, summary.Rows)
		}
		slot, err := arena.Append(data)
		if err != nil {
			return nil, err
		}

		box := boxOf(geom)
		extent.Expand(box)
		entries = append(entries, IndexEntry{Box: box, Scan: slot, Size: uint32(len(data))})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "gpkg: scan %s", table.Name)
	}
	if err := arena.Flush(); err != nil {
		return nil, err
	}
	summary.Features = len(entries)
	level.Debug(logger).Log("msg", "table scanned", "table", table.Name, "rows", summary.Rows, "features", summary.Features, "scratch_bytes", arena.Len())

	if len(entries) == 0 {
		nodeSize = 0
	}
	placeEmptyBoxes(entries, &extent)
	summary.IndexNodeSize = nodeSize

	var tree *PackedTree
	if nodeSize > 0 {
		HilbertSort(entries, extent)
	}
	var offset uint64
	for i := range entries {
		entries[i].Offset = offset
		offset += uint64(entries[i].Size)
	}
	if nodeSize > 0 {
		if tree, err = NewPackedTree(entries, nodeSize); err != nil {
			return nil, err
		}
	}

	spec := headerSpec{
		name:          table.Name,
		description:   opts.Description,
		geometryType:  geometryType,
		srid:          table.SRID,
		featuresCount: uint64(len(entries)),
		indexNodeSize: nodeSize,
		columns:       columns,
	}
	if len(entries) > 0 {
		spec.envelope = &extent
	}

	cw := &countingWriter{w: w}
	bw := bufio.NewWriterSize(cw, 1<<16)
	if err := assemble(bw, arena, buildHeader(spec), tree, entries); err != nil {
		return nil, err
	}
	if err := bw.Flush(); err != nil {
		return nil, errors.Wrap(err, "flatgeobuf: write output")
	}
	summary.Bytes = cw.n

	level.Info(logger).Log("msg", "table exported", "table", table.Name, "rows", summary.Rows, "features", summary.Features, "index_node_size", nodeSize, "bytes", summary.Bytes)
	return summary, nil
}

// placeEmptyBoxes gives entries of empty geometries the degenerate box at
// the lower-left corner of extent, so index and envelope stay well-formed.
// A table holding only empty geometries gets the zero extent.
func placeEmptyBoxes(entries []IndexEntry, extent *Box) {
	if len(entries) == 0 {
		return
	}
	if extent.IsEmpty() {
		*extent = Box{}
	}
	corner := Box{extent.MinX, extent.MinY, extent.MinX, extent.MinY}
	for i := range entries {
		if entries[i].Box.IsEmpty() {
			entries[i].Box = corner
		}
	}
}

// assemble writes magic | header | index | features, copying each feature
// back from the arena in entry order.
func assemble(w io.Writer, arena *scratch, header []byte, tree *PackedTree, entries []IndexEntry) error {
	if _, err := w.Write(magicBytes[:]); err != nil {
		return errors.Wrap(err, "flatgeobuf: write magic")
	}
	if _, err := w.Write(header); err != nil {
		return errors.Wrap(err, "flatgeobuf: write header")
	}
	if tree != nil {
		if _, err := tree.WriteTo(w); err != nil {
			return errors.Wrap(err, "flatgeobuf: write index")
		}
	}

	var buf []byte
	for _, e := range entries {
		if cap(buf) < int(e.Size) {
			buf = make([]byte, e.Size)
		}
		buf = buf[:e.Size]
		if err := arena.ReadSlot(e.Scan, buf); err != nil {
			return err
		}
		if _, err := w.Write(buf); err != nil {
			return errors.Wrap(err, "flatgeobuf: write feature")
		}
	}
	return nil
}

// featureEncoder turns scanned rows into size-prefixed Feature flatbuffers.
// Its buffers are reused from row to row.
type featureEncoder struct {
	columns []ColumnSpec
	attrs   []any
	props   []byte
	builder *flatbuffers.Builder
}

func newFeatureEncoder(columns []ColumnSpec) *featureEncoder {
	return &featureEncoder{
		columns: columns,
		attrs:   make([]any, len(columns)),
		builder: flatbuffers.NewBuilder(4096),
	}
}

// encode returns the encoded feature. The slice is only valid until the next
// call.
func (e *featureEncoder) encode(geom orb.Geometry, values []any) ([]byte, error) {
	for i, c := range e.columns {
		e.attrs[i] = values[c.field]
	}
	props, err := AppendProperties(e.props[:0], e.columns, e.attrs)
	if err != nil {
		return nil, err
	}
	e.props = props

	b := e.builder
	b.Reset()
	g, err := buildGeometry(b, geom)
	if err != nil {
		return nil, err
	}
	var propsOff flatbuffers.UOffsetT
	if len(props) > 0 {
		propsOff = b.CreateByteVector(props)
	}
	flattypes.FeatureStart(b)
	flattypes.FeatureAddGeometry(b, g)
	if propsOff != 0 {
		flattypes.FeatureAddProperties(b, propsOff)
	}
	b.FinishSizePrefixed(flattypes.FeatureEnd(b))
	return b.FinishedBytes(), nil
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
