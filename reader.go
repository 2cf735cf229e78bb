package flatgeobuf

import (
	"bytes"
	"encoding/binary"
	"os"

	flatgeobuf "github.com/flatgeobuf/flatgeobuf/src/go"
	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/pkg/errors"
)

// Reader provides read access to a FlatGeobuf file held in memory.
type Reader struct {
	data   []byte
	header *flattypes.Header

	headerLen int64 // size prefix included
	indexLen  int64
	fgb       *flatgeobuf.FlatGeoBuf
}

// NewReader reads the file at path.
func NewReader(path string) (*Reader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "flatgeobuf: read file")
	}
	return NewReaderFromData(data)
}

// NewReaderFromData creates a reader from byte data.
func NewReaderFromData(data []byte) (*Reader, error) {
	if len(data) < len(magicBytes)+4 || !bytes.Equal(data[:3], magicBytes[:3]) {
		return nil, errors.Wrap(ErrInvalidData, "missing magic bytes")
	}
	pos := int64(len(magicBytes))
	size := int64(binary.LittleEndian.Uint32(data[pos:]))
	if pos+4+size > int64(len(data)) {
		return nil, errors.Wrap(ErrInvalidData, "truncated header")
	}
	header := flattypes.GetRootAsHeader(data[pos+4:pos+4+size], 0)

	r := &Reader{data: data, header: header, headerLen: 4 + size}
	if n := header.FeaturesCount(); n > 0 && header.IndexNodeSize() > 0 {
		indexLen, err := PackedTreeSize(int(n), header.IndexNodeSize())
		if err != nil {
			return nil, err
		}
		if r.featuresStart()+indexLen > int64(len(data)) {
			return nil, errors.Wrap(ErrInvalidData, "truncated index")
		}
		r.indexLen = indexLen
	}
	return r, nil
}

func (r *Reader) featuresStart() int64 {
	return int64(len(magicBytes)) + r.headerLen + r.indexLen
}

// HeaderLen returns the size of the header section, size prefix included.
func (r *Reader) HeaderLen() int64 { return r.headerLen }

// IndexLen returns the size of the index section, 0 without an index.
func (r *Reader) IndexLen() int64 { return r.indexLen }

// FeaturesLen returns the size of the feature section.
func (r *Reader) FeaturesLen() int64 {
	return int64(len(r.data)) - r.featuresStart()
}

// Header returns metadata about the FlatGeobuf file.
func (r *Reader) Header() *Header {
	h := r.header

	header := &Header{
		Name:          string(h.Name()),
		Description:   string(h.Description()),
		FeaturesCount: h.FeaturesCount(),
		HasIndex:      r.indexLen > 0,
		GeometryType:  flattypes.EnumNamesGeometryType[h.GeometryType()],
	}
	if header.HasIndex {
		header.IndexNodeSize = h.IndexNodeSize()
	}

	if h.EnvelopeLength() >= 4 {
		header.Envelope = []float64{h.Envelope(0), h.Envelope(1), h.Envelope(2), h.Envelope(3)}
	}

	var crs flattypes.Crs
	if h.Crs(&crs) != nil {
		header.CRS = &CRS{
			Org:         string(crs.Org()),
			Code:        int(crs.Code()),
			Name:        string(crs.Name()),
			Description: string(crs.Description()),
		}
	}

	if n := h.ColumnsLength(); n > 0 {
		header.Columns = make([]ColumnInfo, 0, n)
		for i := 0; i < n; i++ {
			var col flattypes.Column
			if h.Columns(&col, i) {
				header.Columns = append(header.Columns, ColumnInfo{
					Name:        string(col.Name()),
					Type:        flattypes.EnumNamesColumnType[col.Type()],
					Title:       string(col.Title()),
					Description: string(col.Description()),
					Nullable:    col.Nullable(),
					Width:       int(col.Width()),
					Precision:   int(col.Precision()),
					Scale:       int(col.Scale()),
				})
			}
		}
	}

	return header
}

// FeatureSizes returns the size of every feature record in file order,
// size prefix included.
func (r *Reader) FeatureSizes() ([]uint32, error) {
	var sizes []uint32
	err := r.walkFeatures(func(_ int64, record []byte) error {
		sizes = append(sizes, uint32(len(record)))
		return nil
	})
	return sizes, err
}

// walkFeatures calls fn with the offset and bytes of every size-prefixed
// feature record.
func (r *Reader) walkFeatures(fn func(offset int64, record []byte) error) error {
	start := r.featuresStart()
	features := r.data[start:]
	var pos int64
	for pos < int64(len(features)) {
		if pos+4 > int64(len(features)) {
			return errors.Wrapf(ErrInvalidData, "truncated feature size at %d", start+pos)
		}
		size := int64(binary.LittleEndian.Uint32(features[pos:]))
		if pos+4+size > int64(len(features)) {
			return errors.Wrapf(ErrInvalidData, "truncated feature at %d", start+pos)
		}
		if err := fn(pos, features[pos:pos+4+size]); err != nil {
			return err
		}
		pos += 4 + size
	}
	return nil
}

// ReadAll reads every feature in file order. It does not need the index.
func (r *Reader) ReadAll() (*geojson.FeatureCollection, error) {
	fc := geojson.NewFeatureCollection()
	err := r.walkFeatures(func(_ int64, record []byte) error {
		f := flattypes.GetRootAsFeature(record[4:], 0)
		feature, err := convertFeature(f, r.header)
		if err != nil {
			return err
		}
		if feature != nil {
			fc.Append(feature)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return fc, nil
}

// ReadGeometries reads all geometries without properties.
func (r *Reader) ReadGeometries() ([]orb.Geometry, error) {
	fc, err := r.ReadAll()
	if err != nil {
		return nil, err
	}

	geometries := make([]orb.Geometry, 0, len(fc.Features))
	for _, f := range fc.Features {
		if f.Geometry != nil {
			geometries = append(geometries, f.Geometry)
		}
	}

	return geometries, nil
}

// IndexEntries returns the leaf nodes of the spatial index in file order.
func (r *Reader) IndexEntries() ([]IndexEntry, error) {
	if r.indexLen == 0 {
		return nil, ErrNoIndex
	}
	n := int(r.header.FeaturesCount())
	index := r.data[int64(len(magicBytes))+r.headerLen : r.featuresStart()]
	leaves := int(r.indexLen/nodeItemSize) - n

	entries := make([]IndexEntry, n)
	for i := range entries {
		node := readTreeNode(index, leaves+i)
		entries[i] = IndexEntry{Box: node.box, Scan: i, Offset: node.offset}
	}
	return entries, nil
}

// Search performs a spatial query using the built-in index.
// Returns features whose bounding boxes intersect the query bounds.
func (r *Reader) Search(bounds orb.Bound) (*geojson.FeatureCollection, error) {
	if r.indexLen == 0 {
		return nil, ErrNoIndex
	}
	if r.fgb == nil {
		fgb, err := flatgeobuf.NewWithData(r.data)
		if err != nil {
			return nil, errors.Wrap(err, "flatgeobuf: open index")
		}
		r.fgb = fgb
	}

	features, err := r.fgb.Search(bounds.Min[0], bounds.Min[1], bounds.Max[0], bounds.Max[1])
	if err != nil {
		return nil, err
	}

	fc := geojson.NewFeatureCollection()
	for _, f := range features {
		feature, err := convertFeature(f, r.header)
		if err != nil {
			return nil, err
		}
		if feature != nil {
			fc.Append(feature)
		}
	}

	return fc, nil
}

// Close releases the file data.
func (r *Reader) Close() error {
	r.data = nil
	r.header = nil
	r.fgb = nil
	return nil
}

// convertFeature converts a FlatGeobuf feature to a geojson.Feature.
func convertFeature(f *flattypes.Feature, header *flattypes.Header) (*geojson.Feature, error) {
	if f == nil {
		return nil, nil
	}

	var geomObj flattypes.Geometry
	geom := f.Geometry(&geomObj)
	if geom == nil {
		return nil, nil
	}
	orbGeom := geometryFromFGB(geom, header.GeometryType())
	if orbGeom == nil {
		return nil, nil
	}

	feature := geojson.NewFeature(orbGeom)
	props, err := DecodeProperties(f.PropertiesBytes(), header)
	if err != nil {
		return nil, err
	}
	if props != nil {
		feature.Properties = props
	}

	return feature, nil
}
