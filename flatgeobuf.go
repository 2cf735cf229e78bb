// Package flatgeobuf exports GeoPackage feature tables to FlatGeobuf.
//
// A table is scanned once. Every feature is encoded as it is read and
// spilled to a scratch file, while only its bounding box stays in memory.
// After the scan the boxes are sorted along a Hilbert curve, a packed
// R-tree is built over them, and the output is assembled as
// magic | header | index | features, with the features copied back from the
// scratch file in index order.
package flatgeobuf

import (
	"github.com/go-kit/log"
	"github.com/pkg/errors"
)

// Common errors returned by this package.
var (
	ErrNilGeometry        = errors.New("flatgeobuf: nil geometry")
	ErrUnsupportedType    = errors.New("flatgeobuf: unsupported geometry type")
	ErrUnexpectedGeometry = errors.New("flatgeobuf: unexpected geometry type")
	ErrInvalidData        = errors.New("flatgeobuf: invalid data")
	ErrNoIndex            = errors.New("flatgeobuf: file has no spatial index")
	ErrInvalidColumn      = errors.New("flatgeobuf: invalid column type")
	ErrPropertyMismatch   = errors.New("flatgeobuf: property type mismatch")
	ErrInvalidNodeSize    = errors.New("flatgeobuf: invalid index node size")
)

// magicBytes opens every FlatGeobuf file: "fgb", format major version 3,
// "fgb", patch version 0.
var magicBytes = [8]byte{0x66, 0x67, 0x62, 0x03, 0x66, 0x67, 0x62, 0x00}

// DefaultNodeSize is the packed R-tree fanout used unless configured.
const DefaultNodeSize = 16

// CRS represents a coordinate reference system.
type CRS struct {
	Org         string // Defining organization, "EPSG" for exported tables
	Code        int    // EPSG code (e.g., 2056 for CH1903+ / LV95)
	Name        string // CRS name
	Description string // CRS description
}

// Options configures FlatGeobuf writing.
type Options struct {
	// IndexNodeSize is the fanout of the packed R-tree. 0 disables the
	// index; otherwise it must be within [2, 65535].
	IndexNodeSize int

	// TempDir holds the scratch file of a running export. Empty means
	// os.TempDir().
	TempDir string

	// Description is written to the header when set.
	Description string

	// Logger receives progress and warnings. Defaults to a no-op logger.
	Logger log.Logger
}

// DefaultOptions returns default options for writing FlatGeobuf files.
func DefaultOptions() *Options {
	return &Options{
		IndexNodeSize: DefaultNodeSize,
	}
}

// nodeSize validates the configured fanout.
func (o *Options) nodeSize() (uint16, error) {
	n := o.IndexNodeSize
	if n == 0 {
		return 0, nil
	}
	if n < 2 || n > 0xffff {
		return 0, errors.Wrapf(ErrInvalidNodeSize, "%d", n)
	}
	return uint16(n), nil
}

func (o *Options) logger() log.Logger {
	if o.Logger == nil {
		return log.NewNopLogger()
	}
	return o.Logger
}

// ColumnInfo describes a property column in a FlatGeobuf file.
type ColumnInfo struct {
	Name        string // Column name
	Type        string // Column type ("Bool", "Int", "Long", "Double", "String", "Json", etc.)
	Title       string // Column title (human-readable)
	Description string // Column description
	Nullable    bool   // Whether the column can contain null values
	Width       int    // Declared width, -1 when unknown
	Precision   int    // Declared precision, -1 when unknown
	Scale       int    // Declared scale, -1 when unknown
}

// Header contains metadata about a FlatGeobuf file.
type Header struct {
	Name          string       // Layer name
	Description   string       // Layer description
	GeometryType  string       // Geometry type ("Point", "Polygon", "Unknown", etc.)
	FeaturesCount uint64       // Number of features in the file
	Envelope      []float64    // Bounding box [minX, minY, maxX, maxY], nil when absent
	CRS           *CRS         // Coordinate reference system
	IndexNodeSize uint16       // Packed R-tree fanout, 0 without index
	HasIndex      bool         // Whether the file has a spatial index
	Columns       []ColumnInfo // Property column schema
}

// Summary reports what WriteTable exported.
type Summary struct {
	Rows          int    // Rows scanned
	Features      int    // Rows written as features (non-null geometry)
	IndexNodeSize uint16 // Fanout written to the header
	Bytes         int64  // Total bytes written
}
