package flatgeobuf

import (
	"strings"

	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"

	"github.com/tingold/gpkg-cloudformats/gpkg"
)

// ColumnSpec is one attribute column of an exported table. Ordinal is the
// column's position in the header and the key written before each of its
// values in a feature's properties buffer.
type ColumnSpec struct {
	Name      string
	Source    gpkg.SourceType
	Type      flattypes.ColumnType
	Ordinal   uint16
	Nullable  bool
	Width     int
	Precision int
	Scale     int

	// position of the column in a scanned row
	field int
}

// columnTypeOf maps a source type to the FlatGeobuf column type used to
// encode it. Unknown source types are written as strings.
func columnTypeOf(t gpkg.SourceType) flattypes.ColumnType {
	switch t {
	case gpkg.SourceBoolean:
		return flattypes.ColumnTypeBool
	case gpkg.SourceTinyInt:
		return flattypes.ColumnTypeByte
	case gpkg.SourceSmallInt:
		return flattypes.ColumnTypeShort
	case gpkg.SourceMediumInt:
		return flattypes.ColumnTypeInt
	case gpkg.SourceInteger:
		return flattypes.ColumnTypeLong
	case gpkg.SourceFloat:
		return flattypes.ColumnTypeFloat
	case gpkg.SourceDouble:
		return flattypes.ColumnTypeDouble
	case gpkg.SourceDate, gpkg.SourceTime, gpkg.SourceTimestamp:
		return flattypes.ColumnTypeDateTime
	case gpkg.SourceBlob:
		return flattypes.ColumnTypeBinary
	case gpkg.SourceJSON:
		return flattypes.ColumnTypeJson
	default:
		return flattypes.ColumnTypeString
	}
}

// MapColumns builds the ordered column list of a table, leaving out the
// geometry column (matched case-insensitively).
func MapColumns(columns []gpkg.Column, geometryColumn string) []ColumnSpec {
	specs := make([]ColumnSpec, 0, len(columns))
	for i, c := range columns {
		if geometryColumn != "" && strings.EqualFold(c.Name, geometryColumn) {
			continue
		}
		specs = append(specs, ColumnSpec{
			Name:      c.Name,
			Source:    c.Type,
			Type:      columnTypeOf(c.Type),
			Ordinal:   uint16(len(specs)),
			Nullable:  c.Nullable(),
			Width:     c.Width,
			Precision: c.Precision,
			Scale:     c.Scale,
			field:     i,
		})
	}
	return specs
}
