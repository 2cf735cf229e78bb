// Package gpkg reads feature tables out of a GeoPackage (a SQLite database
// following the OGC GeoPackage encoding standard).
//
// It covers the pieces an exporter needs from the container: discovering
// feature tables, describing their attribute columns, streaming their rows,
// and decoding the GeoPackage binary geometry envelope into orb geometries.
package gpkg

import (
	"strings"

	"github.com/pkg/errors"
)

// Common errors returned by this package.
var (
	ErrInvalidBlob             = errors.New("gpkg: invalid blob")
	ErrInvalidMagic            = errors.New("gpkg: invalid blob magic")
	ErrUnsupportedEnvelope     = errors.New("gpkg: unsupported envelope indicator")
	ErrInvalidWKB              = errors.New("gpkg: invalid wkb payload")
	ErrUnsupportedGeometryType = errors.New("gpkg: unsupported geometry type")
	ErrUnknownTables           = errors.New("gpkg: unknown table(s) requested")
	ErrNoColumns               = errors.New("gpkg: table has no columns")
)

// GeometryType is the geometry type declared for a feature table in
// gpkg_geometry_columns.
type GeometryType int

const (
	GeometryUnknown GeometryType = iota
	GeometryPoint
	GeometryLineString
	GeometryPolygon
	GeometryMultiPoint
	GeometryMultiLineString
	GeometryMultiPolygon
)

var geometryTypeNames = map[GeometryType]string{
	GeometryUnknown:         "Unknown",
	GeometryPoint:           "Point",
	GeometryLineString:      "LineString",
	GeometryPolygon:         "Polygon",
	GeometryMultiPoint:      "MultiPoint",
	GeometryMultiLineString: "MultiLineString",
	GeometryMultiPolygon:    "MultiPolygon",
}

func (t GeometryType) String() string {
	if name, ok := geometryTypeNames[t]; ok {
		return name
	}
	return "Invalid"
}

// ParseGeometryType maps a geometry_type_name value to a GeometryType.
// The empty name and the generic GEOMETRY type map to GeometryUnknown.
func ParseGeometryType(name string) (GeometryType, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "", "GEOMETRY":
		return GeometryUnknown, nil
	case "POINT":
		return GeometryPoint, nil
	case "LINESTRING":
		return GeometryLineString, nil
	case "POLYGON":
		return GeometryPolygon, nil
	case "MULTIPOINT":
		return GeometryMultiPoint, nil
	case "MULTILINESTRING":
		return GeometryMultiLineString, nil
	case "MULTIPOLYGON":
		return GeometryMultiPolygon, nil
	default:
		return GeometryUnknown, errors.Wrapf(ErrUnsupportedGeometryType, "%q", name)
	}
}

// TableDescriptor identifies one feature table to export.
type TableDescriptor struct {
	Name           string       // Table name, never empty
	GeometryColumn string       // Geometry column name; empty if the table has none
	SRID           int          // Spatial reference id from gpkg_geometry_columns
	GeometryType   GeometryType // Declared geometry type
}

// HasGeometry reports whether the table declares a geometry column.
func (t TableDescriptor) HasGeometry() bool {
	return strings.TrimSpace(t.GeometryColumn) != ""
}

// SourceType is the coarse storage class of an attribute column, derived
// from its declared SQL type.
type SourceType int

const (
	SourceUnknown SourceType = iota
	SourceBoolean
	SourceTinyInt
	SourceSmallInt
	SourceMediumInt
	SourceInteger
	SourceFloat
	SourceDouble
	SourceText
	SourceJSON
	SourceBlob
	SourceDate
	SourceTime
	SourceTimestamp
)

var sourceTypeNames = [...]string{
	SourceUnknown:   "unknown",
	SourceBoolean:   "boolean",
	SourceTinyInt:   "tinyint",
	SourceSmallInt:  "smallint",
	SourceMediumInt: "mediumint",
	SourceInteger:   "integer",
	SourceFloat:     "float",
	SourceDouble:    "double",
	SourceText:      "text",
	SourceJSON:      "json",
	SourceBlob:      "blob",
	SourceDate:      "date",
	SourceTime:      "time",
	SourceTimestamp: "timestamp",
}

func (t SourceType) String() string {
	if t < 0 || int(t) >= len(sourceTypeNames) {
		return "invalid"
	}
	return sourceTypeNames[t]
}

// sourceTypeOf classifies a declared type with its size arguments removed.
func sourceTypeOf(base string) SourceType {
	switch base {
	case "BOOLEAN", "BOOL", "BIT":
		return SourceBoolean
	case "TINYINT":
		return SourceTinyInt
	case "SMALLINT":
		return SourceSmallInt
	case "MEDIUMINT":
		return SourceMediumInt
	case "INT", "INTEGER", "BIGINT":
		return SourceInteger
	case "FLOAT":
		return SourceFloat
	case "DOUBLE", "DOUBLE PRECISION", "REAL", "NUMERIC", "DECIMAL":
		return SourceDouble
	case "TEXT", "VARCHAR", "CHAR", "NVARCHAR", "NCHAR", "CLOB", "CHARACTER":
		return SourceText
	case "JSON":
		return SourceJSON
	case "BLOB", "BINARY", "VARBINARY":
		return SourceBlob
	case "DATE":
		return SourceDate
	case "TIME":
		return SourceTime
	case "DATETIME", "TIMESTAMP":
		return SourceTimestamp
	default:
		return SourceUnknown
	}
}
