package flatgeobuf

import (
	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/paulmach/orb"
	"github.com/pkg/errors"

	"github.com/tingold/gpkg-cloudformats/gpkg"
)

// headerGeometryType maps a declared table geometry type to the header code.
func headerGeometryType(t gpkg.GeometryType) (flattypes.GeometryType, error) {
	switch t {
	case gpkg.GeometryUnknown:
		return flattypes.GeometryTypeUnknown, nil
	case gpkg.GeometryPoint:
		return flattypes.GeometryTypePoint, nil
	case gpkg.GeometryLineString:
		return flattypes.GeometryTypeLineString, nil
	case gpkg.GeometryPolygon:
		return flattypes.GeometryTypePolygon, nil
	case gpkg.GeometryMultiPoint:
		return flattypes.GeometryTypeMultiPoint, nil
	case gpkg.GeometryMultiLineString:
		return flattypes.GeometryTypeMultiLineString, nil
	case gpkg.GeometryMultiPolygon:
		return flattypes.GeometryTypeMultiPolygon, nil
	default:
		return flattypes.GeometryTypeUnknown, errors.Wrapf(ErrUnsupportedType, "%d", t)
	}
}

// normalizeGeometry enforces the table's declared geometry type. Singular
// types must match exactly; multi types also accept their singular member,
// which is promoted to a one-member collection. Unknown accepts anything.
func normalizeGeometry(geom orb.Geometry, declared gpkg.GeometryType) (orb.Geometry, error) {
	switch declared {
	case gpkg.GeometryUnknown:
		return geom, nil

	case gpkg.GeometryPoint:
		if p, ok := geom.(orb.Point); ok {
			return p, nil
		}

	case gpkg.GeometryLineString:
		if ls, ok := geom.(orb.LineString); ok {
			return ls, nil
		}

	case gpkg.GeometryPolygon:
		if p, ok := geom.(orb.Polygon); ok {
			return p, nil
		}

	case gpkg.GeometryMultiPoint:
		switch v := geom.(type) {
		case orb.MultiPoint:
			return v, nil
		case orb.Point:
			return orb.MultiPoint{v}, nil
		}

	case gpkg.GeometryMultiLineString:
		switch v := geom.(type) {
		case orb.MultiLineString:
			return v, nil
		case orb.LineString:
			return orb.MultiLineString{v}, nil
		}

	case gpkg.GeometryMultiPolygon:
		switch v := geom.(type) {
		case orb.MultiPolygon:
			return v, nil
		case orb.Polygon:
			return orb.MultiPolygon{v}, nil
		}
	}

	return nil, errors.Wrapf(ErrUnexpectedGeometry, "%s in %s table", geom.GeoJSONType(), declared)
}

// buildGeometry serialises geom as a FlatGeobuf Geometry table. Vectors are
// created before the table is started, as flatbuffers requires.
func buildGeometry(b *flatbuffers.Builder, geom orb.Geometry) (flatbuffers.UOffsetT, error) {
	switch v := geom.(type) {
	case orb.Point:
		return buildXYGeometry(b, flattypes.GeometryTypePoint, []orb.Point{v}, nil), nil

	case orb.MultiPoint:
		return buildXYGeometry(b, flattypes.GeometryTypeMultiPoint, v, nil), nil

	case orb.LineString:
		return buildXYGeometry(b, flattypes.GeometryTypeLineString, v, nil), nil

	case orb.MultiLineString:
		points, ends := flattenLines(v)
		return buildXYGeometry(b, flattypes.GeometryTypeMultiLineString, points, ends), nil

	case orb.Polygon:
		points, ends := flattenRings(v)
		return buildXYGeometry(b, flattypes.GeometryTypePolygon, points, ends), nil

	case orb.MultiPolygon:
		parts := make([]flatbuffers.UOffsetT, len(v))
		for i, poly := range v {
			points, ends := flattenRings(poly)
			parts[i] = buildXYGeometry(b, flattypes.GeometryTypePolygon, points, ends)
		}
		return buildPartsGeometry(b, flattypes.GeometryTypeMultiPolygon, parts), nil

	case orb.Collection:
		parts := make([]flatbuffers.UOffsetT, 0, len(v))
		for _, child := range v {
			off, err := buildGeometry(b, child)
			if err != nil {
				return 0, err
			}
			parts = append(parts, off)
		}
		return buildPartsGeometry(b, flattypes.GeometryTypeGeometryCollection, parts), nil

	case nil:
		return 0, ErrNilGeometry

	default:
		return 0, errors.Wrapf(ErrUnsupportedType, "%T", geom)
	}
}

func buildXYGeometry(b *flatbuffers.Builder, t flattypes.GeometryType, points []orb.Point, ends []uint32) flatbuffers.UOffsetT {
	var endsOff flatbuffers.UOffsetT
	if len(ends) > 1 {
		flattypes.GeometryStartEndsVector(b, len(ends))
		for i := len(ends) - 1; i >= 0; i-- {
			b.PrependUint32(ends[i])
		}
		endsOff = b.EndVector(len(ends))
	}

	flattypes.GeometryStartXyVector(b, len(points)*2)
	for i := len(points) - 1; i >= 0; i-- {
		b.PrependFloat64(points[i][1])
		b.PrependFloat64(points[i][0])
	}
	xyOff := b.EndVector(len(points) * 2)

	flattypes.GeometryStart(b)
	flattypes.GeometryAddXy(b, xyOff)
	if endsOff != 0 {
		flattypes.GeometryAddEnds(b, endsOff)
	}
	flattypes.GeometryAddType(b, t)
	return flattypes.GeometryEnd(b)
}

func buildPartsGeometry(b *flatbuffers.Builder, t flattypes.GeometryType, parts []flatbuffers.UOffsetT) flatbuffers.UOffsetT {
	flattypes.GeometryStartPartsVector(b, len(parts))
	for i := len(parts) - 1; i >= 0; i-- {
		b.PrependUOffsetT(parts[i])
	}
	partsOff := b.EndVector(len(parts))

	flattypes.GeometryStart(b)
	flattypes.GeometryAddParts(b, partsOff)
	flattypes.GeometryAddType(b, t)
	return flattypes.GeometryEnd(b)
}

// flattenLines concatenates the coordinates of mls and returns the running
// end index of each line.
func flattenLines(mls orb.MultiLineString) ([]orb.Point, []uint32) {
	total := 0
	for _, ls := range mls {
		total += len(ls)
	}
	points := make([]orb.Point, 0, total)
	ends := make([]uint32, 0, len(mls))
	for _, ls := range mls {
		points = append(points, ls...)
		ends = append(ends, uint32(len(points)))
	}
	return points, ends
}

func flattenRings(poly orb.Polygon) ([]orb.Point, []uint32) {
	total := 0
	for _, ring := range poly {
		total += len(ring)
	}
	points := make([]orb.Point, 0, total)
	ends := make([]uint32, 0, len(poly))
	for _, ring := range poly {
		points = append(points, ring...)
		ends = append(ends, uint32(len(points)))
	}
	return points, ends
}

// geometryFromFGB converts a FlatGeobuf flattypes.Geometry to an orb.Geometry.
// Parts without their own type take headerType.
func geometryFromFGB(g *flattypes.Geometry, headerType flattypes.GeometryType) orb.Geometry {
	if g == nil {
		return nil
	}

	t := g.Type()
	if t == flattypes.GeometryTypeUnknown {
		t = headerType
	}

	switch t {
	case flattypes.GeometryTypePoint:
		if g.XyLength() < 2 {
			return orb.Point{}
		}
		return orb.Point{g.Xy(0), g.Xy(1)}

	case flattypes.GeometryTypeMultiPoint:
		return orb.MultiPoint(readPoints(g, 0, g.XyLength()/2))

	case flattypes.GeometryTypeLineString:
		return orb.LineString(readPoints(g, 0, g.XyLength()/2))

	case flattypes.GeometryTypeMultiLineString:
		mls := orb.MultiLineString{}
		for _, span := range readSpans(g) {
			mls = append(mls, orb.LineString(readPoints(g, span[0], span[1])))
		}
		return mls

	case flattypes.GeometryTypePolygon:
		return readPolygon(g)

	case flattypes.GeometryTypeMultiPolygon:
		mp := orb.MultiPolygon{}
		if g.PartsLength() == 0 {
			if poly := readPolygon(g); len(poly) > 0 {
				mp = append(mp, poly)
			}
			return mp
		}
		for i := 0; i < g.PartsLength(); i++ {
			var part flattypes.Geometry
			if g.Parts(&part, i) {
				if poly, ok := geometryFromFGB(&part, flattypes.GeometryTypePolygon).(orb.Polygon); ok {
					mp = append(mp, poly)
				}
			}
		}
		return mp

	case flattypes.GeometryTypeGeometryCollection:
		coll := orb.Collection{}
		for i := 0; i < g.PartsLength(); i++ {
			var part flattypes.Geometry
			if g.Parts(&part, i) {
				if child := geometryFromFGB(&part, flattypes.GeometryTypeUnknown); child != nil {
					coll = append(coll, child)
				}
			}
		}
		return coll

	default:
		return nil
	}
}

func readPolygon(g *flattypes.Geometry) orb.Polygon {
	poly := orb.Polygon{}
	for _, span := range readSpans(g) {
		poly = append(poly, orb.Ring(readPoints(g, span[0], span[1])))
	}
	return poly
}

// readPoints reads points [start, end) of the xy vector.
func readPoints(g *flattypes.Geometry, start, end int) []orb.Point {
	if n := g.XyLength() / 2; end > n {
		end = n
	}
	if start >= end {
		return []orb.Point{}
	}
	points := make([]orb.Point, 0, end-start)
	for i := start; i < end; i++ {
		points = append(points, orb.Point{g.Xy(2 * i), g.Xy(2*i + 1)})
	}
	return points
}

// readSpans returns [start, end) point ranges from the ends vector; a
// geometry without ends is a single span.
func readSpans(g *flattypes.Geometry) [][2]int {
	n := g.XyLength() / 2
	if g.EndsLength() == 0 {
		if n == 0 {
			return nil
		}
		return [][2]int{{0, n}}
	}
	spans := make([][2]int, 0, g.EndsLength())
	start := 0
	for i := 0; i < g.EndsLength(); i++ {
		end := int(g.Ends(i))
		spans = append(spans, [2]int{start, end})
		start = end
	}
	return spans
}

// boxOf returns the bounding box of geom.
func boxOf(geom orb.Geometry) Box {
	b := geom.Bound()
	return Box{MinX: b.Min[0], MinY: b.Min[1], MaxX: b.Max[0], MaxY: b.Max[1]}
}
