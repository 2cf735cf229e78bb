package flatgeobuf

import (
	"errors"
	"testing"

	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/paulmach/orb"

	"github.com/tingold/gpkg-cloudformats/gpkg"
)

// roundTrip builds geom into a Feature flatbuffer and reads it back.
func roundTrip(t *testing.T, geom orb.Geometry, headerType flattypes.GeometryType) orb.Geometry {
	t.Helper()

	b := flatbuffers.NewBuilder(256)
	g, err := buildGeometry(b, geom)
	if err != nil {
		t.Fatalf("buildGeometry failed: %v", err)
	}
	flattypes.FeatureStart(b)
	flattypes.FeatureAddGeometry(b, g)
	b.Finish(flattypes.FeatureEnd(b))

	f := flattypes.GetRootAsFeature(b.FinishedBytes(), 0)
	var fg flattypes.Geometry
	return geometryFromFGB(f.Geometry(&fg), headerType)
}

func TestGeometryRoundTrip(t *testing.T) {
	square := orb.Ring{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}}
	hole := orb.Ring{{2, 2}, {4, 2}, {4, 4}, {2, 4}, {2, 2}}

	tests := []struct {
		name       string
		geom       orb.Geometry
		headerType flattypes.GeometryType
	}{
		{"point", orb.Point{7, 47}, flattypes.GeometryTypePoint},
		{"multipoint", orb.MultiPoint{{1, 2}, {3, 4}}, flattypes.GeometryTypeMultiPoint},
		{"linestring", orb.LineString{{0, 0}, {1, 1}, {2, 0}}, flattypes.GeometryTypeLineString},
		{"multilinestring", orb.MultiLineString{{{0, 0}, {1, 1}}, {{5, 5}, {6, 6}, {7, 5}}}, flattypes.GeometryTypeMultiLineString},
		{"polygon", orb.Polygon{square}, flattypes.GeometryTypePolygon},
		{"polygon with hole", orb.Polygon{square, hole}, flattypes.GeometryTypePolygon},
		{"multipolygon", orb.MultiPolygon{{square}, {hole}}, flattypes.GeometryTypeMultiPolygon},
		{"point in unknown header", orb.Point{1, 2}, flattypes.GeometryTypeUnknown},
		{"collection", orb.Collection{orb.Point{1, 2}, orb.LineString{{0, 0}, {1, 1}}}, flattypes.GeometryTypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := roundTrip(t, tt.geom, tt.headerType)
			if !orb.Equal(got, tt.geom) {
				t.Errorf("expected %v, got %v", tt.geom, got)
			}
		})
	}
}

func TestBuildGeometry_Nil(t *testing.T) {
	b := flatbuffers.NewBuilder(64)
	if _, err := buildGeometry(b, nil); !errors.Is(err, ErrNilGeometry) {
		t.Errorf("expected ErrNilGeometry, got %v", err)
	}
}

func TestNormalizeGeometry(t *testing.T) {
	poly := orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}
	line := orb.LineString{{0, 0}, {1, 1}}

	tests := []struct {
		name     string
		geom     orb.Geometry
		declared gpkg.GeometryType
		want     orb.Geometry
		wantErr  bool
	}{
		{"point exact", orb.Point{1, 2}, gpkg.GeometryPoint, orb.Point{1, 2}, false},
		{"polygon promoted", poly, gpkg.GeometryMultiPolygon, orb.MultiPolygon{poly}, false},
		{"line promoted", line, gpkg.GeometryMultiLineString, orb.MultiLineString{line}, false},
		{"point promoted", orb.Point{1, 2}, gpkg.GeometryMultiPoint, orb.MultiPoint{{1, 2}}, false},
		{"multi kept", orb.MultiPolygon{poly, poly}, gpkg.GeometryMultiPolygon, orb.MultiPolygon{poly, poly}, false},
		{"unknown accepts all", line, gpkg.GeometryUnknown, line, false},
		{"line in polygon table", line, gpkg.GeometryPolygon, nil, true},
		{"multi in singular table", orb.MultiPoint{{1, 2}}, gpkg.GeometryPoint, nil, true},
		{"polygon in multiline table", poly, gpkg.GeometryMultiLineString, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := normalizeGeometry(tt.geom, tt.declared)
			if tt.wantErr {
				if !errors.Is(err, ErrUnexpectedGeometry) {
					t.Fatalf("expected ErrUnexpectedGeometry, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("normalizeGeometry failed: %v", err)
			}
			if !orb.Equal(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestHeaderGeometryType(t *testing.T) {
	tests := []struct {
		in   gpkg.GeometryType
		want flattypes.GeometryType
	}{
		{gpkg.GeometryUnknown, flattypes.GeometryTypeUnknown},
		{gpkg.GeometryPoint, flattypes.GeometryTypePoint},
		{gpkg.GeometryLineString, flattypes.GeometryTypeLineString},
		{gpkg.GeometryPolygon, flattypes.GeometryTypePolygon},
		{gpkg.GeometryMultiPoint, flattypes.GeometryTypeMultiPoint},
		{gpkg.GeometryMultiLineString, flattypes.GeometryTypeMultiLineString},
		{gpkg.GeometryMultiPolygon, flattypes.GeometryTypeMultiPolygon},
	}
	for _, tt := range tests {
		got, err := headerGeometryType(tt.in)
		if err != nil {
			t.Fatalf("%s: %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("%s: expected %v, got %v", tt.in, tt.want, got)
		}
	}

	if _, err := headerGeometryType(gpkg.GeometryType(42)); !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("expected ErrUnsupportedType, got %v", err)
	}
}
