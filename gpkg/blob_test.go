package gpkg

import (
	"encoding/binary"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func blobWithHeader(flags byte, srid uint32, envelope int, payload []byte) []byte {
	b := []byte{0x47, 0x50, 0x00, flags}
	word := make([]byte, 4)
	if flags&0x01 == 1 {
		binary.LittleEndian.PutUint32(word, srid)
	} else {
		binary.BigEndian.PutUint32(word, srid)
	}
	b = append(b, word...)
	b = append(b, make([]byte, envelope)...)
	return append(b, payload...)
}

func TestDecodeGeometry_Nil(t *testing.T) {
	geom, srid, err := DecodeGeometry(nil)
	require.NoError(t, err)
	require.Nil(t, geom)
	require.Zero(t, srid)
}

func TestDecodeGeometry_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		geom orb.Geometry
	}{
		{"point", orb.Point{7, 47}},
		{"linestring", orb.LineString{{0, 0}, {1, 1}, {2, 0}}},
		{"polygon", orb.Polygon{{{0, 0}, {4, 0}, {4, 4}, {0, 4}, {0, 0}}}},
		{"multipolygon", orb.MultiPolygon{{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blob, err := EncodeGeometry(tt.geom, 2056)
			require.NoError(t, err)

			geom, srid, err := DecodeGeometry(blob)
			require.NoError(t, err)
			require.Equal(t, int32(2056), srid)
			require.True(t, orb.Equal(tt.geom, geom), "got %v", geom)
		})
	}
}

func TestParseBlob_EnvelopeSizes(t *testing.T) {
	payload, err := wkb.Marshal(orb.Point{1, 2}, binary.BigEndian)
	require.NoError(t, err)

	tests := []struct {
		indicator byte
		size      int
	}{
		{0, 0},
		{1, 32},
		{2, 48},
		{3, 48},
		{4, 64},
	}
	for _, tt := range tests {
		blob := blobWithHeader(tt.indicator<<1, 4326, tt.size, payload)
		b, err := ParseBlob(blob)
		require.NoError(t, err, "indicator %d", tt.indicator)
		require.Equal(t, tt.size, b.EnvelopeSize)
		require.Equal(t, binary.BigEndian, b.ByteOrder)
		require.Equal(t, int32(4326), b.SRID)
		require.Equal(t, payload, b.WKB)
	}
}

func TestParseBlob_LittleEndianSRID(t *testing.T) {
	blob := blobWithHeader(0x01, 2056, 0, nil)
	b, err := ParseBlob(blob)
	require.NoError(t, err)
	require.Equal(t, int32(2056), b.SRID)
	require.Equal(t, binary.LittleEndian, b.ByteOrder)
}

func TestParseBlob_Errors(t *testing.T) {
	tests := []struct {
		name string
		blob []byte
		want error
	}{
		{"empty", []byte{}, ErrInvalidBlob},
		{"short header", []byte{0x47, 0x50, 0, 1, 0}, ErrInvalidBlob},
		{"bad magic", []byte{0x47, 0x51, 0, 1, 0, 0, 0, 0}, ErrInvalidMagic},
		{"envelope indicator 5", blobWithHeader(0x01|5<<1, 0, 0, nil), ErrUnsupportedEnvelope},
		{"envelope indicator 7", blobWithHeader(0x01|7<<1, 0, 0, nil), ErrUnsupportedEnvelope},
		{"truncated envelope", blobWithHeader(0x01|1<<1, 0, 16, nil), ErrInvalidBlob},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseBlob(tt.blob)
			require.Error(t, err)
			require.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestDecodeGeometry_BadWKB(t *testing.T) {
	blob := blobWithHeader(0x01, 0, 0, []byte{0x01, 0xff})
	_, _, err := DecodeGeometry(blob)
	require.True(t, errors.Is(err, ErrInvalidWKB), "got %v", err)
}

func TestParseGeometryType(t *testing.T) {
	tests := map[string]GeometryType{
		"":                GeometryUnknown,
		"GEOMETRY":        GeometryUnknown,
		"point":           GeometryPoint,
		"LineString":      GeometryLineString,
		"POLYGON":         GeometryPolygon,
		"MULTIPOINT":      GeometryMultiPoint,
		"multilinestring": GeometryMultiLineString,
		"MultiPolygon":    GeometryMultiPolygon,
	}
	for name, want := range tests {
		got, err := ParseGeometryType(name)
		require.NoError(t, err, name)
		require.Equal(t, want, got, name)
	}

	_, err := ParseGeometryType("CIRCULARSTRING")
	require.True(t, errors.Is(err, ErrUnsupportedGeometryType))
}
