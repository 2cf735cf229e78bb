package gpkg

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/pkg/errors"
)

// GeoPackage binary header: magic "GP", version, flags, srs_id.
const (
	blobMagic0     = 0x47
	blobMagic1     = 0x50
	blobHeaderSize = 8
)

// Blob is a parsed GeoPackage geometry blob. The envelope is skipped, WKB
// holds the remainder of the blob.
type Blob struct {
	Version      byte
	Flags        byte
	ByteOrder    binary.ByteOrder
	SRID         int32
	EnvelopeSize int
	WKB          []byte
}

// envelopeSize returns the envelope length in bytes for the indicator
// stored in flag bits 1-3.
func envelopeSize(indicator byte) (int, error) {
	switch indicator {
	case 0:
		return 0, nil
	case 1:
		return 4 * 8, nil
	case 2, 3:
		return 6 * 8, nil
	case 4:
		return 8 * 8, nil
	default:
		return 0, errors.Wrapf(ErrUnsupportedEnvelope, "%d", indicator)
	}
}

// ParseBlob splits a GeoPackage geometry blob into its header fields and
// WKB payload. The returned WKB aliases data.
func ParseBlob(data []byte) (*Blob, error) {
	if len(data) < blobHeaderSize {
		return nil, errors.Wrapf(ErrInvalidBlob, "%d bytes is shorter than the header", len(data))
	}
	if data[0] != blobMagic0 || data[1] != blobMagic1 {
		return nil, errors.Wrapf(ErrInvalidMagic, "0x%02x%02x", data[0], data[1])
	}

	b := &Blob{
		Version: data[2],
		Flags:   data[3],
	}
	if b.Flags&0x01 == 1 {
		b.ByteOrder = binary.LittleEndian
	} else {
		b.ByteOrder = binary.BigEndian
	}
	b.SRID = int32(b.ByteOrder.Uint32(data[4:8]))

	size, err := envelopeSize((b.Flags >> 1) & 0x07)
	if err != nil {
		return nil, err
	}
	if len(data)-blobHeaderSize < size {
		return nil, errors.Wrapf(ErrInvalidBlob, "envelope needs %d bytes, %d left", size, len(data)-blobHeaderSize)
	}
	b.EnvelopeSize = size
	b.WKB = data[blobHeaderSize+size:]

	return b, nil
}

// DecodeGeometry decodes a GeoPackage geometry blob. A nil blob is a null
// geometry and yields (nil, 0, nil). The SRID stored in the blob is returned
// as found.
func DecodeGeometry(data []byte) (orb.Geometry, int32, error) {
	if data == nil {
		return nil, 0, nil
	}

	b, err := ParseBlob(data)
	if err != nil {
		return nil, 0, err
	}

	geom, err := wkb.Unmarshal(b.WKB)
	if err != nil {
		return nil, b.SRID, errors.Wrap(ErrInvalidWKB, err.Error())
	}
	return geom, b.SRID, nil
}

// EncodeGeometry writes geom as a little-endian GeoPackage geometry blob.
// Points carry no envelope, other geometries carry an XY envelope.
func EncodeGeometry(geom orb.Geometry, srid int32) ([]byte, error) {
	if geom == nil {
		return nil, nil
	}

	payload, err := wkb.Marshal(geom, binary.LittleEndian)
	if err != nil {
		return nil, errors.Wrap(err, "gpkg: marshal wkb")
	}

	var flags byte = 0x01
	_, isPoint := geom.(orb.Point)
	if !isPoint {
		flags |= 1 << 1
	}

	var buf bytes.Buffer
	buf.Grow(blobHeaderSize + 32 + len(payload))
	buf.Write([]byte{blobMagic0, blobMagic1, 0, flags})

	word := make([]byte, 8)
	binary.LittleEndian.PutUint32(word, uint32(srid))
	buf.Write(word[:4])

	if !isPoint {
		// GeoPackage envelope order is minx, maxx, miny, maxy.
		bound := geom.Bound()
		for _, v := range []float64{bound.Min[0], bound.Max[0], bound.Min[1], bound.Max[1]} {
			binary.LittleEndian.PutUint64(word, math.Float64bits(v))
			buf.Write(word)
		}
	}

	buf.Write(payload)
	return buf.Bytes(), nil
}
