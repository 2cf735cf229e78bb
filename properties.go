package flatgeobuf

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"time"

	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	"github.com/paulmach/orb/geojson"
	"github.com/pkg/errors"

	"github.com/tingold/gpkg-cloudformats/gpkg"
)

// AppendProperties encodes one row's attribute values into the FlatGeobuf
// binary properties format and appends the result to dst. values[i] holds
// the value of columns[i]; nil values are left out.
//
// The format is: [2-byte column ordinal][value bytes]... with fixed-width
// little-endian numbers and [4-byte length][bytes] for strings, JSON,
// date-times and binaries.
func AppendProperties(dst []byte, columns []ColumnSpec, values []any) ([]byte, error) {
	var err error
	for i, col := range columns {
		v := values[i]
		if v == nil {
			continue
		}
		dst = binary.LittleEndian.AppendUint16(dst, col.Ordinal)
		dst, err = appendValue(dst, col, v)
		if err != nil {
			return nil, errors.Wrapf(err, "column %s", col.Name)
		}
	}
	return dst, nil
}

// appendValue writes a single property value.
func appendValue(dst []byte, col ColumnSpec, value any) ([]byte, error) {
	switch col.Type {
	case flattypes.ColumnTypeBool:
		if gpkg.ToBool(value) {
			return append(dst, 1), nil
		}
		return append(dst, 0), nil

	case flattypes.ColumnTypeByte, flattypes.ColumnTypeUByte:
		v, ok := gpkg.ToInt64(value)
		if !ok {
			return nil, mismatch(col, value)
		}
		return append(dst, byte(v)), nil

	case flattypes.ColumnTypeShort, flattypes.ColumnTypeUShort:
		v, ok := gpkg.ToInt64(value)
		if !ok {
			return nil, mismatch(col, value)
		}
		return binary.LittleEndian.AppendUint16(dst, uint16(v)), nil

	case flattypes.ColumnTypeInt, flattypes.ColumnTypeUInt:
		v, ok := gpkg.ToInt64(value)
		if !ok {
			return nil, mismatch(col, value)
		}
		return binary.LittleEndian.AppendUint32(dst, uint32(v)), nil

	case flattypes.ColumnTypeLong:
		v, ok := gpkg.ToInt64(value)
		if !ok {
			return nil, mismatch(col, value)
		}
		return binary.LittleEndian.AppendUint64(dst, uint64(v)), nil

	case flattypes.ColumnTypeULong:
		v, ok := gpkg.ToUint64(value)
		if !ok {
			return nil, mismatch(col, value)
		}
		return binary.LittleEndian.AppendUint64(dst, v), nil

	case flattypes.ColumnTypeFloat:
		v, ok := gpkg.ToFloat64(value)
		if !ok {
			return nil, mismatch(col, value)
		}
		return binary.LittleEndian.AppendUint32(dst, math.Float32bits(float32(v))), nil

	case flattypes.ColumnTypeDouble:
		v, ok := gpkg.ToFloat64(value)
		if !ok {
			return nil, mismatch(col, value)
		}
		return binary.LittleEndian.AppendUint64(dst, math.Float64bits(v)), nil

	case flattypes.ColumnTypeString, flattypes.ColumnTypeJson:
		return appendBytes(dst, []byte(gpkg.ToString(value))), nil

	case flattypes.ColumnTypeDateTime:
		return appendBytes(dst, []byte(toDateTime(value, col.Source))), nil

	case flattypes.ColumnTypeBinary:
		switch v := value.(type) {
		case []byte:
			return appendBytes(dst, v), nil
		case string:
			return appendBytes(dst, []byte(v)), nil
		}
		return nil, mismatch(col, value)

	default:
		return nil, errors.Wrapf(ErrInvalidColumn, "%d", col.Type)
	}
}

func appendBytes(dst, b []byte) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(b)))
	return append(dst, b...)
}

func mismatch(col ColumnSpec, value any) error {
	return errors.Wrapf(ErrPropertyMismatch, "%T for %s", value, flattypes.EnumNamesColumnType[col.Type])
}

// DecodeProperties decodes FlatGeobuf binary properties to geojson.Properties.
func DecodeProperties(data []byte, header *flattypes.Header) (geojson.Properties, error) {
	if len(data) == 0 || header == nil {
		return nil, nil
	}

	props := make(geojson.Properties)
	offset := 0

	for offset < len(data) {
		if offset+2 > len(data) {
			return nil, errors.Wrap(ErrInvalidData, "truncated column ordinal")
		}
		colIndex := binary.LittleEndian.Uint16(data[offset : offset+2])
		offset += 2

		var col flattypes.Column
		if int(colIndex) >= header.ColumnsLength() || !header.Columns(&col, int(colIndex)) {
			return nil, errors.Wrapf(ErrInvalidData, "column ordinal %d out of range", colIndex)
		}

		value, n := readPropertyValue(data[offset:], col.Type())
		if n == 0 {
			return nil, errors.Wrapf(ErrInvalidData, "truncated value for column %s", col.Name())
		}
		offset += n

		props[string(col.Name())] = value
	}

	return props, nil
}

// readPropertyValue reads a property value from the buffer.
// Returns the value and number of bytes read, 0 when data is too short.
func readPropertyValue(data []byte, colType flattypes.ColumnType) (interface{}, int) {
	switch colType {
	case flattypes.ColumnTypeBool:
		if len(data) < 1 {
			return nil, 0
		}
		return data[0] != 0, 1

	case flattypes.ColumnTypeByte:
		if len(data) < 1 {
			return nil, 0
		}
		return int8(data[0]), 1

	case flattypes.ColumnTypeUByte:
		if len(data) < 1 {
			return nil, 0
		}
		return data[0], 1

	case flattypes.ColumnTypeShort:
		if len(data) < 2 {
			return nil, 0
		}
		return int16(binary.LittleEndian.Uint16(data[:2])), 2

	case flattypes.ColumnTypeUShort:
		if len(data) < 2 {
			return nil, 0
		}
		return binary.LittleEndian.Uint16(data[:2]), 2

	case flattypes.ColumnTypeInt:
		if len(data) < 4 {
			return nil, 0
		}
		return int32(binary.LittleEndian.Uint32(data[:4])), 4

	case flattypes.ColumnTypeUInt:
		if len(data) < 4 {
			return nil, 0
		}
		return binary.LittleEndian.Uint32(data[:4]), 4

	case flattypes.ColumnTypeLong:
		if len(data) < 8 {
			return nil, 0
		}
		return int64(binary.LittleEndian.Uint64(data[:8])), 8

	case flattypes.ColumnTypeULong:
		if len(data) < 8 {
			return nil, 0
		}
		return binary.LittleEndian.Uint64(data[:8]), 8

	case flattypes.ColumnTypeFloat:
		if len(data) < 4 {
			return nil, 0
		}
		return math.Float32frombits(binary.LittleEndian.Uint32(data[:4])), 4

	case flattypes.ColumnTypeDouble:
		if len(data) < 8 {
			return nil, 0
		}
		return math.Float64frombits(binary.LittleEndian.Uint64(data[:8])), 8

	case flattypes.ColumnTypeString, flattypes.ColumnTypeDateTime, flattypes.ColumnTypeJson, flattypes.ColumnTypeBinary:
		if len(data) < 4 {
			return nil, 0
		}
		length := int(binary.LittleEndian.Uint32(data[:4]))
		if len(data)-4 < length {
			return nil, 0
		}
		raw := data[4 : 4+length]
		switch colType {
		case flattypes.ColumnTypeBinary:
			return append([]byte(nil), raw...), 4 + length
		case flattypes.ColumnTypeJson:
			var v interface{}
			if err := json.Unmarshal(raw, &v); err == nil {
				return v, 4 + length
			}
		}
		return string(raw), 4 + length

	default:
		return nil, 0
	}
}

// toDateTime renders a date, time-of-day or timestamp value as text a
// FlatGeobuf DateTime column can carry: calendar dates as YYYY-MM-DD,
// times as HH:MM:SS[.fff], timestamps as RFC 3339 in UTC. Text that does
// not parse is kept as is.
func toDateTime(v interface{}, source gpkg.SourceType) string {
	switch source {
	case gpkg.SourceDate:
		if t, ok := gpkg.ToTime(v); ok {
			return t.Format(gpkg.DateLayout)
		}
	case gpkg.SourceTime:
		if d, ok := gpkg.ToTimeOfDay(v); ok {
			return time.Time{}.Add(d).Format(gpkg.TimeLayout)
		}
	default:
		if t, ok := gpkg.ToTime(v); ok {
			return t.UTC().Format(time.RFC3339Nano)
		}
	}
	return gpkg.ToString(v)
}
