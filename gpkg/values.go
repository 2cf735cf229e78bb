package gpkg

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Value coercion for the dynamic types returned by the SQLite driver
// (int64, float64, string, []byte, time.Time) and their near relatives.

// ToBool accepts booleans, any nonzero number and case-insensitive "true".
// Everything else is false.
func ToBool(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		return strings.EqualFold(strings.TrimSpace(val), "true")
	case []byte:
		return strings.EqualFold(strings.TrimSpace(string(val)), "true")
	}
	if f, ok := ToFloat64(v); ok {
		return f != 0
	}
	return false
}

// ToInt64 converts numbers, booleans and numeric text. Fractions are
// truncated.
func ToInt64(v any) (int64, bool) {
	switch val := v.(type) {
	case int:
		return int64(val), true
	case int8:
		return int64(val), true
	case int16:
		return int64(val), true
	case int32:
		return int64(val), true
	case int64:
		return val, true
	case uint:
		return int64(val), true
	case uint8:
		return int64(val), true
	case uint16:
		return int64(val), true
	case uint32:
		return int64(val), true
	case uint64:
		return int64(val), true
	case float32:
		return int64(val), true
	case float64:
		return int64(val), true
	case bool:
		if val {
			return 1, true
		}
		return 0, true
	case string:
		s := strings.TrimSpace(val)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return int64(f), true
		}
	}
	return 0, false
}

// ToUint64 is ToInt64 for unsigned targets; negative values fail.
func ToUint64(v any) (uint64, bool) {
	switch val := v.(type) {
	case uint64:
		return val, true
	case string:
		if u, err := strconv.ParseUint(strings.TrimSpace(val), 10, 64); err == nil {
			return u, true
		}
	}
	if i, ok := ToInt64(v); ok && i >= 0 {
		return uint64(i), true
	}
	return 0, false
}

// ToFloat64 converts numbers, booleans and numeric text.
func ToFloat64(v any) (float64, bool) {
	switch val := v.(type) {
	case float32:
		return float64(val), true
	case float64:
		return val, true
	case int:
		return float64(val), true
	case int8:
		return float64(val), true
	case int16:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint:
		return float64(val), true
	case uint8:
		return float64(val), true
	case uint16:
		return float64(val), true
	case uint32:
		return float64(val), true
	case uint64:
		return float64(val), true
	case bool:
		if val {
			return 1, true
		}
		return 0, true
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

// ToString renders v as text. Values without a natural text form are
// marshalled as JSON.
func ToString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case []byte:
		return string(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04:05.999999999"
)

// timestampLayouts are tried in order on textual timestamps. Layouts
// without a zone are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	DateLayout,
}

// ToTime converts a date or timestamp value. Integers are Unix epoch
// milliseconds.
func ToTime(v any) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		return val, true
	case int64:
		return time.UnixMilli(val).UTC(), true
	case string:
		s := strings.TrimSpace(val)
		for _, layout := range timestampLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
		}
	case []byte:
		return ToTime(string(val))
	}
	return time.Time{}, false
}

// ToTimeOfDay converts a time-of-day value to the duration since midnight.
// Integers are seconds since midnight.
func ToTimeOfDay(v any) (time.Duration, bool) {
	switch val := v.(type) {
	case time.Time:
		h, m, s := val.Clock()
		return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute +
			time.Duration(s)*time.Second + time.Duration(val.Nanosecond()), true
	case int64:
		return time.Duration(val) * time.Second, true
	case string:
		t, err := time.Parse(TimeLayout, strings.TrimSpace(val))
		if err != nil {
			return 0, false
		}
		return ToTimeOfDay(t)
	case []byte:
		return ToTimeOfDay(string(val))
	}
	return 0, false
}
