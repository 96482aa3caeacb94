package warehouse

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Value coercion helpers.
//
// Stores hand back whatever the driver produced: sqlite returns TEXT for
// timestamps and sometimes int64 where float64 was written, mssql can return
// []byte for character data. Stages must not assume a concrete Go type; these
// helpers are the single place that knows the cross-backend conversions.
//
// All coercers are total: a value that cannot be converted yields (zero, false)
// rather than an error, matching the pipeline's "null the field, never abort
// the batch" policy.

// AsString converts v to a string. nil yields ("", false).
func AsString(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case []byte:
		return string(t), true
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano), true
	default:
		return fmt.Sprint(v), true
	}
}

// AsInt64 converts v to an int64. Numeric strings are parsed; a float with a
// fractional part still converts (truncation), mirroring SQL CAST semantics.
func AsInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case nil:
		return 0, false
	case int64:
		return t, true
	case int:
		return int64(t), true
	case int32:
		return int64(t), true
	case float64:
		return int64(t), true
	case float32:
		return int64(t), true
	case string:
		return parseInt64(t)
	case []byte:
		return parseInt64(string(t))
	default:
		return 0, false
	}
}

func parseInt64(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, true
	}
	// "123.0" style integers survive a float round-trip.
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int64(f), true
	}
	return 0, false
}

// AsFloat64 converts v to a float64.
func AsFloat64(v any) (float64, bool) {
	switch t := v.(type) {
	case nil:
		return 0, false
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int64:
		return float64(t), true
	case int:
		return float64(t), true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	case []byte:
		return AsFloat64(string(t))
	default:
		return 0, false
	}
}

// timeLayouts are the textual timestamp encodings a backend may return.
// RFC3339Nano is what the sqlite store writes; the rest cover values written
// by other tools against the same tables.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// AsTime converts v to a time.Time in UTC.
func AsTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return t.UTC(), true
	case string:
		return parseTime(t)
	case []byte:
		return parseTime(string(t))
	default:
		return time.Time{}, false
	}
}

func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		switch layout {
		case "2006-01-02 15:04:05", "2006-01-02":
			if ts, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
				return ts.UTC(), true
			}
		default:
			if ts, err := time.Parse(layout, s); err == nil {
				return ts.UTC(), true
			}
		}
	}
	return time.Time{}, false
}

// AsDate converts v to a midnight-UTC time.Time (calendar date).
func AsDate(v any) (time.Time, bool) {
	ts, ok := AsTime(v)
	if !ok {
		return time.Time{}, false
	}
	return Midnight(ts), true
}

// Midnight truncates a timestamp to its UTC calendar day.
func Midnight(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NormalizeKey converts a value to a canonical string form suitable for
// in-memory map keys, consistent across backends regardless of how a driver
// surfaces the stored value.
func NormalizeKey(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case []byte:
		return strings.TrimSpace(string(t))
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}
