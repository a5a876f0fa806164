// Package coerce extracts primitives from untyped values decoded out of
// upstream records. Every function is total: unusable input yields ok=false.
package coerce

import (
	"encoding/json"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// maxEpochMillis bounds representable instants to ±100,000,000 days around
// the Unix epoch, the range dashboards can render.
const maxEpochMillis = 8.64e15

// ISOLayout matches model.ISOLayout; coerce stays dependency free.
const ISOLayout = "2006-01-02T15:04:05.000Z"

// ToNumber accepts numeric values and strings that parse fully to a finite number.
func ToNumber(value interface{}) (float64, bool) {
	var f float64
	switch v := value.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int8:
		f = float64(v)
	case int16:
		f = float64(v)
	case int32:
		f = float64(v)
	case int64:
		f = float64(v)
	case uint:
		f = float64(v)
	case uint8:
		f = float64(v)
	case uint16:
		f = float64(v)
	case uint32:
		f = float64(v)
	case uint64:
		f = float64(v)
	case json.Number:
		return parseFinite(string(v))
	case string:
		return parseFinite(v)
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func parseFinite(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// ToString accepts strings as-is and renders finite numbers the way
// dashboards print them (shortest form, exponent outside [1e-6, 1e21)).
func ToString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case int32:
		return strconv.FormatInt(int64(v), 10), true
	case uint64:
		return strconv.FormatUint(v, 10), true
	case uint32:
		return strconv.FormatUint(uint64(v), 10), true
	case json.Number:
		f, ok := parseFinite(string(v))
		if !ok {
			return "", false
		}
		return FormatNumber(f), true
	}

	f, ok := ToNumber(value)
	if !ok {
		return "", false
	}
	return FormatNumber(f), true
}

// FormatNumber renders a finite float in the shortest round-tripping form.
func FormatNumber(f float64) string {
	if f == 0 {
		return "0"
	}
	abs := math.Abs(f)
	if abs >= 1e21 || abs < 1e-6 {
		s := strconv.FormatFloat(f, 'e', -1, 64)
		mantissa, exp, _ := strings.Cut(s, "e")
		sign := exp[:1]
		digits := strings.TrimLeft(exp[1:], "0")
		if digits == "" {
			digits = "0"
		}
		return mantissa + "e" + sign + digits
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Layouts tried for string timestamps, most specific first. Values without a
// zone are read as UTC.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999-07",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006-01",
	"2006",
	time.RFC1123Z,
	time.RFC1123,
	time.RFC850,
	time.RFC822Z,
	time.ANSIC,
	"Mon Jan 2 2006 15:04:05 GMT-0700",
	"Jan 2, 2006 15:04:05",
	"Jan 2, 2006",
}

// ToTime accepts timestamp strings, epoch milliseconds and time.Time values.
// The result is in UTC.
func ToTime(value interface{}) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		if v.IsZero() {
			return time.Time{}, false
		}
		return v.UTC(), true
	case *time.Time:
		if v == nil || v.IsZero() {
			return time.Time{}, false
		}
		return v.UTC(), true
	case string:
		return parseTime(v)
	case json.Number:
		f, ok := parseFinite(string(v))
		if !ok {
			return time.Time{}, false
		}
		return fromEpochMillis(f)
	}

	f, ok := ToNumber(value)
	if !ok {
		return time.Time{}, false
	}
	return fromEpochMillis(f)
}

func fromEpochMillis(ms float64) (time.Time, bool) {
	if math.Abs(ms) > maxEpochMillis {
		return time.Time{}, false
	}
	return time.UnixMilli(int64(ms)).UTC(), true
}

func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// ToISODate is ToTime rendered as "2006-01-02T15:04:05.000Z".
func ToISODate(value interface{}) (string, bool) {
	t, ok := ToTime(value)
	if !ok {
		return "", false
	}
	return t.Format(ISOLayout), true
}

// ToRecord accepts non-nil string-keyed maps. Scalars, slices and nil yield
// ok=false.
func ToRecord(value interface{}) (map[string]interface{}, bool) {
	switch v := value.(type) {
	case nil:
		return nil, false
	case map[string]interface{}:
		if v == nil {
			return nil, false
		}
		return v, true
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String || rv.IsNil() {
		return nil, false
	}
	out := make(map[string]interface{}, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, true
}
