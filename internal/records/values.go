// Package records defines typed views over the externally written documents
// consumed by the background jobs. Field values are coerced leniently: numeric
// strings are accepted as numbers, several timestamp shapes are accepted as
// times, and anything unrecognised decodes as absent instead of failing.
package records

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

var null = []byte("null")

// Number is a numeric document field.
type Number struct {
	Value float64
	Valid bool
}

// Num builds a valid Number.
func Num(v float64) Number {
	return Number{Value: v, Valid: true}
}

// UnmarshalJSON accepts JSON numbers and numeric strings.
func (n *Number) UnmarshalJSON(data []byte) error {
	*n = Number{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, null) {
		return nil
	}
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}
	if v, ok := ParseNumber(raw); ok {
		*n = Num(v)
	}
	return nil
}

// MarshalJSON writes null for absent values.
func (n Number) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return null, nil
	}
	return json.Marshal(n.Value)
}

// Or returns the value or fallback when absent.
func (n Number) Or(fallback float64) float64 {
	if !n.Valid {
		return fallback
	}
	return n.Value
}

// Positive returns the value floored at zero, treating absent as zero.
func (n Number) Positive() float64 {
	return math.Max(n.Or(0), 0)
}

// ParseNumber coerces a decoded JSON value into a finite float.
func ParseNumber(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return v, true
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// Text is a string document field. Non-string values decode as absent.
type Text struct {
	Value string
	Valid bool
}

// Str builds a valid Text.
func Str(v string) Text {
	return Text{Value: v, Valid: true}
}

// UnmarshalJSON accepts JSON strings only.
func (t *Text) UnmarshalJSON(data []byte) error {
	*t = Text{}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return nil
	}
	*t = Str(s)
	return nil
}

// MarshalJSON writes null for absent values.
func (t Text) MarshalJSON() ([]byte, error) {
	if !t.Valid {
		return null, nil
	}
	return json.Marshal(t.Value)
}

// String returns the value, or "" when absent.
func (t Text) String() string {
	return t.Value
}

// Or returns the value or fallback when absent or empty.
func (t Text) Or(fallback string) string {
	if !t.Valid || t.Value == "" {
		return fallback
	}
	return t.Value
}

// Lower returns the lower-cased value.
func (t Text) Lower() string {
	return strings.ToLower(t.Value)
}

// Flag is a boolean document field that distinguishes absent from false.
type Flag struct {
	Value bool
	Valid bool
}

// UnmarshalJSON accepts JSON booleans only.
func (f *Flag) UnmarshalJSON(data []byte) error {
	*f = Flag{}
	var b bool
	if err := json.Unmarshal(data, &b); err != nil {
		return nil
	}
	*f = Flag{Value: b, Valid: true}
	return nil
}

// MarshalJSON writes null for absent values.
func (f Flag) MarshalJSON() ([]byte, error) {
	if !f.Valid {
		return null, nil
	}
	return json.Marshal(f.Value)
}

// IsTrue reports a present true value.
func (f Flag) IsTrue() bool { return f.Valid && f.Value }

// IsFalse reports a present false value.
func (f Flag) IsFalse() bool { return f.Valid && !f.Value }

// Time is a timestamp document field. It accepts RFC 3339 strings, plain
// dates, epoch milliseconds and exported timestamp objects carrying
// seconds/nanoseconds.
type Time struct {
	Value time.Time
	Valid bool
}

// At builds a valid Time.
func At(t time.Time) Time {
	return Time{Value: t, Valid: true}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// UnmarshalJSON decodes any supported timestamp shape.
func (t *Time) UnmarshalJSON(data []byte) error {
	*t = Time{}
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}
	if ts, ok := ParseTime(raw); ok {
		*t = At(ts)
	}
	return nil
}

// MarshalJSON writes RFC 3339 or null.
func (t Time) MarshalJSON() ([]byte, error) {
	if !t.Valid {
		return null, nil
	}
	return json.Marshal(t.Value.UTC().Format(time.RFC3339Nano))
}

// Or returns the value or fallback when absent.
func (t Time) Or(fallback time.Time) time.Time {
	if !t.Valid {
		return fallback
	}
	return t.Value
}

// ParseTime coerces a decoded JSON value into a time.
func ParseTime(raw any) (time.Time, bool) {
	switch v := raw.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return time.Time{}, false
		}
		return time.UnixMilli(int64(v)).UTC(), true
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range timeLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts.UTC(), true
			}
		}
		return time.Time{}, false
	case map[string]any:
		secs, ok := ParseNumber(firstOf(v, "_seconds", "seconds"))
		if !ok {
			return time.Time{}, false
		}
		nanos, _ := ParseNumber(firstOf(v, "_nanoseconds", "nanoseconds", "nanos"))
		return time.Unix(int64(secs), int64(nanos)).UTC(), true
	default:
		return time.Time{}, false
	}
}

func firstOf(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v
		}
	}
	return nil
}

// isObject reports whether data holds a JSON object.
func isObject(data []byte) bool {
	data = bytes.TrimSpace(data)
	return len(data) > 0 && data[0] == '{'
}
