package upstream

import (
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// epochMillisThreshold separates second-resolution epochs from
// millisecond-resolution ones. Values below it are read as seconds.
const epochMillisThreshold = 1e12

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// Timestamp is a point in time decoded leniently from upstream JSON.
// It accepts epoch seconds or milliseconds (as numbers or numeric
// strings) and RFC 3339 strings. Anything else decodes to the zero
// value without error.
type Timestamp struct {
	time.Time
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	t.Time, _ = ParseTimestamp(gjson.ParseBytes(data))
	return nil
}

// MarshalJSON implements json.Marshaler. The zero value encodes as null.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(strconv.Quote(t.UTC().Format(time.RFC3339Nano))), nil
}

// IsZero reports whether the timestamp is absent.
func (t Timestamp) IsZero() bool {
	return t.Time.IsZero()
}

// MarshalYAML renders the timestamp as RFC 3339, or null when absent.
func (t Timestamp) MarshalYAML() (any, error) {
	if t.IsZero() {
		return nil, nil
	}
	return t.UTC().Format(time.RFC3339), nil
}

// ParseTimestamp converts a JSON value to a time. The boolean is false
// when the value is missing, zero, or not recognizable as a time.
func ParseTimestamp(v gjson.Result) (time.Time, bool) {
	switch v.Type {
	case gjson.Number:
		return fromEpoch(v.Float())
	case gjson.String:
		s := strings.TrimSpace(v.Str)
		if s == "" {
			return time.Time{}, false
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return fromEpoch(f)
		}
		for _, layout := range timestampLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts, true
			}
		}
	}
	return time.Time{}, false
}

// FirstTimestamp returns the first non-zero timestamp found among the
// given paths of a JSON document.
func FirstTimestamp(doc gjson.Result, paths ...string) (time.Time, bool) {
	for _, p := range paths {
		if ts, ok := ParseTimestamp(doc.Get(p)); ok {
			return ts, true
		}
	}
	return time.Time{}, false
}

func fromEpoch(f float64) (time.Time, bool) {
	if f <= 0 {
		return time.Time{}, false
	}
	if f < epochMillisThreshold {
		return time.UnixMilli(int64(f * 1000)), true
	}
	return time.UnixMilli(int64(f)), true
}
