package telemetry

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// RawSample is one decoded telemetry payload. The source owns the schema, so
// every field is optional and read through the tolerant accessors below.
type RawSample map[string]any

// Sample is a RawSample together with the exact body it was decoded from
type Sample struct {
	Data     RawSample
	Body     []byte
	Endpoint string
	Fetched  time.Time
}

// Lookup returns the first present, non-null value among keys. A key may be a
// dotted path into nested objects, e.g. "position.lat".
func (r RawSample) Lookup(keys ...string) (any, bool) {
	for _, key := range keys {
		if v, ok := r.lookupPath(key); ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func (r RawSample) lookupPath(path string) (any, bool) {
	var cur any = map[string]any(r)
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			if rs, isRaw := cur.(RawSample); isRaw {
				m = rs
			} else {
				return nil, false
			}
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Has reports whether any of keys carries a non-null value
func (r RawSample) Has(keys ...string) bool {
	_, ok := r.Lookup(keys...)
	return ok
}

// Float returns the first present key as float64, 0 when missing or unparseable
func (r RawSample) Float(keys ...string) float64 {
	v, ok := r.Lookup(keys...)
	if !ok {
		return 0
	}
	return toFloat(v)
}

// String returns the first present key as a string, "" when missing
func (r RawSample) String(keys ...string) string {
	v, ok := r.Lookup(keys...)
	if !ok {
		return ""
	}
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	}
	return ""
}

// Bool returns the first present key as a bool and whether it was present
func (r RawSample) Bool(keys ...string) (value bool, present bool) {
	v, ok := r.Lookup(keys...)
	if !ok {
		return false, false
	}
	switch b := v.(type) {
	case bool:
		return b, true
	case float64:
		return b != 0, true
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		if err != nil {
			return false, false
		}
		return parsed, true
	}
	return false, false
}

// toFloat converts a decoded JSON value to float64. Strings are parsed,
// bools map to 0/1, anything else (and NaN/Inf) is 0.
func toFloat(v any) float64 {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0
		}
		f = parsed
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		f = parsed
	case bool:
		if n {
			return 1
		}
		return 0
	default:
		return 0
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}
