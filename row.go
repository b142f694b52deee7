package dbal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Row is one result row: a field→value map that preserves the column
// order returned by the driver.
type Row struct {
	keys   []string
	values map[string]interface{}
}

// NewRow creates an empty Row.
func NewRow() *Row {
	return &Row{
		keys:   make([]string, 0),
		values: make(map[string]interface{}),
	}
}

func newRowFromScan(cols []string, scanned map[string]interface{}) *Row {
	r := &Row{
		keys:   make([]string, 0, len(cols)),
		values: make(map[string]interface{}, len(cols)),
	}
	for _, c := range cols {
		r.Set(c, normalizeValue(scanned[c]))
	}
	return r
}

// Set stores value under key. A new key goes last; an existing key keeps
// its column position.
func (r *Row) Set(key string, value interface{}) {
	if _, exists := r.values[key]; !exists {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
}

// Get returns the raw driver value for key.
func (r *Row) Get(key string) (interface{}, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Keys returns the keys in column order.
func (r *Row) Keys() []string {
	return append([]string(nil), r.keys...)
}

// Len returns the number of fields.
func (r *Row) Len() int { return len(r.keys) }

// String returns the value for key formatted as a string. NULL and missing
// fields yield "".
func (r *Row) String(key string) string {
	v, ok := r.values[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case time.Time:
		return t.Format(time.RFC3339)
	default:
		return fmt.Sprint(t)
	}
}

// Int64 returns the value for key as an int64.
func (r *Row) Int64(key string) (int64, error) {
	v, ok := r.values[key]
	if !ok {
		return 0, fmt.Errorf("%w: no field %q in row", ErrInvalidArgument, key)
	}
	return toInt64(v)
}

// Map returns a plain copy of the row values.
func (r *Row) Map() map[string]interface{} {
	m := make(map[string]interface{}, len(r.values))
	for k, v := range r.values {
		m[k] = v
	}
	return m
}

// MarshalJSON writes the fields as a JSON object in column order.
func (r *Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)

	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := enc.Encode(k); err != nil {
			return nil, err
		}
		buf.Truncate(buf.Len() - 1) // Encode appends a newline
		buf.WriteByte(':')
		if err := enc.Encode(r.values[k]); err != nil {
			return nil, fmt.Errorf("dbal: encode column %q: %w", k, err)
		}
		buf.Truncate(buf.Len() - 1)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// normalizeValue converts driver byte slices to strings so rows look the
// same across drivers.
func normalizeValue(v interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

func toInt64(v interface{}) (int64, error) {
	switch t := v.(type) {
	case int64:
		return t, nil
	case int:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case uint64:
		return int64(t), nil
	case float64:
		return int64(t), nil
	case []byte:
		return strconv.ParseInt(string(t), 10, 64)
	case string:
		return strconv.ParseInt(t, 10, 64)
	case nil:
		return 0, nil
	default:
		return 0, fmt.Errorf("%w: cannot convert %T to int64", ErrInvalidArgument, v)
	}
}
