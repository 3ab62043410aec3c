package decoder

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Document is a decoded structured message body
type Document map[string]interface{}

// Path walk nested objects following the field names
func (d Document) Path(fields ...string) (interface{}, bool) {
	var current interface{} = map[string]interface{}(d)
	for _, field := range fields {
		obj, ok := asObject(current)
		if !ok {
			return nil, false
		}
		next, ok := obj[field]
		if !ok || next == nil {
			return nil, false
		}
		current = next
	}
	return current, true
}

// Object fetch a nested object, or nil when absent
func (d Document) Object(fields ...string) Document {
	v, ok := d.Path(fields...)
	if !ok {
		return nil
	}
	obj, ok := asObject(v)
	if !ok {
		return nil
	}
	return Document(obj)
}

// String fetch a nested scalar rendered as text.
//
// Numbers are rendered in their JSON form, so a route code sent as 801 or "801"
// both read back as "801".
func (d Document) String(fields ...string) (string, bool) {
	v, ok := d.Path(fields...)
	if !ok {
		return "", false
	}
	return scalarText(v)
}

// Float fetch a nested finite number. Numeric strings are accepted.
func (d Document) Float(fields ...string) (float64, bool) {
	v, ok := d.Path(fields...)
	if !ok {
		return 0, false
	}
	var parsed float64
	switch t := v.(type) {
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0, false
		}
		parsed = f
	case float64:
		parsed = t
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		parsed = f
	default:
		return 0, false
	}
	if math.IsNaN(parsed) || math.IsInf(parsed, 0) {
		return 0, false
	}
	return parsed, true
}

// Value fetch a nested value as-is
func (d Document) Value(fields ...string) interface{} {
	v, _ := d.Path(fields...)
	return v
}

func asObject(v interface{}) (map[string]interface{}, bool) {
	switch t := v.(type) {
	case map[string]interface{}:
		return t, true
	case Document:
		return t, true
	}
	return nil, false
}

func scalarText(v interface{}) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	}
	return "", false
}
