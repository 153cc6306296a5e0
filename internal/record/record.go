package record

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
)

// Raw is one decoded form submission.
// Numbers are kept as json.Number so integer-looking values survive
// untouched until the validator coerces them.
type Raw map[string]any

// Row is a flattened record. Nested objects are joined with "." and a
// nil value marks a field as explicitly empty.
type Row map[string]any

// ErrNotObject is returned when the input is valid JSON but not an object.
var ErrNotObject = errors.New("record is not a JSON object")

// Parse decodes a single JSON object.
func Parse(data []byte) (Raw, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("decode record: trailing data after object")
	}

	obj, ok := v.(map[string]any)
	if !ok {
		return nil, ErrNotObject
	}
	return Raw(obj), nil
}

// Flatten joins nested objects into dot-separated keys.
// Lists are left as values. Keys listed in skip are omitted at the top level.
func Flatten(obj map[string]any, skip ...string) Row {
	row := make(Row, len(obj))
	for k, v := range obj {
		if slices.Contains(skip, k) {
			continue
		}
		flattenInto(row, k, v)
	}
	return row
}

func flattenInto(row Row, prefix string, v any) {
	nested, ok := v.(map[string]any)
	if !ok || len(nested) == 0 {
		row[prefix] = v
		return
	}
	for k, child := range nested {
		flattenInto(row, prefix+"."+k, child)
	}
}

// String returns the value of key rendered as a string.
// Missing and nil values report ok=false.
func (r Row) String(key string) (string, bool) {
	v, present := r[key]
	if !present || v == nil {
		return "", false
	}
	switch val := v.(type) {
	case string:
		return val, true
	case json.Number:
		return val.String(), true
	default:
		return fmt.Sprint(val), true
	}
}

// Has reports whether key is present with a non-nil, non-blank value.
func (r Row) Has(key string) bool {
	s, ok := r.String(key)
	return ok && strings.TrimSpace(s) != ""
}

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Keys returns the row's keys in canonical order.
func (r Row) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeys)
	return keys
}

// Columns returns the sorted union of keys across rows.
func Columns(rows []Row) []string {
	seen := make(map[string]struct{})
	for _, r := range rows {
		for k := range r {
			seen[k] = struct{}{}
		}
	}
	cols := make([]string, 0, len(seen))
	for k := range seen {
		cols = append(cols, k)
	}
	slices.SortFunc(cols, compareKeys)
	return cols
}

// Attempts extracts the list stored under field as objects.
// A missing or null field yields no attempts. Non-object entries are
// reported as an error.
func (r Raw) Attempts(field string) ([]map[string]any, error) {
	v, ok := r[field]
	if !ok || v == nil {
		return nil, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("field %q is %T, not a list", field, v)
	}
	out := make([]map[string]any, 0, len(list))
	for i, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s[%d] is %T, not an object", field, i, item)
		}
		out = append(out, obj)
	}
	return out, nil
}
