package rates

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// RawRow is one decoded spreadsheet row: header name to scalar value.
//
// Values are string, float64 or bool. Key order is the order in which
// headers were first set, which is what the column list is built from.
// The zero value is an empty row ready for Set.
type RawRow struct {
	keys   []string
	values map[string]any
}

// RowOf builds a row from alternating key/value arguments.
// Panics if a key is not a string or the argument count is odd.
func RowOf(kv ...any) RawRow {
	if len(kv)%2 != 0 {
		panic("rates.RowOf: odd number of arguments")
	}
	var r RawRow
	for i := 0; i < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			panic(fmt.Sprintf("rates.RowOf: key %v is not a string", kv[i]))
		}
		r.Set(key, kv[i+1])
	}
	return r
}

// Set assigns a value, appending the key if it is new.
func (r *RawRow) Set(key string, value any) {
	if r.values == nil {
		r.values = make(map[string]any)
	}
	if _, exists := r.values[key]; !exists {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
}

// Get returns the value for key and whether it was present.
func (r RawRow) Get(key string) (any, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Keys returns the header names in first-appearance order.
func (r RawRow) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Len returns the number of fields.
func (r RawRow) Len() int {
	return len(r.keys)
}

// MarshalJSON writes the row as a JSON object in key order.
func (r RawRow) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(r.values[k])
		if err != nil {
			return nil, fmt.Errorf("marshal field %q: %w", k, err)
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object, keeping key order.
func (r *RawRow) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("raw row: expected object, got %v", tok)
	}

	var row RawRow
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("raw row: expected key, got %v", tok)
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("raw row: field %q: %w", key, err)
		}
		row.Set(key, value)
	}

	if _, err := dec.Token(); err != nil {
		return err
	}

	*r = row
	return nil
}
