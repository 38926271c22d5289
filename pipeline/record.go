package pipeline

import (
	"bytes"
	"encoding/json"
	"sort"
	"time"
)

// Record is one row of tabular data: an ordered mapping from field name to
// a scalar value.
//
// Field order is the order in which fields were first set. Reading a field
// that is not present returns nil; records in one table share no schema.
type Record struct {
	fields []string
	values map[string]any
}

// Table is an ordered sequence of records.
type Table []*Record

// NewRecord creates an empty record.
func NewRecord() *Record {
	return &Record{values: make(map[string]any)}
}

// RecordOf builds a record from alternating field/value pairs.
//
//	rec := RecordOf("Airline", "SQ", "ArrDelay", int64(12))
//
// It panics if a field name is not a string or the pair list is odd, which
// makes it suitable for literals in tests and fixtures only.
func RecordOf(pairs ...any) *Record {
	if len(pairs)%2 != 0 {
		panic("pipeline: RecordOf requires field/value pairs")
	}
	r := &Record{
		fields: make([]string, 0, len(pairs)/2),
		values: make(map[string]any, len(pairs)/2),
	}
	for i := 0; i < len(pairs); i += 2 {
		name, ok := pairs[i].(string)
		if !ok {
			panic("pipeline: RecordOf field names must be strings")
		}
		r.Set(name, pairs[i+1])
	}
	return r
}

// FromMap builds a record from a map. Since maps are unordered, fields are
// added in sorted order so the result is deterministic.
func FromMap(m map[string]any) *Record {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	r := &Record{
		fields: make([]string, 0, len(m)),
		values: make(map[string]any, len(m)),
	}
	for _, name := range names {
		r.Set(name, m[name])
	}
	return r
}

// TableFromMaps converts rows shaped like the parquet reader output into a
// table.
func TableFromMaps(rows []map[string]any) Table {
	t := make(Table, len(rows))
	for i, row := range rows {
		t[i] = FromMap(row)
	}
	return t
}

// Get returns the value of a field, or nil when the field is absent.
func (r *Record) Get(name string) any {
	if r == nil {
		return nil
	}
	return r.values[name]
}

// Lookup returns the value of a field and whether it is present.
func (r *Record) Lookup(name string) (any, bool) {
	if r == nil {
		return nil, false
	}
	v, ok := r.values[name]
	return v, ok
}

// Has reports whether the field is present (it may still hold nil).
func (r *Record) Has(name string) bool {
	_, ok := r.Lookup(name)
	return ok
}

// Set assigns a field. New fields are appended to the field order; existing
// fields keep their position.
func (r *Record) Set(name string, value any) {
	if r.values == nil {
		r.values = make(map[string]any)
	}
	if _, exists := r.values[name]; !exists {
		r.fields = append(r.fields, name)
	}
	r.values[name] = normalize(value)
}

// Delete removes a field if present.
func (r *Record) Delete(name string) {
	if _, exists := r.values[name]; !exists {
		return
	}
	delete(r.values, name)
	for i, f := range r.fields {
		if f == name {
			r.fields = append(r.fields[:i:i], r.fields[i+1:]...)
			break
		}
	}
}

// Fields returns the field names in order. The returned slice is a copy.
func (r *Record) Fields() []string {
	if r == nil {
		return nil
	}
	out := make([]string, len(r.fields))
	copy(out, r.fields)
	return out
}

// Len returns the number of fields.
func (r *Record) Len() int {
	if r == nil {
		return 0
	}
	return len(r.fields)
}

// Clone returns a copy that can be modified without affecting r.
func (r *Record) Clone() *Record {
	c := &Record{
		fields: make([]string, len(r.fields)),
		values: make(map[string]any, len(r.values)),
	}
	copy(c.fields, r.fields)
	for k, v := range r.values {
		c.values[k] = v
	}
	return c
}

// Map returns the record as a plain map.
func (r *Record) Map() map[string]any {
	m := make(map[string]any, len(r.fields))
	for _, f := range r.fields {
		m[f] = r.values[f]
	}
	return m
}

// MarshalJSON encodes the record as a JSON object with fields in order.
// Dates are encoded as RFC 3339 strings.
func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')

		v := r.values[f]
		if t, ok := v.(time.Time); ok {
			v = t.Format(time.RFC3339)
		}
		val, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Fields returns every field name seen across the table, in first-seen
// order.
func (t Table) Fields() []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range t {
		for _, f := range r.fields {
			if !seen[f] {
				seen[f] = true
				out = append(out, f)
			}
		}
	}
	return out
}

// Maps converts the table into plain maps.
func (t Table) Maps() []map[string]any {
	out := make([]map[string]any, len(t))
	for i, r := range t {
		out[i] = r.Map()
	}
	return out
}
