package matching

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FieldName identifies one of the recognized document fields
type FieldName string

const (
	FieldVendor   FieldName = "vendor"
	FieldDate     FieldName = "date"
	FieldTotal    FieldName = "total"
	FieldCurrency FieldName = "currency"
	FieldOrderID  FieldName = "order_id"
)

var fieldOrder = []FieldName{FieldVendor, FieldDate, FieldTotal, FieldCurrency, FieldOrderID}

// Fields returns the recognized field names in comparison order
func Fields() []FieldName {
	out := make([]FieldName, len(fieldOrder))
	copy(out, fieldOrder)
	return out
}

// ParseFieldName maps a loosely formatted name ("Order ID", "order-id") to a FieldName
func ParseFieldName(s string) (FieldName, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	switch s {
	case "po_number", "invoice_number", "order_number":
		return FieldOrderID, true
	}
	for _, f := range fieldOrder {
		if string(f) == s {
			return f, true
		}
	}
	return "", false
}

// FieldValue is a single value extracted from a document
type FieldValue struct {
	Name    FieldName `json:"name"`
	RawText string    `json:"raw_text,omitempty"`
	Present bool      `json:"present"`
}

// Found builds a present FieldValue
func Found(name FieldName, raw string) FieldValue {
	return FieldValue{Name: name, RawText: raw, Present: true}
}

// Absent builds a FieldValue for which extraction found no candidate
func Absent(name FieldName) FieldValue {
	return FieldValue{Name: name}
}

// usable reports whether the value carries text worth normalizing
func (v FieldValue) usable() bool {
	return v.Present && strings.TrimSpace(v.RawText) != ""
}

// Record holds the fields extracted from one document. It is built once and
// never modified afterwards.
type Record struct {
	values []FieldValue
	index  map[FieldName]int
}

// NewRecord builds a record from the given values. Unrecognized field names are
// dropped, later duplicates replace earlier ones, and recognized fields that
// were not supplied are recorded as absent.
func NewRecord(values ...FieldValue) Record {
	byName := make(map[FieldName]FieldValue, len(values))
	for _, v := range values {
		name, ok := ParseFieldName(string(v.Name))
		if !ok {
			continue
		}
		v.Name = name
		byName[name] = v
	}

	r := Record{
		values: make([]FieldValue, 0, len(fieldOrder)),
		index:  make(map[FieldName]int, len(fieldOrder)),
	}
	for _, name := range fieldOrder {
		v, ok := byName[name]
		if !ok {
			v = Absent(name)
		}
		r.index[name] = len(r.values)
		r.values = append(r.values, v)
	}
	return r
}

// Get returns the value for a field; the bool is false when the field is unknown
func (r Record) Get(name FieldName) (FieldValue, bool) {
	i, ok := r.index[name]
	if !ok {
		return Absent(name), false
	}
	return r.values[i], true
}

// Raw returns the raw text of a present field, or ""
func (r Record) Raw(name FieldName) string {
	v, _ := r.Get(name)
	if !v.Present {
		return ""
	}
	return v.RawText
}

// Values returns a copy of the record's values in field order
func (r Record) Values() []FieldValue {
	out := make([]FieldValue, len(r.values))
	copy(out, r.values)
	return out
}

// Missing lists the fields without a usable value
func (r Record) Missing() []FieldName {
	var out []FieldName
	for _, v := range r.values {
		if !v.usable() {
			out = append(out, v.Name)
		}
	}
	return out
}

// With returns a new record where the given values replace existing ones
func (r Record) With(values ...FieldValue) Record {
	return NewRecord(append(r.Values(), values...)...)
}

func (r Record) MarshalJSON() ([]byte, error) {
	if r.values == nil {
		return json.Marshal(NewRecord().values)
	}
	return json.Marshal(r.values)
}

func (r *Record) UnmarshalJSON(data []byte) error {
	var values []FieldValue
	if err := json.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("unmarshaling record: %w", err)
	}
	*r = NewRecord(values...)
	return nil
}
