package orm

import (
	"time"

	"github.com/shopspring/decimal"
)

// Record is one materialized row of a model: its id plus the field
// values the model's Browse chose to load. Values are read-only once
// built; writes go through model methods, not through Record.
type Record struct {
	model  string
	id     int64
	fields map[string]any
}

// NewRecord builds a record for model with the given id and fields.
// Models call this from Browse; nothing else should need to.
func NewRecord(model string, id int64, fields map[string]any) *Record {
	if fields == nil {
		fields = map[string]any{}
	}

	return &Record{model: model, id: id, fields: fields}
}

// Model returns the dotted model name, e.g. "res.user".
func (r *Record) Model() string {
	return r.model
}

// ID returns the record id.
func (r *Record) ID() int64 {
	return r.id
}

// Get returns the raw field value, or nil when the field was not loaded.
func (r *Record) Get(name string) any {
	if r == nil {
		return nil
	}

	return r.fields[name]
}

// Has reports whether the field was loaded, regardless of its value.
func (r *Record) Has(name string) bool {
	if r == nil {
		return false
	}
	_, ok := r.fields[name]

	return ok
}

// String returns the field as a string, or "" when absent or not a
// string. The typed getters below all follow that zero-value contract,
// and a nil record reads as a record with no fields.
func (r *Record) String(name string) string {
	v, _ := r.Get(name).(string)

	return v
}

func (r *Record) Int(name string) int64 {
	v, _ := r.Get(name).(int64)

	return v
}

func (r *Record) Bool(name string) bool {
	v, _ := r.Get(name).(bool)

	return v
}

func (r *Record) Decimal(name string) decimal.Decimal {
	v, _ := r.Get(name).(decimal.Decimal)

	return v
}

func (r *Record) Time(name string) time.Time {
	v, _ := r.Get(name).(time.Time)

	return v
}

// Fields returns a copy of the loaded fields, mostly for serializing a
// record into a response payload.
func (r *Record) Fields() map[string]any {
	if r == nil {
		return map[string]any{}
	}

	out := make(map[string]any, len(r.fields))
	for k, v := range r.fields {
		out[k] = v
	}

	return out
}
