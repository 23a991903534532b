package record

import (
	"math"
	"reflect"
	"sort"
	"time"

	"github.com/spf13/cast"
)

// DateTimeLayout is the textual form used when a timestamp is shown to a
// person. Records keep timestamps as time.Time.
const DateTimeLayout = "2006-01-02 15:04:05"

// Record is a named-attribute container. Field names are case-sensitive and
// always use the underscored column form (e.g. "entity_id").
// A Record performs no validation; it only stores values.
type Record struct {
	data map[string]any
}

// New returns a Record holding a copy of data.
func New(data map[string]any) *Record {
	return &Record{data: Clone(data)}
}

// Get returns the value stored under name and whether the field exists.
func (r *Record) Get(name string) (any, bool) {
	v, ok := r.data[name]
	return v, ok
}

// Set stores a single field.
func (r *Record) Set(name string, value any) *Record {
	if r.data == nil {
		r.data = make(map[string]any)
	}
	r.data[name] = Normalize(value)
	return r
}

// Replace swaps the whole field set for data in one step.
func (r *Record) Replace(data map[string]any) *Record {
	next := make(map[string]any, len(data))
	for k, v := range data {
		next[k] = Normalize(v)
	}
	r.data = next
	return r
}

// Unset removes a field. Removing an absent field is a no-op.
func (r *Record) Unset(name string) *Record {
	delete(r.data, name)
	return r
}

// Has reports whether name is present with a non-nil value.
func (r *Record) Has(name string) bool {
	v, ok := r.data[name]
	return ok && v != nil
}

// Len returns the number of fields, nil-valued ones included.
func (r *Record) Len() int {
	return len(r.data)
}

// Keys returns the field names in lexical order.
func (r *Record) Keys() []string {
	keys := make([]string, 0, len(r.data))
	for k := range r.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ToMap returns a copy of the stored fields.
func (r *Record) ToMap() map[string]any {
	return Clone(r.data)
}

// String reads name as a string; absent or nil yields "".
func (r *Record) String(name string) string {
	v, ok := r.data[name]
	if !ok || v == nil {
		return ""
	}
	return cast.ToString(v)
}

// StringPtr reads a nullable string field.
func (r *Record) StringPtr(name string) *string {
	v, ok := r.data[name]
	if !ok || v == nil {
		return nil
	}
	s := cast.ToString(v)
	return &s
}

// Int64 reads name as an integer. The bool is false when the field is
// absent, nil or not convertible.
func (r *Record) Int64(name string) (int64, bool) {
	v, ok := r.data[name]
	if !ok || v == nil {
		return 0, false
	}
	i, err := cast.ToInt64E(v)
	if err != nil {
		return 0, false
	}
	return i, true
}

// Time reads name as a timestamp. Stored time.Time values come back with
// their location and precision intact; strings are parsed as UTC.
func (r *Record) Time(name string) (time.Time, bool) {
	v, ok := r.data[name]
	if !ok || v == nil {
		return time.Time{}, false
	}
	return toTime(v)
}

func toTime(v any) (time.Time, bool) {
	if t, ok := v.(time.Time); ok {
		return t, true
	}
	t, err := cast.ToTimeE(v)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Normalize converts driver and caller values into the value set a Record
// holds: nil, int64, uint64, float64, string, bool, time.Time and nested
// map[string]any. Unsigned values above math.MaxInt64 stay uint64.
func Normalize(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case []byte:
		return string(t)
	case time.Time:
		return t
	case *time.Time:
		if t == nil {
			return nil
		}
		return *t
	case *string:
		if t == nil {
			return nil
		}
		return *t
	case int:
		return int64(t)
	case int8:
		return int64(t)
	case int16:
		return int64(t)
	case int32:
		return int64(t)
	case uint:
		return fromUint64(uint64(t))
	case uint8:
		return int64(t)
	case uint16:
		return int64(t)
	case uint32:
		return int64(t)
	case uint64:
		return fromUint64(t)
	case float32:
		return float64(t)
	case map[string]any:
		return Clone(t)
	default:
		return v
	}
}

func fromUint64(u uint64) any {
	if u > math.MaxInt64 {
		return u
	}
	return int64(u)
}

// Clone copies m, descending into nested maps.
func Clone(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if nested, ok := v.(map[string]any); ok {
			out[k] = Clone(nested)
			continue
		}
		out[k] = v
	}
	return out
}

// Equal compares two field values the way change detection needs: scalars
// are equal when their string forms match, so 5 and "5" are the same value.
// Timestamps are equal when they denote the same instant.
func Equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	_, aIsTime := a.(time.Time)
	_, bIsTime := b.(time.Time)
	if aIsTime || bIsTime {
		at, aok := toTime(a)
		bt, bok := toTime(b)
		return aok && bok && at.Equal(bt)
	}
	am, aIsMap := a.(map[string]any)
	bm, bIsMap := b.(map[string]any)
	if aIsMap || bIsMap {
		return aIsMap && bIsMap && reflect.DeepEqual(am, bm)
	}
	return cast.ToString(a) == cast.ToString(b)
}

// Diff returns the fields of current whose value is absent from or differs
// from orig. Fields present only in orig are not reported.
func Diff(current, orig map[string]any) map[string]any {
	out := make(map[string]any)
	for k, v := range current {
		ov, ok := orig[k]
		if ok && Equal(v, ov) {
			continue
		}
		out[k] = v
	}
	return out
}
