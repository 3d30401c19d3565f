package fhir

import (
	"encoding/json"
	"sort"
	"strconv"
)

// Kind classifies a Value.
type Kind int

const (
	KindAbsent Kind = iota
	KindScalar
	KindComplex
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindComplex:
		return "complex"
	case KindList:
		return "list"
	default:
		return "absent"
	}
}

// Value is a field value read out of a resource. It is one of Absent,
// Scalar (string, json.Number, float64 or bool), Complex (a JSON object)
// or List. The zero Value is Absent.
type Value struct {
	kind Kind
	raw  any
}

// Absent is the value of an unresolvable field.
var Absent = Value{}

// ValueOf classifies a decoded JSON node.
func ValueOf(raw any) Value {
	switch v := raw.(type) {
	case nil:
		return Absent
	case map[string]any:
		return Value{kind: KindComplex, raw: v}
	case []any:
		return Value{kind: KindList, raw: v}
	case string, json.Number, float64, bool, int, int64:
		return Value{kind: KindScalar, raw: v}
	default:
		return Absent
	}
}

func (v Value) Kind() Kind { return v.kind }

// Raw returns the underlying decoded JSON node.
func (v Value) Raw() any { return v.raw }

func (v Value) IsAbsent() bool { return v.kind == KindAbsent }

// IsEmpty reports whether the value is absent or an empty list.
func (v Value) IsEmpty() bool {
	switch v.kind {
	case KindAbsent:
		return true
	case KindList:
		return len(v.raw.([]any)) == 0
	}
	return false
}

// Items returns the elements of a list, or the value itself as a single
// element. Absent yields nil.
func (v Value) Items() []Value {
	switch v.kind {
	case KindAbsent:
		return nil
	case KindList:
		arr := v.raw.([]any)
		out := make([]Value, 0, len(arr))
		for _, e := range arr {
			if ev := ValueOf(e); !ev.IsAbsent() {
				out = append(out, ev)
			}
		}
		return out
	}
	return []Value{v}
}

// Field returns a child of a complex value. Anything else yields Absent.
func (v Value) Field(name string) Value {
	if v.kind != KindComplex {
		return Absent
	}
	return ValueOf(v.raw.(map[string]any)[name])
}

// Map returns the object of a complex value, or nil.
func (v Value) Map() map[string]any {
	if v.kind != KindComplex {
		return nil
	}
	return v.raw.(map[string]any)
}

// Text returns the string form of a scalar.
func (v Value) Text() (string, bool) {
	if v.kind != KindScalar {
		return "", false
	}
	switch s := v.raw.(type) {
	case string:
		return s, true
	case json.Number:
		return s.String(), true
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	case int:
		return strconv.Itoa(s), true
	case int64:
		return strconv.FormatInt(s, 10), true
	case bool:
		return strconv.FormatBool(s), true
	}
	return "", false
}

// FieldText is shorthand for v.Field(name).Text() returning "" when absent.
func (v Value) FieldText(name string) string {
	s, _ := v.Field(name).Text()
	return s
}

// Leaves returns the string form of every scalar reachable from v, in a
// deterministic order (object keys sorted).
func (v Value) Leaves() []string {
	var out []string
	v.walk(func(s string) { out = append(out, s) })
	return out
}

func (v Value) walk(fn func(string)) {
	switch v.kind {
	case KindScalar:
		s, _ := v.Text()
		fn(s)
	case KindList:
		for _, item := range v.Items() {
			item.walk(fn)
		}
	case KindComplex:
		m := v.Map()
		for _, k := range sortedKeys(m) {
			ValueOf(m[k]).walk(fn)
		}
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MarshalJSON renders the underlying node; Absent renders as null.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.raw)
}
