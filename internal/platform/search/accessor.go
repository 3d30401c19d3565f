package search

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/DNAi-inc/DNHealth-sub001/internal/platform/fhir"
)

// Access resolves a dotted element path against a resource.
func Access(r *fhir.Resource, path string) fhir.Value {
	return AccessValue(r.Root(), path)
}

// AccessValue walks path one segment at a time. A list met before the last
// segment is entered through its first element; the value at the last
// segment is returned as it is, so a final list stays a list for the
// matchers to iterate. Any unresolvable segment yields fhir.Absent.
func AccessValue(v fhir.Value, path string) fhir.Value {
	if path == "" {
		return v
	}
	cur := v
	for _, seg := range strings.Split(path, ".") {
		if cur.Kind() == fhir.KindList {
			items := cur.Items()
			if len(items) == 0 {
				return fhir.Absent
			}
			cur = items[0]
		}
		cur = child(cur, seg)
		if cur.IsAbsent() {
			return fhir.Absent
		}
	}
	return cur
}

// child reads one element. A choice element named without its type suffix
// ("value", "effective") resolves to the first present typed variant.
func child(v fhir.Value, name string) fhir.Value {
	if f := v.Field(name); !f.IsAbsent() {
		return f
	}
	m := v.Map()
	if m == nil {
		return fhir.Absent
	}
	for _, k := range choiceKeys(m, name) {
		if f := v.Field(k); !f.IsAbsent() {
			return f
		}
	}
	return fhir.Absent
}

func choiceKeys(m map[string]any, name string) []string {
	var keys []string
	for k := range m {
		if len(k) <= len(name) || !strings.HasPrefix(k, name) {
			continue
		}
		r, _ := utf8.DecodeRuneInString(k[len(name):])
		if unicode.IsUpper(r) {
			keys = append(keys, k)
		}
	}
	if len(keys) > 1 {
		sort.Strings(keys)
	}
	return keys
}
