package fhir

import (
	"net/url"
	"strings"
)

// ReferenceParts is a parsed reference string. Local references carry
// Type and ID; absolute references also keep the URL they came from.
// Contained references ("#id") set Contained and leave Type empty.
type ReferenceParts struct {
	Type      string
	ID        string
	Version   string
	URL       string
	Contained bool
}

// Key returns "Type/id", or the bare id when the type is unknown.
func (p ReferenceParts) Key() string {
	if p.Type == "" {
		return p.ID
	}
	return p.Type + "/" + p.ID
}

// ParseReference splits a reference string into its type, id and version.
// Absolute URLs contribute their trailing Type/id[/_history/v] segments;
// urn:uuid and urn:oid references carry only an id.
func ParseReference(ref string) (ReferenceParts, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ReferenceParts{}, false
	}
	if strings.HasPrefix(ref, "#") {
		if len(ref) == 1 {
			return ReferenceParts{}, false
		}
		return ReferenceParts{ID: ref[1:], Contained: true}, true
	}
	if strings.HasPrefix(ref, "urn:uuid:") || strings.HasPrefix(ref, "urn:oid:") {
		return ReferenceParts{ID: ref[strings.LastIndex(ref, ":")+1:], URL: ref}, true
	}

	path := ref
	abs := ""
	if u, err := url.Parse(ref); err == nil && u.Scheme != "" && u.Host != "" {
		abs = ref
		path = strings.Trim(u.Path, "/")
	}

	segs := strings.Split(path, "/")
	n := len(segs)
	if abs != "" {
		switch {
		case n >= 4 && segs[n-2] == "_history":
			return ReferenceParts{Type: segs[n-4], ID: segs[n-3], Version: segs[n-1], URL: abs}, true
		case n >= 2:
			return ReferenceParts{Type: segs[n-2], ID: segs[n-1], URL: abs}, true
		}
		return ReferenceParts{}, false
	}
	switch {
	case n == 1 && segs[0] != "":
		return ReferenceParts{ID: segs[0]}, true
	case n == 2 && segs[0] != "" && segs[1] != "":
		return ReferenceParts{Type: segs[0], ID: segs[1]}, true
	case n == 4 && segs[2] == "_history":
		return ReferenceParts{Type: segs[0], ID: segs[1], Version: segs[3]}, true
	}
	return ReferenceParts{}, false
}

// IsReferenceShaped reports whether v is a Reference object, i.e. a complex
// value carrying a string "reference" element.
func IsReferenceShaped(v Value) bool {
	if v.Kind() != KindComplex {
		return false
	}
	_, ok := v.Field("reference").Text()
	return ok
}

// CollectReferences walks v depth-first and returns every reference string
// found in a Reference-shaped object, in document order.
func CollectReferences(v Value) []string {
	var refs []string
	var walk func(Value)
	walk = func(cur Value) {
		switch cur.Kind() {
		case KindList:
			for _, item := range cur.Items() {
				walk(item)
			}
		case KindComplex:
			if ref, ok := cur.Field("reference").Text(); ok && ref != "" {
				refs = append(refs, ref)
			}
			m := cur.Map()
			for _, k := range sortedKeys(m) {
				if k == "reference" {
					continue
				}
				walk(ValueOf(m[k]))
			}
		}
	}
	walk(v)
	return refs
}
