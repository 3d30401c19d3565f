package fhir

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidResource is returned when a document has no resourceType.
var ErrInvalidResource = errors.New("fhir: invalid resource")

// ErrCapabilityUnavailable marks a collaborator (terminology, reference
// resolution, expression evaluation) that is not configured or not reachable.
var ErrCapabilityUnavailable = errors.New("fhir: capability unavailable")

// Resource is an immutable FHIR resource held as its decoded JSON tree.
// Numbers are kept as json.Number so decimal precision survives matching.
// Callers must not mutate the map returned by Data.
type Resource struct {
	data map[string]any
	typ  string
	id   string
}

// NewResource wraps an already decoded resource document.
func NewResource(data map[string]any) (*Resource, error) {
	typ, _ := data["resourceType"].(string)
	if typ == "" {
		return nil, fmt.Errorf("%w: missing resourceType", ErrInvalidResource)
	}
	id, _ := data["id"].(string)
	return &Resource{data: data, typ: typ, id: id}, nil
}

// MustResource is NewResource for fixtures; it panics on invalid input.
func MustResource(data map[string]any) *Resource {
	r, err := NewResource(data)
	if err != nil {
		panic(err)
	}
	return r
}

// ParseResource decodes a JSON document into a Resource.
func ParseResource(b []byte) (*Resource, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var data map[string]any
	if err := dec.Decode(&data); err != nil {
		return nil, fmt.Errorf("decode resource: %w", err)
	}
	return NewResource(data)
}

func (r *Resource) Type() string { return r.typ }
func (r *Resource) ID() string   { return r.id }

// Key returns the "Type/id" identity used for deduplication.
func (r *Resource) Key() string { return r.typ + "/" + r.id }

// Data returns the underlying document. It is shared, not copied.
func (r *Resource) Data() map[string]any { return r.data }

// Root returns the whole resource as a complex Value.
func (r *Resource) Root() Value { return Value{kind: KindComplex, raw: r.data} }

// Get returns a top-level field.
func (r *Resource) Get(field string) Value { return ValueOf(r.data[field]) }

// Contained returns the contained resource with the given local id.
func (r *Resource) Contained(localID string) (*Resource, bool) {
	localID = strings.TrimPrefix(localID, "#")
	for _, item := range r.Get("contained").Items() {
		if item.FieldText("id") != localID {
			continue
		}
		c, err := NewResource(item.Map())
		if err != nil {
			return nil, false
		}
		return c, true
	}
	return nil, false
}

// Clone returns a deep copy of the document, safe to modify.
func (r *Resource) Clone() map[string]any {
	return deepCopy(r.data).(map[string]any)
}

func (r *Resource) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.data)
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = deepCopy(e)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, e := range t {
			s[i] = deepCopy(e)
		}
		return s
	default:
		return v
	}
}

type Coding struct {
	System  string `json:"system,omitempty"`
	Code    string `json:"code,omitempty"`
	Display string `json:"display,omitempty"`
}

type CodeableConcept struct {
	Coding []Coding `json:"coding,omitempty"`
	Text   string   `json:"text,omitempty"`
}
