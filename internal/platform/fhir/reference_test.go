package fhir

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseReference(t *testing.T) {
	tests := []struct {
		ref  string
		want ReferenceParts
		ok   bool
	}{
		{"Patient/123", ReferenceParts{Type: "Patient", ID: "123"}, true},
		{"123", ReferenceParts{ID: "123"}, true},
		{"Patient/123/_history/4", ReferenceParts{Type: "Patient", ID: "123", Version: "4"}, true},
		{"#contained", ReferenceParts{ID: "contained", Contained: true}, true},
		{"http://example.org/fhir/Patient/9",
			ReferenceParts{Type: "Patient", ID: "9", URL: "http://example.org/fhir/Patient/9"}, true},
		{"https://example.org/fhir/Observation/o/_history/2",
			ReferenceParts{Type: "Observation", ID: "o", Version: "2", URL: "https://example.org/fhir/Observation/o/_history/2"}, true},
		{"urn:uuid:5e3f-11", ReferenceParts{ID: "5e3f-11", URL: "urn:uuid:5e3f-11"}, true},
		{"", ReferenceParts{}, false},
		{"#", ReferenceParts{}, false},
		{"a/b/c", ReferenceParts{}, false},
		{"Patient/", ReferenceParts{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			got, ok := ParseReference(tt.ref)
			if ok != tt.ok {
				t.Fatalf("ParseReference(%q) ok = %v, want %v", tt.ref, ok, tt.ok)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseReference(%q) mismatch (-want +got):\n%s", tt.ref, diff)
			}
		})
	}
}

func TestCollectReferences(t *testing.T) {
	r := MustResource(map[string]any{
		"resourceType": "Encounter",
		"id":           "e1",
		"subject":      map[string]any{"reference": "Patient/1"},
		"participant": []any{
			map[string]any{"individual": map[string]any{"reference": "Practitioner/2"}},
			map[string]any{"individual": map[string]any{"display": "no reference"}},
		},
		"serviceProvider": map[string]any{"reference": "Organization/3"},
	})
	want := []string{"Practitioner/2", "Organization/3", "Patient/1"}
	if diff := cmp.Diff(want, CollectReferences(r.Root())); diff != "" {
		t.Errorf("CollectReferences mismatch (-want +got):\n%s", diff)
	}
}

func TestIsReferenceShaped(t *testing.T) {
	if !IsReferenceShaped(ValueOf(map[string]any{"reference": "Patient/1"})) {
		t.Error("Reference object not recognised")
	}
	if IsReferenceShaped(ValueOf(map[string]any{"display": "x"})) {
		t.Error("object without reference recognised")
	}
	if IsReferenceShaped(ValueOf("Patient/1")) {
		t.Error("plain string recognised")
	}
}
