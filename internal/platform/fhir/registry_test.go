package fhir

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRegistry_Lookup(t *testing.T) {
	r := DefaultRegistry()

	d, ok := r.Lookup("Patient", "birthdate")
	if !ok || d.Type != SearchParamDate || d.Path != "birthDate" {
		t.Errorf("Lookup(Patient, birthdate) = %+v, %v", d, ok)
	}
	d, ok = r.Lookup("Observation", "_lastUpdated")
	if !ok || d.Path != "meta.lastUpdated" {
		t.Errorf("common parameter not found: %+v, %v", d, ok)
	}
	if _, ok := r.Lookup("Patient", "nope"); ok {
		t.Error("Lookup(Patient, nope) should fail")
	}
}

func TestRegistry_FieldPath(t *testing.T) {
	r := DefaultRegistry()
	tests := []struct {
		rt, name, want string
	}{
		{"Patient", "family", "name.family"},
		{"Condition", "clinical-status", "clinicalStatus"},
		{"Basic", "created-by", "createdBy"},
		{"Basic", "author.display-name", "author.displayName"},
		{"Basic", "subject", "subject"},
	}
	for _, tt := range tests {
		t.Run(tt.rt+"."+tt.name, func(t *testing.T) {
			if got := r.FieldPath(tt.rt, tt.name); got != tt.want {
				t.Errorf("FieldPath = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRegistry_ReferenceParams(t *testing.T) {
	r := NewRegistry()
	r.Register("Encounter",
		ref("subject", "subject", "Patient"),
		tok("status", "status"),
		ref("service-provider", "serviceProvider", "Organization"),
		ref("location", "location.location", "Location"),
	)
	var names []string
	for _, d := range r.ReferenceParams("Encounter") {
		names = append(names, d.Name)
	}
	want := []string{"location", "service-provider", "subject"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("ReferenceParams mismatch (-want +got):\n%s", diff)
	}
}

func TestRegistry_RegisterReplaces(t *testing.T) {
	r := NewRegistry()
	r.Register("Patient", str("name", "name"))
	r.Register("Patient", tok("name", "name.text"))

	d, _ := r.Lookup("Patient", "name")
	if d.Type != SearchParamToken || d.Path != "name.text" {
		t.Errorf("Lookup after replace = %+v", d)
	}
	if diff := cmp.Diff([]string{"Patient"}, r.ResourceTypes()); diff != "" {
		t.Errorf("ResourceTypes mismatch (-want +got):\n%s", diff)
	}
}

func TestDefaultRegistry_Composites(t *testing.T) {
	d, ok := DefaultRegistry().Lookup("Observation", "component-code-value-quantity")
	if !ok {
		t.Fatal("component-code-value-quantity not registered")
	}
	if d.Type != SearchParamComposite || len(d.Components) != 2 {
		t.Fatalf("unexpected definition %+v", d)
	}
	if diff := cmp.Diff([]string{"component"}, d.Bases); diff != "" {
		t.Errorf("Bases mismatch (-want +got):\n%s", diff)
	}
}

func TestSearchParamType_String(t *testing.T) {
	if SearchParamQuantity.String() != "quantity" || SearchParamType(99).String() != "string" {
		t.Errorf("unexpected names %q, %q", SearchParamQuantity, SearchParamType(99))
	}
}
