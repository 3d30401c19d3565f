package fhir

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func projectionPatient() *Resource {
	return MustResource(map[string]any{
		"resourceType": "Patient",
		"id":           "123",
		"meta":         map[string]any{"versionId": "1"},
		"text":         map[string]any{"status": "generated", "div": "<div/>"},
		"name":         []any{map[string]any{"family": "Doe"}},
		"gender":       "male",
		"contact":      []any{map[string]any{"relationship": "x"}},
	})
}

func keysOf(r *Resource) []string {
	return sortedKeys(r.Data())
}

func TestProjection_Apply(t *testing.T) {
	tests := []struct {
		name string
		p    Projection
		want []string
	}{
		{"elements", Projection{Elements: []string{"gender", " name "}}, []string{"gender", "id", "meta", "name", "resourceType"}},
		{"elements beat summary", Projection{Summary: SummaryText, Elements: []string{"gender"}}, []string{"gender", "id", "meta", "resourceType"}},
		{"summary true", Projection{Summary: SummaryTrue}, []string{"gender", "id", "meta", "name", "resourceType"}},
		{"summary text", Projection{Summary: SummaryText}, []string{"id", "meta", "resourceType", "text"}},
		{"summary data", Projection{Summary: SummaryData}, []string{"contact", "gender", "id", "meta", "name", "resourceType"}},
		{"summary false", Projection{Summary: SummaryFalse}, []string{"contact", "gender", "id", "meta", "name", "resourceType", "text"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.p.Apply(projectionPatient())
			if diff := cmp.Diff(tt.want, keysOf(got)); diff != "" {
				t.Errorf("elements mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestProjection_SubsettedTag(t *testing.T) {
	src := projectionPatient()
	out := Projection{Elements: []string{"gender"}}.Apply(src)

	tags := out.Get("meta").Field("tag").Items()
	if len(tags) != 1 || tags[0].FieldText("code") != "SUBSETTED" || tags[0].FieldText("system") != SubsettedSystem {
		t.Errorf("meta.tag = %v, want one SUBSETTED tag", out.Get("meta").Field("tag").Raw())
	}
	if !src.Get("meta").Field("tag").IsAbsent() {
		t.Error("source meta was modified")
	}
	if diff := cmp.Diff(keysOf(projectionPatient()), keysOf(src)); diff != "" {
		t.Errorf("source elements changed (-want +got):\n%s", diff)
	}
}

func TestProjection_IsZero(t *testing.T) {
	if !(Projection{}).IsZero() || !(Projection{Summary: SummaryFalse}).IsZero() {
		t.Error("empty and _summary=false projections should be zero")
	}
	if (Projection{Summary: SummaryTrue}).IsZero() || (Projection{Elements: []string{"id"}}).IsZero() {
		t.Error("reducing projections should not be zero")
	}
}

func TestParseSummaryMode(t *testing.T) {
	for _, in := range []string{"", "true", "false", "text", "data", "count"} {
		if _, err := ParseSummaryMode(in); err != nil {
			t.Errorf("ParseSummaryMode(%q): %v", in, err)
		}
	}
	if _, err := ParseSummaryMode("yes"); err == nil {
		t.Error("ParseSummaryMode(yes) should fail")
	}
}
