package search

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func includeCorpus(t *testing.T) testCorpus {
	return testCorpus{
		mustResource(t, `{"resourceType":"Organization","id":"org"}`),
		mustResource(t, `{"resourceType":"Patient","id":"p1","managingOrganization":{"reference":"Organization/org"}}`),
		mustResource(t, `{"resourceType":"Patient","id":"p2"}`),
		mustResource(t, `{"resourceType":"Medication","id":"m1"}`),
		mustResource(t, `{"resourceType":"Encounter","id":"e1","subject":{"reference":"Patient/p2"}}`),
		mustResource(t, `{"resourceType":"MedicationRequest","id":"mr1","status":"active",
			"subject":{"reference":"Patient/p1"},"medicationReference":{"reference":"Medication/m1"}}`),
		mustResource(t, `{"resourceType":"MedicationRequest","id":"mr2","status":"active",
			"subject":{"reference":"Patient/p1"},"encounter":{"reference":"Encounter/e1"}}`),
		mustResource(t, `{"resourceType":"Observation","id":"o1","subject":{"reference":"Patient/p1"}}`),
		mustResource(t, `{"resourceType":"Observation","id":"o2","subject":{"reference":"Patient/p2"}}`),
	}
}

func TestExpandIncludes(t *testing.T) {
	corpus := includeCorpus(t)
	include := func(raw string, iterate bool) IncludeSpec {
		spec, err := ParseInclude(raw, iterate)
		if err != nil {
			t.Fatalf("ParseInclude(%q): %v", raw, err)
		}
		return spec
	}

	tests := []struct {
		name     string
		req      *Request
		wantPage []string
		wantIncl []string
	}{
		{
			name:     "deduplicated target",
			req:      &Request{ResourceType: "MedicationRequest", Include: []IncludeSpec{include("MedicationRequest:subject", false)}},
			wantPage: []string{"MedicationRequest/mr1", "MedicationRequest/mr2"},
			wantIncl: []string{"Patient/p1"},
		},
		{
			name:     "wildcard param",
			req:      &Request{ResourceType: "MedicationRequest", Include: []IncludeSpec{include("MedicationRequest:*", false)}},
			wantPage: []string{"MedicationRequest/mr1", "MedicationRequest/mr2"},
			wantIncl: []string{"Medication/m1", "Patient/p1", "Encounter/e1"},
		},
		{
			name:     "target type restriction",
			req:      &Request{ResourceType: "MedicationRequest", Include: []IncludeSpec{include("MedicationRequest:*:Medication", false)}},
			wantPage: []string{"MedicationRequest/mr1", "MedicationRequest/mr2"},
			wantIncl: []string{"Medication/m1"},
		},
		{
			name: "only the page is expanded",
			req: &Request{ResourceType: "MedicationRequest", Count: IntPtr(1),
				Include: []IncludeSpec{include("MedicationRequest:medication", false)},
				Sort:    []SortSpec{{Field: "_id", Descending: true}}},
			wantPage: []string{"MedicationRequest/mr2"},
			wantIncl: []string{},
		},
		{
			name:     "first part names the target type",
			req:      &Request{ResourceType: "Observation", Include: []IncludeSpec{include("Patient:subject", false)}},
			wantPage: []string{"Observation/o1", "Observation/o2"},
			wantIncl: []string{"Patient/p1", "Patient/p2"},
		},
		{
			name:     "target type reading drops other types",
			req:      &Request{ResourceType: "Observation", Include: []IncludeSpec{include("Encounter:subject", false)}},
			wantPage: []string{"Observation/o1", "Observation/o2"},
			wantIncl: []string{},
		},
		{
			name:     "revinclude",
			req:      &Request{ResourceType: "Patient", RevInclude: []IncludeSpec{include("Observation:subject", false)}},
			wantPage: []string{"Patient/p1", "Patient/p2"},
			wantIncl: []string{"Observation/o1", "Observation/o2"},
		},
		{
			name: "iterate follows included resources",
			req: &Request{ResourceType: "MedicationRequest", Params: []Parameter{{Name: "_id", Value: "mr2"}},
				Include: []IncludeSpec{include("MedicationRequest:encounter", false), include("Encounter:subject", true)}},
			wantPage: []string{"MedicationRequest/mr2"},
			wantIncl: []string{"Encounter/e1", "Patient/p2"},
		},
		{
			name: "without iterate the second hop is not taken",
			req: &Request{ResourceType: "MedicationRequest", Params: []Parameter{{Name: "_id", Value: "mr2"}},
				Include: []IncludeSpec{include("MedicationRequest:encounter", false), include("Encounter:subject", false)}},
			wantPage: []string{"MedicationRequest/mr2"},
			wantIncl: []string{"Encounter/e1"},
		},
		{
			name: "include then revinclude",
			req: &Request{ResourceType: "Patient",
				RevInclude: []IncludeSpec{include("Encounter:subject", false)},
				Include:    []IncludeSpec{include("Patient:organization", false)}},
			wantPage: []string{"Patient/p1", "Patient/p2"},
			wantIncl: []string{"Organization/org", "Encounter/e1"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := execute(t, NewEngine(), corpus.AllResourcesOfType(tt.req.ResourceType), tt.req, corpus)
			if diff := cmp.Diff(tt.wantPage, resourceKeys(res.Matches)); diff != "" {
				t.Errorf("page mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantIncl, resourceKeys(res.Included)); diff != "" {
				t.Errorf("included mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestExpandIncludes_MissingCollaborators(t *testing.T) {
	corpus := includeCorpus(t)
	req := &Request{
		ResourceType: "MedicationRequest",
		Include:      []IncludeSpec{{Source: "MedicationRequest", Param: "subject"}},
		RevInclude:   []IncludeSpec{{Source: "Provenance", Param: "target"}},
	}
	res, err := NewEngine().Execute(context.Background(), corpus.AllResourcesOfType("MedicationRequest"), req, nil, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(res.Included) != 0 {
		t.Errorf("Included = %v, want none", resourceKeys(res.Included))
	}
	if len(res.Issues) != 2 {
		t.Errorf("Issues = %+v, want one per missing collaborator", res.Issues)
	}
	if len(res.Matches) != 2 {
		t.Errorf("Matches = %d, want 2", len(res.Matches))
	}
}
