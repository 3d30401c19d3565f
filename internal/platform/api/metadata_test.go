package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"
	"time"

	"github.com/DNAi-inc/DNHealth-sub001/internal/platform/search"
)

func TestBuildCapabilityStatement(t *testing.T) {
	cs := buildCapabilityStatement(search.NewEngine(), time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))
	if cs.ResourceType != "CapabilityStatement" || cs.FHIRVersion != fhirVersion || cs.Date != "2024-01-02T03:04:05Z" {
		t.Fatalf("header = %+v", cs)
	}
	var patient *capabilityResource
	for i := range cs.Rest[0].Resource {
		if cs.Rest[0].Resource[i].Type == "Patient" {
			patient = &cs.Rest[0].Resource[i]
		}
	}
	if patient == nil {
		t.Fatal("Patient missing from CapabilityStatement")
	}
	var names []string
	for _, p := range patient.SearchParam {
		names = append(names, p.Name)
	}
	for _, want := range []string{"_id", "birthdate", "name"} {
		if !slices.Contains(names, want) {
			t.Errorf("Patient searchParam missing %s", want)
		}
	}
	if !slices.Contains(patient.SearchRevInclude, "Observation:subject") {
		t.Errorf("Patient searchRevInclude = %v", patient.SearchRevInclude)
	}
	if !slices.Contains(patient.SearchInclude, "Patient:organization") {
		t.Errorf("Patient searchInclude = %v", patient.SearchInclude)
	}
}

func TestMetadataAndCapabilitiesRoutes(t *testing.T) {
	e := newTestServer(Config{})

	rec := do(t, e, httptest.NewRequest(http.MethodGet, "/fhir/metadata", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metadata status = %d", rec.Code)
	}
	var cs struct {
		ResourceType string `json:"resourceType"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &cs); err != nil || cs.ResourceType != "CapabilityStatement" {
		t.Errorf("metadata body = %s", rec.Body.String())
	}

	rec = do(t, e, httptest.NewRequest(http.MethodGet, "/fhir/_capabilities", nil))
	var caps []search.Capability
	if err := json.Unmarshal(rec.Body.Bytes(), &caps); err != nil {
		t.Fatalf("decode capabilities: %v", err)
	}
	for _, c := range caps {
		if c.Feature == "token:in" && c.Support != search.SupportUnavailable {
			t.Errorf("token:in = %s without a terminology service", c.Support)
		}
	}
}
