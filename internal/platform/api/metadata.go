package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/DNAi-inc/DNHealth-sub001/internal/platform/fhir"
	"github.com/DNAi-inc/DNHealth-sub001/internal/platform/search"
)

const fhirVersion = "4.0.1"

type capabilityStatement struct {
	ResourceType string           `json:"resourceType"`
	Status       string           `json:"status"`
	Date         string           `json:"date"`
	Kind         string           `json:"kind"`
	FHIRVersion  string           `json:"fhirVersion"`
	Format       []string         `json:"format"`
	Rest         []capabilityRest `json:"rest"`
}

type capabilityRest struct {
	Mode     string               `json:"mode"`
	Resource []capabilityResource `json:"resource"`
}

type capabilityResource struct {
	Type             string                `json:"type"`
	Interaction      []capabilityCode      `json:"interaction"`
	SearchInclude    []string              `json:"searchInclude,omitempty"`
	SearchRevInclude []string              `json:"searchRevInclude,omitempty"`
	SearchParam      []capabilitySearchArg `json:"searchParam,omitempty"`
}

type capabilityCode struct {
	Code string `json:"code"`
}

type capabilitySearchArg struct {
	Name          string `json:"name"`
	Type          string `json:"type"`
	Documentation string `json:"documentation,omitempty"`
}

// Metadata serves a read-only CapabilityStatement built from the registry.
func (h *Handler) Metadata(c echo.Context) error {
	return writeFHIR(c, http.StatusOK, buildCapabilityStatement(h.engine, time.Now()))
}

func buildCapabilityStatement(engine *search.Engine, now time.Time) capabilityStatement {
	reg := engine.Registry()
	rest := capabilityRest{Mode: "server"}
	for _, rt := range reg.ResourceTypes() {
		res := capabilityResource{
			Type:        rt,
			Interaction: []capabilityCode{{Code: "read"}, {Code: "search-type"}},
		}
		for _, d := range engine.SearchParams(rt) {
			res.SearchParam = append(res.SearchParam, capabilitySearchArg{Name: d.Name, Type: d.Type.String()})
		}
		for _, d := range reg.ReferenceParams(rt) {
			res.SearchInclude = append(res.SearchInclude, rt+":"+d.Name)
		}
		rest.Resource = append(rest.Resource, res)
	}
	// _revinclude names the referencing side.
	for i := range rest.Resource {
		for _, src := range rest.Resource {
			for _, d := range reg.ReferenceParams(src.Type) {
				if targets(d, rest.Resource[i].Type) {
					rest.Resource[i].SearchRevInclude = append(rest.Resource[i].SearchRevInclude, src.Type+":"+d.Name)
				}
			}
		}
	}
	return capabilityStatement{
		ResourceType: "CapabilityStatement",
		Status:       "active",
		Date:         now.UTC().Format(time.RFC3339),
		Kind:         "instance",
		FHIRVersion:  fhirVersion,
		Format:       []string{"json", "application/fhir+json"},
		Rest:         []capabilityRest{rest},
	}
}

func targets(d fhir.SearchParamDef, rt string) bool {
	if len(d.Targets) == 0 {
		return true
	}
	for _, t := range d.Targets {
		if t == rt {
			return true
		}
	}
	return false
}
