package search

import (
	"github.com/DNAi-inc/DNHealth-sub001/internal/platform/fhir"
)

// Support describes how completely a feature is implemented.
type Support string

const (
	SupportFull Support = "full"
	// SupportDegraded features run but with weaker semantics than FHIR
	// defines; the Note says how.
	SupportDegraded    Support = "degraded"
	SupportUnavailable Support = "unavailable"
	SupportUnsupported Support = "unsupported"
)

// Capability is one entry of the engine's capability report.
type Capability struct {
	Feature string  `json:"feature"`
	Support Support `json:"support"`
	Note    string  `json:"note,omitempty"`
}

// Capabilities reports the features of this engine. Entries depending on
// an optional collaborator are unavailable when it was not configured.
func (e *Engine) Capabilities() []Capability {
	caps := []Capability{
		{Feature: "string", Support: SupportFull},
		{Feature: "string:exact", Support: SupportFull},
		{Feature: "string:contains", Support: SupportFull},
		{Feature: "token", Support: SupportFull},
		{Feature: "token:not", Support: SupportFull},
		{Feature: "token:text", Support: SupportFull},
		{Feature: "token:of-type", Support: SupportFull},
		{Feature: "token:above", Support: SupportDegraded, Note: "no code hierarchy; evaluated as equality"},
		{Feature: "token:below", Support: SupportDegraded, Note: "no code hierarchy; evaluated as equality"},
		{Feature: "reference", Support: SupportFull},
		{Feature: "reference:identifier", Support: SupportFull},
		{Feature: "date", Support: SupportFull},
		{Feature: "number", Support: SupportFull},
		{Feature: "quantity", Support: SupportDegraded, Note: "no unit conversion"},
		{Feature: "uri", Support: SupportFull},
		{Feature: "uri:above", Support: SupportUnsupported},
		{Feature: "uri:below", Support: SupportUnsupported},
		{Feature: "composite", Support: SupportFull},
		{Feature: ":missing", Support: SupportFull},
		{Feature: "_has", Support: SupportFull},
		{Feature: "_include", Support: SupportFull},
		{Feature: "_revinclude", Support: SupportFull},
		{Feature: "_sort", Support: SupportFull},
		{Feature: "_summary", Support: SupportFull},
		{Feature: "_elements", Support: SupportFull},
		{Feature: "_filter", Support: SupportUnsupported},
	}

	membership := Capability{Feature: "token:in", Support: SupportFull}
	if e.terminology == nil {
		membership.Support = SupportUnavailable
		membership.Note = "no terminology service configured"
	}
	notIn := membership
	notIn.Feature = "token:not-in"
	caps = append(caps, membership, notIn)

	expr := Capability{Feature: "_fhirpath", Support: SupportFull}
	if e.expressions == nil {
		expr.Support = SupportUnavailable
		expr.Note = "no FHIRPath evaluator configured"
	}
	caps = append(caps, expr)

	if e.scanLimit > 0 {
		caps = append(caps, Capability{Feature: "_has:scan-limit", Support: SupportFull,
			Note: "reverse chains fail when a scan exceeds the configured limit"})
	}
	return caps
}

// SearchParams lists the registered parameters of resourceType.
func (e *Engine) SearchParams(resourceType string) []fhir.SearchParamDef {
	return e.registry.Params(resourceType)
}
