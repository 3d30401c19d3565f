package fhir

import (
	"fmt"
	"strings"
)

// SummaryMode is the value of the _summary control parameter.
type SummaryMode string

const (
	SummaryNone  SummaryMode = ""
	SummaryTrue  SummaryMode = "true"
	SummaryText  SummaryMode = "text"
	SummaryData  SummaryMode = "data"
	SummaryCount SummaryMode = "count"
	SummaryFalse SummaryMode = "false"
)

// ParseSummaryMode validates a raw _summary value.
func ParseSummaryMode(raw string) (SummaryMode, error) {
	switch m := SummaryMode(strings.TrimSpace(raw)); m {
	case SummaryNone, SummaryTrue, SummaryText, SummaryData, SummaryCount, SummaryFalse:
		return m, nil
	default:
		return SummaryNone, fmt.Errorf("invalid _summary value %q", raw)
	}
}

// SubsettedSystem is the code system of the SUBSETTED meta tag.
const SubsettedSystem = "http://terminology.hl7.org/CodeSystem/v3-ObservationValue"

// MandatoryElements are always included regardless of _elements or _summary filters.
var MandatoryElements = map[string]bool{
	"resourceType": true,
	"id":           true,
	"meta":         true,
}

// SummaryElements defines which elements to include for _summary=true per resource type.
// If a resource type is not listed, a default set is used.
var SummaryElements = map[string][]string{
	"Patient": {"identifier", "active", "name", "telecom", "gender", "birthDate", "address",
		"managingOrganization", "link", "deceasedBoolean", "deceasedDateTime"},
	"Observation": {"identifier", "basedOn", "partOf", "status", "category", "code", "subject",
		"focus", "encounter", "effectiveDateTime", "effectivePeriod", "issued",
		"valueQuantity", "valueCodeableConcept", "valueString", "dataAbsentReason",
		"interpretation", "hasMember", "derivedFrom"},
	"Condition": {"identifier", "clinicalStatus", "verificationStatus", "category", "severity",
		"code", "bodySite", "subject", "encounter", "onsetDateTime", "onsetPeriod",
		"abatementDateTime", "recordedDate"},
	"Encounter": {"identifier", "status", "class", "type", "serviceType", "priority", "subject",
		"episodeOfCare", "participant", "period", "length", "reasonCode", "serviceProvider", "partOf"},
	"MedicationRequest": {"identifier", "status", "intent", "priority", "medicationCodeableConcept",
		"medicationReference", "subject", "encounter", "authoredOn", "requester"},
	"AllergyIntolerance": {"identifier", "clinicalStatus", "verificationStatus", "type", "category",
		"criticality", "code", "patient", "onsetDateTime", "recordedDate"},
	"Procedure": {"identifier", "status", "category", "code", "subject", "encounter",
		"performedDateTime", "performedPeriod"},
	"Organization": {"identifier", "active", "type", "name", "alias", "partOf"},
	"Practitioner": {"identifier", "active", "name", "telecom", "address", "gender", "birthDate"},
	"DiagnosticReport": {"identifier", "status", "category", "code", "subject", "encounter",
		"effectiveDateTime", "effectivePeriod", "issued", "performer", "result"},
}

// DefaultSummaryElements is used when a resource type doesn't have specific summary definitions.
var DefaultSummaryElements = []string{
	"identifier", "status", "code", "subject", "patient", "date", "category", "name", "url",
}

// Projection describes the _summary and _elements reduction for a response.
type Projection struct {
	Summary  SummaryMode
	Elements []string
}

// IsZero reports whether the projection leaves resources untouched.
func (p Projection) IsZero() bool {
	return len(p.Elements) == 0 && (p.Summary == SummaryNone || p.Summary == SummaryFalse)
}

// Apply returns a reduced copy of r. _elements takes precedence over
// _summary. The input resource is never modified; when no reduction
// applies, r itself is returned.
func (p Projection) Apply(r *Resource) *Resource {
	if len(p.Elements) > 0 {
		return subset(r, p.allowedElements(), true)
	}
	switch p.Summary {
	case SummaryTrue:
		allowed := copyMandatory()
		fields := SummaryElements[r.Type()]
		if fields == nil {
			fields = DefaultSummaryElements
		}
		for _, f := range fields {
			allowed[f] = true
		}
		return subset(r, allowed, true)
	case SummaryText:
		allowed := copyMandatory()
		allowed["text"] = true
		return subset(r, allowed, true)
	case SummaryData:
		allowed := make(map[string]bool)
		for k := range r.Data() {
			if k != "text" {
				allowed[k] = true
			}
		}
		return subset(r, allowed, true)
	default:
		return r
	}
}

func (p Projection) allowedElements() map[string]bool {
	allowed := copyMandatory()
	for _, f := range p.Elements {
		if f = strings.TrimSpace(f); f != "" {
			allowed[f] = true
		}
	}
	return allowed
}

func copyMandatory() map[string]bool {
	allowed := make(map[string]bool, len(MandatoryElements))
	for k := range MandatoryElements {
		allowed[k] = true
	}
	return allowed
}

// subset builds a new document holding only the allowed top-level elements.
// meta is deep-copied before the SUBSETTED tag is added so the source
// resource's meta is left as it was.
func subset(r *Resource, allowed map[string]bool, tag bool) *Resource {
	out := make(map[string]any, len(allowed))
	for k, v := range r.Data() {
		if !allowed[k] {
			continue
		}
		if k == "meta" {
			out[k] = deepCopy(v)
			continue
		}
		out[k] = v
	}
	if tag {
		addSubsettedTag(out)
	}
	return &Resource{data: out, typ: r.typ, id: r.id}
}

// addSubsettedTag adds the SUBSETTED meta tag to indicate partial content.
func addSubsettedTag(resource map[string]any) {
	meta, ok := resource["meta"].(map[string]any)
	if !ok {
		meta = make(map[string]any)
		resource["meta"] = meta
	}

	tags, _ := meta["tag"].([]any)
	tags = append(tags, map[string]any{
		"system": SubsettedSystem,
		"code":   "SUBSETTED",
	})
	meta["tag"] = tags
}
