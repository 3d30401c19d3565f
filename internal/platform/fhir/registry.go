package fhir

import (
	"sort"
	"strings"
	"sync"

	"github.com/iancoleman/strcase"
)

// SearchParamType defines the FHIR search parameter type.
type SearchParamType int

const (
	SearchParamString SearchParamType = iota
	SearchParamToken
	SearchParamReference
	SearchParamDate
	SearchParamNumber
	SearchParamQuantity
	SearchParamURI
	SearchParamComposite
	SearchParamSpecial
)

var searchParamTypeNames = map[SearchParamType]string{
	SearchParamString:    "string",
	SearchParamToken:     "token",
	SearchParamReference: "reference",
	SearchParamDate:      "date",
	SearchParamNumber:    "number",
	SearchParamQuantity:  "quantity",
	SearchParamURI:       "uri",
	SearchParamComposite: "composite",
	SearchParamSpecial:   "special",
}

func (t SearchParamType) String() string {
	if s, ok := searchParamTypeNames[t]; ok {
		return s
	}
	return "string"
}

// CompositeComponent describes one $-separated part of a composite parameter.
// Path is relative to the element the composite is evaluated on.
type CompositeComponent struct {
	Name string
	Type SearchParamType
	Path string
}

// SearchParamDef binds a search parameter name to the element it reads and
// the semantics used to match it.
type SearchParamDef struct {
	Name string
	Type SearchParamType
	// Path is the dotted element path. Choice elements are written without
	// their type suffix ("effective" covers effectiveDateTime and effectivePeriod).
	Path string
	// Targets restricts the resource types a reference parameter points to.
	Targets []string
	// Components and Bases describe composite parameters. An empty base is
	// the resource root; "component" evaluates against each Observation.component.
	Components []CompositeComponent
	Bases      []string
}

// Registry holds the search parameter definitions per resource type.
// Parameters registered under "*" apply to every type.
type Registry struct {
	mu     sync.RWMutex
	params map[string]map[string]SearchParamDef
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{params: make(map[string]map[string]SearchParamDef)}
}

// Register adds or replaces parameter definitions for a resource type.
func (r *Registry) Register(resourceType string, defs ...SearchParamDef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.params[resourceType]
	if !ok {
		m = make(map[string]SearchParamDef)
		r.params[resourceType] = m
	}
	for _, d := range defs {
		m[d.Name] = d
	}
}

// Lookup finds the definition of name for resourceType, falling back to
// the common parameters.
func (r *Registry) Lookup(resourceType, name string) (SearchParamDef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if d, ok := r.params[resourceType][name]; ok {
		return d, true
	}
	d, ok := r.params["*"][name]
	return d, ok
}

// FieldPath returns the element path for a parameter. Unregistered names
// map kebab-case to the lowerCamel element name ("clinical-status" ->
// "clinicalStatus"); dotted names are converted per segment.
func (r *Registry) FieldPath(resourceType, name string) string {
	if d, ok := r.Lookup(resourceType, name); ok && d.Path != "" {
		return d.Path
	}
	segs := strings.Split(name, ".")
	for i, s := range segs {
		if strings.Contains(s, "-") {
			segs[i] = strcase.ToLowerCamel(s)
		}
	}
	return strings.Join(segs, ".")
}

// Params returns the parameters registered for resourceType plus the
// common ones, sorted by name.
func (r *Registry) Params(resourceType string) []SearchParamDef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]bool)
	var out []SearchParamDef
	for _, src := range []string{resourceType, "*"} {
		for name, d := range r.params[src] {
			if seen[name] {
				continue
			}
			seen[name] = true
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ReferenceParams returns the reference-typed parameters of resourceType.
func (r *Registry) ReferenceParams(resourceType string) []SearchParamDef {
	var out []SearchParamDef
	for _, d := range r.Params(resourceType) {
		if d.Type == SearchParamReference {
			out = append(out, d)
		}
	}
	return out
}

// ResourceTypes returns the types with registered parameters, sorted.
func (r *Registry) ResourceTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.params))
	for rt := range r.params {
		if rt != "*" {
			out = append(out, rt)
		}
	}
	sort.Strings(out)
	return out
}

func str(name, path string) SearchParamDef {
	return SearchParamDef{Name: name, Type: SearchParamString, Path: path}
}

func tok(name, path string) SearchParamDef {
	return SearchParamDef{Name: name, Type: SearchParamToken, Path: path}
}

func date(name, path string) SearchParamDef {
	return SearchParamDef{Name: name, Type: SearchParamDate, Path: path}
}

func ref(name, path string, targets ...string) SearchParamDef {
	return SearchParamDef{Name: name, Type: SearchParamReference, Path: path, Targets: targets}
}

func qty(name, path string) SearchParamDef {
	return SearchParamDef{Name: name, Type: SearchParamQuantity, Path: path}
}

func uri(name, path string) SearchParamDef {
	return SearchParamDef{Name: name, Type: SearchParamURI, Path: path}
}

func composite(name string, bases []string, comps ...CompositeComponent) SearchParamDef {
	return SearchParamDef{Name: name, Type: SearchParamComposite, Components: comps, Bases: bases}
}

var (
	codeComponent = CompositeComponent{Name: "code", Type: SearchParamToken, Path: "code"}
	rootOnly      = []string{""}
	componentOnly = []string{"component"}
	rootAndComps  = []string{"", "component"}
)

// observationComposites are the R4 Observation composite parameters.
func observationComposites() []SearchParamDef {
	valueQty := CompositeComponent{Name: "value", Type: SearchParamQuantity, Path: "valueQuantity"}
	valueConcept := CompositeComponent{Name: "value", Type: SearchParamToken, Path: "valueCodeableConcept"}
	valueDate := CompositeComponent{Name: "value", Type: SearchParamDate, Path: "value"}
	valueString := CompositeComponent{Name: "value", Type: SearchParamString, Path: "valueString"}
	return []SearchParamDef{
		composite("code-value-quantity", rootOnly, codeComponent, valueQty),
		composite("code-value-concept", rootOnly, codeComponent, valueConcept),
		composite("code-value-date", rootOnly, codeComponent, valueDate),
		composite("code-value-string", rootOnly, codeComponent, valueString),
		composite("component-code-value-quantity", componentOnly, codeComponent, valueQty),
		composite("component-code-value-concept", componentOnly, codeComponent, valueConcept),
		composite("combo-code-value-quantity", rootAndComps, codeComponent, valueQty),
		composite("combo-code-value-concept", rootAndComps, codeComponent, valueConcept),
	}
}

// DefaultRegistry returns a registry populated with the R4 parameters of
// the commonly searched clinical resource types.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("*",
		tok("_id", "id"),
		date("_lastUpdated", "meta.lastUpdated"),
		tok("_tag", "meta.tag"),
		tok("_security", "meta.security"),
		uri("_profile", "meta.profile"),
		uri("_source", "meta.source"),
	)
	r.Register("Patient",
		str("name", "name"), str("family", "name.family"), str("given", "name.given"),
		str("address", "address"), str("address-city", "address.city"),
		str("address-postalcode", "address.postalCode"),
		date("birthdate", "birthDate"), date("death-date", "deceased"),
		tok("gender", "gender"), tok("identifier", "identifier"), tok("active", "active"),
		tok("telecom", "telecom"), tok("phone", "telecom"), tok("email", "telecom"),
		tok("language", "communication.language"),
		ref("general-practitioner", "generalPractitioner", "Practitioner", "Organization", "PractitionerRole"),
		ref("organization", "managingOrganization", "Organization"),
		ref("link", "link.other", "Patient", "RelatedPerson"),
	)
	r.Register("Practitioner",
		str("name", "name"), str("family", "name.family"), str("given", "name.given"),
		tok("identifier", "identifier"), tok("active", "active"), tok("gender", "gender"),
		tok("telecom", "telecom"),
	)
	r.Register("PractitionerRole",
		tok("role", "code"), tok("specialty", "specialty"), tok("active", "active"),
		ref("practitioner", "practitioner", "Practitioner"),
		ref("organization", "organization", "Organization"),
		ref("location", "location", "Location"),
	)
	r.Register("Organization",
		str("name", "name"), str("address", "address"), tok("identifier", "identifier"),
		tok("active", "active"), tok("type", "type"),
		ref("partof", "partOf", "Organization"),
	)
	r.Register("Location",
		str("name", "name"), str("address", "address"), tok("status", "status"),
		tok("type", "type"), ref("organization", "managingOrganization", "Organization"),
		ref("partof", "partOf", "Location"),
	)
	r.Register("Observation", append([]SearchParamDef{
		tok("status", "status"), tok("code", "code"), tok("category", "category"),
		tok("identifier", "identifier"), tok("component-code", "component.code"),
		tok("combo-code", "code"), tok("value-concept", "valueCodeableConcept"),
		tok("data-absent-reason", "dataAbsentReason"), tok("method", "method"),
		ref("subject", "subject", "Patient", "Group", "Device", "Location"),
		ref("patient", "subject", "Patient"),
		ref("encounter", "encounter", "Encounter"),
		ref("performer", "performer", "Practitioner", "PractitionerRole", "Organization", "Patient", "CareTeam", "RelatedPerson"),
		ref("has-member", "hasMember", "Observation", "QuestionnaireResponse"),
		ref("derived-from", "derivedFrom", "Observation", "DocumentReference"),
		ref("based-on", "basedOn", "ServiceRequest", "CarePlan", "MedicationRequest"),
		ref("specimen", "specimen", "Specimen"),
		date("date", "effective"), date("value-date", "value"),
		qty("value-quantity", "valueQuantity"),
		qty("component-value-quantity", "component.valueQuantity"),
		str("value-string", "valueString"),
	}, observationComposites()...)...)
	r.Register("Condition",
		tok("clinical-status", "clinicalStatus"), tok("verification-status", "verificationStatus"),
		tok("code", "code"), tok("category", "category"), tok("severity", "severity"),
		tok("identifier", "identifier"), tok("body-site", "bodySite"),
		ref("subject", "subject", "Patient", "Group"), ref("patient", "subject", "Patient"),
		ref("encounter", "encounter", "Encounter"),
		ref("asserter", "asserter", "Practitioner", "PractitionerRole", "Patient", "RelatedPerson"),
		date("onset-date", "onset"), date("abatement-date", "abatement"),
		date("recorded-date", "recordedDate"),
	)
	r.Register("Encounter",
		tok("status", "status"), tok("class", "class"), tok("type", "type"),
		tok("identifier", "identifier"), tok("reason-code", "reasonCode"),
		ref("subject", "subject", "Patient", "Group"), ref("patient", "subject", "Patient"),
		ref("participant", "participant.individual", "Practitioner", "PractitionerRole", "RelatedPerson"),
		ref("practitioner", "participant.individual", "Practitioner"),
		ref("service-provider", "serviceProvider", "Organization"),
		ref("location", "location.location", "Location"),
		ref("episode-of-care", "episodeOfCare", "EpisodeOfCare"),
		ref("part-of", "partOf", "Encounter"),
		date("date", "period"), qty("length", "length"),
	)
	r.Register("MedicationRequest",
		tok("status", "status"), tok("intent", "intent"), tok("code", "medicationCodeableConcept"),
		tok("identifier", "identifier"), tok("priority", "priority"),
		ref("subject", "subject", "Patient", "Group"), ref("patient", "subject", "Patient"),
		ref("medication", "medicationReference", "Medication"),
		ref("encounter", "encounter", "Encounter"),
		ref("requester", "requester", "Practitioner", "PractitionerRole", "Organization", "Patient", "RelatedPerson", "Device"),
		date("authoredon", "authoredOn"),
	)
	r.Register("Medication",
		tok("code", "code"), tok("status", "status"), tok("form", "form"),
		ref("manufacturer", "manufacturer", "Organization"),
		ref("ingredient", "ingredient.itemReference", "Substance", "Medication"),
	)
	r.Register("AllergyIntolerance",
		tok("clinical-status", "clinicalStatus"), tok("verification-status", "verificationStatus"),
		tok("code", "code"), tok("criticality", "criticality"), tok("type", "type"),
		tok("category", "category"),
		ref("patient", "patient", "Patient"), ref("recorder", "recorder", "Practitioner", "PractitionerRole", "Patient"),
		date("onset", "onset"), date("date", "recordedDate"),
	)
	r.Register("Procedure",
		tok("status", "status"), tok("code", "code"), tok("category", "category"),
		ref("subject", "subject", "Patient", "Group"), ref("patient", "subject", "Patient"),
		ref("encounter", "encounter", "Encounter"),
		ref("performer", "performer.actor", "Practitioner", "PractitionerRole", "Organization", "Patient"),
		date("date", "performed"),
	)
	r.Register("DiagnosticReport",
		tok("status", "status"), tok("code", "code"), tok("category", "category"),
		ref("subject", "subject", "Patient", "Group", "Device", "Location"),
		ref("patient", "subject", "Patient"), ref("encounter", "encounter", "Encounter"),
		ref("result", "result", "Observation"),
		ref("performer", "performer", "Practitioner", "PractitionerRole", "Organization", "CareTeam"),
		date("date", "effective"), date("issued", "issued"),
	)
	r.Register("Immunization",
		tok("status", "status"), tok("vaccine-code", "vaccineCode"),
		ref("patient", "patient", "Patient"), ref("location", "location", "Location"),
		date("date", "occurrence"), str("lot-number", "lotNumber"),
	)
	r.Register("DocumentReference",
		tok("status", "status"), tok("type", "type"), tok("category", "category"),
		ref("subject", "subject", "Patient", "Practitioner", "Group", "Device"),
		ref("patient", "subject", "Patient"),
		ref("author", "author", "Practitioner", "PractitionerRole", "Organization", "Patient", "Device"),
		date("date", "date"), str("description", "description"),
	)
	r.Register("RiskAssessment",
		tok("status", "status"), tok("method", "method"),
		ref("subject", "subject", "Patient", "Group"), ref("patient", "subject", "Patient"),
		date("date", "occurrence"),
		SearchParamDef{Name: "probability", Type: SearchParamNumber, Path: "prediction.probability"},
	)
	r.Register("Invoice",
		tok("status", "status"), ref("subject", "subject", "Patient", "Group"),
		ref("patient", "subject", "Patient"),
		qty("totalnet", "totalNet"), qty("totalgross", "totalGross"), date("date", "date"),
	)
	r.Register("Group",
		tok("type", "type"), tok("code", "code"), tok("actual", "actual"),
		ref("member", "member.entity", "Patient", "Practitioner", "Device", "Medication", "Substance"),
		SearchParamDef{Name: "quantity", Type: SearchParamNumber, Path: "quantity"},
	)
	for _, rt := range []string{"ValueSet", "CodeSystem", "StructureDefinition", "Questionnaire", "PlanDefinition", "SearchParameter"} {
		r.Register(rt,
			uri("url", "url"), str("name", "name"), str("title", "title"),
			tok("status", "status"), tok("version", "version"), date("date", "date"),
		)
	}
	r.Register("Questionnaire", tok("code", "item.code"))
	r.Register("QuestionnaireResponse",
		tok("status", "status"),
		SearchParamDef{Name: "questionnaire", Type: SearchParamReference, Path: "questionnaire", Targets: []string{"Questionnaire"}},
		ref("subject", "subject"), ref("patient", "subject", "Patient"),
		ref("author", "author", "Practitioner", "PractitionerRole", "Patient", "RelatedPerson", "Organization", "Device"),
		date("authored", "authored"),
	)
	r.Register("Task",
		tok("status", "status"), tok("intent", "intent"), tok("code", "code"),
		ref("patient", "for", "Patient"), ref("subject", "for"), ref("owner", "owner"),
		ref("focus", "focus"), ref("part-of", "partOf", "Task"),
		date("authored-on", "authoredOn"), date("modified", "lastModified"),
	)
	return r
}
