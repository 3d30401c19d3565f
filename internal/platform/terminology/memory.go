package terminology

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/DNAi-inc/DNHealth-sub001/internal/platform/fhir"
)

// Memory holds value sets as explicit code lists. It is safe for
// concurrent use.
type Memory struct {
	mu        sync.RWMutex
	valueSets map[string]*valueSet
}

type valueSet struct {
	url  string
	name string
	// codes maps system to its included codes. A nil set includes every
	// code of the system.
	codes map[string]map[string]bool
}

func (vs *valueSet) include(system string, codes ...string) {
	if len(codes) == 0 {
		vs.codes[system] = nil
		return
	}
	set, ok := vs.codes[system]
	if ok && set == nil {
		return
	}
	if set == nil {
		set = make(map[string]bool, len(codes))
		vs.codes[system] = set
	}
	for _, c := range codes {
		set[c] = true
	}
}

func (vs *valueSet) contains(system, code string) bool {
	if system != "" {
		set, ok := vs.codes[system]
		return ok && (set == nil || set[code])
	}
	for _, set := range vs.codes {
		if set != nil && set[code] {
			return true
		}
	}
	return false
}

// NewMemory returns a store preloaded with the R4 status and gender value sets.
func NewMemory() *Memory {
	return &Memory{valueSets: builtinValueSets()}
}

func builtinValueSets() map[string]*valueSet {
	sets := make(map[string]*valueSet)
	builtins := []struct {
		vs, system, name string
		codes            []string
	}{
		{"http://hl7.org/fhir/ValueSet/observation-status", "http://hl7.org/fhir/observation-status", "ObservationStatus",
			[]string{"registered", "preliminary", "final", "amended", "corrected", "cancelled", "entered-in-error", "unknown"}},
		{"http://hl7.org/fhir/ValueSet/administrative-gender", "http://hl7.org/fhir/administrative-gender", "AdministrativeGender",
			[]string{"male", "female", "other", "unknown"}},
		{"http://hl7.org/fhir/ValueSet/encounter-status", "http://hl7.org/fhir/encounter-status", "EncounterStatus",
			[]string{"planned", "arrived", "triaged", "in-progress", "onleave", "finished", "cancelled", "entered-in-error", "unknown"}},
		{"http://hl7.org/fhir/ValueSet/condition-clinical", "http://terminology.hl7.org/CodeSystem/condition-clinical", "ConditionClinicalStatusCodes",
			[]string{"active", "recurrence", "relapse", "inactive", "remission", "resolved"}},
		{"http://hl7.org/fhir/ValueSet/request-status", "http://hl7.org/fhir/request-status", "RequestStatus",
			[]string{"draft", "active", "on-hold", "revoked", "completed", "entered-in-error", "unknown"}},
		{"http://hl7.org/fhir/ValueSet/publication-status", "http://hl7.org/fhir/publication-status", "PublicationStatus",
			[]string{"draft", "active", "retired", "unknown"}},
	}
	for _, b := range builtins {
		vs := &valueSet{url: b.vs, name: b.name, codes: make(map[string]map[string]bool)}
		vs.include(b.system, b.codes...)
		sets[b.vs] = vs
	}
	return sets
}

// Add registers (or extends) a value set with codes from one system. No
// codes means the whole system is included.
func (m *Memory) Add(url, system string, codes ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	vs, ok := m.valueSets[url]
	if !ok {
		vs = &valueSet{url: url, codes: make(map[string]map[string]bool)}
		m.valueSets[url] = vs
	}
	vs.include(system, codes...)
}

// LoadValueSet registers a ValueSet resource. Codes come from
// compose.include (listed concepts, or the whole system when none are
// listed) and from expansion.contains. Filters and imports are not
// evaluated.
func (m *Memory) LoadValueSet(r *fhir.Resource) error {
	vs, err := parseValueSet(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.valueSets[vs.url] = vs
	m.mu.Unlock()
	return nil
}

// Reload replaces every loaded value set with the builtins plus rs. Sets
// added earlier, including ones no longer in rs, are dropped. Resources
// that fail to parse are skipped and reported.
func (m *Memory) Reload(rs []*fhir.Resource) []error {
	sets := builtinValueSets()
	var errs []error
	for _, r := range rs {
		vs, err := parseValueSet(r)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		sets[vs.url] = vs
	}
	m.mu.Lock()
	m.valueSets = sets
	m.mu.Unlock()
	return errs
}

func parseValueSet(r *fhir.Resource) (*valueSet, error) {
	if r.Type() != "ValueSet" {
		return nil, fmt.Errorf("load value set: %s is not a ValueSet", r.Key())
	}
	url, _ := r.Get("url").Text()
	if url == "" {
		return nil, fmt.Errorf("load value set %s: missing url", r.Key())
	}
	vs := &valueSet{url: url, codes: make(map[string]map[string]bool)}
	vs.name, _ = r.Get("name").Text()

	for _, inc := range r.Get("compose").Field("include").Items() {
		system := inc.FieldText("system")
		if system == "" {
			continue
		}
		var codes []string
		for _, c := range inc.Field("concept").Items() {
			if code := c.FieldText("code"); code != "" {
				codes = append(codes, code)
			}
		}
		if len(codes) == 0 && !inc.Field("filter").IsEmpty() {
			continue
		}
		vs.include(system, codes...)
	}
	var walk func(items []fhir.Value)
	walk = func(items []fhir.Value) {
		for _, c := range items {
			if system, code := c.FieldText("system"), c.FieldText("code"); system != "" && code != "" {
				vs.include(system, code)
			}
			walk(c.Field("contains").Items())
		}
	}
	walk(r.Get("expansion").Field("contains").Items())
	return vs, nil
}

// Contains reports whether system|code is in the value set, looked up by
// canonical URL or by name. A version suffix ("url|4.0.1") is ignored.
func (m *Memory) Contains(ctx context.Context, valueSet, system, code string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	url, _, _ := strings.Cut(valueSet, "|")

	m.mu.RLock()
	defer m.mu.RUnlock()
	vs, ok := m.valueSets[url]
	if !ok {
		for _, v := range m.valueSets {
			if v.name != "" && v.name == url {
				vs, ok = v, true
				break
			}
		}
	}
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownValueSet, url)
	}
	return vs.contains(system, code), nil
}

// Len returns the number of registered value sets.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.valueSets)
}
