package search

import (
	"strings"

	"github.com/DNAi-inc/DNHealth-sub001/internal/platform/fhir"
)

// predicate is a parameter bound to its definition for one resource type.
type predicate struct {
	Parameter
	def fhir.SearchParamDef
}

// matchesAll is the conjunction of every non-reverse-chain parameter.
func (ev *evaluation) matchesAll(r *fhir.Resource, params []Parameter) bool {
	for _, p := range params {
		if !ev.matches(r, p) {
			return false
		}
	}
	return true
}

func (ev *evaluation) matches(r *fhir.Resource, p Parameter) bool {
	return ev.matchesAt(r, p, 0)
}

// matchesAt evaluates one parameter. depth counts the references already
// followed by an enclosing chain.
func (ev *evaluation) matchesAt(r *fhir.Resource, p Parameter, depth int) bool {
	// _has is applied to the candidate set before per-resource evaluation.
	if isReverseChain(p.Name) {
		return true
	}
	if c, ok := ev.parseChain(r, p.Name); ok {
		return ev.matchChain(r, c, p, depth)
	}

	pr := ev.bind(r.Type(), p)
	v := Access(r, pr.def.Path)

	if p.Modifier == ModifierMissing {
		if len(pr.def.Components) > 0 {
			return ev.matchMissing(!compositePresent(r, pr.def), pr)
		}
		return ev.matchMissing(v.IsEmpty(), pr)
	}
	switch p.Name {
	case fhir.MetaParamTag, fhir.MetaParamSecurity:
		return ev.matchMeta(r, pr)
	}
	return ev.dispatch(r, v, pr)
}

// bind resolves the semantic type and element path of a parameter: the
// registry first, then the _id/_lastUpdated conventions, then string.
func (ev *evaluation) bind(resourceType string, p Parameter) predicate {
	reg := ev.engine.registry
	def, ok := reg.Lookup(resourceType, p.Name)
	if !ok {
		def = fhir.SearchParamDef{Name: p.Name, Type: fhir.SearchParamString}
		switch p.Name {
		case "_id":
			def.Type, def.Path = fhir.SearchParamToken, "id"
		case "_lastUpdated":
			def.Type, def.Path = fhir.SearchParamDate, "meta.lastUpdated"
		}
	}
	if def.Path == "" && def.Type != fhir.SearchParamComposite {
		def.Path = reg.FieldPath(resourceType, p.Name)
	}
	return predicate{Parameter: p, def: def}
}

func (ev *evaluation) dispatch(r *fhir.Resource, v fhir.Value, pr predicate) bool {
	switch pr.def.Type {
	case fhir.SearchParamToken:
		return ev.matchToken(v, pr)
	case fhir.SearchParamReference:
		return ev.matchReference(v, pr)
	case fhir.SearchParamDate:
		return ev.matchDate(v, pr)
	case fhir.SearchParamNumber:
		return ev.matchNumber(v, pr)
	case fhir.SearchParamQuantity:
		return ev.matchQuantity(v, pr)
	case fhir.SearchParamURI:
		return ev.matchURI(v, pr)
	case fhir.SearchParamComposite:
		return ev.matchComposite(r, v, pr)
	default:
		return ev.matchString(v, pr)
	}
}

// matchMissing: true matches an absent field or empty list, false a present
// non-empty one, whatever the field's type.
func (ev *evaluation) matchMissing(absent bool, pr predicate) bool {
	switch strings.ToLower(strings.TrimSpace(pr.Value)) {
	case "true":
		return absent
	case "false":
		return !absent
	default:
		ev.diag.malformed(pr.Parameter, ":missing expects true or false, got %q", pr.Value)
		return false
	}
}

// matchMeta handles _tag and _security against meta.tag / meta.security.
func (ev *evaluation) matchMeta(r *fhir.Resource, pr predicate) bool {
	var criteria []fhir.CodingMatch
	for _, alt := range splitAlternatives(pr.Value) {
		criteria = append(criteria, fhir.ParseCodingMatch(alt))
	}
	switch pr.Modifier {
	case "":
		return fhir.MatchMetaCodings(r, pr.Name, criteria)
	case ModifierNot:
		if fhir.MetaValues(r, pr.Name).IsEmpty() {
			return false
		}
		return !fhir.MatchMetaCodings(r, pr.Name, criteria)
	default:
		ev.diag.unsupportedModifier(pr.Parameter, "meta")
		return fhir.MatchMetaCodings(r, pr.Name, criteria)
	}
}
