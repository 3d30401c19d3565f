package fhir

import "strings"

// Meta search parameter names.
const (
	MetaParamTag      = "_tag"
	MetaParamSecurity = "_security"
	MetaParamProfile  = "_profile"
)

// IsMetaSearchParam returns true if the parameter name is one of the
// meta-level search parameters (_tag, _security, _profile).
func IsMetaSearchParam(name string) bool {
	switch name {
	case MetaParamTag, MetaParamSecurity, MetaParamProfile:
		return true
	}
	return false
}

// CodingMatch represents a token match against a Coding element.
// HasSystem distinguishes "|code" (no system allowed) from "code" (any system).
type CodingMatch struct {
	System    string
	Code      string
	HasSystem bool
}

// ParseCodingMatch parses a single "system|code" token value.
func ParseCodingMatch(value string) CodingMatch {
	if i := strings.Index(value, "|"); i >= 0 {
		return CodingMatch{System: value[:i], Code: value[i+1:], HasSystem: true}
	}
	return CodingMatch{Code: value}
}

// Matches checks a Coding-shaped value. Codes compare case-insensitively,
// systems exactly. "system|" matches any code in the system and "|code"
// only codings without a system.
func (cm CodingMatch) Matches(coding Value) bool {
	return cm.MatchesPair(coding.FieldText("system"), coding.FieldText("code"))
}

// MatchesPair applies the token rules to a bare (system, code) pair.
func (cm CodingMatch) MatchesPair(system, code string) bool {
	if cm.Code == "" && !cm.HasSystem {
		return false
	}
	if cm.HasSystem && system != cm.System {
		return false
	}
	if cm.Code == "" {
		return cm.System != ""
	}
	return strings.EqualFold(code, cm.Code)
}

// metaField maps a meta parameter to its element under Resource.meta.
func metaField(param string) string {
	switch param {
	case MetaParamTag:
		return "tag"
	case MetaParamSecurity:
		return "security"
	case MetaParamProfile:
		return "profile"
	}
	return ""
}

// MetaValues returns the meta element a meta parameter searches.
func MetaValues(r *Resource, param string) Value {
	return r.Get("meta").Field(metaField(param))
}

// MatchMetaCodings reports whether any coding of the _tag or _security
// collection satisfies any of the criteria (OR semantics).
func MatchMetaCodings(r *Resource, param string, criteria []CodingMatch) bool {
	for _, c := range MetaValues(r, param).Items() {
		for _, cm := range criteria {
			if cm.Matches(c) {
				return true
			}
		}
	}
	return false
}

// MatchProfile returns true if any requested canonical appears in meta.profile.
func MatchProfile(r *Resource, requested []string) bool {
	for _, p := range MetaValues(r, MetaParamProfile).Items() {
		s, _ := p.Text()
		for _, req := range requested {
			if req == s {
				return true
			}
		}
	}
	return false
}
