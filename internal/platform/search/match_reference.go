package search

import (
	"strings"

	"github.com/DNAi-inc/DNHealth-sub001/internal/platform/fhir"
)

// matchReference compares "Type/id", a bare id or an absolute URL against
// Reference elements. The type is taken from the query, a :Type modifier or
// a single-target definition, in that order; when none is known any type
// matches.
func (ev *evaluation) matchReference(v fhir.Value, pr predicate) bool {
	switch {
	case pr.Modifier == ModifierIdentifier:
		return referenceByIdentifier(v, pr.Value)
	case pr.Modifier == ModifierOfType:
		return ev.tokenOfTypeRef(v.Items(), pr.Value)
	case pr.Modifier == "" || isTypeModifier(pr.Modifier):
	default:
		ev.diag.unsupportedModifier(pr.Parameter, "reference")
	}

	implied := ""
	if isTypeModifier(pr.Modifier) {
		implied = pr.Modifier
	} else if len(pr.def.Targets) == 1 {
		implied = pr.def.Targets[0]
	}

	refs := referenceStrings(v)
	for _, alt := range splitAlternatives(pr.Value) {
		want, ok := fhir.ParseReference(alt)
		if !ok || want.Contained {
			ev.diag.malformed(pr.Parameter, "%q is not a reference", alt)
			continue
		}
		if want.Type == "" {
			want.Type = implied
		} else if isTypeModifier(pr.Modifier) && want.Type != pr.Modifier {
			continue
		}
		for _, rs := range refs {
			if referenceMatches(rs, want) {
				return true
			}
		}
	}
	return false
}

func referenceMatches(rs refString, want fhir.ReferenceParts) bool {
	got, ok := fhir.ParseReference(rs.value)
	if !ok || got.Contained {
		return false
	}
	if got.Type == "" {
		got.Type = rs.typ
	}
	if got.ID != want.ID {
		return false
	}
	if want.Type != "" && got.Type != "" && got.Type != want.Type {
		return false
	}
	if want.Version != "" && got.Version != want.Version {
		return false
	}
	// Two absolute references must agree on the server, not just the tail.
	if want.URL != "" && got.URL != "" && !strings.EqualFold(want.URL, got.URL) {
		return want.Version == "" && stripHistory(want.URL) == stripHistory(got.URL)
	}
	return true
}

func stripHistory(u string) string {
	if i := strings.Index(u, "/_history/"); i >= 0 {
		return u[:i]
	}
	return u
}

// referenceByIdentifier matches Reference.identifier against "system|value".
func referenceByIdentifier(v fhir.Value, value string) bool {
	for _, alt := range splitAlternatives(value) {
		cm := fhir.ParseCodingMatch(alt)
		for _, item := range v.Items() {
			id := item.Field("identifier")
			if id.IsAbsent() {
				continue
			}
			if cm.MatchesPair(id.FieldText("system"), id.FieldText("value")) {
				return true
			}
		}
	}
	return false
}
