package search

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/DNAi-inc/DNHealth-sub001/internal/platform/fhir"
)

// fold lower-cases s and strips combining marks, so "Müller" matches "muller".
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// stringSkipKeys are metadata elements of HumanName, Address and similar
// types that string search does not look at.
var stringSkipKeys = map[string]bool{
	"use": true, "period": true, "extension": true, "id": true, "type": true,
}

// stringLeaves returns the searchable strings of one field element.
func stringLeaves(v fhir.Value) []string {
	switch v.Kind() {
	case fhir.KindScalar:
		s, _ := v.Text()
		return []string{s}
	case fhir.KindComplex:
		var out []string
		for k, child := range v.Map() {
			if stringSkipKeys[k] {
				continue
			}
			for _, item := range fhir.ValueOf(child).Items() {
				out = append(out, stringLeaves(item)...)
			}
		}
		return out
	}
	return nil
}

// matchString: case-insensitive. The default and :contains/:text match a
// substring; :exact requires the whole value.
func (ev *evaluation) matchString(v fhir.Value, pr predicate) bool {
	exact := false
	switch pr.Modifier {
	case "", ModifierContains, ModifierText:
	case ModifierExact:
		exact = true
	default:
		ev.diag.unsupportedModifier(pr.Parameter, "string")
	}

	alts := splitAlternatives(pr.Value)
	folded := make([]string, len(alts))
	for i, a := range alts {
		folded[i] = fold(a)
	}
	for _, item := range v.Items() {
		for _, leaf := range stringLeaves(item) {
			for i, alt := range alts {
				if exact {
					if strings.EqualFold(leaf, alt) {
						return true
					}
					continue
				}
				if strings.Contains(fold(leaf), folded[i]) {
					return true
				}
			}
		}
	}
	return false
}

// matchURI compares with exact string equality and no normalization.
func (ev *evaluation) matchURI(v fhir.Value, pr predicate) bool {
	if pr.Modifier != "" {
		ev.diag.unsupportedModifier(pr.Parameter, "uri")
	}
	alts := splitAlternatives(pr.Value)
	for _, item := range v.Items() {
		s, ok := item.Text()
		if !ok {
			continue
		}
		for _, alt := range alts {
			if s == alt {
				return true
			}
		}
	}
	return false
}
