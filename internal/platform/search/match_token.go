package search

import (
	"errors"
	"strings"

	"github.com/DNAi-inc/DNHealth-sub001/internal/platform/fhir"
)

// tokenCode is one (system, code) pair a token element exposes, with the
// human-readable text :text searches.
type tokenCode struct {
	system string
	code   string
	text   []string
}

// tokenCodes flattens the shapes a token parameter can read: primitives,
// Coding, CodeableConcept, Identifier and ContactPoint.
func tokenCodes(item fhir.Value) []tokenCode {
	switch item.Kind() {
	case fhir.KindScalar:
		s, _ := item.Text()
		return []tokenCode{{code: s}}
	case fhir.KindComplex:
	default:
		return nil
	}

	var out []tokenCode
	text := item.FieldText("text")
	if codings := item.Field("coding"); !codings.IsAbsent() {
		for _, c := range codings.Items() {
			out = append(out, tokenCode{
				system: c.FieldText("system"),
				code:   c.FieldText("code"),
				text:   []string{c.FieldText("display"), text},
			})
		}
		if len(out) == 0 && text != "" {
			out = append(out, tokenCode{text: []string{text}})
		}
		return out
	}
	if code := item.FieldText("code"); code != "" {
		return []tokenCode{{system: item.FieldText("system"), code: code, text: []string{item.FieldText("display")}}}
	}
	// Identifier and ContactPoint both carry system + value.
	if value := item.FieldText("value"); value != "" {
		return []tokenCode{{
			system: item.FieldText("system"),
			code:   value,
			text:   []string{item.Field("type").FieldText("text")},
		}}
	}
	return nil
}

// matchToken implements token search. Codes compare case-insensitively and
// systems exactly; alternatives are ORed.
func (ev *evaluation) matchToken(v fhir.Value, pr predicate) bool {
	items := v.Items()
	switch pr.Modifier {
	case "":
		return ev.tokenAny(items, pr)
	case ModifierNot:
		if len(items) == 0 {
			return false
		}
		return !ev.tokenAny(items, pr)
	case ModifierText:
		return tokenText(items, pr.Value)
	case ModifierIn:
		return ev.tokenInValueSet(items, pr, false)
	case ModifierNotIn:
		return ev.tokenInValueSet(items, pr, true)
	case ModifierOfType:
		return ev.tokenOfType(items, pr)
	case ModifierAbove, ModifierBelow:
		ev.diag.info(pr.Name, ":%s needs a code hierarchy; evaluated as plain equality", pr.Modifier)
		return ev.tokenAny(items, pr)
	default:
		if isTypeModifier(pr.Modifier) {
			return ev.tokenOfTypeRef(items, pr.Modifier) && ev.tokenAny(items, pr)
		}
		ev.diag.unsupportedModifier(pr.Parameter, "token")
		return ev.tokenAny(items, pr)
	}
}

func (ev *evaluation) tokenAny(items []fhir.Value, pr predicate) bool {
	alts := splitAlternatives(pr.Value)
	criteria := make([]fhir.CodingMatch, len(alts))
	for i, alt := range alts {
		criteria[i] = fhir.ParseCodingMatch(alt)
	}
	for _, item := range items {
		for _, tc := range tokenCodes(item) {
			for _, cm := range criteria {
				if cm.MatchesPair(tc.system, tc.code) {
					return true
				}
			}
		}
	}
	return false
}

// tokenText searches display and text for each alternative.
func tokenText(items []fhir.Value, value string) bool {
	for _, alt := range splitAlternatives(value) {
		needle := fold(alt)
		if needle == "" {
			continue
		}
		for _, item := range items {
			for _, tc := range tokenCodes(item) {
				for _, t := range tc.text {
					if t != "" && strings.Contains(fold(t), needle) {
						return true
					}
				}
			}
		}
	}
	return false
}

// tokenInValueSet asks the terminology collaborator about every code. With
// negate, the field must be present and no code may be a member. When the
// collaborator is missing or unavailable the parameter does not match.
func (ev *evaluation) tokenInValueSet(items []fhir.Value, pr predicate, negate bool) bool {
	ts := ev.engine.terminology
	if ts == nil {
		ev.diag.capability(fhir.ErrCapabilityUnavailable, pr.Name,
			":%s needs a terminology service; none is configured", pr.Modifier)
		return false
	}
	if len(items) == 0 {
		return false
	}
	valueSets := splitAlternatives(pr.Value)
	for _, item := range items {
		for _, tc := range tokenCodes(item) {
			if tc.code == "" {
				continue
			}
			for _, vs := range valueSets {
				ok, err := ts.Contains(ev.ctx, vs, tc.system, tc.code)
				if err != nil {
					if errors.Is(err, fhir.ErrCapabilityUnavailable) {
						ev.diag.capability(err, pr.Name, "value set %s could not be checked: %v", vs, err)
					} else {
						ev.diag.add(Issue{
							Severity:    fhir.IssueSeverityWarning,
							Code:        fhir.IssueTypeProcessing,
							Diagnostics: "value set membership lookup failed: " + err.Error(),
							Expression:  pr.Name,
						})
					}
					return false
				}
				if ok {
					return !negate
				}
			}
		}
	}
	return negate
}

// tokenOfType handles :of-type. On references the value is a resource
// type; on identifiers it is "type-system|type-code|value".
func (ev *evaluation) tokenOfType(items []fhir.Value, pr predicate) bool {
	for _, alt := range splitAlternatives(pr.Value) {
		parts := strings.Split(alt, "|")
		if len(parts) == 3 {
			if identifierOfType(items, parts[0], parts[1], parts[2]) {
				return true
			}
			continue
		}
		if ev.tokenOfTypeRef(items, alt) {
			return true
		}
	}
	return false
}

func (ev *evaluation) tokenOfTypeRef(items []fhir.Value, typ string) bool {
	for _, rs := range referenceStrings(fhir.ValueOf(rawItems(items))) {
		t := rs.typ
		if parts, ok := fhir.ParseReference(rs.value); ok && parts.Type != "" {
			t = parts.Type
		}
		if strings.EqualFold(t, typ) {
			return true
		}
	}
	return false
}

func identifierOfType(items []fhir.Value, system, code, value string) bool {
	cm := fhir.CodingMatch{System: system, Code: code, HasSystem: true}
	for _, item := range items {
		if item.FieldText("value") != value {
			continue
		}
		for _, c := range item.Field("type").Field("coding").Items() {
			if cm.Matches(c) {
				return true
			}
		}
	}
	return false
}

func rawItems(items []fhir.Value) []any {
	out := make([]any, len(items))
	for i, item := range items {
		out[i] = item.Raw()
	}
	return out
}
