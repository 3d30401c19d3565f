package search

import (
	"strings"

	"github.com/DNAi-inc/DNHealth-sub001/internal/platform/fhir"
)

// splitComposite splits a composite value on "$". "\$" is a literal dollar.
func splitComposite(value string) []string {
	var out []string
	var cur strings.Builder
	for i := 0; i < len(value); i++ {
		if value[i] == '\\' && i+1 < len(value) && value[i+1] == '$' {
			cur.WriteByte('$')
			i++
			continue
		}
		if value[i] == '$' {
			out = append(out, cur.String())
			cur.Reset()
			continue
		}
		cur.WriteByte(value[i])
	}
	return append(out, cur.String())
}

// matchComposite evaluates a "$"-joined value. Registered components are
// matched together against the same base element; otherwise the parts are
// matched positionally against the element's shape.
func (ev *evaluation) matchComposite(r *fhir.Resource, v fhir.Value, pr predicate) bool {
	if pr.Modifier != "" {
		ev.diag.unsupportedModifier(pr.Parameter, "composite")
	}
	for _, alt := range splitAlternatives(pr.Value) {
		parts := splitComposite(alt)
		if len(pr.def.Components) > 0 {
			if len(parts) != len(pr.def.Components) {
				ev.diag.malformed(pr.Parameter, "%s expects %d $-separated parts, got %d",
					pr.Name, len(pr.def.Components), len(parts))
				continue
			}
			if ev.compositeByComponents(r, parts, pr) {
				return true
			}
			continue
		}
		for _, item := range v.Items() {
			if positionalMatch(item, parts) {
				return true
			}
		}
	}
	return false
}

// compositeElements lists the base elements a registered composite reads
// its components from. An empty base is the resource itself.
func compositeElements(r *fhir.Resource, def fhir.SearchParamDef) []fhir.Value {
	bases := def.Bases
	if len(bases) == 0 {
		bases = []string{""}
	}
	var elems []fhir.Value
	for _, base := range bases {
		if base == "" {
			elems = append(elems, r.Root())
		} else {
			elems = append(elems, Access(r, base).Items()...)
		}
	}
	return elems
}

func (ev *evaluation) compositeByComponents(r *fhir.Resource, parts []string, pr predicate) bool {
	for _, elem := range compositeElements(r, pr.def) {
		if ev.componentsMatch(r, elem, parts, pr) {
			return true
		}
	}
	return false
}

// compositePresent reports whether some base element carries every
// component of def.
func compositePresent(r *fhir.Resource, def fhir.SearchParamDef) bool {
	for _, elem := range compositeElements(r, def) {
		complete := true
		for _, comp := range def.Components {
			if AccessValue(elem, comp.Path).IsEmpty() {
				complete = false
				break
			}
		}
		if complete {
			return true
		}
	}
	return false
}

func (ev *evaluation) componentsMatch(r *fhir.Resource, elem fhir.Value, parts []string, pr predicate) bool {
	for i, comp := range pr.def.Components {
		sub := predicate{
			Parameter: Parameter{Name: pr.Name + "." + comp.Name, Value: parts[i]},
			def:       fhir.SearchParamDef{Name: comp.Name, Type: comp.Type, Path: comp.Path},
		}
		if !ev.dispatch(r, AccessValue(elem, comp.Path), sub) {
			return false
		}
	}
	return true
}

// positionalMatch uses the canonical component order of the element:
// code$system for codings, value$system$code for quantities and
// start$end for periods. Other shapes need every part to equal some
// scalar inside the element. Empty parts are unconstrained.
func positionalMatch(item fhir.Value, parts []string) bool {
	if item.Kind() != fhir.KindComplex {
		return len(parts) == 1 && scalarEquals(item, parts[0])
	}
	switch {
	case !item.Field("coding").IsAbsent():
		for _, c := range item.Field("coding").Items() {
			if positionalMatch(c, parts) {
				return true
			}
		}
		return false
	case item.FieldText("code") != "" && item.Field("value").IsAbsent():
		return partEquals(parts, 0, item.FieldText("code"), true) &&
			partEquals(parts, 1, item.FieldText("system"), false) && len(parts) <= 2
	case !item.Field("value").IsAbsent() && (item.FieldText("unit") != "" || item.FieldText("code") != ""):
		if len(parts) > 3 {
			return false
		}
		if parts[0] != "" {
			q, ok := parseDecimal(parts[0])
			f, fok := scalarDecimal(item.Field("value"))
			if !ok || !fok || f.Cmp(q) != 0 {
				return false
			}
		}
		if !partEquals(parts, 1, item.FieldText("system"), false) {
			return false
		}
		return len(parts) < 3 || parts[2] == "" ||
			parts[2] == item.FieldText("code") || parts[2] == item.FieldText("unit")
	case item.FieldText("start") != "" || item.FieldText("end") != "":
		return len(parts) <= 2 &&
			periodBoundEquals(parts, 0, item.FieldText("start")) &&
			periodBoundEquals(parts, 1, item.FieldText("end"))
	}
	leaves := item.Leaves()
	for _, p := range parts {
		found := false
		for _, l := range leaves {
			if strings.EqualFold(l, p) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func scalarEquals(item fhir.Value, part string) bool {
	s, ok := item.Text()
	return ok && strings.EqualFold(s, part)
}

func partEquals(parts []string, i int, got string, anyCase bool) bool {
	if i >= len(parts) || parts[i] == "" {
		return true
	}
	if anyCase {
		return strings.EqualFold(parts[i], got)
	}
	return parts[i] == got
}

func periodBoundEquals(parts []string, i int, got string) bool {
	if i >= len(parts) || parts[i] == "" {
		return true
	}
	q, ok := parseInterval(parts[i])
	f, fok := parseInterval(got)
	return ok && fok && f.overlaps(q)
}
