package search

import (
	"strings"

	"github.com/DNAi-inc/DNHealth-sub001/internal/platform/fhir"
)

// chainedParam is a parsed "ref[:Type].rest" parameter name.
type chainedParam struct {
	RefParam   string
	TargetType string
	Rest       string
}

// parseChain decides whether name is a chain on r. It is when the first
// segment is a reference parameter of r's type, carries an explicit
// :Type, or reads a Reference-shaped element. Any other dotted name is a
// plain element path.
func (ev *evaluation) parseChain(r *fhir.Resource, name string) (chainedParam, bool) {
	dot := strings.Index(name, ".")
	if dot <= 0 || dot == len(name)-1 {
		return chainedParam{}, false
	}
	head, rest := name[:dot], name[dot+1:]
	c := chainedParam{RefParam: head, Rest: rest}
	if i := strings.Index(head, ":"); i >= 0 {
		c.RefParam, c.TargetType = head[:i], head[i+1:]
		return c, c.RefParam != ""
	}
	if def, ok := ev.engine.registry.Lookup(r.Type(), c.RefParam); ok {
		return c, def.Type == fhir.SearchParamReference
	}
	items := Access(r, ev.engine.registry.FieldPath(r.Type(), c.RefParam)).Items()
	if len(items) > 0 && fhir.IsReferenceShaped(items[0]) {
		return c, true
	}
	return chainedParam{}, false
}

// matchChain follows each reference of the chain's first segment and
// evaluates the remainder against the referenced resource. Any one
// matching target is enough; unresolvable references are skipped.
func (ev *evaluation) matchChain(r *fhir.Resource, c chainedParam, p Parameter, depth int) bool {
	if depth >= MaxChainDepth {
		ev.diag.add(Issue{
			Severity:    fhir.IssueSeverityWarning,
			Code:        fhir.IssueTypeTooCostly,
			Diagnostics: "chain exceeds the maximum depth and was not followed",
			Expression:  p.Name,
		})
		return false
	}

	refs := referenceStrings(Access(r, ev.engine.registry.FieldPath(r.Type(), c.RefParam)))
	if len(refs) == 0 {
		return false
	}

	sub := p
	sub.Name = c.Rest
	for _, ref := range refs {
		parts, ok := fhir.ParseReference(ref.value)
		if !ok {
			continue
		}
		typ := parts.Type
		if typ == "" {
			typ = ref.typ
		}
		if c.TargetType != "" && typ != "" && typ != c.TargetType {
			continue
		}

		var target *fhir.Resource
		if parts.Contained {
			target, ok = r.Contained(parts.ID)
		} else {
			if ev.resolve == nil {
				ev.diag.capability(ErrNoReferenceResolver, p.Name,
					"chained parameter %s needs a reference resolver; none was supplied", p.Name)
				return false
			}
			target, ok = ev.resolve(ev.ctx, ref.value)
		}
		if !ok || target == nil {
			continue
		}
		if c.TargetType != "" && target.Type() != c.TargetType {
			continue
		}
		if ev.matchesAt(target, sub, depth+1) {
			return true
		}
	}
	return false
}

// refString is a reference read from an element, with the Reference.type
// hint when the element carried one.
type refString struct {
	value string
	typ   string
}

// referenceStrings extracts references from Reference objects, canonical
// strings or plain "Type/id" strings.
func referenceStrings(v fhir.Value) []refString {
	var out []refString
	for _, item := range v.Items() {
		switch item.Kind() {
		case fhir.KindComplex:
			if s := item.FieldText("reference"); s != "" {
				out = append(out, refString{value: s, typ: item.FieldText("type")})
			}
		case fhir.KindScalar:
			if s, _ := item.Text(); s != "" {
				out = append(out, refString{value: s})
			}
		}
	}
	return out
}
