package search

import (
	"fmt"
	"strings"

	"github.com/DNAi-inc/DNHealth-sub001/internal/platform/fhir"
)

const reverseChainPrefix = "_has:"

func isReverseChain(name string) bool {
	return strings.HasPrefix(name, reverseChainPrefix)
}

// hasClause is a parsed _has parameter. In the two-part form
// (_has:Type:param) RefParam is empty and every reference anywhere in a
// matching resource counts; the three-part form (_has:Type:refParam:param)
// only follows refParam. Inner may itself be a _has parameter.
type hasClause struct {
	Type     string
	RefParam string
	Inner    Parameter
	raw      string
}

// valueModifiers are the modifiers a _has inner parameter may carry.
var valueModifiers = map[string]bool{
	ModifierMissing: true, ModifierExact: true, ModifierContains: true,
	ModifierText: true, ModifierNot: true, ModifierAbove: true, ModifierBelow: true,
	ModifierIn: true, ModifierNotIn: true, ModifierOfType: true, ModifierIdentifier: true,
}

// parseHasClause reads _has:Type:param[:modifier] and
// _has:Type:refParam:param[:modifier]. A middle part that the registry knows
// as a non-reference parameter is the inner parameter itself, so a trailing
// modifier belongs to it.
func parseHasClause(p Parameter, reg *fhir.Registry) (hasClause, error) {
	rest := strings.TrimPrefix(p.Name, reverseChainPrefix)
	parts := strings.SplitN(rest, ":", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return hasClause{}, fmt.Errorf("%w: _has must be _has:Type:param or _has:Type:reference:param, got %q", ErrContractViolation, p.Name)
	}
	if !fhir.IsKnownResourceType(parts[0]) {
		return hasClause{}, fmt.Errorf("%w: unknown resource type %q in %s", ErrContractViolation, parts[0], p.Name)
	}
	c := hasClause{Type: parts[0], raw: p.Name}
	inner := p
	if len(parts) == 2 {
		inner.Name = parts[1]
	} else {
		def, registered := reg.Lookup(parts[0], parts[1])
		switch {
		case !registered || def.Type == fhir.SearchParamReference || isReverseChain(parts[2]):
			c.RefParam = parts[1]
			inner.Name = parts[2]
			if strings.HasPrefix(inner.Name, "_has") && !isReverseChain(inner.Name) {
				return hasClause{}, fmt.Errorf("%w: malformed nested _has in %q", ErrContractViolation, p.Name)
			}
		case valueModifiers[parts[2]] && inner.Modifier == "":
			inner.Name, inner.Modifier = parts[1], parts[2]
		default:
			return hasClause{}, fmt.Errorf("%w: %s is not a reference parameter of %s and %q is not a modifier in %s",
				ErrContractViolation, parts[1], parts[0], parts[2], p.Name)
		}
	}
	if inner.Name == "" {
		return hasClause{}, fmt.Errorf("%w: empty parameter in %q", ErrContractViolation, p.Name)
	}
	if isReverseChain(inner.Name) {
		if _, err := parseHasClause(inner, reg); err != nil {
			return hasClause{}, err
		}
	} else if i := strings.Index(inner.Name, ":"); i > 0 && inner.Modifier == "" && !strings.Contains(inner.Name, ".") {
		inner.Name, inner.Modifier = inner.Name[:i], inner.Name[i+1:]
	}
	c.Inner = inner
	return c, nil
}

// narrowByHas keeps the candidates referenced by at least one resource
// satisfying the clause. No referencing resources means no candidates.
func (ev *evaluation) narrowByHas(candidates []*fhir.Resource, c hasClause) ([]*fhir.Resource, error) {
	keys, err := ev.referencedKeys(c)
	if err != nil {
		return nil, err
	}
	out := make([]*fhir.Resource, 0, len(keys))
	for _, r := range candidates {
		if keys[r.Key()] {
			out = append(out, r)
		}
	}
	return out, nil
}

// referencedKeys scans the corpus for resources of c.Type matching c.Inner
// and returns the Type/id of everything they reference.
func (ev *evaluation) referencedKeys(c hasClause) (map[string]bool, error) {
	keys := make(map[string]bool)
	if ev.corpus == nil {
		ev.diag.capability(fhir.ErrCapabilityUnavailable, c.raw,
			"reverse chain %s needs a corpus to scan; none was supplied", c.raw)
		return keys, nil
	}

	scan := ev.corpus.AllResourcesOfType(c.Type)
	if limit := ev.engine.scanLimit; limit > 0 && len(scan) > limit {
		return nil, fmt.Errorf("%w: %s would scan %d %s resources (limit %d)",
			ErrScanLimitExceeded, c.raw, len(scan), c.Type, limit)
	}
	if m := ev.engine.metrics; m != nil {
		m.ObserveReverseChainScan(c.Type, len(scan))
	}

	// A nested _has is resolved once into the set of qualifying sources.
	var nested map[string]bool
	if isReverseChain(c.Inner.Name) {
		inner, err := parseHasClause(c.Inner, ev.engine.registry)
		if err != nil {
			return nil, err
		}
		if nested, err = ev.referencedKeys(inner); err != nil {
			return nil, err
		}
	}

	reg := ev.engine.registry
	for i, s := range scan {
		if i%256 == 0 {
			if err := ev.ctx.Err(); err != nil {
				return nil, err
			}
		}
		if nested != nil {
			if !nested[s.Key()] {
				continue
			}
		} else if !ev.matches(s, c.Inner) {
			continue
		}

		var refs []string
		if c.RefParam == "" {
			refs = fhir.CollectReferences(s.Root())
		} else {
			for _, rs := range referenceStrings(Access(s, reg.FieldPath(c.Type, c.RefParam))) {
				refs = append(refs, rs.value)
			}
		}
		for _, ref := range refs {
			parts, ok := fhir.ParseReference(ref)
			if ok && parts.Type != "" && parts.ID != "" {
				keys[parts.Key()] = true
			}
		}
	}
	return keys, nil
}
