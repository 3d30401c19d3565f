package search

import (
	"github.com/DNAi-inc/DNHealth-sub001/internal/platform/fhir"
)

// maxIncludeRounds bounds :iterate expansion.
const maxIncludeRounds = 4

// expandIncludes follows _include references out of the page and finds
// _revinclude resources pointing into it. Results are deduplicated by
// Type/id against the page and each other. Iterating specs are re-applied
// to newly included resources.
func (ev *evaluation) expandIncludes(page []*fhir.Resource, include, revinclude []IncludeSpec) ([]*fhir.Resource, error) {
	if len(include) == 0 && len(revinclude) == 0 {
		return nil, nil
	}
	seen := make(map[string]bool, len(page))
	for _, r := range page {
		seen[r.Key()] = true
	}

	var out []*fhir.Resource
	add := func(r *fhir.Resource) bool {
		if r == nil || seen[r.Key()] {
			return false
		}
		seen[r.Key()] = true
		out = append(out, r)
		return true
	}

	frontier := page
	for round := 0; round < maxIncludeRounds && len(frontier) > 0; round++ {
		if err := ev.ctx.Err(); err != nil {
			return nil, err
		}
		var next []*fhir.Resource
		for _, spec := range include {
			if round > 0 && !spec.Iterate {
				continue
			}
			for _, r := range ev.includeTargets(frontier, spec) {
				if add(r) {
					next = append(next, r)
				}
			}
		}
		for _, spec := range revinclude {
			if round > 0 && !spec.Iterate {
				continue
			}
			for _, r := range ev.revincludeSources(frontier, spec) {
				if add(r) {
					next = append(next, r)
				}
			}
		}
		frontier = next
	}
	return out, nil
}

// includePaths returns the element paths spec.Param reads on resourceType.
// "*" means every reference parameter of the type.
func (ev *evaluation) includePaths(resourceType string, spec IncludeSpec) []string {
	reg := ev.engine.registry
	if spec.Param != "*" {
		return []string{reg.FieldPath(resourceType, spec.Param)}
	}
	var paths []string
	for _, d := range reg.ReferenceParams(resourceType) {
		paths = append(paths, d.Path)
	}
	return paths
}

// includeTargets resolves the references spec.Param names on each resource.
// When spec.Source is not the resource's own type it names the target type
// instead, so _include=Patient:subject on Observations keeps the Patients.
func (ev *evaluation) includeTargets(from []*fhir.Resource, spec IncludeSpec) []*fhir.Resource {
	var out []*fhir.Resource
	for _, r := range from {
		targetType := spec.Target
		if spec.Source != "*" && r.Type() != spec.Source {
			if spec.Target != "" && spec.Target != spec.Source {
				continue
			}
			targetType = spec.Source
		}
		for _, path := range ev.includePaths(r.Type(), spec) {
			for _, rs := range referenceStrings(Access(r, path)) {
				parts, ok := fhir.ParseReference(rs.value)
				if !ok || parts.Contained {
					continue
				}
				if ev.resolve == nil {
					ev.diag.capability(ErrNoReferenceResolver, "_include",
						"_include=%s needs a reference resolver; none was supplied", spec)
					return out
				}
				target, ok := ev.resolve(ev.ctx, rs.value)
				if !ok || target == nil {
					continue
				}
				if targetType != "" && target.Type() != targetType {
					continue
				}
				out = append(out, target)
			}
		}
	}
	return out
}

func (ev *evaluation) revincludeSources(into []*fhir.Resource, spec IncludeSpec) []*fhir.Resource {
	if ev.corpus == nil {
		ev.diag.capability(fhir.ErrCapabilityUnavailable, "_revinclude",
			"_revinclude=%s needs a corpus to scan; none was supplied", spec)
		return nil
	}
	targets := make(map[string]bool, len(into))
	for _, r := range into {
		if spec.Target == "" || r.Type() == spec.Target {
			targets[r.Key()] = true
		}
	}
	if len(targets) == 0 {
		return nil
	}

	var scan []*fhir.Resource
	if spec.Source == "*" {
		scan = ev.corpus.AllResources()
	} else {
		scan = ev.corpus.AllResourcesOfType(spec.Source)
	}
	var out []*fhir.Resource
	for _, s := range scan {
		if ev.referencesAny(s, spec, targets) {
			out = append(out, s)
		}
	}
	return out
}

func (ev *evaluation) referencesAny(s *fhir.Resource, spec IncludeSpec, targets map[string]bool) bool {
	for _, path := range ev.includePaths(s.Type(), spec) {
		for _, rs := range referenceStrings(Access(s, path)) {
			parts, ok := fhir.ParseReference(rs.value)
			if !ok || parts.Contained {
				continue
			}
			if parts.Type == "" {
				parts.Type = rs.typ
			}
			if targets[parts.Key()] {
				return true
			}
		}
	}
	return false
}
