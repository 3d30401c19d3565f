// Package store holds the resource corpus searches run against. A Store
// publishes immutable snapshots; loaders build them from NDJSON or Bundle
// files and from a Postgres table.
package store

import (
	"context"
	"sort"

	"github.com/DNAi-inc/DNHealth-sub001/internal/platform/fhir"
)

// Snapshot is an immutable, indexed set of resources. It implements
// search.Corpus and its Resolve method is a search.ReferenceResolver.
type Snapshot struct {
	all    []*fhir.Resource
	byType map[string][]*fhir.Resource
	byKey  map[string]*fhir.Resource
}

// NewSnapshot indexes rs. A later resource with the same Type/id replaces
// an earlier one; load order is otherwise kept.
func NewSnapshot(rs []*fhir.Resource) *Snapshot {
	s := &Snapshot{
		byType: make(map[string][]*fhir.Resource),
		byKey:  make(map[string]*fhir.Resource, len(rs)),
	}
	pos := make(map[string]int, len(rs))
	for _, r := range rs {
		if r == nil || r.ID() == "" {
			continue
		}
		if i, ok := pos[r.Key()]; ok {
			s.all[i] = r
		} else {
			pos[r.Key()] = len(s.all)
			s.all = append(s.all, r)
		}
		s.byKey[r.Key()] = r
	}
	for _, r := range s.all {
		s.byType[r.Type()] = append(s.byType[r.Type()], r)
	}
	return s
}

func (s *Snapshot) AllResources() []*fhir.Resource { return s.all }

func (s *Snapshot) AllResourcesOfType(resourceType string) []*fhir.Resource {
	return s.byType[resourceType]
}

// Get returns the resource with the given type and id.
func (s *Snapshot) Get(resourceType, id string) (*fhir.Resource, bool) {
	r, ok := s.byKey[resourceType+"/"+id]
	return r, ok
}

// Resolve looks up a relative ("Patient/1"), versioned
// ("Patient/1/_history/2") or absolute reference. Absolute URLs resolve by
// their trailing Type/id. A versioned reference only resolves when it
// names the stored meta.versionId.
func (s *Snapshot) Resolve(_ context.Context, reference string) (*fhir.Resource, bool) {
	parts, ok := fhir.ParseReference(reference)
	if !ok || parts.Type == "" || parts.Contained {
		return nil, false
	}
	r, ok := s.Get(parts.Type, parts.ID)
	if !ok {
		return nil, false
	}
	if parts.Version != "" && r.Get("meta").FieldText("versionId") != parts.Version {
		return nil, false
	}
	return r, true
}

// Len returns the number of resources.
func (s *Snapshot) Len() int { return len(s.all) }

// Counts returns the number of resources per type.
func (s *Snapshot) Counts() map[string]int {
	out := make(map[string]int, len(s.byType))
	for rt, rs := range s.byType {
		out[rt] = len(rs)
	}
	return out
}

// Types returns the resource types present, sorted.
func (s *Snapshot) Types() []string {
	out := make([]string, 0, len(s.byType))
	for rt := range s.byType {
		out = append(out, rt)
	}
	sort.Strings(out)
	return out
}
