package store

import (
	"context"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/DNAi-inc/DNHealth-sub001/internal/platform/fhir"
)

func res(rt, id string, extra ...any) *fhir.Resource {
	data := map[string]any{"resourceType": rt, "id": id}
	for i := 0; i+1 < len(extra); i += 2 {
		data[extra[i].(string)] = extra[i+1]
	}
	return fhir.MustResource(data)
}

func keys(rs []*fhir.Resource) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.Key())
	}
	return out
}

func TestSnapshot_Indexes(t *testing.T) {
	s := NewSnapshot([]*fhir.Resource{
		res("Patient", "1"),
		res("Observation", "o1"),
		res("Patient", "2"),
		res("Patient", "1", "gender", "female"),
		res("Patient", ""),
		nil,
	})
	if diff := cmp.Diff([]string{"Patient/1", "Observation/o1", "Patient/2"}, keys(s.AllResources())); diff != "" {
		t.Errorf("AllResources mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Patient/1", "Patient/2"}, keys(s.AllResourcesOfType("Patient"))); diff != "" {
		t.Errorf("AllResourcesOfType mismatch (-want +got):\n%s", diff)
	}
	p, ok := s.Get("Patient", "1")
	if !ok || p.Get("gender").Raw() != "female" {
		t.Errorf("later duplicate should win, got %v", p)
	}
	if diff := cmp.Diff(map[string]int{"Patient": 2, "Observation": 1}, s.Counts()); diff != "" {
		t.Errorf("Counts mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Observation", "Patient"}, s.Types()); diff != "" {
		t.Errorf("Types mismatch (-want +got):\n%s", diff)
	}
}

func TestSnapshot_Resolve(t *testing.T) {
	s := NewSnapshot([]*fhir.Resource{
		res("Patient", "1", "meta", map[string]any{"versionId": "3"}),
	})
	tests := []struct {
		ref  string
		want bool
	}{
		{"Patient/1", true},
		{"http://example.org/fhir/Patient/1", true},
		{"Patient/1/_history/3", true},
		{"Patient/1/_history/2", false},
		{"Patient/2", false},
		{"1", false},
		{"#1", false},
	}
	ctx := context.Background()
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			if _, ok := s.Resolve(ctx, tt.ref); ok != tt.want {
				t.Errorf("Resolve(%q) = %v, want %v", tt.ref, ok, tt.want)
			}
		})
	}
}

func TestStore_Replace(t *testing.T) {
	st := New()
	if st.Snapshot().Len() != 0 {
		t.Fatalf("new store should be empty")
	}
	before := st.Snapshot()
	st.Replace([]*fhir.Resource{res("Patient", "1")})
	if before.Len() != 0 {
		t.Error("an old snapshot must not change after Replace")
	}
	if st.Snapshot().Len() != 1 {
		t.Errorf("Len = %d, want 1", st.Snapshot().Len())
	}
	if st.LoadedAt().IsZero() {
		t.Error("LoadedAt not set")
	}
}

func TestStore_ConcurrentReaders(t *testing.T) {
	st := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				snap := st.Snapshot()
				if n := len(snap.AllResourcesOfType("Patient")); n != 0 && n != 2 {
					t.Errorf("saw partial snapshot with %d patients", n)
					return
				}
			}
		}()
	}
	for j := 0; j < 50; j++ {
		st.Replace([]*fhir.Resource{res("Patient", "1"), res("Patient", "2")})
	}
	wg.Wait()
}
