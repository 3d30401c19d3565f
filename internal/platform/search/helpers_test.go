package search

import (
	"context"
	"testing"

	"github.com/DNAi-inc/DNHealth-sub001/internal/platform/fhir"
)

func mustResource(t testing.TB, doc string) *fhir.Resource {
	t.Helper()
	r, err := fhir.ParseResource([]byte(doc))
	if err != nil {
		t.Fatalf("ParseResource(%s): %v", doc, err)
	}
	return r
}

// testCorpus is a slice-backed Corpus and ReferenceResolver.
type testCorpus []*fhir.Resource

func (c testCorpus) AllResources() []*fhir.Resource { return c }

func (c testCorpus) AllResourcesOfType(resourceType string) []*fhir.Resource {
	var out []*fhir.Resource
	for _, r := range c {
		if r.Type() == resourceType {
			out = append(out, r)
		}
	}
	return out
}

func (c testCorpus) resolve(_ context.Context, reference string) (*fhir.Resource, bool) {
	parts, ok := fhir.ParseReference(reference)
	if !ok {
		return nil, false
	}
	for _, r := range c {
		if r.Key() == parts.Key() {
			return r, true
		}
	}
	return nil, false
}

func resourceKeys(rs []*fhir.Resource) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Key()
	}
	return out
}

func execute(t *testing.T, e *Engine, candidates []*fhir.Resource, req *Request, corpus testCorpus) *Result {
	t.Helper()
	res, err := e.Execute(context.Background(), candidates, req, corpus.resolve, corpus)
	if err != nil {
		t.Fatalf("Execute(%+v): %v", req, err)
	}
	return res
}

func matchKeys(t *testing.T, e *Engine, corpus testCorpus, resourceType string, params ...Parameter) []string {
	t.Helper()
	res := execute(t, e, corpus.AllResourcesOfType(resourceType), &Request{ResourceType: resourceType, Params: params}, corpus)
	return resourceKeys(res.Matches)
}

func patients(t testing.TB) testCorpus {
	return testCorpus{
		mustResource(t, `{"resourceType":"Patient","id":"1","gender":"male","birthDate":"1999-12-31",
			"name":[{"family":"Smith","given":["John"]}],
			"identifier":[{"system":"http://hospital/mrn","value":"MRN-1"}]}`),
		mustResource(t, `{"resourceType":"Patient","id":"2","gender":"female","birthDate":"2000-06-15",
			"name":[{"family":"Jones","given":["Ann"]}],
			"telecom":[{"system":"email","value":"ann@example.org"}]}`),
		mustResource(t, `{"resourceType":"Patient","id":"3","gender":"male",
			"name":[{"family":"Müller","given":["Jörg"]}]}`),
		mustResource(t, `{"resourceType":"Patient","id":"4","birthDate":"1980-03",
			"name":[{"text":"Unknown Smithson"}]}`),
	}
}
