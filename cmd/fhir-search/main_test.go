package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/DNAi-inc/DNHealth-sub001/internal/config"
	"github.com/DNAi-inc/DNHealth-sub001/internal/platform/fhir"
	"github.com/DNAi-inc/DNHealth-sub001/internal/platform/search"
	"github.com/DNAi-inc/DNHealth-sub001/internal/platform/store"
	"github.com/DNAi-inc/DNHealth-sub001/internal/platform/terminology"
)

func testConfig(corpus string) *config.Config {
	return &config.Config{
		Env: "test", CorpusPath: corpus, ResourceTable: "fhir_resources",
		TerminologyTimeout: time.Second, SearchDefaultCount: 20, SearchMaxCount: 100,
		SearchParallelism: 2,
	}
}

func TestCorpusSource_LoadFiles(t *testing.T) {
	dir := t.TempDir()
	ndjson := `{"resourceType":"Patient","id":"a"}
{"resourceType":"Patient","id":"b"}
`
	if err := os.WriteFile(filepath.Join(dir, "patients.ndjson"), []byte(ndjson), 0o600); err != nil {
		t.Fatal(err)
	}

	src, err := openCorpus(context.Background(), testConfig(dir), zerolog.Nop())
	if err != nil {
		t.Fatalf("openCorpus: %v", err)
	}
	defer src.Close()
	if src.pool != nil {
		t.Fatal("no DATABASE_URL should mean no pool")
	}
	rs, err := src.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(rs) != 2 {
		t.Errorf("loaded %d resources, want 2", len(rs))
	}
}

func TestNewEngine_ValueSetsFromCorpus(t *testing.T) {
	snap := store.NewSnapshot([]*fhir.Resource{
		fhir.MustResource(map[string]any{
			"resourceType": "ValueSet", "id": "vitals",
			"url": "http://example.org/ValueSet/vitals",
			"compose": map[string]any{"include": []any{map[string]any{
				"system":  "http://loinc.org",
				"concept": []any{map[string]any{"code": "8480-6"}},
			}}},
		}),
		fhir.MustResource(map[string]any{
			"resourceType": "Observation", "id": "o1",
			"code": map[string]any{"coding": []any{map[string]any{"system": "http://loinc.org", "code": "8480-6"}}},
		}),
		fhir.MustResource(map[string]any{
			"resourceType": "Observation", "id": "o2",
			"code": map[string]any{"coding": []any{map[string]any{"system": "http://loinc.org", "code": "1234-5"}}},
		}),
	})
	eng, mem := newEngine(testConfig("unused"), zerolog.Nop(), nil, snap)

	ok, err := mem.Contains(context.Background(), "http://example.org/ValueSet/vitals", "http://loinc.org", "8480-6")
	if err != nil || !ok {
		t.Fatalf("Contains = %v, %v; want true", ok, err)
	}

	req := &search.Request{
		ResourceType: "Observation",
		Params:       []search.Parameter{{Name: "code", Modifier: "in", Value: "http://example.org/ValueSet/vitals"}},
	}
	res, err := eng.Execute(context.Background(), snap.AllResourcesOfType("Observation"), req, snap.Resolve, snap)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Total != 1 || res.Matches[0].ID() != "o1" {
		t.Errorf("code:in matched %d resources", res.Total)
	}
}

func TestLoadValueSets_ReloadForgetsRemovedSets(t *testing.T) {
	vitals := fhir.MustResource(map[string]any{
		"resourceType": "ValueSet", "id": "vitals",
		"url": "http://example.org/ValueSet/vitals",
		"compose": map[string]any{"include": []any{map[string]any{"system": "http://loinc.org"}}},
	})
	_, mem := newEngine(testConfig("unused"), zerolog.Nop(), nil, store.NewSnapshot([]*fhir.Resource{vitals}))
	if ok, err := mem.Contains(context.Background(), "http://example.org/ValueSet/vitals", "http://loinc.org", "8480-6"); err != nil || !ok {
		t.Fatalf("Contains before reload = %v, %v; want true", ok, err)
	}

	loadValueSets(mem, store.NewSnapshot(nil), zerolog.Nop())
	_, err := mem.Contains(context.Background(), "http://example.org/ValueSet/vitals", "http://loinc.org", "8480-6")
	if !errors.Is(err, terminology.ErrUnknownValueSet) {
		t.Errorf("Contains after reload err = %v, want ErrUnknownValueSet", err)
	}
}
