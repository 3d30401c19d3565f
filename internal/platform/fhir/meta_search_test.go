package fhir

import "testing"

func TestCodingMatch_MatchesPair(t *testing.T) {
	tests := []struct {
		query  string
		system string
		code   string
		want   bool
	}{
		{"important", "http://example.org", "important", true},
		{"IMPORTANT", "http://example.org", "important", true},
		{"http://example.org|important", "http://example.org", "important", true},
		{"http://other.org|important", "http://example.org", "important", false},
		{"http://example.org|", "http://example.org", "anything", true},
		{"|important", "", "important", true},
		{"|important", "http://example.org", "important", false},
		{"", "http://example.org", "important", false},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			if got := ParseCodingMatch(tt.query).MatchesPair(tt.system, tt.code); got != tt.want {
				t.Errorf("%q against (%q, %q) = %v, want %v", tt.query, tt.system, tt.code, got, tt.want)
			}
		})
	}
}

func TestMatchMetaCodings(t *testing.T) {
	r := MustResource(map[string]any{
		"resourceType": "Patient",
		"id":           "1",
		"meta": map[string]any{
			"tag":      []any{map[string]any{"system": "http://example.org/tags", "code": "vip"}},
			"security": []any{map[string]any{"system": "http://terminology.hl7.org/CodeSystem/v3-Confidentiality", "code": "R"}},
			"profile":  []any{"http://example.org/StructureDefinition/p"},
		},
	})
	if !MatchMetaCodings(r, MetaParamTag, []CodingMatch{ParseCodingMatch("x"), ParseCodingMatch("vip")}) {
		t.Error("_tag=x,vip should match")
	}
	if MatchMetaCodings(r, MetaParamTag, []CodingMatch{ParseCodingMatch("R")}) {
		t.Error("_tag=R should not match a security label")
	}
	if !MatchMetaCodings(r, MetaParamSecurity, []CodingMatch{ParseCodingMatch("R")}) {
		t.Error("_security=R should match")
	}
	if !MatchProfile(r, []string{"http://example.org/StructureDefinition/p"}) {
		t.Error("profile should match")
	}
	if MatchProfile(r, []string{"http://example.org/StructureDefinition/q"}) {
		t.Error("other profile should not match")
	}
}

func TestIsMetaSearchParam(t *testing.T) {
	for _, p := range []string{"_tag", "_security", "_profile"} {
		if !IsMetaSearchParam(p) {
			t.Errorf("IsMetaSearchParam(%q) = false", p)
		}
	}
	if IsMetaSearchParam("_id") {
		t.Error("IsMetaSearchParam(_id) = true")
	}
}
