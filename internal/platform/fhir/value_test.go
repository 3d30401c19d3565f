package fhir

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestValueOf(t *testing.T) {
	tests := []struct {
		name  string
		raw   any
		kind  Kind
		empty bool
		items int
	}{
		{"nil", nil, KindAbsent, true, 0},
		{"string", "x", KindScalar, false, 1},
		{"number", json.Number("1.5"), KindScalar, false, 1},
		{"bool", true, KindScalar, false, 1},
		{"object", map[string]any{"a": "b"}, KindComplex, false, 1},
		{"empty list", []any{}, KindList, true, 0},
		{"list with null", []any{"a", nil, "b"}, KindList, false, 2},
		{"unsupported", struct{}{}, KindAbsent, true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := ValueOf(tt.raw)
			if v.Kind() != tt.kind {
				t.Errorf("Kind() = %v, want %v", v.Kind(), tt.kind)
			}
			if v.IsEmpty() != tt.empty {
				t.Errorf("IsEmpty() = %v, want %v", v.IsEmpty(), tt.empty)
			}
			if n := len(v.Items()); n != tt.items {
				t.Errorf("len(Items()) = %d, want %d", n, tt.items)
			}
		})
	}
}

func TestValue_Text(t *testing.T) {
	tests := []struct {
		raw  any
		want string
		ok   bool
	}{
		{"abc", "abc", true},
		{json.Number("0.10"), "0.10", true},
		{float64(2.5), "2.5", true},
		{false, "false", true},
		{int64(7), "7", true},
		{map[string]any{}, "", false},
	}
	for _, tt := range tests {
		got, ok := ValueOf(tt.raw).Text()
		if got != tt.want || ok != tt.ok {
			t.Errorf("ValueOf(%v).Text() = (%q, %v), want (%q, %v)", tt.raw, got, ok, tt.want, tt.ok)
		}
	}
}

func TestValue_Leaves(t *testing.T) {
	v := ValueOf(map[string]any{
		"family": "Smith",
		"given":  []any{"John", "Q"},
		"period": map[string]any{"start": "2020"},
	})
	want := []string{"Smith", "John", "Q", "2020"}
	if diff := cmp.Diff(want, v.Leaves()); diff != "" {
		t.Errorf("Leaves() mismatch (-want +got):\n%s", diff)
	}
}

func TestValue_FieldOnNonObject(t *testing.T) {
	if !ValueOf("x").Field("a").IsAbsent() {
		t.Error("Field on a scalar should be absent")
	}
	if ValueOf(map[string]any{"a": "b"}).FieldText("a") != "b" {
		t.Error("FieldText(a) should be b")
	}
}
