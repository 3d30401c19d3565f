package fhir

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestReadNDJSON(t *testing.T) {
	input := `{"resourceType":"Patient","id":"1"}

{"resourceType":"Observation","id":"o1","valueQuantity":{"value":1.50}}
  ` + "\r" + `
`
	var keys []string
	err := ReadNDJSON(strings.NewReader(input), func(r *Resource) error {
		keys = append(keys, r.Key())
		return nil
	})
	if err != nil {
		t.Fatalf("ReadNDJSON: %v", err)
	}
	if diff := cmp.Diff([]string{"Patient/1", "Observation/o1"}, keys); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}
}

func TestReadNDJSON_ReportsLine(t *testing.T) {
	input := "{\"resourceType\":\"Patient\",\"id\":\"1\"}\n{\"id\":\"2\"}\n"
	err := ReadNDJSON(strings.NewReader(input), func(*Resource) error { return nil })
	if err == nil || !strings.HasPrefix(err.Error(), "line 2:") {
		t.Errorf("err = %v, want a line 2 error", err)
	}
}

func TestNDJSONWriter_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewNDJSONWriter(&buf)
	for _, id := range []string{"a", "b"} {
		if err := w.WriteResource(MustResource(map[string]any{"resourceType": "Patient", "id": id})); err != nil {
			t.Fatalf("WriteResource: %v", err)
		}
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if got := strings.Count(buf.String(), "\n"); got != 2 {
		t.Errorf("lines = %d, want 2", got)
	}

	var ids []string
	if err := ReadNDJSON(&buf, func(r *Resource) error { ids = append(ids, r.ID()); return nil }); err != nil {
		t.Fatalf("ReadNDJSON: %v", err)
	}
	if diff := cmp.Diff([]string{"a", "b"}, ids); diff != "" {
		t.Errorf("ids mismatch (-want +got):\n%s", diff)
	}
}
