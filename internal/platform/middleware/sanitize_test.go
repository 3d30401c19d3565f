package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func newSanitizeEcho() *echo.Echo {
	e := echo.New()
	e.Use(Sanitize(zerolog.Nop()))
	ok := func(c echo.Context) error { return c.String(http.StatusOK, "ok") }
	e.GET("/*", ok)
	return e
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		name   string
		target string
		header [2]string
		want   int
	}{
		{"plain search", "/fhir/Patient?name=O%27Brien&_sort=-birthdate", [2]string{}, http.StatusOK},
		{"text that looks like markup", "/fhir/Observation?value-string=%3Cb%3E+union+select", [2]string{}, http.StatusOK},
		{"dot dot", "/fhir/../etc/passwd", [2]string{}, http.StatusBadRequest},
		{"encoded dot dot", "/fhir/%2e%2e/etc", [2]string{}, http.StatusBadRequest},
		{"null in value", "/fhir/Patient?name=a%00b", [2]string{}, http.StatusBadRequest},
		{"null in key", "/fhir/Patient?na%00me=a", [2]string{}, http.StatusBadRequest},
		{"oversized header", "/fhir/Patient", [2]string{"X-Big", strings.Repeat("a", maxHeaderValueSize+1)}, http.StatusBadRequest},
	}
	e := newSanitizeEcho()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header[0] != "" {
				req.Header.Set(tt.header[0], tt.header[1])
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
			if tt.want == http.StatusBadRequest {
				var oo map[string]any
				if err := json.Unmarshal(rec.Body.Bytes(), &oo); err != nil || oo["resourceType"] != "OperationOutcome" {
					t.Errorf("body = %s", rec.Body.String())
				}
			}
		})
	}
}
