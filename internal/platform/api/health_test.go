package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name   string
		pinger *fakePinger
		want   string
	}{
		{"no database", nil, "healthy"},
		{"database up", &fakePinger{}, "healthy"},
		{"database down", &fakePinger{err: errors.New("refused")}, "degraded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			h := HealthHandler(testStore(), nil)
			if tt.pinger != nil {
				h = HealthHandler(testStore(), *tt.pinger)
			}
			e.GET("/health", h)

			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
			var got healthResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got.Status != tt.want {
				t.Errorf("status = %q, want %q", got.Status, tt.want)
			}
			if got.Resources != 4 || got.Types["Patient"] != 3 {
				t.Errorf("resources = %d types = %v", got.Resources, got.Types)
			}
		})
	}
}
