package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/DNAi-inc/DNHealth-sub001/internal/platform/fhir"
)

// scrape renders m's registry in the text exposition format.
func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("scrape status = %d", rec.Code)
	}
	return rec.Body.String()
}

func assertSeries(t *testing.T, body string, series ...string) {
	t.Helper()
	for _, s := range series {
		if !strings.Contains(body, s+"\n") {
			t.Errorf("exposition missing %q", s)
		}
	}
}

func TestMetrics_ObserveExecution(t *testing.T) {
	m := NewMetrics(nil)
	m.ObserveExecution("Patient", 3*time.Millisecond, 4, nil)
	m.ObserveExecution("Patient", time.Millisecond, 0, errors.New("boom"))
	m.ObserveExecution("Patient", time.Millisecond, 0, fmt.Errorf("x: %w", fhir.ErrCapabilityUnavailable))

	assertSeries(t, scrape(t, m),
		`fhir_search_executions_total{outcome="ok",resource_type="Patient"} 1`,
		`fhir_search_executions_total{outcome="error",resource_type="Patient"} 1`,
		`fhir_search_executions_total{outcome="unavailable",resource_type="Patient"} 1`,
		`fhir_search_duration_seconds_count{resource_type="Patient"} 3`,
		`fhir_search_matches_count{resource_type="Patient"} 1`,
		`fhir_search_matches_sum{resource_type="Patient"} 4`,
	)
}

func TestMetrics_IssuesAndScans(t *testing.T) {
	m := NewMetrics(nil)
	m.ObserveIssue(fhir.IssueSeverityWarning, fhir.IssueTypeNotSupported)
	m.ObserveIssue(fhir.IssueSeverityWarning, fhir.IssueTypeNotSupported)
	m.ObserveReverseChainScan("Observation", 120)

	assertSeries(t, scrape(t, m),
		`fhir_search_issues_total{code="not-supported",severity="warning"} 2`,
		`fhir_search_reverse_chain_scanned_count{resource_type="Observation"} 1`,
		`fhir_search_reverse_chain_scanned_sum{resource_type="Observation"} 120`,
	)
}

func TestMetrics_SetCorpusCounts(t *testing.T) {
	m := NewMetrics(nil)
	m.SetCorpusCounts(map[string]int{"Patient": 3, "Observation": 10})
	m.SetCorpusCounts(map[string]int{"Patient": 5})

	body := scrape(t, m)
	assertSeries(t, body, `fhir_corpus_resources{resource_type="Patient"} 5`)
	if strings.Contains(body, `fhir_corpus_resources{resource_type="Observation"}`) {
		t.Error("stale Observation series survived the reset")
	}
}

func TestMetricsMiddleware(t *testing.T) {
	m := NewMetrics(nil)
	e := echo.New()
	e.Use(MetricsMiddleware(m))
	e.GET("/fhir/:type", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/boom", func(c echo.Context) error { return echo.NewHTTPError(http.StatusBadGateway) })

	for _, path := range []string{"/fhir/Patient", "/fhir/Observation", "/boom"} {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assertSeries(t, scrape(t, m),
		`http_requests_total{method="GET",route="/fhir/:type",status="200"} 2`,
		`http_requests_total{method="GET",route="/boom",status="502"} 1`,
		`http_requests_in_flight 0`,
	)
}

func TestTracingMiddleware(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	e := echo.New()
	e.Use(TracingMiddleware())
	e.GET("/fhir/:type", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/fail", func(c echo.Context) error { return c.NoContent(http.StatusInternalServerError) })

	for _, path := range []string{"/fhir/Patient", "/fail"} {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("spans = %d, want 2", len(spans))
	}
	if spans[0].Name != "HTTP GET /fhir/:type" {
		t.Errorf("span name = %q", spans[0].Name)
	}
	var rt string
	for _, a := range spans[0].Attributes {
		if a.Key == "fhir.resource_type" {
			rt = a.Value.AsString()
		}
	}
	if rt != "Patient" {
		t.Errorf("fhir.resource_type = %q, want Patient", rt)
	}
	if spans[1].Status.Code.String() != "Error" {
		t.Errorf("5xx span status = %v, want Error", spans[1].Status.Code)
	}
}

func TestInitTracing_NoEndpoint(t *testing.T) {
	p, err := InitTracing(context.Background(), TracingConfig{ServiceName: "fhir-search"})
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func TestSampler(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{1, "AlwaysOnSampler"},
		{2, "AlwaysOnSampler"},
		{0, "AlwaysOffSampler"},
		{0.5, "ParentBased{root:TraceIDRatioBased{0.5}"},
	}
	for _, tt := range tests {
		if got := sampler(tt.rate).Description(); !strings.HasPrefix(got, tt.want) {
			t.Errorf("sampler(%v) = %q, want prefix %q", tt.rate, got, tt.want)
		}
	}
}

func TestExtractFHIRResourceType(t *testing.T) {
	tests := []struct {
		path, want string
	}{
		{"/fhir/Patient", "Patient"},
		{"/fhir/Patient/123", "Patient"},
		{"/fhir/Observation/_search", "Observation"},
		{"/fhir/metadata", ""},
		{"/fhir/", ""},
		{"/health", ""},
	}
	for _, tt := range tests {
		if got := extractFHIRResourceType(tt.path); got != tt.want {
			t.Errorf("extractFHIRResourceType(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
