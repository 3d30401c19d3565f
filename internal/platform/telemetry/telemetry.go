// Package telemetry wires Prometheus metrics and OpenTelemetry tracing
// into the search service: search engine measurements, HTTP request
// metrics and server spans for the echo host.
package telemetry

import (
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/DNAi-inc/DNHealth-sub001/telemetry"

// TracingMiddleware starts a server span per request, continuing any trace
// context carried in the request headers. Spans are named after the route
// pattern, not the raw path.
func TracingMiddleware() echo.MiddlewareFunc {
	tracer := otel.Tracer(instrumentationName)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			ctx := otel.GetTextMapPropagator().Extract(req.Context(), propagation.HeaderCarrier(req.Header))

			route := routeOf(c)
			ctx, span := tracer.Start(ctx, "HTTP "+req.Method+" "+route,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("http.request.method", req.Method),
					attribute.String("http.route", route),
					attribute.String("url.path", req.URL.Path),
				))
			defer span.End()
			if rt := extractFHIRResourceType(req.URL.Path); rt != "" {
				span.SetAttributes(attribute.String("fhir.resource_type", rt))
			}

			c.SetRequest(req.WithContext(ctx))
			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			span.SetAttributes(attribute.Int("http.response.status_code", status))
			if err != nil {
				span.RecordError(err)
			}
			if status >= 500 {
				span.SetStatus(codes.Error, "HTTP "+strconv.Itoa(status))
			}
			return err
		}
	}
}

// MetricsMiddleware records request count and latency on m.
func MetricsMiddleware(m *Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			m.httpInFlight.Inc()
			start := time.Now()
			err := next(c)
			m.httpInFlight.Dec()

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			route := routeOf(c)
			code := strconv.Itoa(status)
			m.httpRequests.WithLabelValues(c.Request().Method, route, code).Inc()
			m.httpDuration.WithLabelValues(c.Request().Method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

func routeOf(c echo.Context) string {
	if p := c.Path(); p != "" {
		return p
	}
	return c.Request().URL.Path
}

// extractFHIRResourceType returns the resource type segment after /fhir/.
// It returns "" for non-FHIR paths, operation paths ($export), or empty
// segments.
func extractFHIRResourceType(path string) string {
	const prefix = "/fhir/"
	idx := strings.Index(path, prefix)
	if idx < 0 {
		return ""
	}

	rest := path[idx+len(prefix):]
	if slashIdx := strings.IndexByte(rest, '/'); slashIdx >= 0 {
		rest = rest[:slashIdx]
	}

	// FHIR resource types are PascalCase.
	if rest == "" || !unicode.IsUpper(rune(rest[0])) {
		return ""
	}
	return rest
}
