package api

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/DNAi-inc/DNHealth-sub001/internal/platform/fhir"
)

// FHIRContentType is the FHIR JSON content type with charset.
const FHIRContentType = "application/fhir+json; charset=utf-8"

// Format negotiates the response format. _format wins over Accept; only
// JSON is served, XML and unknown formats get a 406.
func Format() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if format := c.QueryParam("_format"); format != "" {
				if !isJSONFormat(format) {
					return notAcceptable(c, "unsupported _format: "+format)
				}
			} else if accept := c.Request().Header.Get(echo.HeaderAccept); accept != "" && !acceptsJSON(accept) {
				return notAcceptable(c, "Accept does not include a JSON media type")
			}
			c.Response().Header().Set(echo.HeaderContentType, FHIRContentType)
			return next(c)
		}
	}
}

func notAcceptable(c echo.Context, msg string) error {
	return c.JSON(http.StatusNotAcceptable, fhir.NewOperationOutcome(
		fhir.IssueSeverityError, fhir.IssueTypeNotSupported, msg))
}

// isJSONFormat accepts the _format spellings for JSON. Query decoding turns
// "fhir+json" into "fhir json".
func isJSONFormat(raw string) bool {
	f := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), "fhir json", "fhir+json")
	switch f {
	case "json", "application/json", "application/fhir+json":
		return true
	}
	return false
}

func acceptsJSON(accept string) bool {
	for _, part := range strings.Split(accept, ",") {
		mt, _, _ := strings.Cut(part, ";")
		switch strings.ToLower(strings.TrimSpace(mt)) {
		case "application/fhir+json", "application/json", "application/*", "*/*":
			return true
		}
	}
	return false
}
