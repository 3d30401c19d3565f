package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/DNAi-inc/DNHealth-sub001/internal/platform/fhir"
)

// maxHeaderValueSize is the maximum allowed size for any single header value.
const maxHeaderValueSize = 8192

// Sanitize rejects requests whose path, headers or search parameters carry
// traversal sequences, NUL bytes or line breaks. Search values are matched
// in memory and never interpolated, so ordinary text (quotes, angle
// brackets, SQL keywords) passes through.
func Sanitize(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if reason := inspect(c.Request()); reason != "" {
				logger.Warn().
					Str("reason", reason).
					Str("path", c.Request().URL.Path).
					Str("remote_ip", c.RealIP()).
					Msg("request rejected")
				return c.JSON(http.StatusBadRequest, fhir.NewOperationOutcome(
					fhir.IssueSeverityError, fhir.IssueTypeInvalid, reason))
			}
			return next(c)
		}
	}
}

func inspect(req *http.Request) string {
	path, rawPath := req.URL.Path, req.URL.RawPath
	if rawPath == "" {
		rawPath = path
	}
	if containsPathTraversal(path) || containsPathTraversal(rawPath) {
		return "path traversal detected"
	}
	if containsNullByte(path) || containsNullByte(rawPath) {
		return "null byte in path"
	}
	for name, values := range req.Header {
		for _, v := range values {
			if len(v) > maxHeaderValueSize {
				return "header value exceeds maximum size: " + name
			}
			if strings.ContainsAny(v, "\r\n") {
				return "line break in header: " + name
			}
		}
	}
	for key, values := range req.URL.Query() {
		if containsNullByte(key) {
			return "null byte in search parameter name"
		}
		for _, v := range values {
			if containsNullByte(v) {
				return "null byte in search parameter " + key
			}
		}
	}
	return ""
}

// containsPathTraversal checks raw and percent-encoded forms.
func containsPathTraversal(s string) bool {
	lower := strings.ToLower(s)
	return strings.Contains(s, "..") || strings.Contains(lower, "%2e%2e") || strings.Contains(lower, "%252e")
}

func containsNullByte(s string) bool {
	return strings.ContainsRune(s, '\x00') || strings.Contains(strings.ToLower(s), "%00")
}
