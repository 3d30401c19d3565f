// Package api exposes the search engine over HTTP: type-level search by GET
// and POST _search, read by id, and the server capability report.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/DNAi-inc/DNHealth-sub001/internal/platform/fhir"
	"github.com/DNAi-inc/DNHealth-sub001/internal/platform/search"
	"github.com/DNAi-inc/DNHealth-sub001/internal/platform/store"
)

// Config controls paging and link generation.
type Config struct {
	// ServerURL is the public FHIR base. Empty means scheme://host + BasePath
	// of each request.
	ServerURL string
	BasePath  string
	// DefaultCount applies when a search has no _count; larger _count
	// values are capped at MaxCount.
	DefaultCount int
	MaxCount     int
}

type Handler struct {
	engine *search.Engine
	store  *store.Store
	cfg    Config
	logger zerolog.Logger
}

func NewHandler(engine *search.Engine, st *store.Store, cfg Config, logger zerolog.Logger) *Handler {
	if cfg.BasePath == "" {
		cfg.BasePath = "/fhir"
	}
	if cfg.DefaultCount < 1 {
		cfg.DefaultCount = 20
	}
	if cfg.MaxCount < cfg.DefaultCount {
		cfg.MaxCount = cfg.DefaultCount
	}
	return &Handler{engine: engine, store: st, cfg: cfg, logger: logger}
}

func (h *Handler) RegisterRoutes(fhirGroup *echo.Group) {
	fhirGroup.GET("/metadata", h.Metadata)
	fhirGroup.GET("/_capabilities", h.EngineCapabilities)
	fhirGroup.GET("/:type", h.Search)
	fhirGroup.POST("/:type/_search", h.Search)
	fhirGroup.GET("/:type/:id", h.Read)
}

// Search runs a type-level search. POST bodies are form encoded and merged
// with the URL query.
func (h *Handler) Search(c echo.Context) error {
	rt := c.Param("type")
	if !fhir.IsKnownResourceType(rt) {
		return writeFHIR(c, http.StatusNotFound, fhir.NewOperationOutcome(
			fhir.IssueSeverityError, fhir.IssueTypeNotSupported, "unknown resource type: "+rt))
	}
	c.Set("resource_type", rt)

	values := c.QueryParams()
	if c.Request().Method == http.MethodPost {
		form, err := c.FormParams()
		if err != nil {
			return writeFHIR(c, http.StatusBadRequest, fhir.NewOperationOutcome(
				fhir.IssueSeverityError, fhir.IssueTypeInvalid, "malformed form body: "+err.Error()))
		}
		values = form
	}

	req, err := search.ParseQuery(rt, values)
	if err != nil {
		return h.searchError(c, err)
	}
	hostIssues := h.applyCount(req)

	snap := h.store.Snapshot()
	ctx := c.Request().Context()
	res, err := h.engine.Execute(ctx, snap.AllResourcesOfType(rt), req, snap.Resolve, snap)
	if err != nil {
		return h.searchError(c, err)
	}
	c.Set("total", res.Total)

	offset := 0
	if req.Offset != nil {
		offset = *req.Offset
	}
	serverURL := h.serverURL(c)
	bundle, err := fhir.NewSearchBundle(res.Matches, res.Included, search.Outcome(append(hostIssues, res.Issues...)), fhir.SearchBundleParams{
		ServerURL: serverURL,
		BaseURL:   serverURL + "/" + rt,
		QueryStr:  pagingQuery(values),
		Count:     *req.Count,
		Offset:    offset,
		Total:     res.Total,
		OmitTotal: req.Total == search.TotalNone,
	})
	if err != nil {
		return fmt.Errorf("build bundle: %w", err)
	}
	return writeFHIR(c, http.StatusOK, bundle)
}

// applyCount fills in the default page size and caps oversized pages.
// Values below one are left for the engine to reject.
func (h *Handler) applyCount(req *search.Request) []search.Issue {
	if req.Count == nil {
		req.Count = search.IntPtr(h.cfg.DefaultCount)
		return nil
	}
	if *req.Count > h.cfg.MaxCount {
		asked := *req.Count
		req.Count = search.IntPtr(h.cfg.MaxCount)
		return []search.Issue{{
			Severity:    fhir.IssueSeverityInformation,
			Code:        fhir.IssueTypeInformation,
			Diagnostics: fmt.Sprintf("_count=%d exceeds the server maximum; using %d", asked, h.cfg.MaxCount),
			Expression:  "_count",
		}}
	}
	return nil
}

func (h *Handler) searchError(c echo.Context, err error) error {
	ctx := c.Request().Context()
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded), errors.Is(ctx.Err(), context.Canceled):
		return err
	case errors.Is(err, search.ErrContractViolation):
		return writeFHIR(c, http.StatusBadRequest, fhir.NewOperationOutcome(
			fhir.IssueSeverityError, fhir.IssueTypeInvalid, err.Error()))
	case errors.Is(err, search.ErrScanLimitExceeded):
		return writeFHIR(c, http.StatusBadRequest, fhir.NewOperationOutcome(
			fhir.IssueSeverityError, fhir.IssueTypeTooCostly, err.Error()))
	case errors.Is(err, fhir.ErrCapabilityUnavailable):
		return writeFHIR(c, http.StatusNotImplemented, fhir.NewOperationOutcome(
			fhir.IssueSeverityError, fhir.IssueTypeNotSupported, err.Error()))
	}
	h.logger.Error().Err(err).Str("resource_type", c.Param("type")).Msg("search failed")
	return err
}

// Read returns one resource from the current snapshot.
func (h *Handler) Read(c echo.Context) error {
	rt, id := c.Param("type"), c.Param("id")
	if !fhir.IsKnownResourceType(rt) {
		return writeFHIR(c, http.StatusNotFound, fhir.NewOperationOutcome(
			fhir.IssueSeverityError, fhir.IssueTypeNotSupported, "unknown resource type: "+rt))
	}
	c.Set("resource_type", rt)
	r, ok := h.store.Snapshot().Get(rt, id)
	if !ok {
		return writeFHIR(c, http.StatusNotFound, fhir.NotFoundOutcome(rt, id))
	}
	mode, err := fhir.ParseSummaryMode(c.QueryParam("_summary"))
	if err != nil {
		return writeFHIR(c, http.StatusBadRequest, fhir.NewOperationOutcome(
			fhir.IssueSeverityError, fhir.IssueTypeInvalid, err.Error()))
	}
	p := fhir.Projection{Summary: mode}
	if el := c.QueryParam("_elements"); el != "" {
		p.Elements = strings.Split(el, ",")
	}
	if !p.IsZero() && mode != fhir.SummaryCount {
		r = p.Apply(r)
	}
	return writeFHIR(c, http.StatusOK, r)
}

// EngineCapabilities returns the modifier support table.
func (h *Handler) EngineCapabilities(c echo.Context) error {
	return c.JSON(http.StatusOK, h.engine.Capabilities())
}

func (h *Handler) serverURL(c echo.Context) string {
	if h.cfg.ServerURL != "" {
		return strings.TrimSuffix(h.cfg.ServerURL, "/")
	}
	return c.Scheme() + "://" + c.Request().Host + h.cfg.BasePath
}

// pagingQuery re-encodes the search without its paging controls, which the
// bundle links add back.
func pagingQuery(values url.Values) string {
	q := make(url.Values, len(values))
	for k, v := range values {
		if k == "_count" || k == "_offset" {
			continue
		}
		q[k] = v
	}
	return q.Encode()
}

func writeFHIR(c echo.Context, status int, v any) error {
	if c.Response().Header().Get(echo.HeaderContentType) == "" {
		c.Response().Header().Set(echo.HeaderContentType, FHIRContentType)
	}
	return c.JSON(status, v)
}
