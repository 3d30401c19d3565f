// Package search evaluates FHIR search requests against an in-memory set of
// resources: parameter matching, chains, reverse chains, sorting, paging,
// include/revinclude expansion and response projection.
package search

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/DNAi-inc/DNHealth-sub001/internal/platform/fhir"
)

// ReferenceResolver resolves a reference string ("Patient/1", an absolute
// URL) to a resource. It must be read-only and safe for concurrent use.
type ReferenceResolver func(ctx context.Context, reference string) (*fhir.Resource, bool)

// ValueSetMembership answers :in / :not-in lookups. Implementations return
// an error wrapping fhir.ErrCapabilityUnavailable when they cannot answer.
type ValueSetMembership interface {
	Contains(ctx context.Context, valueSet, system, code string) (bool, error)
}

// ExpressionEvaluator evaluates a FHIRPath expression for the expression
// query mode.
type ExpressionEvaluator interface {
	Evaluate(ctx context.Context, expression string, r *fhir.Resource) (bool, error)
}

// Corpus enumerates the resources reverse chains and _revinclude scan.
type Corpus interface {
	AllResources() []*fhir.Resource
	AllResourcesOfType(resourceType string) []*fhir.Resource
}

// Metrics receives execution measurements.
type Metrics interface {
	ObserveExecution(resourceType string, d time.Duration, matched int, err error)
	ObserveReverseChainScan(resourceType string, scanned int)
	ObserveIssue(severity, code string)
}

// MaxChainDepth bounds how many references one chained parameter follows.
const MaxChainDepth = 3

// Result is the outcome of one execution.
type Result struct {
	// Matches is the sorted, paginated and projected page.
	Matches []*fhir.Resource
	// Included holds _include/_revinclude resources, deduplicated against
	// the page and each other.
	Included []*fhir.Resource
	// Total is the number of matches before pagination.
	Total  int
	Issues []Issue
}

// Resources returns matches followed by included resources.
func (r *Result) Resources() []*fhir.Resource {
	out := make([]*fhir.Resource, 0, len(r.Matches)+len(r.Included))
	out = append(out, r.Matches...)
	return append(out, r.Included...)
}

// Engine executes search requests. It holds no per-request state and is
// safe for concurrent use.
type Engine struct {
	registry    *fhir.Registry
	terminology ValueSetMembership
	expressions ExpressionEvaluator
	logger      zerolog.Logger
	metrics     Metrics
	tracer      trace.Tracer
	parallelism int
	scanLimit   int
	strict      bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithRegistry sets the search parameter registry.
func WithRegistry(r *fhir.Registry) Option { return func(e *Engine) { e.registry = r } }

// WithTerminology sets the :in / :not-in membership service.
func WithTerminology(t ValueSetMembership) Option { return func(e *Engine) { e.terminology = t } }

// WithExpressionEvaluator enables the FHIRPath expression query mode.
func WithExpressionEvaluator(x ExpressionEvaluator) Option {
	return func(e *Engine) { e.expressions = x }
}

// WithLogger sets the logger used for issues and execution summaries.
func WithLogger(l zerolog.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithMetrics records execution, issue and scan metrics on m.
func WithMetrics(m Metrics) Option { return func(e *Engine) { e.metrics = m } }

// WithParallelism evaluates per-resource predicates on n goroutines.
// Result order is unaffected.
func WithParallelism(n int) Option { return func(e *Engine) { e.parallelism = n } }

// WithReverseChainScanLimit bounds the corpus scan of each _has clause.
// Zero means unbounded.
func WithReverseChainScanLimit(n int) Option { return func(e *Engine) { e.scanLimit = n } }

// WithStrictCapabilities makes Execute fail with the first capability error
// instead of degrading the affected parameter to no-match.
func WithStrictCapabilities() Option { return func(e *Engine) { e.strict = true } }

// NewEngine builds an engine. Without WithRegistry the default R4
// registry is used.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		logger:      zerolog.Nop(),
		tracer:      otel.Tracer("github.com/DNAi-inc/DNHealth-sub001/search"),
		parallelism: 1,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.registry == nil {
		e.registry = fhir.DefaultRegistry()
	}
	return e
}

// Registry returns the registry the engine dispatches on.
func (e *Engine) Registry() *fhir.Registry { return e.registry }

// evaluation carries the collaborators of a single Execute call.
type evaluation struct {
	ctx     context.Context
	engine  *Engine
	resolve ReferenceResolver
	corpus  Corpus
	diag    *diagnostics
}

// Execute runs req over candidates. resolve follows references for chains
// and _include; corpus is scanned for _has and _revinclude. Either may be
// nil, in which case the features that need them degrade to no-match with
// an issue.
//
// Order of operations: validation, reverse-chain narrowing, per-resource
// filtering (or the FHIRPath expression), total, sort, paginate, include,
// projection.
func (e *Engine) Execute(ctx context.Context, candidates []*fhir.Resource, req *Request, resolve ReferenceResolver, corpus Corpus) (res *Result, err error) {
	if req == nil {
		return nil, fmt.Errorf("%w: nil request", ErrContractViolation)
	}
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "search.Execute", trace.WithAttributes(
		attribute.String("fhir.resource_type", req.ResourceType),
		attribute.Int("search.candidates", len(candidates)),
		attribute.Int("search.params", len(req.Params)),
	))
	defer func() {
		matched := 0
		if res != nil {
			matched = res.Total
			span.SetAttributes(attribute.Int("search.total", res.Total))
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		if e.metrics != nil {
			e.metrics.ObserveExecution(req.ResourceType, time.Since(start), matched, err)
		}
	}()

	if err := req.validate(e.registry); err != nil {
		return nil, err
	}

	logger := e.logger.With().Str("resource_type", req.ResourceType).Logger()
	ev := &evaluation{
		ctx:     ctx,
		engine:  e,
		resolve: resolve,
		corpus:  corpus,
		diag:    newDiagnostics(logger, e.metrics),
	}

	var filtered []*fhir.Resource
	if req.Expression != "" {
		filtered, err = ev.filterByExpression(candidates, req.Expression)
	} else {
		filtered, err = ev.filterByParams(candidates, req.Params)
	}
	if err != nil {
		return nil, err
	}
	if e.strict && ev.diag.capErr != nil {
		return nil, ev.diag.capErr
	}

	total := len(filtered)
	sorted := ev.sortResources(filtered, req.Sort)
	page := paginate(sorted, req.Offset, req.Count)
	included, err := ev.expandIncludes(page, req.Include, req.RevInclude)
	if err != nil {
		return nil, err
	}

	res = &Result{Total: total}
	if req.Summary != fhir.SummaryCount {
		proj := req.projection()
		res.Matches = project(page, proj)
		res.Included = project(included, proj)
	}
	res.Issues = ev.diag.snapshot()
	return res, nil
}

func project(rs []*fhir.Resource, p fhir.Projection) []*fhir.Resource {
	if p.IsZero() {
		return rs
	}
	out := make([]*fhir.Resource, len(rs))
	for i, r := range rs {
		out[i] = p.Apply(r)
	}
	return out
}

// filterByParams narrows candidates by each _has clause in turn, then keeps
// the resources satisfying every remaining parameter.
func (ev *evaluation) filterByParams(candidates []*fhir.Resource, params []Parameter) ([]*fhir.Resource, error) {
	working := candidates
	var rest []Parameter
	for _, p := range params {
		if !isReverseChain(p.Name) {
			rest = append(rest, p)
			continue
		}
		clause, err := parseHasClause(p, ev.engine.registry)
		if err != nil {
			return nil, err
		}
		working, err = ev.narrowByHas(working, clause)
		if err != nil {
			return nil, err
		}
	}
	if len(rest) == 0 {
		return append([]*fhir.Resource(nil), working...), nil
	}
	return ev.filter(working, func(r *fhir.Resource) bool { return ev.matchesAll(r, rest) })
}

// filterByExpression replaces parameter filtering. A resource whose
// evaluation fails is skipped; the query continues.
func (ev *evaluation) filterByExpression(candidates []*fhir.Resource, expression string) ([]*fhir.Resource, error) {
	x := ev.engine.expressions
	if x == nil {
		ev.diag.capability(fhir.ErrCapabilityUnavailable, "_fhirpath", "FHIRPath expression queries are not available")
		return nil, nil
	}
	return ev.filter(candidates, func(r *fhir.Resource) bool {
		ok, err := x.Evaluate(ev.ctx, expression, r)
		if err != nil {
			ev.diag.add(Issue{
				Severity:    fhir.IssueSeverityWarning,
				Code:        fhir.IssueTypeProcessing,
				Diagnostics: "FHIRPath evaluation failed for some resources; they were skipped",
				Expression:  "_fhirpath",
			})
			ev.diag.logger.Debug().Err(err).Str("resource", r.Key()).Msg("fhirpath evaluation failed")
			return false
		}
		return ok
	})
}

// filter keeps the resources for which keep returns true, in input order.
func (ev *evaluation) filter(rs []*fhir.Resource, keep func(*fhir.Resource) bool) ([]*fhir.Resource, error) {
	flags := make([]bool, len(rs))
	n := ev.engine.parallelism
	if n <= 1 || len(rs) < 2*n {
		for i, r := range rs {
			if i%256 == 0 {
				if err := ev.ctx.Err(); err != nil {
					return nil, err
				}
			}
			flags[i] = keep(r)
		}
	} else {
		g, gctx := errgroup.WithContext(ev.ctx)
		chunk := (len(rs) + n - 1) / n
		for lo := 0; lo < len(rs); lo += chunk {
			hi := min(lo+chunk, len(rs))
			g.Go(func() error {
				for i := lo; i < hi; i++ {
					if err := gctx.Err(); err != nil {
						return err
					}
					flags[i] = keep(rs[i])
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}
	out := make([]*fhir.Resource, 0, len(rs))
	for i, r := range rs {
		if flags[i] {
			out = append(out, r)
		}
	}
	return out, nil
}

// MatchesAll evaluates params against one resource outside of Execute.
// Reverse-chain parameters are ignored; they only narrow via the corpus.
func (e *Engine) MatchesAll(ctx context.Context, r *fhir.Resource, params []Parameter, resolve ReferenceResolver) bool {
	ev := &evaluation{ctx: ctx, engine: e, resolve: resolve, diag: newDiagnostics(e.logger, e.metrics)}
	return ev.matchesAll(r, params)
}
