package search

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/DNAi-inc/DNHealth-sub001/internal/platform/fhir"
)

var (
	// ErrContractViolation is returned for requests the engine refuses to run:
	// _count < 1, _offset < 0, an unknown type in _has, malformed control values.
	ErrContractViolation = errors.New("search: contract violation")
	// ErrScanLimitExceeded is returned when a reverse-chain scan would read
	// more resources than the configured bound.
	ErrScanLimitExceeded = errors.New("search: reverse-chain scan limit exceeded")
	// ErrNoReferenceResolver is recorded when a chain or include needs to
	// follow a reference and no resolver was supplied.
	ErrNoReferenceResolver = fmt.Errorf("%w: no reference resolver", fhir.ErrCapabilityUnavailable)
)

// Issue is a non-fatal diagnostic produced while executing a search. It maps
// onto an OperationOutcome issue.
type Issue struct {
	Severity    string
	Code        string
	Diagnostics string
	Expression  string
}

// OperationOutcomeIssue converts the issue for a response body.
func (i Issue) OperationOutcomeIssue() fhir.OperationOutcomeIssue {
	out := fhir.OperationOutcomeIssue{
		Severity:    i.Severity,
		Code:        i.Code,
		Diagnostics: i.Diagnostics,
	}
	if i.Expression != "" {
		out.Expression = []string{i.Expression}
	}
	return out
}

// Outcome bundles issues into an OperationOutcome, or nil when there are none.
func Outcome(issues []Issue) *fhir.OperationOutcome {
	if len(issues) == 0 {
		return nil
	}
	out := make([]fhir.OperationOutcomeIssue, len(issues))
	for i, is := range issues {
		out[i] = is.OperationOutcomeIssue()
	}
	return fhir.MultipleIssuesOutcome(out)
}

// diagnostics collects the issues of one execution. Identical issues are
// recorded once; it is safe for concurrent use.
type diagnostics struct {
	mu      sync.Mutex
	seen    map[Issue]bool
	issues  []Issue
	logger  zerolog.Logger
	metrics Metrics
	// capErr is the first capability failure, surfaced in strict mode.
	capErr error
}

func newDiagnostics(logger zerolog.Logger, metrics Metrics) *diagnostics {
	return &diagnostics{seen: make(map[Issue]bool), logger: logger, metrics: metrics}
}

func (d *diagnostics) add(is Issue) {
	d.mu.Lock()
	if d.seen[is] {
		d.mu.Unlock()
		return
	}
	d.seen[is] = true
	d.issues = append(d.issues, is)
	d.mu.Unlock()

	evt := d.logger.Debug()
	if is.Severity == fhir.IssueSeverityWarning || is.Severity == fhir.IssueSeverityError {
		evt = d.logger.Warn()
	}
	evt.Str("severity", is.Severity).
		Str("code", is.Code).
		Str("expression", is.Expression).
		Msg(is.Diagnostics)
	if d.metrics != nil {
		d.metrics.ObserveIssue(is.Severity, is.Code)
	}
}

// capability records an unavailable collaborator. The parameter it affects
// evaluates to no-match.
func (d *diagnostics) capability(err error, expression, format string, args ...any) {
	d.mu.Lock()
	if d.capErr == nil {
		d.capErr = fmt.Errorf("%s: %w", expression, err)
	}
	d.mu.Unlock()
	d.add(Issue{
		Severity:    fhir.IssueSeverityError,
		Code:        fhir.IssueTypeNotSupported,
		Diagnostics: fmt.Sprintf(format, args...),
		Expression:  expression,
	})
}

// malformed records a value that could not be parsed for its parameter type.
func (d *diagnostics) malformed(p Parameter, format string, args ...any) {
	d.add(Issue{
		Severity:    fhir.IssueSeverityWarning,
		Code:        fhir.IssueTypeValue,
		Diagnostics: fmt.Sprintf(format, args...),
		Expression:  p.Name,
	})
}

// unsupportedModifier records a modifier the matcher ignored.
func (d *diagnostics) unsupportedModifier(p Parameter, kind string) {
	d.add(Issue{
		Severity:    fhir.IssueSeverityWarning,
		Code:        fhir.IssueTypeNotSupported,
		Diagnostics: fmt.Sprintf("modifier :%s is not supported for %s parameters; evaluated without it", p.Modifier, kind),
		Expression:  p.Name,
	})
}

func (d *diagnostics) info(expression, format string, args ...any) {
	d.add(Issue{
		Severity:    fhir.IssueSeverityInformation,
		Code:        fhir.IssueTypeInformation,
		Diagnostics: fmt.Sprintf(format, args...),
		Expression:  expression,
	})
}

func (d *diagnostics) snapshot() []Issue {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Issue, len(d.issues))
	copy(out, d.issues)
	return out
}
