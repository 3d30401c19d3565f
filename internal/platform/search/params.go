package search

import (
	"fmt"
	"strings"

	"github.com/DNAi-inc/DNHealth-sub001/internal/platform/fhir"
)

// Prefix is a FHIR search comparison prefix for ordered values.
type Prefix string

const (
	PrefixEq Prefix = "eq"
	PrefixNe Prefix = "ne"
	PrefixGt Prefix = "gt"
	PrefixLt Prefix = "lt"
	PrefixGe Prefix = "ge"
	PrefixLe Prefix = "le"
	PrefixSa Prefix = "sa"
	PrefixEb Prefix = "eb"
	PrefixAp Prefix = "ap"
)

var validPrefixes = map[Prefix]bool{
	PrefixEq: true, PrefixNe: true, PrefixGt: true, PrefixLt: true,
	PrefixGe: true, PrefixLe: true, PrefixSa: true, PrefixEb: true, PrefixAp: true,
}

// Search modifiers.
const (
	ModifierMissing    = "missing"
	ModifierExact      = "exact"
	ModifierContains   = "contains"
	ModifierText       = "text"
	ModifierNot        = "not"
	ModifierAbove      = "above"
	ModifierBelow      = "below"
	ModifierIn         = "in"
	ModifierNotIn      = "not-in"
	ModifierOfType     = "of-type"
	ModifierIdentifier = "identifier"
	ModifierIterate    = "iterate"
)

// Parameter is one search clause: name[:modifier]=[prefix]value.
// The name may be a plain parameter, a dotted element path, a chain
// ("subject:Patient.name") or a reverse chain ("_has:Observation:subject:code").
type Parameter struct {
	Name     string
	Modifier string
	Prefix   Prefix
	Value    string
}

func (p Parameter) String() string {
	var b strings.Builder
	b.WriteString(p.Name)
	if p.Modifier != "" {
		b.WriteByte(':')
		b.WriteString(p.Modifier)
	}
	b.WriteByte('=')
	b.WriteString(string(p.Prefix))
	b.WriteString(p.Value)
	return b.String()
}

// ordered returns the prefix and comparison value of one alternative. An
// explicit Prefix wins; otherwise a leading two-letter prefix is stripped.
func (p Parameter) ordered(alt string) (Prefix, string) {
	if p.Prefix != "" {
		return p.Prefix, alt
	}
	return SplitPrefix(alt)
}

// SplitPrefix separates a comparison prefix from a raw value. A value with
// no recognized prefix yields eq.
func SplitPrefix(raw string) (Prefix, string) {
	if len(raw) > 2 {
		candidate := Prefix(raw[:2])
		if validPrefixes[candidate] {
			return candidate, raw[2:]
		}
	}
	return PrefixEq, raw
}

// splitAlternatives splits a value on unescaped commas; "\," is a literal comma.
func splitAlternatives(value string) []string {
	if !strings.Contains(value, ",") {
		return []string{value}
	}
	var out []string
	var cur strings.Builder
	for i := 0; i < len(value); i++ {
		c := value[i]
		if c == '\\' && i+1 < len(value) && value[i+1] == ',' {
			cur.WriteByte(',')
			i++
			continue
		}
		if c == ',' {
			out = append(out, cur.String())
			cur.Reset()
			continue
		}
		cur.WriteByte(c)
	}
	return append(out, cur.String())
}

// isTypeModifier reports whether a modifier names a resource type (subject:Patient).
func isTypeModifier(mod string) bool {
	return mod != "" && fhir.IsKnownResourceType(mod)
}

// SortSpec is one _sort key.
type SortSpec struct {
	Field      string
	Descending bool
}

// ParseSort parses a _sort value: comma-separated fields, "-" for descending.
func ParseSort(raw string) ([]SortSpec, error) {
	var specs []SortSpec
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		desc := strings.HasPrefix(part, "-")
		field := strings.TrimPrefix(part, "-")
		if field == "" {
			return nil, fmt.Errorf("%w: empty _sort field in %q", ErrContractViolation, raw)
		}
		specs = append(specs, SortSpec{Field: field, Descending: desc})
	}
	return specs, nil
}

// IncludeSpec is one _include or _revinclude clause: Source:param[:Target].
type IncludeSpec struct {
	Source  string
	Param   string
	Target  string
	Iterate bool
}

func (s IncludeSpec) String() string {
	out := s.Source + ":" + s.Param
	if s.Target != "" {
		out += ":" + s.Target
	}
	return out
}

// ParseInclude parses "Source:param[:Target]". Source may be "*".
func ParseInclude(raw string, iterate bool) (IncludeSpec, error) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) < 2 || len(parts) > 3 || parts[0] == "" || parts[1] == "" {
		return IncludeSpec{}, fmt.Errorf("%w: include must be Type:param[:target], got %q", ErrContractViolation, raw)
	}
	spec := IncludeSpec{Source: parts[0], Param: parts[1], Iterate: iterate}
	if len(parts) == 3 {
		spec.Target = parts[2]
	}
	if spec.Source != "*" && !fhir.IsKnownResourceType(spec.Source) {
		return IncludeSpec{}, fmt.Errorf("%w: unknown resource type %q in include %q", ErrContractViolation, spec.Source, raw)
	}
	if spec.Target != "" && !fhir.IsKnownResourceType(spec.Target) {
		return IncludeSpec{}, fmt.Errorf("%w: unknown target type %q in include %q", ErrContractViolation, spec.Target, raw)
	}
	return spec, nil
}

// TotalMode is the value of _total.
type TotalMode string

const (
	TotalNone     TotalMode = "none"
	TotalEstimate TotalMode = "estimate"
	TotalAccurate TotalMode = "accurate"
)

// Request is a parsed search: filter parameters plus control fields.
// When Expression is set, Params are not evaluated.
type Request struct {
	ResourceType string
	Params       []Parameter
	Count        *int
	Offset       *int
	Sort         []SortSpec
	Include      []IncludeSpec
	RevInclude   []IncludeSpec
	Summary      fhir.SummaryMode
	Elements     []string
	Total        TotalMode
	Expression   string
}

// IntPtr is a helper for the optional Count and Offset fields.
func IntPtr(n int) *int { return &n }

// validate enforces the request contract. Range violations are rejected,
// never clamped.
func (r *Request) validate(reg *fhir.Registry) error {
	if r.Count != nil && *r.Count < 1 {
		return fmt.Errorf("%w: _count must be >= 1, got %d", ErrContractViolation, *r.Count)
	}
	if r.Offset != nil && *r.Offset < 0 {
		return fmt.Errorf("%w: _offset must be >= 0, got %d", ErrContractViolation, *r.Offset)
	}
	for _, p := range r.Params {
		if !isReverseChain(p.Name) {
			continue
		}
		if _, err := parseHasClause(p, reg); err != nil {
			return err
		}
	}
	return nil
}

func (r *Request) projection() fhir.Projection {
	return fhir.Projection{Summary: r.Summary, Elements: r.Elements}
}
