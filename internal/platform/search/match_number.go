package search

import (
	"strings"

	"github.com/cockroachdb/apd/v3"

	"github.com/DNAi-inc/DNHealth-sub001/internal/platform/fhir"
)

var (
	decimalCtx = apd.BaseContext.WithPrecision(34)
	// apFloor is the smallest ap tolerance; otherwise 10% of the target.
	apFloor    = apd.New(1, -1)
	apFraction = apd.New(1, -1)
)

func parseDecimal(s string) (*apd.Decimal, bool) {
	d, _, err := apd.NewFromString(strings.TrimSpace(s))
	if err != nil || d.Form != apd.Finite {
		return nil, false
	}
	return d, true
}

// scalarDecimal reads a numeric primitive.
func scalarDecimal(item fhir.Value) (*apd.Decimal, bool) {
	s, ok := item.Text()
	if !ok {
		return nil, false
	}
	return parseDecimal(s)
}

// compareDecimal applies prefix to field value f and query value q.
func compareDecimal(f *apd.Decimal, prefix Prefix, q *apd.Decimal) bool {
	c := f.Cmp(q)
	switch prefix {
	case PrefixNe:
		return c != 0
	case PrefixGt, PrefixSa:
		return c > 0
	case PrefixLt, PrefixEb:
		return c < 0
	case PrefixGe:
		return c >= 0
	case PrefixLe:
		return c <= 0
	case PrefixAp:
		return approximately(f, q)
	default:
		return c == 0
	}
}

// approximately reports |f-q| <= max(|q|/10, 0.1).
func approximately(f, q *apd.Decimal) bool {
	var tol, diff apd.Decimal
	if _, err := decimalCtx.Mul(&tol, new(apd.Decimal).Abs(q), apFraction); err != nil {
		return false
	}
	if tol.Cmp(apFloor) < 0 {
		tol.Set(apFloor)
	}
	if _, err := decimalCtx.Sub(&diff, f, q); err != nil {
		return false
	}
	diff.Abs(&diff)
	return diff.Cmp(&tol) <= 0
}

func (ev *evaluation) matchNumber(v fhir.Value, pr predicate) bool {
	if pr.Modifier != "" {
		ev.diag.unsupportedModifier(pr.Parameter, "number")
	}
	items := v.Items()
	for _, alt := range splitAlternatives(pr.Value) {
		prefix, raw := pr.ordered(alt)
		q, ok := parseDecimal(raw)
		if !ok {
			ev.diag.malformed(pr.Parameter, "%q is not a number", raw)
			continue
		}
		for _, item := range items {
			if f, ok := scalarDecimal(item); ok && compareDecimal(f, prefix, q) {
				return true
			}
		}
	}
	return false
}

// quantityQuery is a parsed "[prefix]number|system|code" value.
type quantityQuery struct {
	prefix Prefix
	value  *apd.Decimal
	system string
	code   string
}

func parseQuantityQuery(pr predicate, alt string) (quantityQuery, bool) {
	parts := strings.SplitN(alt, "|", 3)
	prefix, raw := pr.ordered(parts[0])
	d, ok := parseDecimal(raw)
	if !ok {
		return quantityQuery{}, false
	}
	q := quantityQuery{prefix: prefix, value: d}
	switch len(parts) {
	case 2:
		q.code = parts[1]
	case 3:
		q.system, q.code = parts[1], parts[2]
	}
	return q, true
}

// matches compares one Quantity element. The query code may match either
// Quantity.code or Quantity.unit.
func (q quantityQuery) matches(item fhir.Value) bool {
	var f *apd.Decimal
	var ok bool
	switch item.Kind() {
	case fhir.KindScalar:
		if q.system != "" || q.code != "" {
			return false
		}
		f, ok = scalarDecimal(item)
	case fhir.KindComplex:
		if q.system != "" && item.FieldText("system") != q.system {
			return false
		}
		if q.code != "" && item.FieldText("code") != q.code && item.FieldText("unit") != q.code {
			return false
		}
		f, ok = scalarDecimal(item.Field("value"))
	}
	return ok && compareDecimal(f, q.prefix, q.value)
}

func (ev *evaluation) matchQuantity(v fhir.Value, pr predicate) bool {
	if pr.Modifier != "" {
		ev.diag.unsupportedModifier(pr.Parameter, "quantity")
	}
	items := v.Items()
	for _, alt := range splitAlternatives(pr.Value) {
		q, ok := parseQuantityQuery(pr, alt)
		if !ok {
			ev.diag.malformed(pr.Parameter, "%q is not a quantity", alt)
			continue
		}
		for _, item := range items {
			if q.matches(item) {
				return true
			}
		}
	}
	return false
}
