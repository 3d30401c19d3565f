package search

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/cockroachdb/apd/v3"

	"github.com/DNAi-inc/DNHealth-sub001/internal/platform/fhir"
)

// sortKey is the comparable projection of one _sort field of a resource.
type sortKey struct {
	present bool
	num     *apd.Decimal
	str     string
}

// sortPreference is the order in which a complex element is reduced to a
// single comparable value.
var sortPreference = []string{"value", "code", "display", "text"}

func makeSortKey(v fhir.Value) sortKey {
	items := v.Items()
	if len(items) == 0 {
		return sortKey{}
	}
	return reduceSortKey(items[0])
}

func reduceSortKey(item fhir.Value) sortKey {
	switch item.Kind() {
	case fhir.KindScalar:
		switch item.Raw().(type) {
		case string, bool:
		default:
			if d, ok := scalarDecimal(item); ok {
				return sortKey{present: true, num: d}
			}
		}
		s, _ := item.Text()
		return sortKey{present: true, str: strings.ToLower(s)}
	case fhir.KindComplex:
		for _, k := range sortPreference {
			if f := item.Field(k); !f.IsEmpty() {
				return makeSortKey(f)
			}
		}
		for _, k := range []string{"coding", "start", "family"} {
			if f := item.Field(k); !f.IsEmpty() {
				return makeSortKey(f)
			}
		}
		b, err := json.Marshal(item.Raw())
		if err != nil {
			return sortKey{}
		}
		return sortKey{present: true, str: strings.ToLower(string(b))}
	}
	return sortKey{}
}

// compareSortKeys orders missing before present in both directions and
// numbers before strings. desc reverses only the comparison of two present
// values of the same kind.
func compareSortKeys(a, b sortKey, desc bool) int {
	switch {
	case !a.present && !b.present:
		return 0
	case !a.present:
		return -1
	case !b.present:
		return 1
	}
	var c int
	switch {
	case a.num != nil && b.num != nil:
		c = a.num.Cmp(b.num)
	case a.num != nil:
		return -1
	case b.num != nil:
		return 1
	default:
		c = strings.Compare(a.str, b.str)
	}
	if desc {
		c = -c
	}
	return c
}

// sortResources returns a stably sorted copy. Keys are computed once per
// resource.
func (ev *evaluation) sortResources(rs []*fhir.Resource, specs []SortSpec) []*fhir.Resource {
	if len(specs) == 0 || len(rs) < 2 {
		return rs
	}
	keys := make([][]sortKey, len(rs))
	for i, r := range rs {
		keys[i] = make([]sortKey, len(specs))
		for j, s := range specs {
			pr := ev.bind(r.Type(), Parameter{Name: s.Field})
			keys[i][j] = makeSortKey(Access(r, pr.def.Path))
		}
	}
	idx := make([]int, len(rs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(x, y int) bool {
		a, b := keys[idx[x]], keys[idx[y]]
		for j, s := range specs {
			if c := compareSortKeys(a[j], b[j], s.Descending); c != 0 {
				return c < 0
			}
		}
		return false
	})
	out := make([]*fhir.Resource, len(rs))
	for i, k := range idx {
		out[i] = rs[k]
	}
	return out
}

// paginate applies offset, then count.
func paginate(rs []*fhir.Resource, offset, count *int) []*fhir.Resource {
	lo := 0
	if offset != nil {
		lo = min(*offset, len(rs))
	}
	hi := len(rs)
	if count != nil && *count < len(rs)-lo {
		hi = lo + *count
	}
	return rs[lo:hi]
}
