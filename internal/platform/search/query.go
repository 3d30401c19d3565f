package search

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/DNAi-inc/DNHealth-sub001/internal/platform/fhir"
)

// ignoredControls are accepted and have no effect on evaluation.
var ignoredControls = map[string]bool{
	"_format": true,
	"_pretty": true,
}

// ParseQuery turns a query string into a Request. Control parameters fill
// the request fields; everything else becomes a Parameter. Parameter
// order is deterministic (sorted by key, then value order).
func ParseQuery(resourceType string, values url.Values) (*Request, error) {
	req := &Request{ResourceType: resourceType}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		vals := values[key]
		switch base, mod := splitKey(key); base {
		case "_count":
			n, err := parseIntControl(key, vals)
			if err != nil {
				return nil, err
			}
			req.Count = &n
		case "_offset":
			n, err := parseIntControl(key, vals)
			if err != nil {
				return nil, err
			}
			req.Offset = &n
		case "_sort":
			for _, v := range vals {
				specs, err := ParseSort(v)
				if err != nil {
					return nil, err
				}
				req.Sort = append(req.Sort, specs...)
			}
		case "_include", "_revinclude":
			if mod != "" && mod != ModifierIterate {
				return nil, fmt.Errorf("%w: unsupported modifier on %s", ErrContractViolation, key)
			}
			for _, v := range vals {
				spec, err := ParseInclude(v, mod == ModifierIterate)
				if err != nil {
					return nil, err
				}
				if base == "_include" {
					req.Include = append(req.Include, spec)
				} else {
					req.RevInclude = append(req.RevInclude, spec)
				}
			}
		case "_summary":
			m, err := fhir.ParseSummaryMode(last(vals))
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrContractViolation, err)
			}
			req.Summary = m
		case "_elements":
			for _, v := range vals {
				for _, e := range strings.Split(v, ",") {
					if e = strings.TrimSpace(e); e != "" {
						req.Elements = append(req.Elements, e)
					}
				}
			}
		case "_total":
			switch t := TotalMode(last(vals)); t {
			case TotalNone, TotalEstimate, TotalAccurate:
				req.Total = t
			default:
				return nil, fmt.Errorf("%w: _total must be none, estimate or accurate", ErrContractViolation)
			}
		case "_fhirpath":
			req.Expression = last(vals)
		case "_filter":
			return nil, fmt.Errorf("%w: _filter is not supported", ErrContractViolation)
		default:
			if ignoredControls[base] {
				continue
			}
			name, modifier := parameterName(key)
			for _, v := range vals {
				req.Params = append(req.Params, Parameter{Name: name, Modifier: modifier, Value: v})
			}
		}
	}
	return req, nil
}

// splitKey separates "name:modifier" on the first colon.
func splitKey(key string) (string, string) {
	if i := strings.Index(key, ":"); i >= 0 {
		return key[:i], key[i+1:]
	}
	return key, ""
}

// parameterName splits a filter key. _has names are kept whole; in a chain
// only the last segment may carry a modifier ("subject:Patient.name:exact").
func parameterName(key string) (string, string) {
	if isReverseChain(key) {
		return key, ""
	}
	if dot := strings.LastIndex(key, "."); dot >= 0 {
		if i := strings.Index(key[dot:], ":"); i >= 0 {
			return key[:dot+i], key[dot+i+1:]
		}
		return key, ""
	}
	return splitKey(key)
}

func parseIntControl(key string, vals []string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(last(vals)))
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", ErrContractViolation, key)
	}
	return n, nil
}

func last(vals []string) string {
	if len(vals) == 0 {
		return ""
	}
	return vals[len(vals)-1]
}
