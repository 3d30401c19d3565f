package fhir

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gofhir/fhirpath"
	"github.com/gofhir/fhirpath/types"
)

// defaultExpressionCacheSize bounds the compiled-expression cache.
const defaultExpressionCacheSize = 256

// FHIRPathEvaluator evaluates FHIRPath expressions against resources using
// the gofhir engine. Compiled expressions are cached; the cache is safe for
// concurrent use.
type FHIRPathEvaluator struct {
	mu    sync.RWMutex
	cache map[string]*fhirpath.Expression
	limit int
}

// NewFHIRPathEvaluator creates an evaluator with a bounded expression cache.
func NewFHIRPathEvaluator() *FHIRPathEvaluator {
	return &FHIRPathEvaluator{
		cache: make(map[string]*fhirpath.Expression),
		limit: defaultExpressionCacheSize,
	}
}

// Evaluate runs expression against r and converts the result using FHIRPath
// truthiness: an empty collection is false, a single boolean is its own
// value, any other non-empty collection is true.
func (e *FHIRPathEvaluator) Evaluate(ctx context.Context, expression string, r *Resource) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	compiled, err := e.compile(expression)
	if err != nil {
		return false, fmt.Errorf("compile FHIRPath expression %q: %w", expression, err)
	}
	raw, err := json.Marshal(r)
	if err != nil {
		return false, fmt.Errorf("encode %s: %w", r.Key(), err)
	}
	result, err := compiled.Evaluate(raw)
	if err != nil {
		return false, fmt.Errorf("evaluate FHIRPath expression %q: %w", expression, err)
	}
	return truthy(result), nil
}

// Compile checks that an expression parses, without evaluating it.
func (e *FHIRPathEvaluator) Compile(expression string) error {
	_, err := e.compile(expression)
	return err
}

func (e *FHIRPathEvaluator) compile(expression string) (*fhirpath.Expression, error) {
	e.mu.RLock()
	compiled, ok := e.cache[expression]
	e.mu.RUnlock()
	if ok {
		return compiled, nil
	}

	compiled, err := fhirpath.Compile(expression)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	if len(e.cache) >= e.limit {
		e.cache = make(map[string]*fhirpath.Expression)
	}
	e.cache[expression] = compiled
	e.mu.Unlock()
	return compiled, nil
}

func truthy(result types.Collection) bool {
	if len(result) == 0 {
		return false
	}
	if len(result) == 1 {
		if b, ok := result[0].(types.Boolean); ok {
			return b.Bool()
		}
	}
	return true
}

// CacheSize returns the number of cached expressions.
func (e *FHIRPathEvaluator) CacheSize() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.cache)
}
