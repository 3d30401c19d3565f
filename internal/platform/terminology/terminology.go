// Package terminology answers value set membership questions for the :in
// and :not-in token modifiers. Memory serves value sets known locally,
// Remote asks a FHIR terminology server, and Chain combines them.
package terminology

import (
	"context"
	"errors"
	"fmt"

	"github.com/DNAi-inc/DNHealth-sub001/internal/platform/fhir"
)

var (
	// ErrUnavailable is returned when membership cannot be decided. It wraps
	// fhir.ErrCapabilityUnavailable so the search engine degrades the
	// affected parameter instead of failing the query.
	ErrUnavailable = fmt.Errorf("terminology: %w", fhir.ErrCapabilityUnavailable)

	// ErrUnknownValueSet is returned for a value set the service does not hold.
	ErrUnknownValueSet = fmt.Errorf("%w: unknown value set", ErrUnavailable)
)

// Membership is the lookup every service in this package implements.
type Membership interface {
	Contains(ctx context.Context, valueSet, system, code string) (bool, error)
}

// Chain asks each service in turn. A service answering with an error
// wrapping ErrUnavailable passes the question on; any other answer,
// including a non-capability error, is final.
type Chain []Membership

func (c Chain) Contains(ctx context.Context, valueSet, system, code string) (bool, error) {
	lastErr := ErrUnavailable
	for _, m := range c {
		ok, err := m.Contains(ctx, valueSet, system, code)
		if err == nil {
			return ok, nil
		}
		if !errors.Is(err, fhir.ErrCapabilityUnavailable) {
			return false, err
		}
		lastErr = err
	}
	return false, lastErr
}
