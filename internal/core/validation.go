package core

import (
	"fmt"
	"math"
	"strings"

	"github.com/JonMunkholm/freight/internal/core/rates"
)

// ValidationError describes one rejected query field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateQuery checks that a quote query names a route and a usable weight.
// The returned error wraps ErrInvalidQuery and lists every failing field.
func ValidateQuery(q rates.Query) error {
	var errs []ValidationError

	if strings.TrimSpace(q.Origin) == "" {
		errs = append(errs, ValidationError{Field: "origin", Message: "is required"})
	}
	if strings.TrimSpace(q.Destination) == "" {
		errs = append(errs, ValidationError{Field: "destination", Message: "is required"})
	}
	switch {
	case math.IsNaN(q.Weight) || math.IsInf(q.Weight, 0):
		errs = append(errs, ValidationError{Field: "weight", Message: "must be a number"})
	case q.Weight < 0:
		errs = append(errs, ValidationError{Field: "weight", Message: "must not be negative"})
	}

	if len(errs) == 0 {
		return nil
	}
	parts := make([]string, len(errs))
	for i, e := range errs {
		parts[i] = e.Error()
	}
	return fmt.Errorf("%w: %s", ErrInvalidQuery, strings.Join(parts, "; "))
}
