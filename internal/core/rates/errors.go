package rates

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyInput is returned by Normalize when no rows are supplied.
	ErrEmptyInput = errors.New("empty file: no data rows")

	// ErrNoMatch is returned by Resolve when no rule applies to the query.
	// It is an expected outcome, not a fault.
	ErrNoMatch = errors.New("no matching rate rule")
)

// UnparsableCellError records a numeric cell that could not be read.
// These are collected, never returned: one bad cell does not stop normalization.
type UnparsableCellError struct {
	Row    int    // Zero-based data row index
	Column string // Header the value came from
	Value  any
}

func (e UnparsableCellError) Error() string {
	return fmt.Sprintf("unparsable cell at row %d column %q: %v", e.Row, e.Column, e.Value)
}
