package rates

import "fmt"

// WeightKind tags which variant of WeightSpec is populated.
type WeightKind int

const (
	WeightUnspecified WeightKind = iota
	WeightExact
	WeightInterval
	WeightLowerBound
	WeightUpperBound
)

func (k WeightKind) String() string {
	switch k {
	case WeightExact:
		return "exact"
	case WeightInterval:
		return "interval"
	case WeightLowerBound:
		return "lower_bound"
	case WeightUpperBound:
		return "upper_bound"
	default:
		return "unspecified"
	}
}

// WeightSpec describes the weights a rule applies to.
// Only the fields belonging to Kind are meaningful.
type WeightSpec struct {
	Kind  WeightKind
	Exact float64
	Min   float64
	Max   float64
}

// ExactWeight matches a single weight by exact equality.
func ExactWeight(w float64) WeightSpec {
	return WeightSpec{Kind: WeightExact, Exact: w}
}

// IntervalWeight matches min <= w <= max.
func IntervalWeight(min, max float64) WeightSpec {
	return WeightSpec{Kind: WeightInterval, Min: min, Max: max}
}

// LowerBoundWeight matches w >= min.
func LowerBoundWeight(min float64) WeightSpec {
	return WeightSpec{Kind: WeightLowerBound, Min: min}
}

// UpperBoundWeight matches w <= max.
func UpperBoundWeight(max float64) WeightSpec {
	return WeightSpec{Kind: WeightUpperBound, Max: max}
}

// Matches reports whether weight w satisfies ws.
// Exact comparison has no tolerance; an Unspecified specifier never matches.
func (ws WeightSpec) Matches(w float64) bool {
	switch ws.Kind {
	case WeightInterval:
		return w >= ws.Min && w <= ws.Max
	case WeightLowerBound:
		return w >= ws.Min
	case WeightUpperBound:
		return w <= ws.Max
	case WeightExact:
		return w == ws.Exact
	default:
		return false
	}
}

// Bounds returns the optional min, max and exact values ws carries,
// nil where the variant has no such field.
func (ws WeightSpec) Bounds() (min, max, exact *float64) {
	switch ws.Kind {
	case WeightInterval:
		lo, hi := ws.Min, ws.Max
		return &lo, &hi, nil
	case WeightLowerBound:
		lo := ws.Min
		return &lo, nil, nil
	case WeightUpperBound:
		hi := ws.Max
		return nil, &hi, nil
	case WeightExact:
		e := ws.Exact
		return nil, nil, &e
	}
	return nil, nil, nil
}

// weightFromBounds collapses optional min/max/exact fields into one variant,
// using the same precedence the resolver has always applied.
func weightFromBounds(min, max, exact *float64) WeightSpec {
	switch {
	case min != nil && max != nil:
		return IntervalWeight(*min, *max)
	case min != nil:
		return LowerBoundWeight(*min)
	case max != nil:
		return UpperBoundWeight(*max)
	case exact != nil:
		return ExactWeight(*exact)
	}
	return WeightSpec{}
}

// String renders ws for display, e.g. "0-10 kg" or ">= 20 kg".
func (ws WeightSpec) String() string {
	switch ws.Kind {
	case WeightInterval:
		return fmt.Sprintf("%s-%s kg", formatNumber(ws.Min), formatNumber(ws.Max))
	case WeightLowerBound:
		return fmt.Sprintf(">= %s kg", formatNumber(ws.Min))
	case WeightUpperBound:
		return fmt.Sprintf("<= %s kg", formatNumber(ws.Max))
	case WeightExact:
		return fmt.Sprintf("%s kg", formatNumber(ws.Exact))
	}
	return "-"
}
