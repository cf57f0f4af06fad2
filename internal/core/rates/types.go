// Package rates normalizes freight-rate spreadsheets into rate rules and
// resolves price lookups against them.
//
// The package is pure: it has no I/O, no logging and no shared state.
// Callers hand it decoded rows and get back an immutable RuleSet, which
// they query with Resolve or Match.
package rates

// Shape identifies which spreadsheet layout a RuleSet was built from.
type Shape string

const (
	// ShapeWide is one row per route with one column per weight tier ("1kg", "2kg", ...).
	ShapeWide Shape = "wide"
	// ShapeLong is one row per rule with min/max or single weight fields.
	ShapeLong Shape = "long"
)

// RateRule is one canonical (origin, destination, weight, price) record.
type RateRule struct {
	Key         string     // Stable display key: "<row>" or "<row>-<column>"
	Origin      string     // Trimmed
	Destination string     // Trimmed
	Weight      WeightSpec // Which weights this rule applies to
	Price       float64    // Always finite
	RawData     RawRow     // Source row, display only
}

// RuleSet is the normalized rule list plus the detected column list.
//
// A RuleSet is built once by Normalize and never modified afterwards.
// New data produces a new RuleSet that replaces the old one wholesale.
type RuleSet struct {
	Rules   []RateRule
	Columns []string
	Shape   Shape
}

// Len returns the number of rules. Safe on a nil receiver.
func (s *RuleSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Rules)
}

// Query is a single price lookup.
type Query struct {
	Origin      string  `json:"origin"`
	Destination string  `json:"destination"`
	Weight      float64 `json:"weight"`
}
