package rates

import (
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Origins returns the distinct non-empty origins in Chinese collation order.
func Origins(set *RuleSet) []string {
	return distinctText(set, func(r RateRule) string { return r.Origin })
}

// Destinations returns the distinct non-empty destinations in Chinese collation order.
func Destinations(set *RuleSet) []string {
	return distinctText(set, func(r RateRule) string { return r.Destination })
}

// Weights returns the distinct exact weights in ascending order.
// Interval and bound rules contribute nothing.
func Weights(set *RuleSet) []float64 {
	if set == nil {
		return nil
	}

	seen := make(map[float64]bool)
	var out []float64
	for _, r := range set.Rules {
		if r.Weight.Kind != WeightExact || seen[r.Weight.Exact] {
			continue
		}
		seen[r.Weight.Exact] = true
		out = append(out, r.Weight.Exact)
	}

	sort.Float64s(out)
	return out
}

func distinctText(set *RuleSet, field func(RateRule) string) []string {
	if set == nil {
		return nil
	}

	seen := make(map[string]bool)
	var out []string
	for _, r := range set.Rules {
		v := field(r)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}

	// Collators are not safe for concurrent use; build one per call.
	collate.New(language.SimplifiedChinese).SortStrings(out)
	return out
}
