package rates

import "strings"

// Resolve returns the price of the first rule matching q.
// Returns ErrNoMatch when no rule applies or set is nil.
func Resolve(set *RuleSet, q Query) (float64, error) {
	rule, err := Match(set, q)
	if err != nil {
		return 0, err
	}
	return rule.Price, nil
}

// Match returns the first rule, in stored order, whose route equals the
// trimmed query route (case-sensitive) and whose weight specifier accepts q.Weight.
//
// Overlapping rules are not an error: the earlier one wins.
func Match(set *RuleSet, q Query) (RateRule, error) {
	if set == nil {
		return RateRule{}, ErrNoMatch
	}

	origin := strings.TrimSpace(q.Origin)
	destination := strings.TrimSpace(q.Destination)

	for _, rule := range set.Rules {
		if rule.Origin != origin || rule.Destination != destination {
			continue
		}
		if rule.Weight.Matches(q.Weight) {
			return rule, nil
		}
	}

	return RateRule{}, ErrNoMatch
}
