package rates

import "strings"

// Header aliases per logical field, tried in order. The first alias present
// with a non-empty value wins.
var (
	originAliases      = []string{"始发地", "Origin", "origin"}
	destinationAliases = []string{"目的地", "Destination", "destination"}
	minWeightAliases   = []string{"最小重量", "MinWeight", "min_weight", "minWeight"}
	maxWeightAliases   = []string{"最大重量", "MaxWeight", "max_weight", "maxWeight"}
	weightAliases      = []string{"重量", "Weight", "weight"}
	priceAliases       = []string{"价格", "金额", "Price", "Amount", "price"}
)

// lookup returns the first non-blank value among aliases and the alias it came from.
func lookup(row RawRow, aliases []string) (value any, column string, ok bool) {
	for _, alias := range aliases {
		v, present := row.Get(alias)
		if present && !isBlank(v) {
			return v, alias, true
		}
	}
	return nil, "", false
}

// lookupText returns the trimmed string form of the first matching alias, or "".
func lookupText(row RawRow, aliases []string) string {
	v, _, ok := lookup(row, aliases)
	if !ok {
		return ""
	}
	return strings.TrimSpace(toText(v))
}
