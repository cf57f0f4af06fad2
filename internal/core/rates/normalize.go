package rates

// normalize.go turns decoded spreadsheet rows into a RuleSet.
//
// Two layouts are accepted and detected from the first row's headers:
//
//	wide: 始发地 | 目的地 | 1kg | 2kg | 5kg ...      one rule per priced cell
//	long: 始发地 | 目的地 | 最小重量 | 最大重量 | 价格   one rule per row
//
// Unusable numeric cells are handled differently per layout and the
// difference is observable: a wide cell that does not parse drops that one
// rule, while a long row whose price does not parse keeps the row at price 0.

import (
	"regexp"
	"strconv"
)

// weightColumnPattern matches wide-layout weight headers such as "1kg" or "2.5KG".
var weightColumnPattern = regexp.MustCompile(`(?i)^\d+(\.\d+)?kg$`)

// Normalize builds a RuleSet from rows. Returns ErrEmptyInput for no rows.
func Normalize(rows []RawRow) (RuleSet, error) {
	set, _, err := NormalizeWithIssues(rows)
	return set, err
}

// NormalizeWithIssues is Normalize plus the list of numeric cells that could
// not be parsed. The issues are informational; the RuleSet is complete.
func NormalizeWithIssues(rows []RawRow) (RuleSet, []UnparsableCellError, error) {
	if len(rows) == 0 {
		return RuleSet{}, nil, ErrEmptyInput
	}

	columns := rows[0].Keys()
	n := &normalizer{}

	set := RuleSet{Columns: columns}
	if weightCols := WeightColumns(columns); len(weightCols) > 0 {
		set.Shape = ShapeWide
		set.Rules = n.expandWide(rows, weightCols)
	} else {
		set.Shape = ShapeLong
		set.Rules = n.mapLong(rows)
	}

	return set, n.issues, nil
}

// WeightColumns returns the headers that name a weight tier, in order.
func WeightColumns(headers []string) []string {
	var cols []string
	for _, h := range headers {
		if weightColumnPattern.MatchString(h) {
			cols = append(cols, h)
		}
	}
	return cols
}

// normalizer collects parse issues across one Normalize call.
type normalizer struct {
	issues []UnparsableCellError
}

func (n *normalizer) report(row int, column string, value any) {
	n.issues = append(n.issues, UnparsableCellError{Row: row, Column: column, Value: value})
}

// expandWide emits one exact-weight rule per (row, weight column) whose cell parses.
func (n *normalizer) expandWide(rows []RawRow, weightCols []string) []RateRule {
	weights := make([]float64, len(weightCols))
	for i, col := range weightCols {
		// The pattern guarantees a parseable prefix.
		weights[i], _ = strconv.ParseFloat(col[:len(col)-len("kg")], 64)
	}

	rules := make([]RateRule, 0, len(rows)*len(weightCols))
	for i, row := range rows {
		origin := lookupText(row, originAliases)
		destination := lookupText(row, destinationAliases)

		for j, col := range weightCols {
			cell, present := row.Get(col)
			price, ok := toNumber(cell)
			if !ok {
				if present {
					n.report(i, col, cell)
				}
				continue
			}

			rules = append(rules, RateRule{
				Key:         strconv.Itoa(i) + "-" + col,
				Origin:      origin,
				Destination: destination,
				Weight:      ExactWeight(weights[j]),
				Price:       price,
				RawData:     row,
			})
		}
	}
	return rules
}

// mapLong emits exactly one rule per row.
func (n *normalizer) mapLong(rows []RawRow) []RateRule {
	rules := make([]RateRule, 0, len(rows))
	for i, row := range rows {
		weight := longWeight(
			n.readNumber(i, row, minWeightAliases),
			n.readNumber(i, row, maxWeightAliases),
			n.readNumber(i, row, weightAliases),
		)

		price := 0.0
		if v, col, ok := lookup(row, priceAliases); ok {
			if p, ok := toNumber(v); ok {
				price = p
			} else {
				n.report(i, col, v)
			}
		}

		rules = append(rules, RateRule{
			Key:         strconv.Itoa(i),
			Origin:      lookupText(row, originAliases),
			Destination: lookupText(row, destinationAliases),
			Weight:      weight,
			Price:       price,
			RawData:     row,
		})
	}
	return rules
}

// numberField is an optional numeric cell: absent, present and parsed,
// or present but unreadable.
type numberField struct {
	value   float64
	present bool
	bad     bool
}

// readNumber tries aliases for a numeric field, reporting unreadable values.
func (n *normalizer) readNumber(rowIdx int, row RawRow, aliases []string) numberField {
	v, col, ok := lookup(row, aliases)
	if !ok {
		return numberField{}
	}
	f, ok := toNumber(v)
	if !ok {
		n.report(rowIdx, col, v)
		return numberField{present: true, bad: true}
	}
	return numberField{value: f, present: true}
}

// longWeight picks the variant from which fields are present, using the
// resolver precedence: min+max, min, max, exact. If a field the chosen
// variant depends on is unreadable the rule can never match.
func longWeight(min, max, exact numberField) WeightSpec {
	switch {
	case min.present && max.present:
		if min.bad || max.bad {
			return WeightSpec{}
		}
		return IntervalWeight(min.value, max.value)
	case min.present:
		if min.bad {
			return WeightSpec{}
		}
		return LowerBoundWeight(min.value)
	case max.present:
		if max.bad {
			return WeightSpec{}
		}
		return UpperBoundWeight(max.value)
	case exact.present:
		if exact.bad {
			return WeightSpec{}
		}
		return ExactWeight(exact.value)
	}
	return WeightSpec{}
}
