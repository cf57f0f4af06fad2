package rates

import "encoding/json"

// ruleJSON is the persisted form of a RateRule. The weight variant is
// flattened into optional minWeight/maxWeight/weight fields so an absent
// bound stays distinguishable from a bound of zero.
type ruleJSON struct {
	Key         string   `json:"key,omitempty"`
	Origin      string   `json:"origin"`
	Destination string   `json:"destination"`
	MinWeight   *float64 `json:"minWeight,omitempty"`
	MaxWeight   *float64 `json:"maxWeight,omitempty"`
	Weight      *float64 `json:"weight,omitempty"`
	Price       float64  `json:"price"`
	RawData     *RawRow  `json:"rawData,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (r RateRule) MarshalJSON() ([]byte, error) {
	min, max, exact := r.Weight.Bounds()
	out := ruleJSON{
		Key:         r.Key,
		Origin:      r.Origin,
		Destination: r.Destination,
		MinWeight:   min,
		MaxWeight:   max,
		Weight:      exact,
		Price:       r.Price,
	}
	if r.RawData.Len() > 0 {
		raw := r.RawData
		out.RawData = &raw
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *RateRule) UnmarshalJSON(data []byte) error {
	var in ruleJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	rule := RateRule{
		Key:         in.Key,
		Origin:      in.Origin,
		Destination: in.Destination,
		Weight:      weightFromBounds(in.MinWeight, in.MaxWeight, in.Weight),
		Price:       in.Price,
	}
	if in.RawData != nil {
		rule.RawData = *in.RawData
	}

	*r = rule
	return nil
}
