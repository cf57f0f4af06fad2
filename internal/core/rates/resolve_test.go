package rates

import (
	"encoding/json"
	"errors"
	"math"
	"reflect"
	"testing"
)

func mustNormalize(t *testing.T, rows ...RawRow) *RuleSet {
	t.Helper()
	set, err := Normalize(rows)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	return &set
}

// ----------------------------------------------------------------------------
// WeightSpec
// ----------------------------------------------------------------------------

func TestWeightSpec_Matches(t *testing.T) {
	tests := []struct {
		name   string
		spec   WeightSpec
		weight float64
		want   bool
	}{
		{"interval lower edge", IntervalWeight(0, 10), 0, true},
		{"interval upper edge", IntervalWeight(0, 10), 10, true},
		{"interval inside", IntervalWeight(0, 10), 5.5, true},
		{"interval above", IntervalWeight(0, 10), 10.0001, false},
		{"interval below", IntervalWeight(1, 10), 0.5, false},
		{"lower bound edge", LowerBoundWeight(10), 10, true},
		{"lower bound just below", LowerBoundWeight(10), 9.999, false},
		{"upper bound edge", UpperBoundWeight(5), 5, true},
		{"upper bound above", UpperBoundWeight(5), 5.01, false},
		{"exact equal", ExactWeight(2), 2, true},
		{"exact no tolerance", ExactWeight(2), 2.0000001, false},
		{"unspecified never matches", WeightSpec{}, 0, false},
		{"NaN query never matches", IntervalWeight(0, 10), math.NaN(), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.spec.Matches(tt.weight); got != tt.want {
				t.Errorf("%v.Matches(%v) = %v, want %v", tt.spec, tt.weight, got, tt.want)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// Resolve
// ----------------------------------------------------------------------------

func TestResolve_FirstMatchWins(t *testing.T) {
	set := mustNormalize(t,
		RowOf("始发地", "北京", "目的地", "上海", "最小重量", 0.0, "最大重量", 10.0, "价格", 100.0),
		RowOf("始发地", "北京", "目的地", "上海", "最小重量", 10.0, "最大重量", 20.0, "价格", 180.0),
	)

	tests := []struct {
		weight float64
		want   float64
	}{
		{0, 100},
		{10, 100},
		{10.5, 180},
		{20, 180},
	}
	for _, tt := range tests {
		got, err := Resolve(set, Query{Origin: "北京", Destination: "上海", Weight: tt.weight})
		if err != nil {
			t.Fatalf("Resolve(weight=%v) error = %v", tt.weight, err)
		}
		if got != tt.want {
			t.Errorf("Resolve(weight=%v) = %v, want %v", tt.weight, got, tt.want)
		}
	}

	if _, err := Resolve(set, Query{Origin: "北京", Destination: "上海", Weight: 20.5}); !errors.Is(err, ErrNoMatch) {
		t.Errorf("Resolve(weight=20.5) error = %v, want ErrNoMatch", err)
	}
}

func TestResolve_RouteMatching(t *testing.T) {
	set := mustNormalize(t,
		RowOf("Origin", "Beijing", "Destination", "Shanghai", "Weight", 1.0, "Price", 12.0),
	)

	tests := []struct {
		name    string
		query   Query
		wantErr error
	}{
		{"exact route", Query{Origin: "Beijing", Destination: "Shanghai", Weight: 1}, nil},
		{"query is trimmed", Query{Origin: "  Beijing", Destination: "Shanghai \n", Weight: 1}, nil},
		{"case sensitive", Query{Origin: "beijing", Destination: "Shanghai", Weight: 1}, ErrNoMatch},
		{"unknown origin", Query{Origin: "Tianjin", Destination: "Shanghai", Weight: 1}, ErrNoMatch},
		{"reversed route", Query{Origin: "Shanghai", Destination: "Beijing", Weight: 1}, ErrNoMatch},
		{"weight miss", Query{Origin: "Beijing", Destination: "Shanghai", Weight: 2}, ErrNoMatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(set, tt.query)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Resolve(%+v) error = %v, want %v", tt.query, err, tt.wantErr)
			}
		})
	}
}

func TestResolve_WideExactWeights(t *testing.T) {
	set := mustNormalize(t,
		RowOf("始发地", "新疆圆通仓", "目的地", "新疆维吾尔自治区", "1kg", 1.63, "2kg", 1.74, "10kg", 6.88),
	)

	got, err := Resolve(set, Query{Origin: "新疆圆通仓", Destination: "新疆维吾尔自治区", Weight: 10})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got != 6.88 {
		t.Errorf("Resolve() = %v, want 6.88", got)
	}

	if _, err := Resolve(set, Query{Origin: "新疆圆通仓", Destination: "新疆维吾尔自治区", Weight: 1.5}); !errors.Is(err, ErrNoMatch) {
		t.Errorf("Resolve(1.5) error = %v, want ErrNoMatch", err)
	}
}

func TestResolve_NilSet(t *testing.T) {
	if _, err := Resolve(nil, Query{Origin: "a", Destination: "b", Weight: 1}); !errors.Is(err, ErrNoMatch) {
		t.Errorf("Resolve(nil) error = %v, want ErrNoMatch", err)
	}
}

func TestResolve_DoesNotMutateAndIsDeterministic(t *testing.T) {
	set := mustNormalize(t,
		RowOf("始发地", "北京", "目的地", "上海", "最小重量", 0.0, "最大重量", 10.0, "价格", 100.0),
		RowOf("始发地", "北京", "目的地", "上海", "最小重量", 5.0, "价格", 90.0),
	)
	before, err := json.Marshal(set.Rules)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	q := Query{Origin: "北京", Destination: "上海", Weight: 7}
	first, err := Match(set, q)
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := Match(set, q)
		if err != nil || !reflect.DeepEqual(again, first) {
			t.Fatalf("Match() run %d = %+v, %v; want %+v", i, again, err, first)
		}
	}
	if first.Key != "0" {
		t.Errorf("Match().Key = %q, want %q", first.Key, "0")
	}

	after, _ := json.Marshal(set.Rules)
	if string(before) != string(after) {
		t.Error("Match mutated the rule set")
	}
}

// ----------------------------------------------------------------------------
// Serialization
// ----------------------------------------------------------------------------

func TestRateRule_JSONRoundTrip(t *testing.T) {
	set := mustNormalize(t,
		RowOf("始发地", "北京", "目的地", "上海", "最小重量", 0.0, "最大重量", 10.0, "价格", 100.0),
		RowOf("始发地", "北京", "目的地", "上海", "最小重量", 10.0, "价格", 180.5),
		RowOf("始发地", "北京", "目的地", "上海", "最大重量", 0.0, "价格", 5.0),
		RowOf("始发地", "北京", "目的地", "上海", "重量", 0.1, "价格", 0.3),
		RowOf("始发地", "北京", "目的地", "上海", "价格", 1.0),
	)

	data, err := json.Marshal(set.Rules)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var got []RateRule
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if !reflect.DeepEqual(got, set.Rules) {
		t.Errorf("round trip mismatch:\n got  %+v\n want %+v", got, set.Rules)
	}
}

func TestRateRule_JSONShape(t *testing.T) {
	rule := RateRule{Key: "0", Origin: "北京", Destination: "上海", Weight: IntervalWeight(0, 10), Price: 100}

	data, err := json.Marshal(rule)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	want := `{"key":"0","origin":"北京","destination":"上海","minWeight":0,"maxWeight":10,"price":100}`
	if string(data) != want {
		t.Errorf("Marshal() = %s, want %s", data, want)
	}
}

func TestRawRow_JSONKeepsOrder(t *testing.T) {
	row := RowOf("目的地", "上海", "始发地", "北京", "2kg", 1.74, "1kg", 1.63)

	data, err := json.Marshal(row)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `{"目的地":"上海","始发地":"北京","2kg":1.74,"1kg":1.63}`
	if string(data) != want {
		t.Errorf("Marshal() = %s, want %s", data, want)
	}

	var back RawRow
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if !reflect.DeepEqual(back.Keys(), row.Keys()) {
		t.Errorf("Keys() = %v, want %v", back.Keys(), row.Keys())
	}
	if !reflect.DeepEqual(back, row) {
		t.Errorf("round trip = %+v, want %+v", back, row)
	}
}

// ----------------------------------------------------------------------------
// Options
// ----------------------------------------------------------------------------

func TestOptions(t *testing.T) {
	set := mustNormalize(t,
		RowOf("始发地", "上海", "目的地", "北京", "1kg", 1.0, "2kg", 2.0),
		RowOf("始发地", "北京", "目的地", "成都", "1kg", 1.0, "10kg", 3.0),
		RowOf("始发地", "北京", "目的地", "", "2kg", 1.0),
	)

	if got, want := Origins(set), []string{"北京", "上海"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Origins() = %v, want %v", got, want)
	}
	if got, want := Destinations(set), []string{"北京", "成都"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Destinations() = %v, want %v", got, want)
	}
	if got, want := Weights(set), []float64{1, 2, 10}; !reflect.DeepEqual(got, want) {
		t.Errorf("Weights() = %v, want %v", got, want)
	}
	if Origins(nil) != nil || Weights(nil) != nil {
		t.Error("options of nil set should be nil")
	}
}
