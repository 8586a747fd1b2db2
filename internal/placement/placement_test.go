package placement

import "testing"

func set(vs ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(vs))
	for _, v := range vs {
		out[v] = struct{}{}
	}
	return out
}

func TestPlaceEmptyWeightsPicksLexMax(t *testing.T) {
	got, ok := Place(set("1", "2", "10"), nil)
	if !ok || got != "2" {
		t.Errorf("Place = %q, %v; want \"2\", true (lexicographic, not numeric, max)", got, ok)
	}
}

func TestPlaceNoVersionsNoWeights(t *testing.T) {
	_, ok := Place(set(), nil)
	if ok {
		t.Errorf("Place over an empty version set should report false")
	}
}

func TestPlaceIgnoresUnavailableWeights(t *testing.T) {
	// weight given for "3" but it's not currently available; only "1" and
	// "2" are real candidates.
	weights := map[string]int{"1": 1, "2": 1, "3": 100}
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		got, ok := Place(set("1", "2"), weights)
		if !ok {
			t.Fatalf("Place returned false with weighted candidates available")
		}
		if got != "1" && got != "2" {
			t.Fatalf("Place returned unavailable version %q", got)
		}
		seen[got] = true
	}
	if len(seen) != 2 {
		t.Errorf("expected both weighted versions to show up over 200 draws, saw %v", seen)
	}
}

func TestPlaceWeightedDistributionIsProportional(t *testing.T) {
	weights := map[string]int{"1": 1, "2": 9}
	counts := map[string]int{}
	const n = 20000
	for i := 0; i < n; i++ {
		got, ok := Place(set("1", "2"), weights)
		if !ok {
			t.Fatalf("Place returned false")
		}
		counts[got]++
	}

	ratio := float64(counts["2"]) / float64(counts["1"])
	if ratio < 6 || ratio > 14 {
		t.Errorf("weighted ratio out of expected range: counts=%v ratio=%.2f", counts, ratio)
	}
}

func TestPlaceAllWeightsZeroOrMissing(t *testing.T) {
	_, ok := Place(set("1", "2"), map[string]int{"1": 0})
	if ok {
		t.Errorf("Place should report false when the weighted multiset is empty")
	}
}
