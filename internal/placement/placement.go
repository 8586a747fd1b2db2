// Package placement implements the algorithm that picks a version when a
// client has no usable preference: the highest available version
// lexicographically, or — if the operator has supplied weights — a
// weighted random choice among the available versions.
package placement

import "math/rand"

// Place selects a version given the set of currently-available versions
// and the operator's weight table. It returns false if no version can be
// selected at all.
//
// If weights is empty, the "highest" (lexicographic max) available
// version is returned deterministically. Otherwise a multiset is built by
// repeating each available version exactly weights[v] times — the same
// expansion the teacher's WeightedRoundRobinBalancer uses to turn a
// Weight field into a flat pool — and a uniformly random entry from that
// multiset is returned. Weight entries for versions that are not
// currently available are ignored, by construction: expand only iterates
// over available versions.
func Place(available map[string]struct{}, weights map[string]int) (string, bool) {
	if len(weights) == 0 {
		return lexMax(available)
	}

	pool := expand(available, weights)
	if len(pool) == 0 {
		return "", false
	}
	return pool[rand.Intn(len(pool))], true
}

func lexMax(available map[string]struct{}) (string, bool) {
	var max string
	found := false
	for v := range available {
		if !found || v > max {
			max = v
			found = true
		}
	}
	return max, found
}

// expand builds a flat slice where each available version appears
// weights[v] times. Versions absent from weights (or with weight 0)
// contribute nothing to the pool.
func expand(available map[string]struct{}, weights map[string]int) []string {
	var out []string
	for v := range available {
		w := weights[v]
		if w <= 0 {
			continue
		}
		for i := 0; i < w; i++ {
			out = append(out, v)
		}
	}
	return out
}
