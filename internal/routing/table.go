package routing

import (
	"math/rand"
	"sync"
)

// Table is the routing state: a map from Backend to State, the operator's
// version-weight table, and the set of in-flight active requests.
//
// All mutators take the same lock readers use (the teacher's XyRouter uses
// the same RWMutex pattern for its route trie), so no caller can ever
// observe a half-installed configuration.
type Table struct {
	mu sync.RWMutex

	backends map[Backend]State
	weights  map[string]int

	requestsMu sync.Mutex
	requests   map[*ActiveRequest]struct{}
}

// New returns an empty Table.
func New() *Table {
	return &Table{
		backends: make(map[Backend]State),
		weights:  make(map[string]int),
		requests: make(map[*ActiveRequest]struct{}),
	}
}

// BackendFor returns a uniformly random backend whose state is Healthy and
// whose Version equals the argument, or false if there is none.
func (t *Table) BackendFor(version string) (Backend, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var candidates []Backend
	for b, s := range t.backends {
		if s.Health == Healthy && s.Version == version {
			candidates = append(candidates, b)
		}
	}
	if len(candidates) == 0 {
		return Backend{}, false
	}
	return candidates[rand.Intn(len(candidates))], true
}

// Healthy reports whether at least one backend is healthy, optionally
// restricted to a given version.
func (t *Table) Healthy(forVersion string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, s := range t.backends {
		if s.Health != Healthy {
			continue
		}
		if forVersion == "" || forVersion == s.Version {
			return true
		}
	}
	return false
}

// AvailableVersions returns the set of versions served by at least one
// healthy backend.
func (t *Table) AvailableVersions() map[string]struct{} {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]struct{})
	for _, s := range t.backends {
		if s.Health == Healthy {
			out[s.Version] = struct{}{}
		}
	}
	return out
}

// BackendState returns the current state of a backend and whether it is
// known to the table at all.
func (t *Table) BackendState(b Backend) (State, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.backends[b]
	return s, ok
}

// Snapshot returns a copy of the full backend map. Callers must not mutate
// the returned map's values back into the table; use the mutators below.
func (t *Table) Snapshot() map[Backend]State {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[Backend]State, len(t.backends))
	for b, s := range t.backends {
		out[b] = s
	}
	return out
}

// Weights returns a copy of the current weight table.
func (t *Table) Weights() map[string]int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]int, len(t.weights))
	for v, w := range t.weights {
		out[v] = w
	}
	return out
}

// SetBackends atomically replaces the set of known backends. A backend
// that was already known keeps its existing state; wiping state on a
// reconfigure that re-lists an existing backend would 504 all of its
// traffic until the next health-check cycle, so new entries are seeded
// (Unknown, "") and pre-existing ones are carried over untouched.
func (t *Table) SetBackends(backends []Backend) {
	t.mu.Lock()
	defer t.mu.Unlock()

	next := make(map[Backend]State, len(backends))
	for _, b := range backends {
		if prior, ok := t.backends[b]; ok {
			next[b] = prior
		} else {
			next[b] = State{Health: Unknown}
		}
	}
	t.backends = next
}

// AddBackend adds a single backend if it is not already known. A backend
// already present is left untouched.
func (t *Table) AddBackend(b Backend) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.backends[b]; !ok {
		t.backends[b] = State{Health: Unknown}
	}
}

// RemoveBackend deletes a backend if present. A probe already in flight
// against this backend finds it gone by the time it tries to write back
// (see UpdateIfPresent) and discards its result.
func (t *Table) RemoveBackend(b Backend) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.backends, b)
}

// SetWeights atomically replaces the whole weight table.
func (t *Table) SetWeights(weights map[string]int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	next := make(map[string]int, len(weights))
	for v, w := range weights {
		next[v] = w
	}
	t.weights = next
}

// UpdateIfPresent writes a new State for a backend, but only if the
// backend is still known to the table. This is the race rule from §4.2: a
// probe's result must be discarded if the backend was removed while the
// probe was in flight.
func (t *Table) UpdateIfPresent(b Backend, s State) (wrote bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.backends[b]; !ok {
		return false
	}
	t.backends[b] = s
	return true
}

// Partition splits the known backends into those never yet probed
// (Unknown) and those that have been probed at least once.
func (t *Table) Partition() (unseen, seen []Backend) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for b, s := range t.backends {
		if s.Health == Unknown {
			unseen = append(unseen, b)
		} else {
			seen = append(seen, b)
		}
	}
	return unseen, seen
}

// AddRequest inserts an ActiveRequest into the in-flight set. The caller
// owns the pointer and must pass the same one to RemoveRequest.
func (t *Table) AddRequest(ar *ActiveRequest) {
	t.requestsMu.Lock()
	defer t.requestsMu.Unlock()
	t.requests[ar] = struct{}{}
}

// RemoveRequest removes an ActiveRequest from the in-flight set. It is
// safe to call even if ar was never added or was already removed.
func (t *Table) RemoveRequest(ar *ActiveRequest) {
	t.requestsMu.Lock()
	defer t.requestsMu.Unlock()
	delete(t.requests, ar)
}

// ActiveRequests returns a snapshot of all currently in-flight requests.
func (t *Table) ActiveRequests() []ActiveRequest {
	t.requestsMu.Lock()
	defer t.requestsMu.Unlock()

	out := make([]ActiveRequest, 0, len(t.requests))
	for ar := range t.requests {
		out = append(out, *ar)
	}
	return out
}
