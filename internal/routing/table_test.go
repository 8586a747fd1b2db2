package routing

import (
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSetBackendsPreservesExistingState(t *testing.T) {
	tbl := New()
	a := Backend{Host: "h1", Port: 9001}
	b := Backend{Host: "h2", Port: 9002}

	tbl.SetBackends([]Backend{a, b})
	tbl.UpdateIfPresent(a, State{Health: Healthy, Version: "1"})

	// Reconfigure with the same backend list; a's health must survive.
	tbl.SetBackends([]Backend{a, b})

	got, ok := tbl.BackendState(a)
	if !ok {
		t.Fatalf("backend a vanished after re-set")
	}
	want := State{Health: Healthy, Version: "1"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("state mismatch after re-set (-want +got):\n%s", diff)
	}
}

func TestRemoveThenAddResetsState(t *testing.T) {
	tbl := New()
	a := Backend{Host: "h1", Port: 9001}

	tbl.AddBackend(a)
	tbl.UpdateIfPresent(a, State{Health: Healthy, Version: "1"})

	tbl.RemoveBackend(a)
	tbl.AddBackend(a)

	got, ok := tbl.BackendState(a)
	if !ok {
		t.Fatalf("backend missing after re-add")
	}
	want := State{Health: Unknown}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("state mismatch after remove+add (-want +got):\n%s", diff)
	}
}

func TestAddBackendAlreadyPresentIsNoop(t *testing.T) {
	tbl := New()
	a := Backend{Host: "h1", Port: 9001}

	tbl.AddBackend(a)
	tbl.UpdateIfPresent(a, State{Health: Healthy, Version: "7"})
	tbl.AddBackend(a)

	got, _ := tbl.BackendState(a)
	if got.Health != Healthy || got.Version != "7" {
		t.Errorf("AddBackend on an existing key mutated state: %v", got)
	}
}

func TestUnprobedBackendNotARoutingCandidate(t *testing.T) {
	tbl := New()
	a := Backend{Host: "h1", Port: 9001}
	tbl.AddBackend(a)

	if _, ok := tbl.BackendFor(""); ok {
		t.Errorf("unprobed backend should not be returned by BackendFor")
	}
	if tbl.Healthy("") {
		t.Errorf("table with only an unprobed backend should not be healthy")
	}
}

func TestBackendForOnlyReturnsMatchingVersion(t *testing.T) {
	tbl := New()
	a := Backend{Host: "h1", Port: 9001}
	b := Backend{Host: "h2", Port: 9002}
	tbl.SetBackends([]Backend{a, b})
	tbl.UpdateIfPresent(a, State{Health: Healthy, Version: "1"})
	tbl.UpdateIfPresent(b, State{Health: Healthy, Version: "2"})

	got, ok := tbl.BackendFor("2")
	if !ok || got != b {
		t.Errorf("BackendFor(2) = %v, %v; want %v, true", got, ok, b)
	}

	versions := tbl.AvailableVersions()
	var got_ []string
	for v := range versions {
		got_ = append(got_, v)
	}
	sort.Strings(got_)
	if diff := cmp.Diff([]string{"1", "2"}, got_); diff != "" {
		t.Errorf("available versions mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdateIfPresentDiscardsAfterRemoval(t *testing.T) {
	tbl := New()
	a := Backend{Host: "h1", Port: 9001}
	tbl.AddBackend(a)

	tbl.RemoveBackend(a)

	if wrote := tbl.UpdateIfPresent(a, State{Health: Healthy, Version: "1"}); wrote {
		t.Errorf("UpdateIfPresent wrote state for a removed backend")
	}
	if _, ok := tbl.BackendState(a); ok {
		t.Errorf("removed backend reappeared via stale probe result")
	}
}

func TestActiveRequestLifecycle(t *testing.T) {
	tbl := New()
	b := Backend{Host: "h1", Port: 9001}
	ar := &ActiveRequest{SourceHost: "1.2.3.4", URI: "http://h1:9001/x", Backend: b}

	tbl.AddRequest(ar)
	if got := tbl.ActiveRequests(); len(got) != 1 {
		t.Fatalf("expected 1 active request, got %d", len(got))
	}

	tbl.RemoveRequest(ar)
	if got := tbl.ActiveRequests(); len(got) != 0 {
		t.Fatalf("expected 0 active requests after removal, got %d", len(got))
	}
}

func TestPartitionSeenUnseen(t *testing.T) {
	tbl := New()
	a := Backend{Host: "h1", Port: 9001}
	b := Backend{Host: "h2", Port: 9002}
	tbl.AddBackend(a)
	tbl.AddBackend(b)
	tbl.UpdateIfPresent(a, State{Health: Healthy, Version: "1"})

	unseen, seen := tbl.Partition()
	if len(unseen) != 1 || unseen[0] != b {
		t.Errorf("unseen = %v, want [%v]", unseen, b)
	}
	if len(seen) != 1 || seen[0] != a {
		t.Errorf("seen = %v, want [%v]", seen, a)
	}
}
