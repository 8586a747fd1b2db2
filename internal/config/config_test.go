package config

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ketralnis/exproxyment/internal/proxypipeline"
	"github.com/ketralnis/exproxyment/internal/routing"
)

func TestParseBackends(t *testing.T) {
	got, err := ParseBackends("h1:9001,h2:9002")
	if err != nil {
		t.Fatalf("ParseBackends: %v", err)
	}
	want := []routing.Backend{{Host: "h1", Port: 9001}, {Host: "h2", Port: 9002}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParseBackends mismatch (-want +got):\n%s", diff)
	}
}

func TestParseBackendsEmpty(t *testing.T) {
	got, err := ParseBackends("")
	if err != nil || got != nil {
		t.Errorf("ParseBackends(\"\") = %v, %v; want nil, nil", got, err)
	}
}

func TestParseBackendsRejectsMissingPort(t *testing.T) {
	if _, err := ParseBackends("h1"); err == nil {
		t.Errorf("expected an error for a backend entry with no port")
	}
}

func TestParseWeights(t *testing.T) {
	got, err := ParseWeights("1:1,2:9")
	if err != nil {
		t.Fatalf("ParseWeights: %v", err)
	}
	want := map[string]int{"1": 1, "2": 9}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParseWeights mismatch (-want +got):\n%s", diff)
	}
}

func TestResolveStickyBothSetIsFatal(t *testing.T) {
	if _, err := ResolveSticky(true, true); err == nil {
		t.Errorf("expected an error when both soft and hard sticky are set")
	}
}

func TestResolveStickyModes(t *testing.T) {
	cases := []struct {
		soft, hard bool
		want       proxypipeline.StickyMode
	}{
		{false, false, proxypipeline.StickyNone},
		{true, false, proxypipeline.StickySoft},
		{false, true, proxypipeline.StickyHard},
	}
	for _, c := range cases {
		got, err := ResolveSticky(c.soft, c.hard)
		if err != nil {
			t.Fatalf("ResolveSticky(%v, %v): %v", c.soft, c.hard, err)
		}
		if got != c.want {
			t.Errorf("ResolveSticky(%v, %v) = %v; want %v", c.soft, c.hard, got, c.want)
		}
	}
}
