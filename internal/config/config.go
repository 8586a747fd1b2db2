// Package config parses and validates the exproxyment daemon's startup
// configuration — the flags from spec.md §6 plus the mutually-exclusive
// sticky-mode fatal check from §7's "Configuration errors" category.
package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ketralnis/exproxyment/internal/proxypipeline"
	"github.com/ketralnis/exproxyment/internal/routing"
)

// ParseBackends parses a comma-separated "host:port,host:port" flag
// value, the format spec.md §6's --backends flag uses.
func ParseBackends(raw string) ([]routing.Backend, error) {
	if raw == "" {
		return nil, nil
	}

	var out []routing.Backend
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		host, portStr, ok := strings.Cut(entry, ":")
		if !ok {
			return nil, fmt.Errorf("invalid backend entry %q: want host:port", entry)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("invalid backend entry %q: port must be numeric: %w", entry, err)
		}
		out = append(out, routing.Backend{Host: host, Port: port})
	}
	return out, nil
}

// ParseWeights parses a comma-separated "version:weight,version:weight"
// flag value, the format spec.md §6's --weights flag uses.
func ParseWeights(raw string) (map[string]int, error) {
	if raw == "" {
		return nil, nil
	}

	out := make(map[string]int)
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		version, weightStr, ok := strings.Cut(entry, ":")
		if !ok {
			return nil, fmt.Errorf("invalid weight entry %q: want version:weight", entry)
		}
		weight, err := strconv.Atoi(weightStr)
		if err != nil {
			return nil, fmt.Errorf("invalid weight entry %q: weight must be numeric: %w", entry, err)
		}
		out[version] = weight
	}
	return out, nil
}

// ResolveSticky applies spec.md §6's "setting both sticky modes is a
// fatal startup error" rule.
func ResolveSticky(softSticky, hardSticky bool) (proxypipeline.StickyMode, error) {
	if softSticky && hardSticky {
		return proxypipeline.StickyNone, fmt.Errorf("can't set both --soft_sticky and --hard_sticky")
	}
	switch {
	case hardSticky:
		return proxypipeline.StickyHard, nil
	case softSticky:
		return proxypipeline.StickySoft, nil
	default:
		return proxypipeline.StickyNone, nil
	}
}
