// Package resolver extracts a client's version preference from an inbound
// HTTP request, honoring the strict precedence defined in spec.md §4.3:
// required header, requested header, required query param, requested
// query param, required cookie, requested cookie, then no preference at
// all.
package resolver

import (
	"net/http"

	"github.com/ketralnis/exproxyment/internal/stickiness"
)

const (
	requireHeader = "X-Exproxyment-Require-Version"
	requestHeader = "X-Exproxyment-Request-Version"

	requireQueryParam = "exproxyment_require_version"
	requestQueryParam = "exproxyment_request_version"
)

// Preference is the outcome of resolving a request's version preference.
type Preference struct {
	Required bool
	Version  string
}

// Resolve walks the precedence list in spec.md §4.3 and returns the first
// non-empty match. Ok is false only when no source carried a preference
// at all (the "Default" branch), in which case the zero Preference should
// be treated as "let Placement choose."
func Resolve(r *http.Request) (Preference, bool) {
	if v := r.Header.Get(requireHeader); v != "" {
		return Preference{Required: true, Version: v}, true
	}
	if v := r.Header.Get(requestHeader); v != "" {
		return Preference{Required: false, Version: v}, true
	}

	query := r.URL.Query()
	if v := query.Get(requireQueryParam); v != "" {
		return Preference{Required: true, Version: v}, true
	}
	if v := query.Get(requestQueryParam); v != "" {
		return Preference{Required: false, Version: v}, true
	}

	if c, err := r.Cookie(stickiness.RequireCookieName); err == nil {
		if v, ok := stickiness.Decode(c.Value); ok {
			return Preference{Required: true, Version: v}, true
		}
	}
	if c, err := r.Cookie(stickiness.RequestCookieName); err == nil {
		if v, ok := stickiness.Decode(c.Value); ok {
			return Preference{Required: false, Version: v}, true
		}
	}

	return Preference{}, false
}
