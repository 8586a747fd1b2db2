package resolver

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ketralnis/exproxyment/internal/stickiness"
)

func TestPrecedenceHeaderRequireBeatsEverything(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/x?exproxyment_require_version=9", nil)
	r.Header.Set(requireHeader, "v")
	r.AddCookie(&http.Cookie{Name: stickiness.RequireCookieName, Value: stickiness.Encode("zzz")})

	pref, ok := Resolve(r)
	if !ok || !pref.Required || pref.Version != "v" {
		t.Errorf("Resolve = %+v, %v; want {true v}, true", pref, ok)
	}
}

func TestPrecedenceRequireHeaderBeatsConflictingCookie(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/x", nil)
	r.Header.Set(requireHeader, "v1")
	r.AddCookie(&http.Cookie{Name: stickiness.RequireCookieName, Value: stickiness.Encode("v2")})

	pref, ok := Resolve(r)
	if !ok || !pref.Required || pref.Version != "v1" {
		t.Errorf("Resolve = %+v, %v; want required v1", pref, ok)
	}
}

func TestPrecedenceQueryBeatsCookie(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/x?exproxyment_request_version=q", nil)
	r.AddCookie(&http.Cookie{Name: stickiness.RequestCookieName, Value: stickiness.Encode("c")})

	pref, ok := Resolve(r)
	if !ok || pref.Required || pref.Version != "q" {
		t.Errorf("Resolve = %+v, %v; want requested q", pref, ok)
	}
}

func TestCookiePreferenceTakesEffectWhenNothingElsePresent(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/x", nil)
	r.AddCookie(&http.Cookie{Name: stickiness.RequestCookieName, Value: stickiness.Encode("cookie-v")})

	pref, ok := Resolve(r)
	if !ok || pref.Required || pref.Version != "cookie-v" {
		t.Errorf("Resolve = %+v, %v; want requested cookie-v", pref, ok)
	}
}

func TestRequireCookieBeatsRequestCookie(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/x", nil)
	r.AddCookie(&http.Cookie{Name: stickiness.RequestCookieName, Value: stickiness.Encode("soft")})
	r.AddCookie(&http.Cookie{Name: stickiness.RequireCookieName, Value: stickiness.Encode("hard")})

	pref, ok := Resolve(r)
	if !ok || !pref.Required || pref.Version != "hard" {
		t.Errorf("Resolve = %+v, %v; want required hard", pref, ok)
	}
}

func TestNoPreferenceAtAll(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/x", nil)
	_, ok := Resolve(r)
	if ok {
		t.Errorf("Resolve on a bare request should report ok=false")
	}
}

func TestUndecodableCookieIsTreatedAsAbsent(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/x", nil)
	r.AddCookie(&http.Cookie{Name: stickiness.RequestCookieName, Value: "%ZZ"})

	_, ok := Resolve(r)
	if ok {
		t.Errorf("an undecodable cookie must behave as if absent")
	}
}
