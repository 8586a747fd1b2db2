// Package stickiness implements the cookie/header codec for session
// stickiness: encoding the chosen version into a Set-Cookie value, and
// decoding it back out of an inbound cookie.
//
// The wire format is inherited from the original Python implementation:
// percent-encoded JSON of the form `{"version": "<value>"}`, with a space
// after the colon (Python's json.dumps default separators) and
// percent-encoding matching urllib.quote's default safe="/" — not Go's
// url.QueryEscape, which would encode a literal space as "+" instead of
// "%20". Both codec.go functions exist specifically to reproduce that byte
// sequence; net/url's own escaper is not a drop-in replacement here.
package stickiness

import (
	"encoding/json"
	"strings"
)

// RequestCookieName and RequireCookieName are the two stickiness cookie
// names, corresponding to soft (requested) and hard (required) stickiness
// respectively.
const (
	RequestCookieName = "exproxyment_request_version"
	RequireCookieName = "exproxyment_require_version"
)

type cookiePayload struct {
	Version string `json:"version"`
}

// Encode builds the cookie value for a chosen version:
// percent-encode(`{"version": "<version>"}`).
func Encode(version string) string {
	return quote(marshal(version))
}

// marshal reproduces Python's json.dumps({'version': version}) byte for
// byte: a space after the colon, which encoding/json's compact encoder
// does not produce.
func marshal(version string) string {
	quoted, _ := json.Marshal(version) // handles escaping of quotes/backslashes/control chars
	return `{"version": ` + string(quoted) + `}`
}

// Decode extracts the version from a raw (still percent-encoded) cookie
// value. Decode failures of any kind (bad percent-encoding, invalid JSON,
// missing field) return ok=false; per §4.7 callers must treat that as "no
// cookie present" and never abort request processing over it.
func Decode(raw string) (version string, ok bool) {
	unescaped, err := unquote(raw)
	if err != nil {
		return "", false
	}

	var payload cookiePayload
	if err := json.Unmarshal([]byte(unescaped), &payload); err != nil {
		return "", false
	}
	if payload.Version == "" {
		return "", false
	}
	return payload.Version, true
}

// quote percent-encodes s the way Python's urllib.quote(s) does with its
// default safe="/": unreserved characters (letters, digits, "_", ".",
// "-", "~") and "/" pass through unescaped; everything else becomes
// "%XX" with uppercase hex digits.
func quote(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s) * 3)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) || c == '/' {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0xf])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z':
		return true
	case c >= 'A' && c <= 'Z':
		return true
	case c >= '0' && c <= '9':
		return true
	case c == '_' || c == '.' || c == '-' || c == '~':
		return true
	default:
		return false
	}
}

// unquote percent-decodes s. Unlike net/url's QueryUnescape, it never
// treats "+" as a space, matching urllib.unquote (not
// urllib.unquote_plus), which is what the original cookie decode path
// uses.
func unquote(s string) (string, error) {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '%' {
			b.WriteByte(c)
			continue
		}
		if i+2 >= len(s) {
			return "", errBadEscape
		}
		hi, ok1 := unhex(s[i+1])
		lo, ok2 := unhex(s[i+2])
		if !ok1 || !ok2 {
			return "", errBadEscape
		}
		b.WriteByte(hi<<4 | lo)
		i += 2
	}
	return b.String(), nil
}

type quoteError string

func (e quoteError) Error() string { return string(e) }

const errBadEscape = quoteError("stickiness: invalid percent-encoding")

func unhex(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	default:
		return 0, false
	}
}
