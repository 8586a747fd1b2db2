// Package proxypipeline implements the per-request proxy algorithm from
// spec.md §4.5: resolve a target version, select a backend, forward the
// request, retry on upstream version-rejection, and apply stickiness.
//
// The shape is the teacher's ProxyManager.ServeHTTP — select an upstream,
// track it as active, forward — generalized from a single-pass load
// balancer into the version-aware, retrying pipeline the spec requires.
// Unlike the teacher, this pipeline can't reuse httputil.ReverseProxy
// as-is: it needs to inspect the upstream status/headers before
// committing to a response (to decide on a 406 retry) and needs the
// request body available more than once across retries, so it builds and
// issues requests directly against *http.Client instead.
package proxypipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ketralnis/exproxyment/internal/placement"
	"github.com/ketralnis/exproxyment/internal/resolver"
	"github.com/ketralnis/exproxyment/internal/routing"
	"github.com/ketralnis/exproxyment/internal/stickiness"
)

// StickyMode selects which stickiness cookie (if any) the pipeline sets
// on a successful response. Soft and Hard are mutually exclusive by
// construction (see internal/config), never both at once.
type StickyMode int

const (
	StickyNone StickyMode = iota
	StickySoft
	StickyHard
)

const (
	// DefaultMaxTries is the tries=3 default from spec.md §4.5's
	// proxy(path, tries=3) signature.
	DefaultMaxTries = 3

	// defaultMaxRequestBody bounds how much of an inbound request body we
	// buffer for (possibly repeated, across retries) upstream forwarding.
	// spec.md's Non-goals rule out request body streaming outright; this
	// is the same 10MiB default the teacher's --max-body-size flag uses.
	defaultMaxRequestBody = 10 * 1024 * 1024

	wrongVersionHeader = "X-Exproxyment-Wrong-Version"
	versionHeader      = "X-Exproxyment-Version"
	backendHeader      = "X-Exproxyment-Backend"
	requestIDHeader    = "X-Exproxyment-Request-Id"
)

const (
	transportMaxIdleConns        = 512
	transportMaxIdleConnsPerHost = 64
	transportIdleConnTimeout     = 90 * time.Second
	transportDialTimeout         = 5 * time.Second
)

// Pipeline wires the routing table, resolver and placement algorithm
// together into the per-request proxy handler.
type Pipeline struct {
	Table        *routing.Table
	Log          *zap.SugaredLogger
	StickyMode   StickyMode
	CookieDomain string
	MaxTries     int
	MaxBodyBytes int64

	client *http.Client
}

// New builds a Pipeline with a pooled, timeout-tuned transport — the same
// dial-timeout/idle-conn tuning the teacher's NewProxyManager applies to
// its own http.Transport, adapted here for a single upstream-per-request
// client rather than one reverse proxy per upstream.
func New(table *routing.Table, log *zap.SugaredLogger, mode StickyMode, cookieDomain string) *Pipeline {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: transportDialTimeout,
		}).DialContext,
		MaxIdleConns:        transportMaxIdleConns,
		MaxIdleConnsPerHost: transportMaxIdleConnsPerHost,
		IdleConnTimeout:     transportIdleConnTimeout,
	}

	return &Pipeline{
		Table:        table,
		Log:          log,
		StickyMode:   mode,
		CookieDomain: cookieDomain,
		MaxTries:     DefaultMaxTries,
		MaxBodyBytes: defaultMaxRequestBody,
		client:       &http.Client{Transport: transport},
	}
}

// ServeHTTP implements http.Handler: it is the proxy catch-all route.
func (p *Pipeline) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body []byte
	if r.Method != http.MethodGet {
		limit := p.MaxBodyBytes
		if limit <= 0 {
			limit = defaultMaxRequestBody
		}
		b, err := io.ReadAll(io.LimitReader(r.Body, limit))
		if err != nil {
			http.Error(w, "failed to read request body", http.StatusBadRequest)
			return
		}
		body = b
	}

	// spec.md §9's "cookie encoding ambiguity" note and the original
	// source's route pattern both mean the upstream URL carries only the
	// request path, never the query string (see SPEC_FULL.md
	// "SUPPLEMENTED FEATURES" item 1).
	path := strings.TrimPrefix(r.URL.Path, "/")

	tries := p.MaxTries
	if tries <= 0 {
		tries = DefaultMaxTries
	}
	p.proxy(w, r, path, body, tries)
}

// proxy implements the ordered policy of spec.md §4.5 steps 1-13,
// recursing on a 406 + wrong-version upstream response.
func (p *Pipeline) proxy(w http.ResponseWriter, r *http.Request, path string, body []byte, tries int) {
	if tries <= 0 {
		p.nope(w, "too many tries")
		return
	}

	if !p.Table.Healthy("") {
		p.nope(w, "no backends available")
		return
	}

	pref, prefOk := resolver.Resolve(r)
	required := prefOk && pref.Required
	requested := ""
	if prefOk {
		requested = pref.Version
	}

	available := p.Table.AvailableVersions()
	_, isAvailable := available[requested]

	var version string
	if required {
		if !isAvailable {
			p.nope(w, fmt.Sprintf("no backend available for %s", requested))
			return
		}
		version = requested
	} else if prefOk && isAvailable {
		version = requested
	} else {
		placed, ok := placement.Place(available, p.Table.Weights())
		if !ok {
			p.nope(w, "no valid versions")
			return
		}
		version = placed
	}

	backend, ok := p.Table.BackendFor(version)
	if !ok {
		p.nope(w, fmt.Sprintf("no backend for %s", version))
		return
	}

	upstreamReq, err := p.buildUpstreamRequest(r, path, body, backend, version)
	if err != nil {
		p.nope(w, fmt.Sprintf("bad connection to %s (%v)", backend, err))
		return
	}

	active := &routing.ActiveRequest{
		SourceHost: clientHost(r),
		URI:        upstreamReq.URL.String(),
		Backend:    backend,
	}
	p.Table.AddRequest(active)
	resp, err := p.client.Do(upstreamReq)
	p.Table.RemoveRequest(active)

	if err != nil {
		p.nope(w, fmt.Sprintf("bad connection to %s (%s)", backend, err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotAcceptable && resp.Header.Get(wrongVersionHeader) != "" {
		io.Copy(io.Discard, resp.Body)
		p.Log.Debugw("upstream rejected version, retrying",
			"backend", backend.String(), "version", version, "tries_left", tries-1)
		p.proxy(w, r, path, body, tries-1)
		return
	}

	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.Header().Set(versionHeader, version)
	w.Header().Set(backendHeader, backend.String())
	p.setStickyCookie(w, version)

	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body)
}

// buildUpstreamRequest constructs the forwarded request per step 7: same
// method, every inbound header forwarded verbatim plus
// X-Exproxyment-Version, body forwarded iff method != GET.
//
// It deliberately uses context.Background() rather than r.Context():
// spec.md §5 states client disconnects must not cancel the upstream
// call, whereas the ResponseWriter's request context is canceled exactly
// on client disconnect.
func (p *Pipeline) buildUpstreamRequest(r *http.Request, path string, body []byte, backend routing.Backend, version string) (*http.Request, error) {
	target := fmt.Sprintf("http://%s:%d/%s", backend.Host, backend.Port, path)

	var bodyReader io.Reader
	if r.Method != http.MethodGet {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(context.Background(), r.Method, target, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header = r.Header.Clone()
	req.Header.Set(versionHeader, version)
	if req.Header.Get(requestIDHeader) == "" {
		req.Header.Set(requestIDHeader, uuid.NewString())
	}
	if r.Method != http.MethodGet {
		req.ContentLength = int64(len(body))
	}

	return req, nil
}

func (p *Pipeline) setStickyCookie(w http.ResponseWriter, version string) {
	var name string
	switch p.StickyMode {
	case StickySoft:
		name = stickiness.RequestCookieName
	case StickyHard:
		name = stickiness.RequireCookieName
	default:
		return
	}

	cookie := &http.Cookie{
		Name:   name,
		Value:  stickiness.Encode(version),
		Domain: p.CookieDomain,
		Path:   "/",
	}
	http.SetCookie(w, cookie)
}

// nope writes a plain-text 504, per spec.md §7's "no route" error shape.
func (p *Pipeline) nope(w http.ResponseWriter, reason string) {
	w.WriteHeader(http.StatusGatewayTimeout)
	io.WriteString(w, reason+"\n")
}

func clientHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
