// Package admin implements the operator-facing HTTP surface (spec.md
// §4.6): fleet health, live reconfiguration, self-registration and
// in-flight request introspection. It's the teacher's ServeMux-dispatch
// pattern from internal/server/server.go — one handler function per
// route, wired onto a plain *http.ServeMux rather than a trie router,
// since the route set here is small and flat — adapted to the
// configure/register/deregister/activity contract the original Python
// exposes instead of the teacher's proxy-management endpoints.
package admin

import (
	"encoding/json"
	"net/http"
	"sort"

	"go.uber.org/zap"

	"github.com/ketralnis/exproxyment/internal/routing"
)

// Surface holds the dependencies the admin handlers need and exposes
// http.Handler routes to be mounted by the daemon's serve command
// (internal/cli).
type Surface struct {
	Table *routing.Table
	Log   *zap.SugaredLogger
}

// New builds a Surface.
func New(table *routing.Table, log *zap.SugaredLogger) *Surface {
	return &Surface{Table: table, Log: log}
}

// Mount registers every admin route (plus 404 catch-alls for the
// /health/ and /exproxyment/ subtrees) onto mux. Paths that only share
// the prefix without a slash, such as /healthz or /exproxymentfoo, are
// not caught here and reach whatever handler serves "/".
func (s *Surface) Mount(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/exproxyment/configure", s.handleConfigure)
	mux.HandleFunc("/exproxyment/register", s.handleRegister)
	mux.HandleFunc("/exproxyment/deregister", s.handleDeregister)
	mux.HandleFunc("/exproxyment/activity", s.handleActivity)

	// reserve the rest of both subtrees for ourselves; ServeMux patterns
	// ending in "/" match only paths under that slash.
	mux.HandleFunc("/exproxyment/", s.handleNotFound)
	mux.HandleFunc("/health/", s.handleNotFound)
}

func (s *Surface) handleNotFound(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNotFound)
}

type backendJSON struct {
	Host    string `json:"host"`
	Port    int    `json:"port"`
	Healthy bool   `json:"healthy"`
	Version string `json:"version,omitempty"`
}

// handleHealth answers GET /health: whether at least one backend is
// healthy (optionally restricted to ?for_version=), plus a full fleet
// listing sorted by (host, port).
func (s *Surface) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	forVersion := r.URL.Query().Get("for_version")
	healthy := s.Table.Healthy(forVersion)

	snapshot := s.Table.Snapshot()
	backends := make([]backendJSON, 0, len(snapshot))
	for b, st := range snapshot {
		backends = append(backends, backendJSON{
			Host:    b.Host,
			Port:    b.Port,
			Healthy: st.Health == routing.Healthy,
			Version: st.Version,
		})
	}
	sort.Slice(backends, func(i, j int) bool {
		if backends[i].Host != backends[j].Host {
			return backends[i].Host < backends[j].Host
		}
		return backends[i].Port < backends[j].Port
	})

	versions := make([]string, 0, len(snapshot))
	for v := range s.Table.AvailableVersions() {
		versions = append(versions, v)
	}
	sort.Strings(versions)

	status := http.StatusOK
	if !healthy {
		status = http.StatusInternalServerError
	}
	writeJSONStatus(w, status, map[string]any{
		"healthy":  healthy,
		"versions": versions,
		"weights":  s.Table.Weights(),
		"backends": backends,
	})
}

// handleConfigure implements GET/POST /exproxyment/configure: GET
// reports the current backend list and weights; POST replaces either or
// both, then responds with the same body as GET.
func (s *Surface) handleConfigure(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.writeConfigureState(w)
	case http.MethodPost:
		s.handleConfigurePost(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Surface) writeConfigureState(w http.ResponseWriter) {
	snapshot := s.Table.Snapshot()
	backends := make([]backendJSON, 0, len(snapshot))
	for b, st := range snapshot {
		backends = append(backends, backendJSON{
			Host:    b.Host,
			Port:    b.Port,
			Healthy: st.Health == routing.Healthy,
			Version: st.Version,
		})
	}
	sort.Slice(backends, func(i, j int) bool {
		if backends[i].Host != backends[j].Host {
			return backends[i].Host < backends[j].Host
		}
		return backends[i].Port < backends[j].Port
	})

	writeJSON(w, map[string]any{
		"backends": backends,
		"weights":  s.Table.Weights(),
	})
}

type configureRequest struct {
	Backends json.RawMessage `json:"backends"`
	Weights  json.RawMessage `json:"weights"`
}

type rawBackend struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// handleConfigurePost decodes "backends" and "weights" as independent raw
// fields (rather than into one struct) so a malformed value in one field
// reports that field's name, matching the original's per-field {"error":
// "bad format: <field>"} contract instead of collapsing every decode
// failure into one generic message.
func (s *Surface) handleConfigurePost(w http.ResponseWriter, r *http.Request) {
	var body configureRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		badFormat(w, "backends")
		return
	}

	if body.Backends != nil {
		var raw []rawBackend
		if err := json.Unmarshal(body.Backends, &raw); err != nil {
			badFormat(w, "backends")
			return
		}
		backends, err := validateBackends(raw)
		if err != nil {
			badFormat(w, "backends")
			return
		}
		s.Log.Infow("reconfiguring backends", "count", len(backends))
		s.Table.SetBackends(backends)
	}

	if body.Weights != nil {
		var raw map[string]any
		if err := json.Unmarshal(body.Weights, &raw); err != nil {
			badFormat(w, "weights")
			return
		}
		weights, err := validateWeights(raw)
		if err != nil {
			badFormat(w, "weights")
			return
		}
		s.Log.Infow("reconfiguring weights", "weights", weights)
		s.Table.SetWeights(weights)
	}

	s.writeConfigureState(w)
}

// handleRegister implements POST /exproxyment/register: add one or more
// new backends without disturbing any existing ones (routing.AddBackend
// is a no-op for an already-known backend).
func (s *Surface) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		Backends []rawBackend `json:"backends"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		badFormat(w, "backends")
		return
	}
	backends, err := validateBackends(body.Backends)
	if err != nil {
		badFormat(w, "backends")
		return
	}

	for _, b := range backends {
		s.Log.Infow("registering backend", "backend", b.String())
		s.Table.AddBackend(b)
	}
	writeJSON(w, map[string]any{"status": "ok"})
}

// handleDeregister implements POST /exproxyment/deregister.
func (s *Surface) handleDeregister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		Backends []rawBackend `json:"backends"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		badFormat(w, "backends")
		return
	}
	backends, err := validateBackends(body.Backends)
	if err != nil {
		badFormat(w, "backends")
		return
	}

	for _, b := range backends {
		s.Log.Infow("deregistering backend", "backend", b.String())
		s.Table.RemoveBackend(b)
	}
	writeJSON(w, map[string]any{"status": "ok"})
}

// handleActivity implements GET /exproxyment/activity: the current
// in-flight ActiveRequest set.
func (s *Surface) handleActivity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	active := s.Table.ActiveRequests()
	activity := make([]map[string]any, 0, len(active))
	for _, ar := range active {
		activity = append(activity, map[string]any{
			"source_host": ar.SourceHost,
			"uri":         ar.URI,
			"backend": map[string]any{
				"host": ar.Backend.Host,
				"port": ar.Backend.Port,
			},
		})
	}
	writeJSON(w, map[string]any{"activity": activity})
}

func validateBackends(raw []rawBackend) ([]routing.Backend, error) {
	if raw == nil {
		return nil, errBadFormat
	}
	out := make([]routing.Backend, 0, len(raw))
	for _, b := range raw {
		if b.Host == "" || b.Port == 0 {
			return nil, errBadFormat
		}
		out = append(out, routing.Backend{Host: b.Host, Port: b.Port})
	}
	return out, nil
}

func validateWeights(raw map[string]any) (map[string]int, error) {
	out := make(map[string]int, len(raw))
	for version, v := range raw {
		n, ok := v.(float64) // JSON numbers decode as float64 into interface{}
		if !ok || n != float64(int(n)) {
			return nil, errBadFormat
		}
		out[version] = int(n)
	}
	return out, nil
}

var errBadFormat = jsonError("bad format")

type jsonError string

func (e jsonError) Error() string { return string(e) }

func badFormat(w http.ResponseWriter, field string) {
	writeJSONStatus(w, http.StatusBadRequest, map[string]any{"error": "bad format: " + field})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// writeJSONStatus sets the Content-Type header before calling WriteHeader
// — net/http silently drops header writes issued after WriteHeader, so
// the status code must always be set last.
func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
