// Command echobackend is a minimal fixture upstream matching the
// Upstream /health contract (spec.md §6): it reports a fixed version,
// optionally rejects requests carrying the wrong X-Exproxyment-Version
// header with 406 + X-Exproxyment-Wrong-Version (the --insistent flag),
// and can self-register with a running exproxyment daemon on startup.
//
// It is grounded directly on the original implementation's
// simpleserver.py, translated into Go's standard flag package rather
// than tornado's options module.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"
)

func main() {
	port := flag.Int("port", 8080, "Port to listen on")
	version := flag.String("version", "1", "Version string this backend reports")
	insistent := flag.Bool("insistent", false, "Reject requests not carrying our exact version")
	registerFrom := flag.String("register_from", "", "host:port of this backend, for self-registration")
	registerTo := flag.String("register_to", "", "host:port of the exproxyment daemon to register with")
	flag.Parse()

	if (*registerFrom == "") != (*registerTo == "") {
		log.Fatal("--register_from and --register_to must be given together")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", mainHandler(*port, *version, *insistent))
	mux.HandleFunc("/health", healthHandler(*version))

	if *registerFrom != "" {
		go registerSelf(*registerFrom, *registerTo)
	}

	addr := fmt.Sprintf(":%d", *port)
	log.Printf("echobackend listening on %s version=%s insistent=%v", addr, *version, *insistent)
	log.Fatal(http.ListenAndServe(addr, mux))
}

func mainHandler(port int, version string, insistent bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requested := r.Header.Get("X-Exproxyment-Version")
		if insistent && requested != version {
			w.Header().Set("X-Exproxyment-Wrong-Version", "true")
			w.WriteHeader(http.StatusNotAcceptable)
			log.Printf("got version %q but wanted %q", requested, version)
			return
		}

		json.NewEncoder(w).Encode(map[string]any{
			"port":    port,
			"version": version,
		})
	}
}

func healthHandler(version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"healthy": true,
			"version": version,
		})
	}
}

// registerSelf waits a second for the listener to come up, then POSTs
// this backend's host:port to the daemon's /exproxyment/register. A
// failure here kills the process, matching simpleserver.py's behavior
// of dying rather than running unregistered.
func registerSelf(from, to string) {
	time.Sleep(time.Second)

	fromHost, fromPort, err := splitHostPort(from)
	if err != nil {
		log.Fatalf("--register_from: %v", err)
	}

	body, _ := json.Marshal(map[string]any{
		"backends": []map[string]any{{"host": fromHost, "port": fromPort}},
	})

	url := fmt.Sprintf("http://%s/exproxyment/register", to)
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		log.Fatalf("registering self: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Fatalf("got code %d on register", resp.StatusCode)
	}
}

func splitHostPort(s string) (string, int, error) {
	host, portStr, ok := strings.Cut(s, ":")
	if !ok {
		return "", 0, fmt.Errorf("want host:port, got %q", s)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("port must be numeric: %w", err)
	}
	return host, port, nil
}
