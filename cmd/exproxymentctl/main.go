// Command exproxymentctl is a small operator CLI for poking a running
// exproxyment daemon's admin surface: configuring backends and weights,
// or printing its current configuration/health. Grounded directly on the
// original implementation's configure.py.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
)

func main() {
	backendsFlag := flag.String("backends", "", "Comma-separated host:port list to configure")
	weightsFlag := flag.String("weights", "", "Comma-separated version:weight list to configure")
	showConfig := flag.Bool("show_config", false, "Print the daemon's current backends and weights")
	showHealth := flag.Bool("show_health", false, "Print the daemon's current health")
	server := flag.String("server", "localhost:7000", "host:port of the exproxyment daemon")
	flag.Parse()

	if *backendsFlag != "" || *weightsFlag != "" {
		body := map[string]any{}
		if *backendsFlag != "" {
			backends, err := parseBackends(*backendsFlag)
			if err != nil {
				log.Fatalf("--backends: %v", err)
			}
			body["backends"] = backends
		}
		if *weightsFlag != "" {
			weights, err := parseWeights(*weightsFlag)
			if err != nil {
				log.Fatalf("--weights: %v", err)
			}
			body["weights"] = weights
		}
		if err := post(*server, "/exproxyment/configure", body); err != nil {
			log.Fatal(err)
		}
	}

	if *showConfig {
		if err := get(*server, "/exproxyment/configure"); err != nil {
			log.Fatal(err)
		}
	}

	if *showHealth {
		if err := get(*server, "/health"); err != nil {
			log.Fatal(err)
		}
	}
}

func parseBackends(raw string) ([]map[string]any, error) {
	var out []map[string]any
	for _, entry := range strings.Split(raw, ",") {
		host, portStr, ok := strings.Cut(entry, ":")
		if !ok {
			return nil, fmt.Errorf("invalid backend %q: want host:port", entry)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("invalid backend %q: %w", entry, err)
		}
		out = append(out, map[string]any{"host": host, "port": port})
	}
	return out, nil
}

func parseWeights(raw string) (map[string]int, error) {
	out := make(map[string]int)
	for _, entry := range strings.Split(raw, ",") {
		version, weightStr, ok := strings.Cut(entry, ":")
		if !ok {
			return nil, fmt.Errorf("invalid weight %q: want version:weight", entry)
		}
		weight, err := strconv.Atoi(weightStr)
		if err != nil {
			return nil, fmt.Errorf("invalid weight %q: %w", entry, err)
		}
		out[version] = weight
	}
	return out, nil
}

func post(server, path string, body map[string]any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("http://%s%s", server, path)
	fmt.Println(path, "->", string(encoded))

	resp, err := http.Post(url, "application/json", bytes.NewReader(encoded))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return printResponse(resp)
}

func get(server, path string) error {
	url := fmt.Sprintf("http://%s%s", server, path)
	fmt.Println(path, "->")

	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return printResponse(resp)
}

func printResponse(resp *http.Response) error {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	fmt.Println(strings.TrimSpace(string(raw)))

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "request failed with code %d\n", resp.StatusCode)
		os.Exit(1)
	}
	return nil
}
