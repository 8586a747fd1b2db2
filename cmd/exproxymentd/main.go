// Command exproxymentd is the proxy daemon's entry point: it parses CLI
// flags and starts serving, per spec.md's CLI flags table (§6).
package main

import (
	"os"

	"github.com/ketralnis/exproxyment/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
