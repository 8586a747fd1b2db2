// Package cli implements the exproxyment daemon's command tree: a
// cobra root command plus the "serve" subcommand that wires routing,
// health, proxy and admin together and blocks on the HTTP listener.
//
// The command/flags split mirrors the teacher's cmd tree shape
// (package-level var blocks bound with cobra's VarP functions, a serve
// subcommand as the real entry point) with its proprietary
// signature-gated "restricted access" banner mechanism removed — this
// is a new project, not an internal NEHONIX tool.
package cli

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

const banner = `
  _____                                                  _
 | ____|_  ___ __  _ __ _____  ___   _ _ __ ___   ___ _ __ | |_
 |  _| \ \/ / '_ \| '__/ _ \ \/ / | | | '_ ` + "`" + ` _ \ / _ \ '_ \| __|
 | |___ >  <| |_) | | | (_) >  <| |_| | | | | | |  __/ | | | |_
 |_____/_/\_\ .__/|_|  \___/_/\_\\__, |_| |_| |_|\___|_| |_|\__|
            |_|                 |___/
`

var (
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:           "exproxymentd",
	Short:         "exproxyment — a version-aware reverse proxy",
	Long:          "exproxyment routes requests across backend versions for gradual rollout, canary, and A/B testing.",
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command, printing the startup banner before any
// subcommand body executes.
func Execute() error {
	cyan := color.New(color.FgCyan, color.Bold)
	cyan.Fprintln(os.Stderr, banner)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug-level logging")
}
