package cli

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/ketralnis/exproxyment/internal/admin"
	"github.com/ketralnis/exproxyment/internal/config"
	"github.com/ketralnis/exproxyment/internal/health"
	"github.com/ketralnis/exproxyment/internal/logging"
	"github.com/ketralnis/exproxyment/internal/proxypipeline"
	"github.com/ketralnis/exproxyment/internal/routing"
)

var (
	port           int
	backendsFlag   string
	weightsFlag    string
	cookieDomain   string
	softSticky     bool
	hardSticky     bool
	healthInterval time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the exproxyment proxy daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	serveCmd.Flags().IntVar(&port, "port", 8080, "Port to listen on")
	serveCmd.Flags().StringVar(&backendsFlag, "backends", "", "Comma-separated host:port backend list")
	serveCmd.Flags().StringVar(&weightsFlag, "weights", "", "Comma-separated version:weight placement weights")
	serveCmd.Flags().StringVar(&cookieDomain, "cookie_domain", "", "Domain attribute for the stickiness cookie")
	serveCmd.Flags().BoolVar(&softSticky, "soft_sticky", true, "Set a requested-version stickiness cookie on responses")
	serveCmd.Flags().BoolVar(&hardSticky, "hard_sticky", false, "Set a required-version stickiness cookie on responses")
	serveCmd.Flags().DurationVar(&healthInterval, "health-interval", health.DefaultInterval, "Interval between health-check ticks")

	rootCmd.AddCommand(serveCmd)
}

// runServe is the cobra RunE body for "serve": it validates flags,
// assembles the routing table, health scheduler, proxy pipeline and
// admin surface, and blocks serving HTTP until the process is killed.
// Setting both --soft_sticky and --hard_sticky is a fatal configuration
// error per spec.md §6/§7 and is rejected here before anything starts.
func runServe() error {
	sticky, err := config.ResolveSticky(softSticky, hardSticky)
	if err != nil {
		return err
	}

	backends, err := config.ParseBackends(backendsFlag)
	if err != nil {
		return fmt.Errorf("--backends: %w", err)
	}
	weights, err := config.ParseWeights(weightsFlag)
	if err != nil {
		return fmt.Errorf("--weights: %w", err)
	}

	logger := logging.New(verbose)
	defer logger.Sync()

	table := routing.New()
	if len(backends) > 0 {
		table.SetBackends(backends)
	}
	if len(weights) > 0 {
		table.SetWeights(weights)
	}

	scheduler := health.New(table, healthInterval, logger)
	go scheduler.Run()
	defer scheduler.Stop()

	pipeline := proxypipeline.New(table, logger, sticky, cookieDomain)
	adminSurface := admin.New(table, logger)

	mux := http.NewServeMux()
	adminSurface.Mount(mux)
	mux.Handle("/", pipeline)

	addr := fmt.Sprintf(":%d", port)
	logger.Infow("starting exproxyment", "addr", addr, "backends", len(backends))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server exited: %w", err)
	}
	return nil
}
