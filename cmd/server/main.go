/*
main.go - Application entry point

PURPOSE:
  Command line for the Warp allocation engine. "serve" runs the HTTP API,
  "simulate" plays a ruleset for a number of turns and prints the outcome.

STARTUP SEQUENCE (serve):
  1. Load configuration (file, .env, ALLOC_* variables)
  2. Build the logger and enable metrics
  3. Initialize SQLite store
  4. Load the configured ruleset, or the default scenario
  5. Configure HTTP router and start the phase scheduler
  6. Start server with graceful shutdown

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the phase scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

EXAMPLES:
  # Serve with a config file
  ./server serve --config=./configs/config.yaml

  # Serve on another port with an in-memory database
  ./server serve --port=3000
  ALLOC_SERVER_PORT=3000 ./server serve

  # Play the default game for 5 turns
  ./server simulate --turns=5

SEE ALSO:
  - config/config.go: Configuration sources
  - api/server.go: Router configuration
  - simulate.go: The simulate command
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/warp/allocation-engine/api"
	"github.com/warp/allocation-engine/config"
	"github.com/warp/allocation-engine/factory"
	"github.com/warp/allocation-engine/metrics"
	"github.com/warp/allocation-engine/store/sqlite"
	"github.com/warp/allocation-engine/turn"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "server",
		Short: "Warp allocation engine",
		Long: `Turn-based resource allocation: nations reserve stock for recruitment,
training, production and trade during their turn and commit it at the end.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: ./config.yaml)")

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newSimulateCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newServeCommand() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			if port > 0 {
				cfg.Server.Port = port
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "HTTP server port (overrides server.port)")
	return cmd
}

func engineOptions(cfg *config.Config) turn.Options {
	return turn.Options{
		CarryOverRequested: cfg.Engine.CarryOverRequested,
		Parallelism:        cfg.Engine.Parallelism,
		AutoAdvance:        cfg.Engine.AutoAdvance,
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	log := cfg.Logging.NewLogger(os.Stderr)
	slog.SetDefault(log)

	if cfg.Metrics.Enabled {
		if _, err := metrics.Enable(); err != nil {
			return fmt.Errorf("enable metrics: %w", err)
		}
		log.Info("metrics enabled", "path", cfg.Metrics.Path)
	}

	// Initialize store
	dbPath := cfg.Database.Path
	if dbPath == "" {
		dbPath = ":memory:"
	}
	store, err := sqlite.New(dbPath)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer store.Close()

	// Initialize handler and the opening game
	handler := api.NewHandler(store, engineOptions(cfg), log)
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.Rules.Path != "" {
		rs, err := factory.Load(cfg.Rules.Path)
		if err != nil {
			return err
		}
		if err := handler.LoadRuleset(ctx, rs, ""); err != nil {
			return err
		}
	} else if err := handler.LoadScenarioByID(ctx, "default"); err != nil {
		return err
	}

	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins: cfg.Server.CORSOrigins,
		RatePerSecond:  cfg.Server.RateLimit.RequestsPerSecond,
		RateBurst:      cfg.Server.RateLimit.Burst,
		MetricsPath:    metricsPath,
	})

	scheduler := api.NewPhaseScheduler(store, handler, log)
	scheduler.Enabled = cfg.Engine.Scheduler.Enabled
	scheduler.Interval = cfg.Engine.Scheduler.Interval
	scheduler.Start()
	defer scheduler.Stop()

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	log.Info("shutting down server")
	scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("server stopped")
	return nil
}
