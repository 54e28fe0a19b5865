/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the inventory ledger server. Handles
  configuration, dependency injection, and graceful shutdown.

COMMANDS:
  serve    (default) Run the HTTP API
  migrate  Apply schema migrations and print the schema version
  view     Print the full view as JSON
  export   Save CSV text from stdin (or --file) to the export directory

STARTUP SEQUENCE (serve):
  1. Resolve configuration (flags > env > .env > yaml > defaults)
  2. Configure the global zerolog logger
  3. Open SQLite store (migrations run on open)
  4. Build Engine, exporter, metrics and API handler
  5. Start server with graceful shutdown

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database
  ./server --db=./data/shop.db

  # Run with in-memory database
  ./server --db=":memory:"

  # Run on different port
  INVLEDGER_HTTP_PORT=3000 ./server

SEE ALSO:
  - commands.go: migrate, view and export subcommands
  - api/server.go: Router configuration
  - config/config.go: Configuration keys
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/warp/inventory-ledger/api"
	"github.com/warp/inventory-ledger/config"
	"github.com/warp/inventory-ledger/export"
	"github.com/warp/inventory-ledger/ledger"
	"github.com/warp/inventory-ledger/logger"
	"github.com/warp/inventory-ledger/store/sqlite"
)

var version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "inventory-ledger",
		Short: "Inventory, sales, returns and customer credit ledger",
		Long: `inventory-ledger tracks stock on hand, sales, FIFO returns and
customer credit balances for a small shop, backed by a single SQLite file.

Without a subcommand it serves the HTTP API.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.String("db", "", "SQLite database path (\":memory:\" for in-memory)")
	flags.Int("port", 0, "HTTP server port")
	flags.String("export-dir", "", "Directory CSV exports are written to")
	flags.String("log-level", "", "Log level (trace, debug, info, warn, error)")
	flags.String("log-format", "", "Log format (console, json)")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API (default)",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runServe(cmd)
			},
		},
		newMigrateCmd(),
		newViewCmd(),
		newExportCmd(),
	)
	return root
}

// app holds what every command needs once configuration is resolved.
type app struct {
	cfg   config.Config
	store *sqlite.Store
}

// bootstrap loads configuration, sets up logging and opens the store.
// Only flags the user actually set override lower layers.
func bootstrap(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(changedFlags(cmd))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := logger.Setup(cfg.Log); err != nil {
		return nil, fmt.Errorf("setup logger: %w", err)
	}

	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", cfg.DBPath, err)
	}
	return &app{cfg: cfg, store: store}, nil
}

func (a *app) engine() *ledger.Engine {
	return ledger.NewEngine(a.store,
		ledger.WithDefaultLowStockThreshold(decimal.NewFromFloat(a.cfg.DefaultLowStockThreshold)),
		ledger.WithLogger(logger.WithComponent("ledger")),
	)
}

func (a *app) exporter() *export.Exporter {
	return export.New(a.cfg.ExportDir, logger.WithComponent("export"))
}

func runServe(cmd *cobra.Command) error {
	a, err := bootstrap(cmd)
	if err != nil {
		return err
	}
	defer a.store.Close()

	handler := api.NewHandler(a.engine(), a.exporter(), api.NewMetrics(), logger.WithComponent("http"))
	router := api.NewRouter(handler, a.cfg.CORSOrigins)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", a.cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().
			Int("port", a.cfg.HTTPPort).
			Str("db", a.cfg.DBPath).
			Str("export_dir", a.cfg.ExportDir).
			Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		return fmt.Errorf("server failed: %w", err)
	case <-quit:
	}

	log.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info().Msg("server stopped")
	return nil
}
