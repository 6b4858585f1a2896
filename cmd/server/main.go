/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the charge engine server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Initialize SQLite store
  3. Wire the batch coordinator and cron runner
  4. Configure HTTP router
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port            HTTP server port (default: 8080)
  -db              SQLite database path (default: charges.db)
                   Use ":memory:" for an in-memory database
  -batch           Enable the cron-driven maintenance runner
  -batch-schedule  Cron expression for the nightly run (default: midnight)
  -log-level       logrus level (default: info)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Stop the batch runner, waiting for an in-flight run
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database and nightly batch
  ./server -db="./data/charges.db" -batch

  # Run on a different port without the batch runner
  ./server -port=3000

SEE ALSO:
  - api/server.go: Router configuration
  - batch/runner.go: Cron wiring
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/warp/charge-engine/api"
	"github.com/warp/charge-engine/batch"
	"github.com/warp/charge-engine/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "charges.db", "SQLite database path")
	batchEnabled := flag.Bool("batch", false, "enable the cron-driven maintenance runner")
	batchSchedule := flag.String("batch-schedule", "0 0 * * *", "cron expression for the maintenance run")
	logLevel := flag.String("log-level", "info", "logrus level (debug, info, warn, error)")
	flag.Parse()

	// Logger
	log := logrus.New()
	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Batch coordinator and runner
	coordinator := batch.NewCoordinator(store, batch.FullSettlementApplier{}, nil, log)
	var runner *batch.Runner
	if *batchEnabled {
		runner = batch.NewRunner(coordinator, batch.RunnerConfig{Schedule: *batchSchedule}, log)
		if err := runner.Start(); err != nil {
			log.Fatalf("Failed to start batch runner: %v", err)
		}
	}

	// Router and server
	handler := api.NewHandler(store, coordinator, log)
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      api.NewRouter(handler),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Infof("Server starting on http://localhost:%d", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")
	if runner != nil {
		runner.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Info("Server stopped")
}
