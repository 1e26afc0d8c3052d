/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the rent escalation engine: the ticker-driven
  scheduler plus the operational HTTP API. Handles configuration,
  dependency wiring, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Initialize SQLite store
  3. Wire the runner (store + notifier)
  4. Start the escalation scheduler
  5. Start the HTTP server with graceful shutdown

COMMAND-LINE FLAGS:
  -port      HTTP server port (default: 8080)
  -db        SQLite database path (default: rent.db)
             Use ":memory:" for an in-memory database
  -interval  Scheduler cadence (default: 24h)
  -workers   Per-pass contract parallelism (default: 4)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler (waits for an in-flight pass)
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

EXAMPLES:
  # Run with file database, daily passes
  ./server -db="./data/rent.db"

  # Tight cadence for local testing
  ./server -db=":memory:" -interval=1m
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/rent-engine/api"
	"github.com/warp/rent-engine/escalation"
	"github.com/warp/rent-engine/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "rent.db", "SQLite database path")
	interval := flag.Duration("interval", 24*time.Hour, "scheduler cadence")
	workers := flag.Int("workers", 4, "per-pass contract parallelism")
	flag.Parse()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Wire the runner: sqlite serves both the contract view and the ledger
	runner := escalation.NewRunner(store, store, escalation.LogNotifier{})
	runner.Workers = *workers

	// Start the scheduler
	scheduler := api.NewEscalationScheduler(store, runner)
	scheduler.CheckInterval = *interval
	scheduler.Start()
	defer scheduler.Stop()

	// Create router
	handler := api.NewHandler(store, runner)
	router := api.NewRouter(handler)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server starting on http://localhost:%d", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
