/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the GST Rule 37 ITC reversal service. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Initialize SQLite store
  3. Create credit client and API handler
  4. Configure HTTP router
  5. Start retention scheduler
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port                  HTTP server port (default: 8080)
  -db                    SQLite database path (default: itc.db)
                         Use ":memory:" for in-memory database
  -credit-url            Base URL of the credit service
  -retention-days        Days a saved run is kept (default: 7)
  -retention-interval    How often expired runs are purged (default: 1h)
  -max-runs-per-tenant   Saved-run cap per tenant (default: 50)
  -max-files             Max files per upload (default: 10)
  -max-file-size-mb      Max size per uploaded file (default: 5)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the retention scheduler
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/itc.db"

  # Run with in-memory database and a local credit service
  ./server -db=":memory:" -credit-url="http://localhost:9090"

ENVIRONMENT:
  No environment variables currently. All config via flags.

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
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

	"github.com/gstledger/itc-engine/api"
	"github.com/gstledger/itc-engine/credit"
	"github.com/gstledger/itc-engine/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "itc.db", "SQLite database path")
	creditURL := flag.String("credit-url", "http://localhost:9090", "Credit service base URL")
	retentionDays := flag.Int("retention-days", 7, "Days a saved run is kept")
	retentionInterval := flag.Duration("retention-interval", time.Hour, "Purge check interval")
	maxRunsPerTenant := flag.Int("max-runs-per-tenant", 50, "Saved-run cap per tenant")
	maxFiles := flag.Int("max-files", 10, "Max files per upload")
	maxFileSizeMB := flag.Int64("max-file-size-mb", 5, "Max size per uploaded file (MB)")
	flag.Parse()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Initialize handler
	handler := api.NewHandler(store, credit.New(*creditURL), api.Limits{
		MaxFiles:         *maxFiles,
		MaxFileSizeBytes: *maxFileSizeMB << 20,
		MaxRunsPerTenant: *maxRunsPerTenant,
		RetentionDays:    *retentionDays,
	})

	// Create router
	router := api.NewRouter(handler)

	// Start retention scheduler
	scheduler := api.NewRetentionScheduler(store)
	scheduler.CheckInterval = *retentionInterval
	scheduler.Start()

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
		log.Printf("API available at http://localhost:%d/api/v1", *port)
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

	scheduler.Stop()
	log.Println("Server stopped")
}
