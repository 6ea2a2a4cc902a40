/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the demurrage engine server. Handles configuration,
  dependency injection, the daily scheduler and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment, YAML, flags)
  2. Open the store: PostgreSQL when a database URL is set, else SQLite
  3. Register metrics
  4. Build the checker and the daily scheduler
  5. Create API handler and router
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port          HTTP server port (default: 8080)
  -db            SQLite database path (default: demurrage.db)
                 Use ":memory:" for in-memory database
  -database-url  PostgreSQL URL; migrations run on startup
  -daily-at      Daily check time, HH:MM in the schedule location (default: 18:31)
  -timezone      Civil timezone for "today" (default: Asia/Colombo)
  -scheduler     Run the daily scheduler (default: true)

ENVIRONMENT:
  See config/config.go. DEMURRAGE_CONFIG names an optional YAML file.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler (a run in progress finishes first)
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

SEE ALSO:
  - api/server.go: Router configuration
  - scheduler/scheduler.go: Daily trigger
  - config/config.go: Configuration sources
*/
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/warp/demurrage-engine/api"
	"github.com/warp/demurrage-engine/config"
	"github.com/warp/demurrage-engine/demurrage"
	"github.com/warp/demurrage-engine/metrics"
	"github.com/warp/demurrage-engine/scheduler"
	"github.com/warp/demurrage-engine/store/postgres"
	"github.com/warp/demurrage-engine/store/sqlite"
)

// store is what the server needs from either backend.
type store interface {
	api.Store
	demurrage.TxStore
	Close() error
}

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer st.Close()

	metrics.Init()

	clock, err := demurrage.NewZoneClock(cfg.Timezone)
	if err != nil {
		log.Fatalf("Invalid timezone: %v", err)
	}

	logger := log.New(os.Stderr, "", log.LstdFlags)
	checker := demurrage.NewChecker(st, st, clock, logger)
	checker.DefaultFreeDays = cfg.Demurrage.DefaultFreeDays
	checker.MaxLookahead = cfg.Demurrage.MaxLookaheadDays

	loc, err := time.LoadLocation(cfg.Schedule.Location)
	if err != nil {
		log.Fatalf("Invalid schedule location: %v", err)
	}
	sched, err := scheduler.New(checker, cfg.Schedule.DailyAt, loc, logger)
	if err != nil {
		log.Fatalf("Invalid schedule: %v", err)
	}
	sched.Enabled = cfg.SchedulerEnabled()
	sched.Start(ctx)
	defer sched.Stop()

	handler := api.NewHandler(st, sched, clock)
	handler.DefaultFreeDays = cfg.Demurrage.DefaultFreeDays
	handler.MaxLookahead = cfg.Demurrage.MaxLookaheadDays

	router := api.NewRouter(handler, cfg.CORSOrigins...)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on http://localhost:%d", cfg.Port)
		log.Printf("API available at http://localhost:%d/api", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down server...")
	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}

func openStore(ctx context.Context, cfg config.Config) (store, error) {
	if cfg.DatabaseURL != "" {
		if err := postgres.Migrate(cfg.DatabaseURL); err != nil {
			return nil, err
		}
		log.Printf("Using PostgreSQL")
		return postgres.New(ctx, cfg.DatabaseURL)
	}
	log.Printf("Using SQLite at %s", cfg.DBPath)
	return sqlite.New(cfg.DBPath)
}
