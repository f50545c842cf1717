/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the payroll engine HTTP server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags and load configuration
  2. Open the repository (SQLite or PostgreSQL)
  3. Build the payroll runner and its sinks
  4. Configure HTTP router and start the pay-day scheduler
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config     YAML config file (optional)
  -env        .env file (default: .env, ignored when missing)
  -log-level  debug, info, warn, error (default: info)

ENVIRONMENT:
  PAYROLL_HTTP_ADDR, PAYROLL_DB_DRIVER, PAYROLL_DB_PATH, PAYROLL_DB_DSN,
  PAYROLL_PAY_DAY, PAYROLL_OVERTIME_MODE, PAYROLL_RATE_LIMIT

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler (waits for an in-flight run)
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

EXAMPLES:
  # SQLite file database
  PAYROLL_DB_PATH=./data/payroll.db ./server

  # PostgreSQL (run cmd/migrate first)
  PAYROLL_DB_DRIVER=postgres PAYROLL_DB_DSN=postgres://... ./server

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Configuration sources
  - store/open.go: Repository selection
*/
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/payroll-engine/api"
	"github.com/warp/payroll-engine/config"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/report"
	"github.com/warp/payroll-engine/store"
)

func main() {
	// Flags
	configPath := flag.String("config", "", "YAML config file")
	envFile := flag.String("env", ".env", "dotenv file")
	logLevel := flag.String("log-level", "info", "log level")
	flag.Parse()

	logger := newLogger(*logLevel)
	slog.SetDefault(logger)

	if err := run(*configPath, *envFile, logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath, envFile string, logger *slog.Logger) error {
	cfg, err := config.Load(configPath, envFile)
	if err != nil {
		return err
	}

	ctx := context.Background()

	// Initialize store
	opened, err := store.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer opened.Close()
	logger.Info("repository opened", "driver", cfg.Database.Driver)

	// Runner writes the console register and, optionally, a PDF per run
	sinks := payroll.MultiSink{payroll.NewTextSink(os.Stdout)}
	if cfg.Payroll.RegisterDir != "" {
		sinks = append(sinks, report.NewPDFRegister(cfg.Payroll.RegisterDir, logger))
	}
	overtime, err := payroll.ParseOvertimeMode(cfg.Payroll.OvertimeMode)
	if err != nil {
		return err
	}
	runner := payroll.NewRunner(opened.Repo, sinks, payroll.RunnerOptions{
		Overtime:                 overtime,
		FirstRunFromEarliestFact: cfg.Payroll.FirstRunFromEarliestFact,
		Logger:                   logger,
	})

	// Create router
	handler := api.NewHandler(opened.Repo, runner)
	router, err := api.NewRouter(handler, api.RouterOptions{
		CORSOrigins: cfg.Server.CORSOrigins,
		RateLimit:   cfg.Server.RateLimit,
		Ready:       opened.Ready,
	})
	if err != nil {
		return err
	}

	// Scheduler
	scheduler := api.NewPayrollScheduler(opened.Repo, runner)
	scheduler.CheckInterval = cfg.Payroll.CheckInterval
	scheduler.Enabled = cfg.Payroll.SchedulerEnabled
	scheduler.PayDay = cfg.Payroll.PayDay
	scheduler.Start()
	defer scheduler.Stop()
	if cfg.Payroll.SchedulerEnabled {
		logger.Info("next pay date", "date", scheduler.NextPayDate().String())
	}

	// Create server
	server := &http.Server{
		Addr:         cfg.Server.ListenAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", cfg.Server.ListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		return err
	case <-quit:
	}

	logger.Info("shutting down server")
	scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	logger.Info("server stopped")
	return nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
