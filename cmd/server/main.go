// Package main is the entry point for the bookkeeper tax-lot accounting
// server. The application keeps balanced double-entry books, matches stock
// sales against tax lots, tracks the option position lifecycle, and scans
// for wash-sale violations.
//
// The application follows clean architecture principles:
// - Domain layer is pure (no infrastructure dependencies)
// - Dependency injection via DI container
// - Repository pattern for data access
// - Service layer for business logic
// - HTTP handlers for API endpoints
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/aristath/bookkeeper/internal/config"
	"github.com/aristath/bookkeeper/internal/di"
	"github.com/aristath/bookkeeper/internal/server"
	"github.com/aristath/bookkeeper/pkg/logger"
)

func main() {
	// Load configuration first to get log level
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().
		Str("data_dir", cfg.DataDir).
		Int("port", cfg.Port).
		Str("default_lot_method", cfg.DefaultLotMethod).
		Msg("Starting bookkeeper")

	// Wire all dependencies: databases, schemas, repositories, services,
	// and the seeded chart of accounts.
	container, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer container.Close()

	// Nightly wash-sale scan. Each active user's report is regenerated and
	// cached so the API can serve the last scan without recomputing.
	scheduler := cron.New()
	if cfg.WashSaleScanOn {
		_, err := scheduler.AddFunc(cfg.WashSaleScanSpec, func() {
			runWashSaleScan(container, log)
		})
		if err != nil {
			log.Fatal().Err(err).Str("spec", cfg.WashSaleScanSpec).Msg("Invalid wash-sale scan schedule")
		}
		scheduler.Start()
		log.Info().Str("spec", cfg.WashSaleScanSpec).Msg("Scheduled wash-sale scan")
	}

	srv := server.New(server.Config{
		Log:       log,
		Config:    cfg,
		Container: container,
	})

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Error().Err(err).Msg("HTTP server stopped unexpectedly")
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	}

	if cfg.WashSaleScanOn {
		scanCtx := scheduler.Stop()
		<-scanCtx.Done()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Failed to shut down HTTP server cleanly")
	}

	// Flush WAL so a cold start replays nothing.
	if err := container.LedgerDB.WALCheckpoint("TRUNCATE"); err != nil {
		log.Warn().Err(err).Msg("WAL checkpoint failed on shutdown")
	}

	log.Info().Msg("Bookkeeper stopped")
}

// runWashSaleScan refreshes the cached wash-sale report for every user
// with trading history. Detection is read-only; adjustments are applied
// only through the API.
func runWashSaleScan(container *di.Container, log zerolog.Logger) {
	start := time.Now()
	users, err := container.WashSaleRepo.ActiveUsers()
	if err != nil {
		log.Error().Err(err).Msg("Wash-sale scan: failed to list users")
		return
	}

	scanned, failed := 0, 0
	for _, userID := range users {
		if _, err := container.Detector.Detect(userID); err != nil {
			failed++
			log.Error().Err(err).Str("user_id", userID).Msg("Wash-sale scan failed for user")
			continue
		}
		scanned++
	}

	log.Info().
		Int("users", len(users)).
		Int("scanned", scanned).
		Int("failed", failed).
		Dur("duration_ms", time.Since(start)).
		Msg("Wash-sale scan completed")
}
