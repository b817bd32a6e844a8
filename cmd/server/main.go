// Package main is the entry point for the kline cache service: a local,
// single-node cache of OHLCV price bars persisted per granularity, with
// freshness rules that decide when cached bars must be re-fetched upstream.
//
// Startup sequence:
//  1. Load configuration from environment variables (.env supported)
//  2. Initialize structured logging
//  3. Open one dataset per granularity (kline_1m.db ... kline_1M.db)
//  4. Register background jobs (expired-bar purge, WAL checkpoints)
//  5. Start the HTTP API
//  6. Wait for a shutdown signal and stop gracefully
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/klinecache/internal/config"
	"github.com/aristath/klinecache/internal/modules/kline"
	"github.com/aristath/klinecache/internal/scheduler"
	"github.com/aristath/klinecache/internal/server"
	"github.com/aristath/klinecache/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Use fallback logger if config fails
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().Str("data_dir", cfg.DataDir).Msg("Starting kline cache service")

	manager, err := kline.NewManager(cfg.DataDir, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize cache manager")
	}
	defer manager.Close()

	sched := scheduler.New(log)
	if err := sched.AddJob(cfg.PurgeSchedule, kline.NewPurgeJob(manager, log)); err != nil {
		log.Fatal().Err(err).Str("schedule", cfg.PurgeSchedule).Msg("Failed to register purge job")
	}
	if err := sched.AddJob(cfg.WALSchedule, kline.NewCheckpointJob(manager, log)); err != nil {
		log.Fatal().Err(err).Str("schedule", cfg.WALSchedule).Msg("Failed to register checkpoint job")
	}
	sched.Start()
	defer sched.Stop()

	srv := server.New(server.Config{
		Log:     log,
		Manager: manager,
		Config:  cfg,
		Port:    cfg.Port,
		DevMode: cfg.DevMode,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-signals:
		log.Info().Str("signal", sig.String()).Msg("Received signal, shutting down")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("HTTP server stopped unexpectedly")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
	}
}
