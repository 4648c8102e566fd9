package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jiwoo/sms-sequencer/internal/config"
	"github.com/jiwoo/sms-sequencer/internal/dispatch"
	"github.com/jiwoo/sms-sequencer/internal/logger"
	"github.com/jiwoo/sms-sequencer/internal/provider"
	"github.com/jiwoo/sms-sequencer/internal/queue"
	"github.com/jiwoo/sms-sequencer/internal/reconcile"
	"github.com/jiwoo/sms-sequencer/internal/storage"
)

func main() {
	cfg, err := config.Load("config")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewFromConfig(logger.LoggingConfig{
		Level:     cfg.Logging.Level,
		Output:    cfg.Logging.Output,
		FilePath:  cfg.Logging.FilePath,
		MaxSizeMB: cfg.Logging.MaxSizeMB,
		MaxFiles:  cfg.Logging.MaxFiles,
	})
	log.Info().Msg("starting stall sweeper")

	if cfg.Database.URL == "" {
		log.Fatal().Msg("sweeper requires a database URL; in-memory state cannot be shared across processes")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := storage.NewDB(ctx, cfg.Database.URL, cfg.Database.PoolMin, cfg.Database.PoolMax, cfg.Database.ConnectTimeout)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	repo := queue.NewPostgresRepository(db)

	httpClient := provider.NewHTTPClient(30 * time.Second)
	prov, err := provider.New(cfg.Provider, httpClient, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create provider")
	}

	dispatcher, _, err := dispatch.NewDispatcher(cfg.Dispatch, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create dispatcher")
	}

	manager := queue.NewManager(repo, prov, dispatcher, cfg.Queue.MaxRetries, log)
	sweeper := reconcile.NewStallReconciler(repo, manager, prov, cfg.Sweep, log)

	if err := sweeper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("sweeper exited with error")
	}

	log.Info().Msg("stall sweeper stopped")
}
