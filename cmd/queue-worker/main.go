package main

import (
	"context"
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
	"github.com/jiwoo/sms-sequencer/internal/storage"
	"github.com/jiwoo/sms-sequencer/internal/worker"
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
	log.Info().Msg("starting queue worker")

	if cfg.Database.URL == "" {
		log.Fatal().Msg("queue worker requires a database URL; in-memory state cannot be shared across processes")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := storage.NewDB(ctx, cfg.Database.URL, cfg.Database.PoolMin, cfg.Database.PoolMax, cfg.Database.ConnectTimeout)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()
	go db.ReportMetrics(ctx, 15*time.Second)

	repo := queue.NewPostgresRepository(db)

	httpClient := provider.NewHTTPClient(30 * time.Second)
	prov, err := provider.New(cfg.Provider, httpClient, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create provider")
	}

	// The manager schedules follow-up events through the producer side; the
	// consumer side feeds events back into the manager via the handler.
	dispatcher, _, err := dispatch.NewDispatcher(cfg.Dispatch, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create dispatcher")
	}

	manager := queue.NewManager(repo, prov, dispatcher, cfg.Queue.MaxRetries, log)
	handler := worker.NewHandler(manager, log)

	consumer, _, err := dispatch.NewConsumer(cfg.Dispatch, handler, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create consumer")
	}

	if err := consumer.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start consumer")
	}
	log.Info().
		Int("workers", cfg.Dispatch.WorkerCount).
		Str("backend", cfg.Dispatch.Type).
		Msg("queue worker started")

	<-ctx.Done()
	log.Info().Msg("shutting down queue worker")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := consumer.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("consumer shutdown failed")
	}

	log.Info().Msg("queue worker stopped")
}
