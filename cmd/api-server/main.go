package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jiwoo/sms-sequencer/internal/api"
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
	log.Info().Msg("starting API server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Select the repository. An empty database URL runs on the in-memory
	// repository; the dispatcher must then be inline so every process sees
	// the same state.
	var (
		repo   queue.Repository
		db     *storage.DB
		pinger api.Pinger
	)
	if cfg.Database.URL != "" {
		db, err = storage.NewDB(ctx, cfg.Database.URL, cfg.Database.PoolMin, cfg.Database.PoolMax, cfg.Database.ConnectTimeout)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer db.Close()
		go db.ReportMetrics(ctx, 15*time.Second)

		repo = queue.NewPostgresRepository(db)
		pinger = db
		log.Info().Msg("database connection established")
	} else {
		repo = queue.NewMemoryRepository()
		log.Warn().Msg("no database URL configured, using in-memory repository")
	}

	httpClient := provider.NewHTTPClient(30 * time.Second)
	prov, err := provider.New(cfg.Provider, httpClient, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create provider")
	}

	// The API process only schedules events; the inline backend additionally
	// executes them in-process, which needs the two-step handler wiring.
	var (
		dispatcher dispatch.Dispatcher
		dlq        dispatch.DeadLetter
		inline     *dispatch.InlineDispatcher
	)
	if cfg.Dispatch.Type == "inline" {
		inline = dispatch.NewInlineDispatcher(nil, log)
		dispatcher = inline
	} else {
		dispatcher, dlq, err = dispatch.NewDispatcher(cfg.Dispatch, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create dispatcher")
		}
	}

	manager := queue.NewManager(repo, prov, dispatcher, cfg.Queue.MaxRetries, log)
	if inline != nil {
		inline.SetHandler(worker.NewHandler(manager, log))
	}

	router := api.NewRouter(api.RouterConfig{
		Manager:       manager,
		DB:            pinger,
		ProviderCheck: prov.HealthCheck,
		DLQ:           dlq,
		AuthToken:     cfg.API.AuthToken,
	}, log)

	addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("API server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
