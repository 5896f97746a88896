package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"engine-health/monitor/internal/auth"
	"engine-health/monitor/internal/baseline"
	"engine-health/monitor/internal/config"
	"engine-health/monitor/internal/deviation"
	"engine-health/monitor/internal/health"
	"engine-health/monitor/internal/pipeline"
	"engine-health/monitor/internal/risk"
	"engine-health/monitor/internal/store"
	transport "engine-health/monitor/internal/transport/http"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file, using system environment variables")
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(log)

	cfg := config.Load()
	if err := cfg.Health.Validate(); err != nil {
		log.Error("invalid health configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := store.NewTimescaleStore(ctx, cfg)
	if err != nil {
		log.Error("timescale init failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	redis, err := store.NewRedisStore(ctx, cfg)
	if err != nil {
		log.Error("redis init failed", "error", err)
		os.Exit(1)
	}
	defer redis.Close()

	learner := baseline.NewLearner(cfg.Health, log)
	analyzer := deviation.NewAnalyzer(cfg.Health)
	scorer := risk.NewScorer(cfg.Health)

	// Batch-learn baselines from history before serving queries.
	history, err := db.LoadHistory(ctx, cfg.HistoryLoadLimit)
	if err != nil {
		log.Error("history load failed", "error", err)
		os.Exit(1)
	}
	if err := learner.LearnFromHistory(ctx, history); err != nil {
		log.Error("baseline learning failed", "error", err)
		os.Exit(1)
	}
	log.Info("startup learning done", "readings", len(history))

	dispatcher := pipeline.NewDispatcher(cfg.DBChannelSize, cfg.StateChannelSize, cfg.HealthChannelSize)

	var wg sync.WaitGroup
	for i := 0; i < cfg.DBWriterWorkers; i++ {
		w := pipeline.NewDBWriter(dispatcher.DBChan, db, log, cfg.DBBatchSize, cfg.DBFlushIntervalMS)
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Run(ctx)
		}()
	}
	for i := 0; i < cfg.StateWriterWorkers; i++ {
		w := pipeline.NewStateWriter(dispatcher.StateChan, redis, log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Run(ctx)
		}()
	}
	for i := 0; i < cfg.HealthWorkers; i++ {
		w := pipeline.NewHealthEvaluator(dispatcher.HealthChan, db, redis, learner, analyzer, scorer, log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Run(ctx)
		}()
	}

	source := store.NewCachedSource(redis, db)
	service := health.NewService(source, learner, analyzer, scorer, log)

	authenticator := auth.NewAuthenticator(cfg, redis)
	handler := transport.NewHandler(service, dispatcher, redis, db, log)
	authMW := transport.NewAuthMiddleware(authenticator)

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      handler.Routes(authMW),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		log.Info("listening", "port", cfg.HTTPPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "error", err)
			cancel()
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-stop:
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("server shutdown", "error", err)
	}

	cancel()
	wg.Wait()
	log.Info("stopped")
}
