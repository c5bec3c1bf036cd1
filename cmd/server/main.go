package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/database"
	"github.com/stemsi/exstem-session/internal/handler"
	"github.com/stemsi/exstem-session/internal/logger"
	"github.com/stemsi/exstem-session/internal/middleware"
	"github.com/stemsi/exstem-session/internal/persistence"
	"github.com/stemsi/exstem-session/internal/repository"
	"github.com/stemsi/exstem-session/internal/router"
	"github.com/stemsi/exstem-session/internal/service"
	"github.com/stemsi/exstem-session/internal/validator"
	"github.com/stemsi/exstem-session/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("snapshot_backend", cfg.SnapshotBackend).
		Dur("tick_interval", cfg.TickInterval).
		Msg("Starting ExStem Session")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Initialize Repositories ───────────────────────────────────────
	attemptRepo := repository.NewAttemptRepository(pool)

	var paperSource service.PaperSource = repository.NewPaperRepository(pool)
	if cfg.PaperDir != "" {
		files, err := repository.NewPaperFileRepository(cfg.PaperDir)
		if err != nil {
			log.Fatal().Err(err).Str("dir", cfg.PaperDir).Msg("Failed to load paper files")
		}
		paperSource = files
		log.Info().Str("dir", cfg.PaperDir).Msg("Serving papers from files")
	}

	store, err := database.NewSnapshotStore(cfg, pool, rdb, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up snapshot store")
	}

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg.JWTSecret)
	paperService := service.NewPaperService(paperSource, rdb, cfg.PaperCacheTTL, log)
	sessionService := service.NewSessionService(paperService, service.SessionServiceOptions{
		Store:         store,
		Queue:         persistence.NewRedisQueue(rdb, config.WorkerKey.PersistSubmissionsQueue),
		Attempts:      attemptRepo,
		Clock:         clockwork.NewRealClock(),
		TickInterval:  cfg.TickInterval,
		AutosaveDelay: cfg.AutosaveDelay,
		FlushTimeout:  cfg.FlushTimeout,
	}, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Session: handler.NewSessionHandler(sessionService, log),
		WS:      handler.NewWSHandler(sessionService, log, cfg.AllowedOrigins),
		System:  handler.NewSystemHandler(sessionService, rdb, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())

	submissionWorker := worker.NewSubmissionWorker(attemptRepo, rdb, log)
	workerDone := make(chan struct{})
	go func() {
		submissionWorker.Start(workerCtx)
		close(workerDone)
	}()

	var limiter *middleware.RateLimiter
	if cfg.RateLimitPerMinute > 0 {
		limiter = middleware.NewRateLimiter(cfg.RateLimitPerMinute, time.Minute, nil)
		go limiter.Run(workerCtx)
	}

	// ─── Prewarm Redis Caches ─────────────────────────────────────────
	// Load all published papers into Redis BEFORE accepting traffic.
	if err := paperService.Prewarm(ctx); err != nil {
		log.Warn().Err(err).Msg("Cache prewarm failed")
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(router.Deps{
		Auth:     authService,
		Sessions: sessionService,
		Limiter:  limiter,
	}, handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop tick drivers and flush every live session.
	flushCtx, flushCancel := context.WithTimeout(context.Background(), 2*cfg.FlushTimeout)
	defer flushCancel()
	sessionService.Shutdown(flushCtx)

	// 3. Stop background workers and wait for the queue to drain.
	workerCancel()
	select {
	case <-workerDone:
	case <-time.After(10 * time.Second):
		log.Warn().Msg("Submission worker did not drain in time")
	}

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
