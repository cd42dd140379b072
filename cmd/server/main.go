package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-runner/internal/config"
	"github.com/stemsi/exstem-runner/internal/database"
	"github.com/stemsi/exstem-runner/internal/examsession"
	"github.com/stemsi/exstem-runner/internal/handler"
	"github.com/stemsi/exstem-runner/internal/judge"
	"github.com/stemsi/exstem-runner/internal/logger"
	"github.com/stemsi/exstem-runner/internal/middleware"
	"github.com/stemsi/exstem-runner/internal/repository"
	"github.com/stemsi/exstem-runner/internal/router"
	"github.com/stemsi/exstem-runner/internal/service"
	"github.com/stemsi/exstem-runner/internal/storage"
	"github.com/stemsi/exstem-runner/internal/validator"
	"github.com/stemsi/exstem-runner/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("session_store", string(cfg.SessionStore)).
		Msg("Starting ExStem exam runner")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup(cfg.Locale)

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

	// ─── Session Record Store ─────────────────────────────────────────
	var records examsession.Persistence
	switch cfg.SessionStore {
	case config.SessionStoreSQLite:
		db, err := database.NewSQLite(ctx, cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open SQLite")
		}
		defer db.Close()

		store, err := storage.NewSQLiteStore(ctx, db, cfg.SessionRecordTTL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to prepare SQLite session store")
		}
		if n, err := store.Purge(ctx); err == nil && n > 0 {
			log.Info().Int64("count", n).Msg("Purged expired session records")
		}
		records = store
	default:
		records = storage.NewRedisStore(rdb, cfg.SessionRecordTTL)
	}

	// ─── Initialize Repositories ───────────────────────────────────────
	examRepo := repository.NewExamRepository(pool)
	sessionRepo := repository.NewExamSessionRepository(pool)
	answerRepo := repository.NewStudentAnswerRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg, rdb)
	paperService := service.NewPaperService(examRepo, sessionRepo, rdb, log)
	submissionService := service.NewSubmissionService(paperService, rdb, log)
	autosaveService := service.NewAutosaveService(answerRepo, rdb, log)
	judgeClient := judge.NewClient(cfg.JudgeURL, cfg.JudgeToken, cfg.JudgeTimeout, log)
	runnerService := service.NewRunnerService(
		paperService,
		submissionService,
		judgeClient,
		records,
		autosaveService,
		log,
	)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Session: handler.NewExamSessionHandler(runnerService),
		WS:      handler.NewWSHandler(runnerService, log, cfg.AllowedOrigins),
		System:  handler.NewSystemHandler(rdb, runnerService),
	}

	limiter := middleware.NewRateLimiter(cfg.RateLimitPerMinute, time.Minute)
	limiterStop := make(chan struct{})
	go limiter.Cleanup(10*time.Minute, limiterStop)

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	autosaveWorker := worker.NewAutosaveWorker(pool, rdb, log)
	scoringWorker := worker.NewScoringWorker(pool, rdb, log)

	workers.Add(2)
	go func() { defer workers.Done(); autosaveWorker.Start(workerCtx) }()
	go func() { defer workers.Done(); scoringWorker.Start(workerCtx) }()

	// ─── Prewarm Redis Caches ─────────────────────────────────────────
	// Load all published exams into Redis BEFORE accepting traffic so the
	// first wave of students does not stampede PostgreSQL.
	if err := paperService.PrewarmAllCaches(ctx); err != nil {
		log.Warn().Err(err).Msg("Cache prewarm failed")
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, limiter, cfg, log)

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests. Hijacked WebSockets are not
	// tracked by Shutdown, so they end with the process.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}
	close(limiterStop)

	// 2. Disarm deadline timers. Records stay persisted, so students resume
	// on the next instance.
	runnerService.Shutdown()

	// 3. Stop background workers and wait for queues to drain.
	workerCancel()
	workers.Wait()

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
