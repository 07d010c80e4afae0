package main

import (
	"context"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/algoprep/algoprep-backend/internal/config"
	"github.com/algoprep/algoprep-backend/internal/database"
	"github.com/algoprep/algoprep-backend/internal/executor"
	"github.com/algoprep/algoprep-backend/internal/grading"
	"github.com/algoprep/algoprep-backend/internal/handler"
	"github.com/algoprep/algoprep-backend/internal/logger"
	"github.com/algoprep/algoprep-backend/internal/repository"
	"github.com/algoprep/algoprep-backend/internal/router"
	"github.com/algoprep/algoprep-backend/internal/selector"
	"github.com/algoprep/algoprep-backend/internal/service"
	"github.com/algoprep/algoprep-backend/internal/validator"
	"github.com/algoprep/algoprep-backend/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup("algoprep-backend", cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting AlgoPrep Backend")

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
	userRepo := repository.NewUserRepository(pool)
	examRepo := repository.NewExamRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)
	attemptRepo := repository.NewAttemptRepository(pool)
	submissionRepo := repository.NewSubmissionRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	questionSelector := selector.New(selector.NewRedisHistory(rdb), cfg.HistoryWindow, rng, log)
	execClient := executor.NewClient(cfg, log)

	authService := service.NewAuthService(cfg, rdb)
	examService := service.NewExamService(examRepo, questionRepo, rdb, log)
	attemptService := service.NewAttemptService(
		examRepo, questionRepo, attemptRepo, submissionRepo,
		questionSelector, execClient, rdb, log,
	)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:        handler.NewAuthHandler(authService, userRepo),
		Exam:        handler.NewExamHandler(examService),
		Attempt:     handler.NewAttemptHandler(attemptService),
		Leaderboard: handler.NewLeaderboardHandler(userRepo),
		WS:          handler.NewWSHandler(cfg, examService, attemptService, rdb, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())

	grader := grading.NewGrader(execClient, log)
	violationWorker := worker.NewViolationWorker(pool, rdb, log)
	gradingWorker := worker.NewGradingWorker(attemptRepo, examRepo, submissionRepo, questionRepo, userRepo, grader, rdb, log)
	deadlineWorker := worker.NewDeadlineWorker(attemptService, attemptRepo, cfg.DeadlineSweepInterval, log)

	go violationWorker.Start(workerCtx)
	go gradingWorker.Start(workerCtx)
	go deadlineWorker.Start(workerCtx)

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, cfg)

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

	// 2. Stop background workers and wait for queues to drain.
	workerCancel()
	time.Sleep(2 * time.Second) // Allow workers to drain.

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
