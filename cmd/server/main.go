// Package main is the entrypoint for the framewatch API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gmanfredi/framewatch/internal/api"
	"github.com/gmanfredi/framewatch/internal/api/handler"
	mw "github.com/gmanfredi/framewatch/internal/api/middleware"
	"github.com/gmanfredi/framewatch/internal/api/response"
	"github.com/gmanfredi/framewatch/internal/cache"
	"github.com/gmanfredi/framewatch/internal/config"
	"github.com/gmanfredi/framewatch/internal/media"
	"github.com/gmanfredi/framewatch/internal/queue"
	"github.com/gmanfredi/framewatch/internal/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config — fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "detector_provider", cfg.Detect.Provider, "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache and task queue
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	taskQueue, err := queue.NewRedisQueue(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create task queue: %w", err)
	}
	defer taskQueue.Close()

	// 5. Create store and media storage
	pgStore := store.NewPostgresStore(pool)
	storage := media.NewStorage(cfg.Media.Root, slog.Default())

	// 6. Build router with dependencies
	auth := mw.NewAuth(pgStore)
	rateLimit := mw.NewRateLimit(redisCache, 60)

	jobDeps := handler.JobDeps{
		Store:          pgStore,
		Queue:          taskQueue,
		Media:          storage,
		Cache:          redisCache,
		SampleDir:      cfg.Media.SampleDir,
		MaxUploadBytes: cfg.Media.MaxUploadBytes,
		DefaultConf:    cfg.Detect.Confidence,
		DefaultIoU:     cfg.Detect.IoU,
	}

	deps := api.Dependencies{
		Auth:      auth,
		RateLimit: rateLimit,
		MediaRoot: cfg.Media.Root,

		HealthHandler: healthHandler(pgStore, redisCache, taskQueue),

		CreateJobHandler:  handler.NewCreateJobHandler(jobDeps),
		SampleJobHandler:  handler.NewSampleJobHandler(jobDeps),
		ListJobsHandler:   handler.NewListJobsHandler(jobDeps),
		GetJobHandler:     handler.NewGetJobHandler(jobDeps),
		DeleteJobHandler:  handler.NewDeleteJobHandler(jobDeps),
		JobStatusHandler:  handler.NewJobStatusHandler(jobDeps),
		TaskStatusHandler: handler.NewTaskStatusHandler(taskQueue),

		CreateKeyHandler: handler.NewCreateKeyHandler(pgStore),
		ListKeysHandler:  handler.NewListKeysHandler(pgStore),
		RevokeKeyHandler: handler.NewRevokeKeyHandler(pgStore),
	}

	router := api.NewRouter(deps)

	// 7. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// healthHandler checks database, cache and queue connectivity.
func healthHandler(s store.Store, c cache.Cache, q queue.Queue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
			"queue":    "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}
		if err := q.Ping(r.Context()); err != nil {
			checks["queue"] = "degraded"
		}

		for _, v := range checks {
			if v != "ok" {
				response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
					"One or more services degraded", checks)
				return
			}
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
