// Package main is the entrypoint for the framewatch processing worker.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gmanfredi/framewatch/internal/config"
	"github.com/gmanfredi/framewatch/internal/detect"
	"github.com/gmanfredi/framewatch/internal/media"
	"github.com/gmanfredi/framewatch/internal/pipeline"
	"github.com/gmanfredi/framewatch/internal/queue"
	"github.com/gmanfredi/framewatch/internal/store"
	"github.com/gmanfredi/framewatch/internal/video"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("worker failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded",
		"detector_provider", cfg.Detect.Provider,
		"concurrency", cfg.Worker.Concurrency,
		"job_timeout", cfg.Worker.JobTimeout)

	// ffmpeg is required for decoding; without it every job would fail.
	if _, err := exec.LookPath(cfg.FFmpeg.FFmpegBin); err != nil {
		return fmt.Errorf("ffmpeg not found (%s): %w", cfg.FFmpeg.FFmpegBin, err)
	}
	if _, err := exec.LookPath(cfg.FFmpeg.FFprobeBin); err != nil {
		return fmt.Errorf("ffprobe not found (%s): %w", cfg.FFmpeg.FFprobeBin, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	taskQueue, err := queue.NewRedisQueue(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create task queue: %w", err)
	}
	defer taskQueue.Close()

	if err := taskQueue.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	pgStore := store.NewPostgresStore(pool)
	storage := media.NewStorage(cfg.Media.Root, slog.Default())
	videos := video.NewFFmpeg(cfg.FFmpeg, slog.Default())
	handle := detect.NewHandle(cfg.Detect)

	p := pipeline.New(pgStore, videos, handle, storage, taskQueue, slog.Default())

	// Prometheus metrics listener
	metricsSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Worker.MetricsPort),
		Handler: promhttp.Handler(),
	}
	go func() {
		slog.Info("metrics listening", "addr", metricsSrv.Addr)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "error", err)
		}
	}()
	defer metricsSrv.Close()

	var wg sync.WaitGroup
	for i := 0; i < cfg.Worker.Concurrency; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			workerLoop(ctx, id, taskQueue, p, cfg.Worker)
		}(i)
	}

	slog.Info("worker started", "workers", cfg.Worker.Concurrency)
	wg.Wait()
	slog.Info("worker stopped gracefully")
	return nil
}

// workerLoop dequeues and runs tasks until ctx is canceled. Each job runs
// under a wall-clock timeout; a job killed by the ceiling is reported as
// failed through the pipeline's normal failure path.
func workerLoop(ctx context.Context, id int, consumer queue.Consumer, p *pipeline.Pipeline, cfg config.WorkerConfig) {
	logger := slog.Default().With("worker", id)

	for {
		if ctx.Err() != nil {
			return
		}

		task, err := consumer.Dequeue(ctx)
		if errors.Is(err, queue.ErrNoTask) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("dequeue failed", "error", err)
			continue
		}

		jobCtx, cancel := context.WithTimeout(ctx, cfg.JobTimeout)
		if err := p.Run(jobCtx, task); err != nil {
			logger.Error("job run failed", "job_id", task.JobID, "error", err)
		}
		cancel()
	}
}
