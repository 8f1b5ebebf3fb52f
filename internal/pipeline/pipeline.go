// Package pipeline runs the per-job video processing sequence: decode,
// detect, annotate, persist, encode.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/gmanfredi/framewatch/internal/annotate"
	"github.com/gmanfredi/framewatch/internal/detect"
	"github.com/gmanfredi/framewatch/internal/media"
	"github.com/gmanfredi/framewatch/internal/metrics"
	"github.com/gmanfredi/framewatch/internal/queue"
	"github.com/gmanfredi/framewatch/internal/store"
	"github.com/gmanfredi/framewatch/internal/video"
	"github.com/gmanfredi/framewatch/pkg/models"
)

// progressInterval controls how often (in processed frames) progress is
// reported and the preview snapshot refreshed.
const progressInterval = 10

// Pipeline processes one job at a time from source video to annotated
// output. Safe for concurrent use: each Run owns all per-job state.
type Pipeline struct {
	store     store.Store
	videos    video.IO
	handle    *detect.Handle
	media     *media.Storage
	reporter  queue.Reporter
	logger    *slog.Logger
	batchSize int
}

func New(s store.Store, videos video.IO, handle *detect.Handle, storage *media.Storage, reporter queue.Reporter, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		store:     s,
		videos:    videos,
		handle:    handle,
		media:     storage,
		reporter:  reporter,
		logger:    logger,
		batchSize: defaultBatchSize,
	}
}

// Run executes the full processing sequence for task. Any error marks
// the job failed and is reported on the task channel; there are no
// retries.
func (p *Pipeline) Run(ctx context.Context, task *queue.Task) error {
	start := time.Now()
	logger := p.logger.With("job_id", task.JobID, "task_id", task.TaskID)

	job, err := p.store.GetJob(ctx, task.JobID)
	if err != nil {
		logger.Error("job lookup failed", "error", err)
		p.reporter.Fail(ctx, task.TaskID, fmt.Sprintf("job lookup failed: %v", err))
		metrics.JobsProcessed.WithLabelValues(models.JobStatusFailed).Inc()
		return fmt.Errorf("fetching job %s: %w", task.JobID, err)
	}

	if err := p.store.MarkJobProcessing(ctx, job.ID); err != nil {
		return p.fail(ctx, logger, job, task, fmt.Errorf("marking job processing: %w", err))
	}

	processed, detections, err := p.process(ctx, logger, job, task)
	if err != nil {
		return p.fail(ctx, logger, job, task, err)
	}

	logger.Info("job completed",
		"frames", processed,
		"detections", detections,
		"duration", time.Since(start))

	p.reporter.Succeed(ctx, task.TaskID, queue.Result{
		Status:     models.JobStatusCompleted,
		Detections: detections,
		Frames:     processed,
	})
	metrics.JobsProcessed.WithLabelValues(models.JobStatusCompleted).Inc()
	metrics.JobDuration.Observe(time.Since(start).Seconds())
	return nil
}

// process runs the frame loop and returns the processed frame and
// detection counts. The job is already in the processing state.
func (p *Pipeline) process(ctx context.Context, logger *slog.Logger, job *models.Job, task *queue.Task) (int, int, error) {
	model, err := p.handle.Get(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("loading detector: %w", err)
	}

	md, err := p.videos.Probe(ctx, job.SourcePath)
	if err != nil {
		return 0, 0, err
	}
	if err := p.store.SetJobTotalFrames(ctx, job.ID, md.TotalFrames); err != nil {
		return 0, 0, fmt.Errorf("recording total frames: %w", err)
	}

	source, err := p.videos.OpenSource(ctx, job.SourcePath, md)
	if err != nil {
		return 0, 0, err
	}
	defer source.Close()

	rawPath := p.media.RawOutputPath(job.UserID, job.ID)
	sink, err := p.videos.OpenSink(ctx, rawPath, md)
	if err != nil {
		return 0, 0, err
	}
	defer sink.Close()

	batcher := NewDetectionBatcher(p.store, job.ID, p.batchSize)
	opts := models.DetectOptions{
		Confidence: job.Confidence,
		IoU:        job.IoU,
		Device:     model.Device,
	}
	previewPath := p.media.PreviewPath(job.UserID, job.ID)

	processed := 0
	for {
		if err := ctx.Err(); err != nil {
			return processed, batcher.Total(), fmt.Errorf("processing canceled: %w", err)
		}

		frame, err := source.ReadFrame()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return processed, batcher.Total(), err
		}

		boxes, err := model.Detector.Detect(ctx, frame, opts)
		if err != nil {
			return processed, batcher.Total(), fmt.Errorf("detection on frame %d: %w", processed, err)
		}

		dets := annotate.Annotate(frame, boxes, processed, model.Classes, model.Colors)
		if err := batcher.Add(ctx, dets); err != nil {
			return processed, batcher.Total(), err
		}
		if err := sink.WriteFrame(frame); err != nil {
			return processed, batcher.Total(), err
		}

		processed++
		metrics.FramesProcessed.Inc()

		if processed%progressInterval == 0 {
			p.reportProgress(ctx, logger, job, task, processed, md.TotalFrames, batcher)
			if err := p.videos.WritePreview(previewPath, frame); err != nil {
				logger.Warn("preview snapshot failed", "error", err)
			}
		}
	}

	if processed == 0 {
		sink.Close()
		p.media.Remove(rawPath)
		return 0, 0, video.ErrEmptyVideo
	}

	if err := sink.Close(); err != nil {
		return processed, batcher.Total(), fmt.Errorf("finalizing raw output: %w", err)
	}
	if err := batcher.Flush(ctx); err != nil {
		return processed, batcher.Total(), err
	}
	metrics.DetectionsRecorded.Add(float64(batcher.Total()))

	outPath, usedFallback := p.videos.Reencode(ctx, rawPath, p.media.ProcessedPath(job.UserID, job.ID))
	if usedFallback {
		metrics.TranscodeFallbacks.Inc()
	}

	if err := p.store.MarkJobCompleted(ctx, job.ID, outPath, processed, batcher.Total()); err != nil {
		return processed, batcher.Total(), fmt.Errorf("marking job completed: %w", err)
	}
	return processed, batcher.Total(), nil
}

// reportProgress persists and publishes the running counts. Both writes
// are best-effort; a progress hiccup never fails the job.
func (p *Pipeline) reportProgress(ctx context.Context, logger *slog.Logger, job *models.Job, task *queue.Task, processed, total int, batcher *DetectionBatcher) {
	detections := batcher.Total() + batcher.PendingCount()
	if err := p.store.UpdateJobProgress(ctx, job.ID, processed, detections); err != nil {
		logger.Warn("progress update failed", "error", err)
	}

	percentage := 0
	if total > 0 {
		percentage = processed * 100 / total
		if percentage > 100 {
			percentage = 100
		}
	}
	p.reporter.Progress(ctx, task.TaskID, queue.Progress{
		Current:    processed,
		Total:      total,
		Percentage: percentage,
	})
}

// fail marks the job failed, reports the task failure and returns err.
// The store write is best-effort so a dead database never masks the
// original failure.
func (p *Pipeline) fail(ctx context.Context, logger *slog.Logger, job *models.Job, task *queue.Task, err error) error {
	logger.Error("job failed", "error", err)

	if storeErr := p.store.MarkJobFailed(ctx, job.ID, err.Error()); storeErr != nil {
		logger.Error("failed to mark job failed", "error", storeErr)
	}
	p.reporter.Fail(ctx, task.TaskID, err.Error())
	metrics.JobsProcessed.WithLabelValues(models.JobStatusFailed).Inc()
	return err
}
