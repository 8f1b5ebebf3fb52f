// Package handler contains the HTTP handlers for the job, task and key APIs.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	mw "github.com/gmanfredi/framewatch/internal/api/middleware"
	"github.com/gmanfredi/framewatch/internal/api/response"
	"github.com/gmanfredi/framewatch/internal/cache"
	"github.com/gmanfredi/framewatch/internal/media"
	"github.com/gmanfredi/framewatch/internal/queue"
	"github.com/gmanfredi/framewatch/internal/store"
	"github.com/gmanfredi/framewatch/pkg/models"
)

const (
	multipartMemoryLimit = 32 << 20 // bytes buffered before spilling to disk
	defaultPageLimit     = 20
	maxPageLimit         = 100
	classStatsTTL        = time.Hour
)

// JobDeps bundles the dependencies shared by the job handlers.
type JobDeps struct {
	Store          store.Store
	Queue          queue.Queue
	Media          *media.Storage
	Cache          cache.Cache
	SampleDir      string
	MaxUploadBytes int64
	DefaultConf    float64
	DefaultIoU     float64
}

type jobStatusResponse struct {
	ID                 uuid.UUID `json:"id"`
	Status             string    `json:"status"`
	ProgressPercentage int       `json:"progress_percentage"`
	ProcessedFrames    int       `json:"processed_frames"`
	TotalFrames        int       `json:"total_frames"`
	DetectionsCount    int       `json:"detections_count"`
	ProcessedVideoURL  *string   `json:"processed_video_url,omitempty"`
	Error              *string   `json:"error,omitempty"`
}

type jobDetailResponse struct {
	*models.Job
	ClassStats []models.ClassStat `json:"class_stats"`
}

// NewCreateJobHandler returns the handler for POST /api/v1/jobs: multipart
// upload of a source video, creating a pending job and submitting it to
// the processing queue.
func NewCreateJobHandler(deps JobDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, deps.MaxUploadBytes)
		if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"Expected multipart form with a video file", nil)
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"file field is required", nil)
			return
		}
		defer file.Close()

		if header.Size > deps.MaxUploadBytes {
			response.Error(w, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE",
				fmt.Sprintf("Maximum upload size is %d bytes", deps.MaxUploadBytes), nil)
			return
		}
		if _, err := media.ValidateExtension(header.Filename); err != nil {
			response.Error(w, http.StatusBadRequest, "UNSUPPORTED_FORMAT",
				"Supported video formats: mp4, avi, mov, mkv", nil)
			return
		}

		confidence, ok := thresholdField(w, r, "confidence", deps.DefaultConf)
		if !ok {
			return
		}
		iou, ok := thresholdField(w, r, "iou", deps.DefaultIoU)
		if !ok {
			return
		}

		title := strings.TrimSpace(r.FormValue("title"))
		if title == "" {
			title = header.Filename
		}

		userID := mw.GetUserID(r)
		jobID := uuid.New()

		sourcePath, err := deps.Media.SaveUpload(userID, jobID, header.Filename, file)
		if err != nil {
			slog.Error("failed to save upload", "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to store the uploaded video", nil)
			return
		}

		job := &models.Job{
			ID:         jobID,
			UserID:     userID,
			Title:      title,
			SourcePath: sourcePath,
			Status:     models.JobStatusPending,
			Confidence: confidence,
			IoU:        iou,
		}
		if err := deps.Store.CreateJob(r.Context(), job); err != nil {
			deps.Media.Remove(sourcePath)
			slog.Error("failed to create job", "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to create the job", nil)
			return
		}

		submitJob(w, r, deps, job)
	}
}

// NewSampleJobHandler returns the handler for POST /api/v1/jobs/sample/{code}:
// clone a bundled sample video and submit it as a new job.
func NewSampleJobHandler(deps JobDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "code")
		if code == "" || strings.ContainsAny(code, "/\\.") {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"Invalid sample code", nil)
			return
		}

		samplePath := filepath.Join(deps.SampleDir, code+".mp4")
		if _, err := os.Stat(samplePath); err != nil {
			response.Error(w, http.StatusNotFound, "SAMPLE_NOT_FOUND",
				"No sample video with that code", nil)
			return
		}

		userID := mw.GetUserID(r)
		jobID := uuid.New()

		sourcePath, err := deps.Media.CopySample(userID, jobID, samplePath)
		if err != nil {
			slog.Error("failed to copy sample video", "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to prepare the sample video", nil)
			return
		}

		job := &models.Job{
			ID:         jobID,
			UserID:     userID,
			Title:      "sample: " + code,
			SourcePath: sourcePath,
			Status:     models.JobStatusPending,
			Confidence: deps.DefaultConf,
			IoU:        deps.DefaultIoU,
		}
		if err := deps.Store.CreateJob(r.Context(), job); err != nil {
			deps.Media.Remove(sourcePath)
			slog.Error("failed to create sample job", "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to create the job", nil)
			return
		}

		submitJob(w, r, deps, job)
	}
}

// submitJob enqueues the created job and writes the 201 response. A queue
// failure leaves the job pending with no task; the client can resubmit.
func submitJob(w http.ResponseWriter, r *http.Request, deps JobDeps, job *models.Job) {
	taskID, err := deps.Queue.Submit(r.Context(), job.ID)
	if err != nil {
		slog.Error("failed to submit job to queue", "job_id", job.ID, "error", err)
		response.Error(w, http.StatusBadGateway, "QUEUE_UNAVAILABLE",
			"The job was created but could not be queued", nil)
		return
	}
	if err := deps.Store.SetJobTaskID(r.Context(), job.ID, taskID); err != nil {
		slog.Error("failed to record task id", "job_id", job.ID, "error", err)
	}
	job.TaskID = &taskID

	response.Created(w, job)
}

// NewListJobsHandler returns the handler for GET /api/v1/jobs.
func NewListJobsHandler(deps JobDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		if page < 1 {
			page = 1
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		if limit < 1 {
			limit = defaultPageLimit
		}
		if limit > maxPageLimit {
			limit = maxPageLimit
		}

		jobs, total, err := deps.Store.ListJobs(r.Context(), store.JobFilter{
			UserID: mw.GetUserID(r),
			Page:   page,
			Limit:  limit,
		})
		if err != nil {
			slog.Error("failed to list jobs", "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to list jobs", nil)
			return
		}

		response.Collection(w, jobs, response.PaginationMeta{
			Page:    page,
			Limit:   limit,
			Total:   total,
			HasNext: page*limit < total,
		})
	}
}

// NewGetJobHandler returns the handler for GET /api/v1/jobs/{jobID}: the
// job record plus its per-class detection summary. Stats for completed
// jobs are cached since detections are immutable.
func NewGetJobHandler(deps JobDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, ok := fetchJob(w, r, deps)
		if !ok {
			return
		}

		stats, err := classStats(r, deps, job)
		if err != nil {
			slog.Error("failed to compute class stats", "job_id", job.ID, "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to load detection statistics", nil)
			return
		}

		response.JSON(w, jobDetailResponse{Job: job, ClassStats: stats})
	}
}

func classStats(r *http.Request, deps JobDeps, job *models.Job) ([]models.ClassStat, error) {
	key := cache.ClassStatsKey(job.ID)

	if job.Status == models.JobStatusCompleted {
		if raw, hit, err := deps.Cache.Get(r.Context(), key); err == nil && hit {
			var stats []models.ClassStat
			if json.Unmarshal(raw, &stats) == nil {
				return stats, nil
			}
		}
	}

	stats, err := deps.Store.GetDetectionClassStats(r.Context(), job.ID)
	if err != nil {
		return nil, err
	}
	if stats == nil {
		stats = []models.ClassStat{}
	}

	if job.Status == models.JobStatusCompleted {
		if raw, err := json.Marshal(stats); err == nil {
			if err := deps.Cache.Set(r.Context(), key, raw, classStatsTTL); err != nil {
				slog.Warn("failed to cache class stats", "job_id", job.ID, "error", err)
			}
		}
	}
	return stats, nil
}

// NewJobStatusHandler returns the handler for GET /api/v1/jobs/{jobID}/status.
func NewJobStatusHandler(deps JobDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, ok := fetchJob(w, r, deps)
		if !ok {
			return
		}

		resp := jobStatusResponse{
			ID:                 job.ID,
			Status:             job.Status,
			ProgressPercentage: job.ProgressPercentage(),
			ProcessedFrames:    job.ProcessedFrames,
			TotalFrames:        job.TotalFrames,
			DetectionsCount:    job.DetectionsCount,
			Error:              job.ErrorMessage,
		}
		if job.Status == models.JobStatusCompleted && job.OutputPath != nil {
			if url, ok := mediaURL(deps.Media, *job.OutputPath); ok {
				resp.ProcessedVideoURL = &url
			}
		}

		response.JSON(w, resp)
	}
}

// NewDeleteJobHandler returns the handler for DELETE /api/v1/jobs/{jobID}.
// Detections cascade in the database; files on disk are removed
// best-effort and never fail the request.
func NewDeleteJobHandler(deps JobDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"Invalid job ID", nil)
			return
		}

		job, err := deps.Store.DeleteJob(r.Context(), jobID, mw.GetUserID(r))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Job not found", nil)
				return
			}
			slog.Error("failed to delete job", "job_id", jobID, "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to delete the job", nil)
			return
		}

		deps.Media.RemoveJobFiles(job)
		if err := deps.Cache.Delete(r.Context(), cache.ClassStatsKey(jobID)); err != nil {
			slog.Warn("failed to drop cached class stats", "job_id", jobID, "error", err)
		}

		response.JSON(w, map[string]any{"deleted": jobID})
	}
}

func fetchJob(w http.ResponseWriter, r *http.Request, deps JobDeps) (*models.Job, bool) {
	jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid job ID", nil)
		return nil, false
	}

	job, err := deps.Store.GetJobForUser(r.Context(), jobID, mw.GetUserID(r))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "Job not found", nil)
			return nil, false
		}
		slog.Error("failed to fetch job", "job_id", jobID, "error", err)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"Failed to fetch the job", nil)
		return nil, false
	}
	return job, true
}

// thresholdField parses an optional [0,1] float form field, writing the
// error response itself when the value is out of range.
func thresholdField(w http.ResponseWriter, r *http.Request, name string, fallback float64) (float64, bool) {
	raw := r.FormValue(name)
	if raw == "" {
		return fallback, true
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 || v > 1 {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
			name+" must be a number between 0 and 1", nil)
		return 0, false
	}
	return v, true
}

// mediaURL maps an absolute media path to its public /media/ URL.
func mediaURL(storage *media.Storage, path string) (string, bool) {
	rel, err := filepath.Rel(storage.Root(), path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return "/media/" + filepath.ToSlash(rel), true
}
