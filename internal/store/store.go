package store

import (
	"context"
	"errors"

	"github.com/gmanfredi/framewatch/pkg/models"
	"github.com/google/uuid"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")
var ErrInvalidTransition = errors.New("invalid job status transition")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context, userID uuid.UUID) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID, userID uuid.UUID) error

	CreateJob(ctx context.Context, job *models.Job) error
	// GetJob fetches a job regardless of owner. The worker uses this.
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	// GetJobForUser fetches a job only if owned by userID (nil matches
	// anonymous jobs). API handlers use this for owner scoping.
	GetJobForUser(ctx context.Context, id uuid.UUID, userID *uuid.UUID) (*models.Job, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]*models.Job, int, error)
	SetJobTaskID(ctx context.Context, id uuid.UUID, taskID string) error
	// MarkJobProcessing transitions pending→processing, resets the run
	// counters and clears any prior error message.
	MarkJobProcessing(ctx context.Context, id uuid.UUID) error
	SetJobTotalFrames(ctx context.Context, id uuid.UUID, total int) error
	UpdateJobProgress(ctx context.Context, id uuid.UUID, processed, detections int) error
	MarkJobCompleted(ctx context.Context, id uuid.UUID, outputPath string, processed, detections int) error
	MarkJobFailed(ctx context.Context, id uuid.UUID, errMsg string) error
	// DeleteJob removes the job and, via cascade, all its detections.
	// Returns the deleted job so callers can clean up files on disk.
	DeleteJob(ctx context.Context, id uuid.UUID, userID *uuid.UUID) (*models.Job, error)

	// InsertDetections bulk-writes one flushed batch. Records are immutable
	// once written.
	InsertDetections(ctx context.Context, dets []*models.Detection) error
	CountDetections(ctx context.Context, jobID uuid.UUID) (int, error)
	GetDetectionClassStats(ctx context.Context, jobID uuid.UUID) ([]models.ClassStat, error)
}

type JobFilter struct {
	UserID *uuid.UUID
	Page   int
	Limit  int
}
