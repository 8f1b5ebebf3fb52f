package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// Job tracks one user-submitted video detection run. The API returns the job
// on POST /api/v1/jobs; the client polls GET /api/v1/jobs/{id}/status until
// status is completed or failed. Only the pipeline mutates a job after
// submission.
type Job struct {
	ID              uuid.UUID  `db:"id"               json:"id"`
	UserID          *uuid.UUID `db:"user_id"          json:"user_id,omitempty"`
	Title           string     `db:"title"            json:"title"`
	SourcePath      string     `db:"source_path"      json:"source_path"`
	OutputPath      *string    `db:"output_path"      json:"output_path,omitempty"`
	Status          string     `db:"status"           json:"status"`
	Confidence      float64    `db:"confidence"       json:"confidence"`
	IoU             float64    `db:"iou"              json:"iou"`
	TotalFrames     int        `db:"total_frames"     json:"total_frames"`
	ProcessedFrames int        `db:"processed_frames" json:"processed_frames"`
	DetectionsCount int        `db:"detections_count" json:"detections_count"`
	ErrorMessage    *string    `db:"error_message"    json:"error_message,omitempty"`
	TaskID          *string    `db:"task_id"          json:"task_id,omitempty"`
	CreatedAt       time.Time  `db:"created_at"       json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at"       json:"updated_at"`
}

// ProgressPercentage reports completion as a whole percentage. Returns 0
// while the total frame count is unknown rather than dividing by zero.
func (j *Job) ProgressPercentage() int {
	if j.TotalFrames <= 0 {
		return 0
	}
	pct := j.ProcessedFrames * 100 / j.TotalFrames
	if pct > 100 {
		pct = 100
	}
	return pct
}

// OwnerDir is the per-user segment of the storage layout ("anon" for jobs
// without an owner).
func (j *Job) OwnerDir() string {
	if j.UserID == nil {
		return "anon"
	}
	return j.UserID.String()
}
