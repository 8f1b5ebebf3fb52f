// Package queue provides the async job dispatch interface: submit a job,
// poll its task status, and (on the worker side) dequeue tasks. It is
// deliberately independent of any specific queueing technology; the only
// implementation ships on Redis.
package queue

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Task states, as surfaced to status-polling clients.
const (
	StatePending  = "PENDING"
	StateProgress = "PROGRESS"
	StateSuccess  = "SUCCESS"
	StateFailure  = "FAILURE"
)

var ErrTaskNotFound = errors.New("task not found")
var ErrNoTask = errors.New("no task available")

// Task is one unit of work handed to a worker.
type Task struct {
	TaskID string    `json:"task_id"`
	JobID  uuid.UUID `json:"job_id"`
}

// Progress mirrors the meta reported while a task is running.
type Progress struct {
	Current    int `json:"current"`
	Total      int `json:"total"`
	Percentage int `json:"percentage"`
}

// Result is the terminal summary of a successful task.
type Result struct {
	Status     string `json:"status"`
	Detections int    `json:"detections"`
	Frames     int    `json:"frames"`
}

// TaskStatus is the full polled state of a task.
type TaskStatus struct {
	TaskID   string    `json:"task_id"`
	State    string    `json:"state"`
	Progress *Progress `json:"progress,omitempty"`
	Result   *Result   `json:"result,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// Queue is the dispatch interface used by the API server.
type Queue interface {
	// Submit enqueues the job and returns an opaque task identifier.
	Submit(ctx context.Context, jobID uuid.UUID) (string, error)
	// Poll returns the current status of a previously submitted task.
	Poll(ctx context.Context, taskID string) (*TaskStatus, error)
	Ping(ctx context.Context) error
}

// Consumer is the worker-side interface.
type Consumer interface {
	// Dequeue blocks until a task is available or the context is done.
	// Returns ErrNoTask when the blocking window elapses with nothing to do.
	Dequeue(ctx context.Context) (*Task, error)
}

// Reporter is the job-status channel the pipeline reports through. All
// methods are best-effort: failures are logged by the implementation and
// never propagate into the pipeline.
type Reporter interface {
	Progress(ctx context.Context, taskID string, p Progress)
	Succeed(ctx context.Context, taskID string, r Result)
	Fail(ctx context.Context, taskID string, errMsg string)
}
