package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gmanfredi/framewatch/internal/api/response"
	"github.com/gmanfredi/framewatch/internal/queue"
)

// NewTaskStatusHandler returns the handler for GET /api/v1/tasks/{taskID}:
// the queue-side view of an async job submission.
func NewTaskStatusHandler(q queue.Queue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		taskID := chi.URLParam(r, "taskID")
		if taskID == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"Task ID is required", nil)
			return
		}

		status, err := q.Poll(r.Context(), taskID)
		if err != nil {
			if errors.Is(err, queue.ErrTaskNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND",
					"Task not found or expired", nil)
				return
			}
			slog.Error("failed to poll task", "task_id", taskID, "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to poll the task", nil)
			return
		}

		response.JSON(w, status)
	}
}
