package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	taskListKey   = "framewatch:tasks"
	statusTTL     = 30 * time.Minute
	dequeueWindow = 5 * time.Second
)

func taskStatusKey(taskID string) string {
	return fmt.Sprintf("framewatch:task:%s", taskID)
}

// RedisQueue implements Queue, Consumer and Reporter on a Redis list plus
// one status hash per task. Safe for concurrent use.
type RedisQueue struct {
	client *redis.Client
}

// NewRedisQueue creates a RedisQueue from a Redis URL.
func NewRedisQueue(redisURL string) (*RedisQueue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisQueue{client: redis.NewClient(opts)}, nil
}

func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}

func (q *RedisQueue) Submit(ctx context.Context, jobID uuid.UUID) (string, error) {
	task := Task{TaskID: uuid.NewString(), JobID: jobID}
	payload, err := json.Marshal(task)
	if err != nil {
		return "", fmt.Errorf("marshal task: %w", err)
	}

	if err := q.client.HSet(ctx, taskStatusKey(task.TaskID), "state", StatePending).Err(); err != nil {
		return "", fmt.Errorf("set task status: %w", err)
	}
	q.client.Expire(ctx, taskStatusKey(task.TaskID), statusTTL)

	if err := q.client.LPush(ctx, taskListKey, payload).Err(); err != nil {
		return "", fmt.Errorf("enqueue task: %w", err)
	}
	return task.TaskID, nil
}

func (q *RedisQueue) Dequeue(ctx context.Context) (*Task, error) {
	vals, err := q.client.BRPop(ctx, dequeueWindow, taskListKey).Result()
	if err == redis.Nil {
		return nil, ErrNoTask
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue task: %w", err)
	}
	// BRPop returns [key, value].
	var task Task
	if err := json.Unmarshal([]byte(vals[1]), &task); err != nil {
		return nil, fmt.Errorf("unmarshal task: %w", err)
	}
	return &task, nil
}

func (q *RedisQueue) Poll(ctx context.Context, taskID string) (*TaskStatus, error) {
	fields, err := q.client.HGetAll(ctx, taskStatusKey(taskID)).Result()
	if err != nil {
		return nil, fmt.Errorf("poll task: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrTaskNotFound
	}

	st := &TaskStatus{TaskID: taskID, State: fields["state"]}
	switch st.State {
	case StateProgress:
		st.Progress = &Progress{
			Current:    atoiField(fields, "current"),
			Total:      atoiField(fields, "total"),
			Percentage: atoiField(fields, "percentage"),
		}
	case StateSuccess:
		st.Result = &Result{
			Status:     fields["status"],
			Detections: atoiField(fields, "detections"),
			Frames:     atoiField(fields, "frames"),
		}
	case StateFailure:
		st.Error = fields["error"]
	}
	return st, nil
}

// --- Reporter ---

func (q *RedisQueue) Progress(ctx context.Context, taskID string, p Progress) {
	err := q.setStatus(ctx, taskID, map[string]any{
		"state":      StateProgress,
		"current":    p.Current,
		"total":      p.Total,
		"percentage": p.Percentage,
	})
	if err != nil {
		slog.Warn("report progress failed", "task_id", taskID, "error", err)
	}
}

func (q *RedisQueue) Succeed(ctx context.Context, taskID string, r Result) {
	err := q.setStatus(ctx, taskID, map[string]any{
		"state":      StateSuccess,
		"status":     r.Status,
		"detections": r.Detections,
		"frames":     r.Frames,
	})
	if err != nil {
		slog.Warn("report success failed", "task_id", taskID, "error", err)
	}
}

func (q *RedisQueue) Fail(ctx context.Context, taskID string, errMsg string) {
	err := q.setStatus(ctx, taskID, map[string]any{
		"state": StateFailure,
		"error": errMsg,
	})
	if err != nil {
		slog.Warn("report failure failed", "task_id", taskID, "error", err)
	}
}

func (q *RedisQueue) setStatus(ctx context.Context, taskID string, fields map[string]any) error {
	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, taskStatusKey(taskID), fields)
	pipe.Expire(ctx, taskStatusKey(taskID), statusTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func atoiField(fields map[string]string, key string) int {
	n, _ := strconv.Atoi(fields[key])
	return n
}
