package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/gmanfredi/framewatch/internal/queue"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupQueue spins up a Redis container and returns a connected RedisQueue.
func setupQueue(t *testing.T) *queue.RedisQueue {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(ctx)) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	q, err := queue.NewRedisQueue("redis://" + host + ":" + port.Port())
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })

	return q
}

func TestSubmitDequeue_Roundtrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	q := setupQueue(t)
	ctx := context.Background()
	jobID := uuid.New()

	taskID, err := q.Submit(ctx, jobID)
	require.NoError(t, err)
	require.NotEmpty(t, taskID)

	task, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, taskID, task.TaskID)
	assert.Equal(t, jobID, task.JobID)
}

func TestSubmit_InitialStateIsPending(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	q := setupQueue(t)
	ctx := context.Background()

	taskID, err := q.Submit(ctx, uuid.New())
	require.NoError(t, err)

	st, err := q.Poll(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, queue.StatePending, st.State)
	assert.Nil(t, st.Progress)
	assert.Nil(t, st.Result)
}

func TestPoll_UnknownTask(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	q := setupQueue(t)

	_, err := q.Poll(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, queue.ErrTaskNotFound)
}

func TestReporter_ProgressThenSuccess(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	q := setupQueue(t)
	ctx := context.Background()

	taskID, err := q.Submit(ctx, uuid.New())
	require.NoError(t, err)

	q.Progress(ctx, taskID, queue.Progress{Current: 10, Total: 100, Percentage: 10})

	st, err := q.Poll(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, queue.StateProgress, st.State)
	require.NotNil(t, st.Progress)
	assert.Equal(t, 10, st.Progress.Current)
	assert.Equal(t, 100, st.Progress.Total)
	assert.Equal(t, 10, st.Progress.Percentage)

	q.Succeed(ctx, taskID, queue.Result{Status: "completed", Detections: 42, Frames: 100})

	st, err = q.Poll(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, queue.StateSuccess, st.State)
	require.NotNil(t, st.Result)
	assert.Equal(t, "completed", st.Result.Status)
	assert.Equal(t, 42, st.Result.Detections)
	assert.Equal(t, 100, st.Result.Frames)
}

func TestReporter_Failure(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	q := setupQueue(t)
	ctx := context.Background()

	taskID, err := q.Submit(ctx, uuid.New())
	require.NoError(t, err)

	q.Fail(ctx, taskID, "video open failed")

	st, err := q.Poll(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, queue.StateFailure, st.State)
	assert.Equal(t, "video open failed", st.Error)
}

func TestDequeue_EmptyQueueTimesOut(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	q := setupQueue(t)

	_, err := q.Dequeue(context.Background())
	assert.ErrorIs(t, err, queue.ErrNoTask)
}
