package pipeline

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gmanfredi/framewatch/pkg/models"
)

func makeDetections(n int) []models.Detection {
	dets := make([]models.Detection, n)
	for i := range dets {
		dets[i] = models.Detection{FrameIndex: i, Class: "hotspot", Confidence: 0.9}
	}
	return dets
}

func TestDetectionBatcher_FlushesAtThreshold(t *testing.T) {
	st := newMockStore()
	b := NewDetectionBatcher(st, uuid.New(), 0)

	require.NoError(t, b.Add(context.Background(), makeDetections(1025)))
	require.NoError(t, b.Flush(context.Background()))

	assert.Equal(t, []int{512, 512, 1}, st.batchSizes)
	assert.Equal(t, 1025, b.Total())
	assert.Zero(t, b.PendingCount())
}

func TestDetectionBatcher_NoFlushBelowThreshold(t *testing.T) {
	st := newMockStore()
	b := NewDetectionBatcher(st, uuid.New(), 0)

	require.NoError(t, b.Add(context.Background(), makeDetections(511)))

	assert.Empty(t, st.batchSizes, "no automatic flush below the threshold")
	assert.Equal(t, 511, b.PendingCount())
	assert.Zero(t, b.Total())
}

func TestDetectionBatcher_StampsJobID(t *testing.T) {
	st := newMockStore()
	jobID := uuid.New()
	b := NewDetectionBatcher(st, jobID, 4)

	require.NoError(t, b.Add(context.Background(), makeDetections(4)))

	require.Len(t, st.detections, 4)
	for _, det := range st.detections {
		assert.Equal(t, jobID, det.JobID)
	}
}

func TestDetectionBatcher_FlushEmptyIsNoop(t *testing.T) {
	st := newMockStore()
	b := NewDetectionBatcher(st, uuid.New(), 0)

	require.NoError(t, b.Flush(context.Background()))
	assert.Empty(t, st.batchSizes)
}
