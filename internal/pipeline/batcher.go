package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/gmanfredi/framewatch/internal/store"
	"github.com/gmanfredi/framewatch/pkg/models"
)

// defaultBatchSize matches the bulk-insert threshold for detection rows.
const defaultBatchSize = 512

// DetectionBatcher accumulates detection records and bulk-inserts them
// once the batch threshold is reached. Not safe for concurrent use; each
// job run owns one batcher.
type DetectionBatcher struct {
	store     store.Store
	jobID     uuid.UUID
	batchSize int
	pending   []*models.Detection
	total     int
}

func NewDetectionBatcher(s store.Store, jobID uuid.UUID, batchSize int) *DetectionBatcher {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &DetectionBatcher{
		store:     s,
		jobID:     jobID,
		batchSize: batchSize,
		pending:   make([]*models.Detection, 0, batchSize),
	}
}

// Add queues detections for insertion, stamping them with the job ID.
// Each time the pending batch reaches the threshold it is flushed.
func (b *DetectionBatcher) Add(ctx context.Context, dets []models.Detection) error {
	for i := range dets {
		det := dets[i]
		det.JobID = b.jobID
		b.pending = append(b.pending, &det)
		if len(b.pending) >= b.batchSize {
			if err := b.Flush(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

// Flush writes any pending detections to the store.
func (b *DetectionBatcher) Flush(ctx context.Context) error {
	if len(b.pending) == 0 {
		return nil
	}
	if err := b.store.InsertDetections(ctx, b.pending); err != nil {
		return fmt.Errorf("inserting detection batch: %w", err)
	}
	b.total += len(b.pending)
	b.pending = b.pending[:0]
	return nil
}

// Total returns the number of detections flushed so far.
func (b *DetectionBatcher) Total() int { return b.total }

// PendingCount returns the number of detections waiting for a flush.
func (b *DetectionBatcher) PendingCount() int { return len(b.pending) }
