package cache

import (
	"fmt"

	"github.com/google/uuid"
)

// ClassStatsKey caches the per-class detection summary of a completed job.
// Detections are immutable once written, so a long TTL is safe.
func ClassStatsKey(jobID uuid.UUID) string {
	return fmt.Sprintf("stats:%s", jobID)
}

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}
