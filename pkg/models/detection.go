package models

import (
	"time"

	"github.com/google/uuid"
)

// Detection is one localized, classified, scored bounding box in one frame.
// Rows are bulk-inserted during pipeline runs and never updated; they are
// removed only by cascading job deletion.
type Detection struct {
	ID         int64     `db:"id"          json:"id"`
	JobID      uuid.UUID `db:"job_id"      json:"job_id"`
	FrameIndex int       `db:"frame_index" json:"frame_index"`
	Class      string    `db:"class"       json:"class"`
	Confidence float64   `db:"confidence"  json:"confidence"`
	X1         float64   `db:"x1"          json:"x1"`
	Y1         float64   `db:"y1"          json:"y1"`
	X2         float64   `db:"x2"          json:"x2"`
	Y2         float64   `db:"y2"          json:"y2"`
	CreatedAt  time.Time `db:"created_at"  json:"created_at"`
}

// ClassStat is the per-class aggregate shown on the job detail view.
type ClassStat struct {
	Class         string  `db:"class"          json:"class"`
	Count         int     `db:"count"          json:"count"`
	AvgConfidence float64 `db:"avg_confidence" json:"avg_confidence"`
}
