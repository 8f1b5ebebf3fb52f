// Package metrics exposes Prometheus counters for the processing worker.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsProcessed counts finished jobs by terminal status.
	JobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "framewatch",
		Name:      "jobs_processed_total",
		Help:      "Number of processing jobs finished, by terminal status.",
	}, []string{"status"})

	// FramesProcessed counts decoded and annotated frames.
	FramesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "framewatch",
		Name:      "frames_processed_total",
		Help:      "Number of video frames run through detection.",
	})

	// DetectionsRecorded counts detection rows written to the store.
	DetectionsRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "framewatch",
		Name:      "detections_recorded_total",
		Help:      "Number of detection records persisted.",
	})

	// JobDuration observes wall-clock processing time per job.
	JobDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "framewatch",
		Name:      "job_duration_seconds",
		Help:      "Wall-clock duration of video processing jobs.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	})

	// TranscodeFallbacks counts jobs that kept the raw output because
	// H.264 transcoding failed.
	TranscodeFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "framewatch",
		Name:      "transcode_fallbacks_total",
		Help:      "Number of jobs that fell back to the raw encoder output.",
	})
)
