package pipeline

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gmanfredi/framewatch/internal/config"
	"github.com/gmanfredi/framewatch/internal/detect"
	"github.com/gmanfredi/framewatch/internal/media"
	"github.com/gmanfredi/framewatch/internal/queue"
	"github.com/gmanfredi/framewatch/internal/store"
	"github.com/gmanfredi/framewatch/internal/video"
	"github.com/gmanfredi/framewatch/pkg/models"
)

// ─── mock store ──────────────────────────────────────────────────────────────

type mockStore struct {
	store.Store

	mu         sync.Mutex
	jobs       map[uuid.UUID]*models.Job
	detections []*models.Detection
	batchSizes []int
}

func newMockStore() *mockStore {
	return &mockStore{jobs: make(map[uuid.UUID]*models.Job)}
}

func (s *mockStore) addJob(job *models.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *mockStore) GetJob(_ context.Context, id uuid.UUID) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *job
	return &copied, nil
}

func (s *mockStore) MarkJobProcessing(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return store.ErrNotFound
	}
	if job.Status != models.JobStatusPending {
		return store.ErrInvalidTransition
	}
	job.Status = models.JobStatusProcessing
	job.ProcessedFrames = 0
	job.DetectionsCount = 0
	job.ErrorMessage = nil
	return nil
}

func (s *mockStore) SetJobTotalFrames(_ context.Context, id uuid.UUID, total int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[id].TotalFrames = total
	return nil
}

func (s *mockStore) UpdateJobProgress(_ context.Context, id uuid.UUID, processed, detections int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job := s.jobs[id]
	job.ProcessedFrames = processed
	job.DetectionsCount = detections
	return nil
}

func (s *mockStore) MarkJobCompleted(_ context.Context, id uuid.UUID, outputPath string, processed, detections int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job := s.jobs[id]
	if job.Status != models.JobStatusProcessing {
		return store.ErrInvalidTransition
	}
	job.Status = models.JobStatusCompleted
	job.OutputPath = &outputPath
	job.ProcessedFrames = processed
	job.DetectionsCount = detections
	return nil
}

func (s *mockStore) MarkJobFailed(_ context.Context, id uuid.UUID, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return store.ErrNotFound
	}
	job.Status = models.JobStatusFailed
	job.ErrorMessage = &errMsg
	return nil
}

func (s *mockStore) InsertDetections(_ context.Context, dets []*models.Detection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detections = append(s.detections, dets...)
	s.batchSizes = append(s.batchSizes, len(dets))
	return nil
}

// ─── fake video layer ────────────────────────────────────────────────────────

type fakeVideoIO struct {
	frames        int
	totalFrames   int
	forceFallback bool

	previewWrites int
}

func (f *fakeVideoIO) Probe(_ context.Context, _ string) (video.Metadata, error) {
	return video.Metadata{Width: 64, Height: 48, FPS: 25, TotalFrames: f.totalFrames}, nil
}

func (f *fakeVideoIO) OpenSource(_ context.Context, _ string, md video.Metadata) (video.Source, error) {
	return &fakeSource{remaining: f.frames, width: md.Width, height: md.Height}, nil
}

func (f *fakeVideoIO) OpenSink(_ context.Context, path string, _ video.Metadata) (video.Sink, error) {
	// The real sink creates the output file as soon as ffmpeg starts.
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		return nil, err
	}
	return &fakeSink{}, nil
}

func (f *fakeVideoIO) Reencode(_ context.Context, rawPath, finalPath string) (string, bool) {
	if f.forceFallback {
		return rawPath, true
	}
	return finalPath, false
}

func (f *fakeVideoIO) WritePreview(_ string, _ *models.Frame) error {
	f.previewWrites++
	return nil
}

type fakeSource struct {
	remaining int
	width     int
	height    int
}

func (s *fakeSource) ReadFrame() (*models.Frame, error) {
	if s.remaining == 0 {
		return nil, io.EOF
	}
	s.remaining--
	return models.NewFrame(s.width, s.height), nil
}

func (s *fakeSource) Close() error { return nil }

type fakeSink struct {
	written int
}

func (s *fakeSink) WriteFrame(_ *models.Frame) error {
	s.written++
	return nil
}

func (s *fakeSink) Close() error { return nil }

// ─── mock reporter ───────────────────────────────────────────────────────────

type mockReporter struct {
	mu       sync.Mutex
	progress []queue.Progress
	result   *queue.Result
	failure  string
}

func (r *mockReporter) Progress(_ context.Context, _ string, p queue.Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, p)
}

func (r *mockReporter) Succeed(_ context.Context, _ string, res queue.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.result = &res
}

func (r *mockReporter) Fail(_ context.Context, _ string, errMsg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failure = errMsg
}

// ─── fixtures ────────────────────────────────────────────────────────────────

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testHandle(t *testing.T) *detect.Handle {
	t.Helper()
	modelPath := filepath.Join(t.TempDir(), "best.pt")
	require.NoError(t, os.WriteFile(modelPath, []byte("weights"), 0o644))
	return detect.NewHandle(config.DetectConfig{
		Provider:  "mock",
		ModelPath: modelPath,
		Device:    "cpu",
	})
}

func newTestPipeline(t *testing.T, st *mockStore, videos video.IO, reporter queue.Reporter) *Pipeline {
	t.Helper()
	storage := media.NewStorage(t.TempDir(), testLogger())
	return New(st, videos, testHandle(t), storage, reporter, testLogger())
}

func pendingJob() *models.Job {
	return &models.Job{
		ID:         uuid.New(),
		Title:      "flight-42",
		SourcePath: "/media/videos/anon/original/in.mp4",
		Status:     models.JobStatusPending,
		Confidence: 0.5,
		IoU:        0.45,
	}
}

// ─── tests ───────────────────────────────────────────────────────────────────

func TestPipeline_Run_Completes(t *testing.T) {
	st := newMockStore()
	job := pendingJob()
	st.addJob(job)

	videos := &fakeVideoIO{frames: 25, totalFrames: 25}
	reporter := &mockReporter{}
	p := newTestPipeline(t, st, videos, reporter)

	err := p.Run(context.Background(), &queue.Task{TaskID: "task-1", JobID: job.ID})
	require.NoError(t, err)

	got, _ := st.GetJob(context.Background(), job.ID)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	assert.Equal(t, 25, got.ProcessedFrames)
	assert.Equal(t, 25, got.DetectionsCount, "mock detector returns one box per frame")
	require.NotNil(t, got.OutputPath)
	assert.Contains(t, *got.OutputPath, "processed_"+job.ID.String())

	require.NotNil(t, reporter.result)
	assert.Equal(t, models.JobStatusCompleted, reporter.result.Status)
	assert.Equal(t, 25, reporter.result.Frames)
	assert.Equal(t, 25, reporter.result.Detections)
}

func TestPipeline_Run_ReportsEveryTenthFrame(t *testing.T) {
	st := newMockStore()
	job := pendingJob()
	st.addJob(job)

	videos := &fakeVideoIO{frames: 25, totalFrames: 25}
	reporter := &mockReporter{}
	p := newTestPipeline(t, st, videos, reporter)

	require.NoError(t, p.Run(context.Background(), &queue.Task{TaskID: "task-1", JobID: job.ID}))

	require.Len(t, reporter.progress, 2, "progress at frames 10 and 20")
	assert.Equal(t, 10, reporter.progress[0].Current)
	assert.Equal(t, 40, reporter.progress[0].Percentage)
	assert.Equal(t, 20, reporter.progress[1].Current)
	assert.Equal(t, 80, reporter.progress[1].Percentage)
	assert.Equal(t, 2, videos.previewWrites)
}

func TestPipeline_Run_ProgressMonotonic(t *testing.T) {
	st := newMockStore()
	job := pendingJob()
	st.addJob(job)

	reporter := &mockReporter{}
	p := newTestPipeline(t, st, &fakeVideoIO{frames: 55, totalFrames: 55}, reporter)

	require.NoError(t, p.Run(context.Background(), &queue.Task{TaskID: "task-1", JobID: job.ID}))

	prev := 0
	for _, prog := range reporter.progress {
		assert.Greater(t, prog.Current, prev)
		prev = prog.Current
	}
}

func TestPipeline_Run_UnknownTotalReportsZeroPercentage(t *testing.T) {
	st := newMockStore()
	job := pendingJob()
	st.addJob(job)

	reporter := &mockReporter{}
	p := newTestPipeline(t, st, &fakeVideoIO{frames: 25, totalFrames: 0}, reporter)

	require.NoError(t, p.Run(context.Background(), &queue.Task{TaskID: "task-1", JobID: job.ID}))

	require.NotEmpty(t, reporter.progress)
	for _, prog := range reporter.progress {
		assert.Equal(t, 0, prog.Percentage)
		assert.Equal(t, 0, prog.Total)
	}
}

func TestPipeline_Run_EmptyVideoFails(t *testing.T) {
	st := newMockStore()
	job := pendingJob()
	st.addJob(job)

	reporter := &mockReporter{}
	storage := media.NewStorage(t.TempDir(), testLogger())
	p := New(st, &fakeVideoIO{frames: 0, totalFrames: 0}, testHandle(t), storage, reporter, testLogger())

	err := p.Run(context.Background(), &queue.Task{TaskID: "task-1", JobID: job.ID})
	require.Error(t, err)
	assert.ErrorIs(t, err, video.ErrEmptyVideo)

	got, _ := st.GetJob(context.Background(), job.ID)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.NotEmpty(t, reporter.failure)
	assert.NoFileExists(t, storage.RawOutputPath(job.UserID, job.ID),
		"zero-frame raw output is cleaned up")
}

func TestPipeline_Run_TranscodeFallbackStillCompletes(t *testing.T) {
	st := newMockStore()
	job := pendingJob()
	st.addJob(job)

	reporter := &mockReporter{}
	p := newTestPipeline(t, st, &fakeVideoIO{frames: 12, totalFrames: 12, forceFallback: true}, reporter)

	require.NoError(t, p.Run(context.Background(), &queue.Task{TaskID: "task-1", JobID: job.ID}))

	got, _ := st.GetJob(context.Background(), job.ID)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	require.NotNil(t, got.OutputPath)
	assert.Contains(t, *got.OutputPath, "processed_raw_"+job.ID.String(), "raw output kept on fallback")
}

func TestPipeline_Run_UnknownJobFails(t *testing.T) {
	st := newMockStore()
	reporter := &mockReporter{}
	p := newTestPipeline(t, st, &fakeVideoIO{frames: 5}, reporter)

	err := p.Run(context.Background(), &queue.Task{TaskID: "task-1", JobID: uuid.New()})
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NotEmpty(t, reporter.failure)
}

func TestPipeline_Run_NonPendingJobRejected(t *testing.T) {
	st := newMockStore()
	job := pendingJob()
	job.Status = models.JobStatusCompleted
	st.addJob(job)

	reporter := &mockReporter{}
	p := newTestPipeline(t, st, &fakeVideoIO{frames: 5}, reporter)

	err := p.Run(context.Background(), &queue.Task{TaskID: "task-1", JobID: job.ID})
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrInvalidTransition)
}

func TestPipeline_Run_DetectionsPersisted(t *testing.T) {
	st := newMockStore()
	job := pendingJob()
	st.addJob(job)

	p := newTestPipeline(t, st, &fakeVideoIO{frames: 7, totalFrames: 7}, &mockReporter{})

	require.NoError(t, p.Run(context.Background(), &queue.Task{TaskID: "task-1", JobID: job.ID}))

	require.Len(t, st.detections, 7)
	for i, det := range st.detections {
		assert.Equal(t, job.ID, det.JobID)
		assert.Equal(t, i, det.FrameIndex)
		assert.Equal(t, "hotspot", det.Class)
	}
}

func TestPipeline_Run_DetectorErrorFailsJob(t *testing.T) {
	st := newMockStore()
	job := pendingJob()
	st.addJob(job)

	reporter := &mockReporter{}
	storage := media.NewStorage(t.TempDir(), testLogger())

	modelPath := filepath.Join(t.TempDir(), "best.pt")
	require.NoError(t, os.WriteFile(modelPath, []byte("weights"), 0o644))
	handle := detect.NewHandle(config.DetectConfig{
		Provider:  "sidecar",
		ModelPath: modelPath,
		BaseURL:   "http://127.0.0.1:1",
		Timeout:   time.Second,
		Device:    "cpu",
	})

	p := New(st, &fakeVideoIO{frames: 5, totalFrames: 5}, handle, storage, reporter, testLogger())

	err := p.Run(context.Background(), &queue.Task{TaskID: "task-1", JobID: job.ID})
	require.Error(t, err)

	got, _ := st.GetJob(context.Background(), job.ID)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	assert.NotEmpty(t, reporter.failure)
}
