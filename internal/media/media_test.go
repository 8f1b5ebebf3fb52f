package media

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gmanfredi/framewatch/pkg/models"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	return NewStorage(t.TempDir(), slog.New(slog.NewTextHandler(os.Stderr, nil)))
}

func TestValidateExtension(t *testing.T) {
	for _, name := range []string{"clip.mp4", "clip.AVI", "clip.mov", "clip.MKV"} {
		_, err := ValidateExtension(name)
		assert.NoError(t, err, name)
	}

	for _, name := range []string{"clip.webm", "clip.txt", "clip", "clip.mp4.exe"} {
		_, err := ValidateExtension(name)
		assert.ErrorIs(t, err, ErrUnsupportedExtension, name)
	}
}

func TestStorage_PathLayout(t *testing.T) {
	s := newTestStorage(t)
	jobID := uuid.New()
	userID := uuid.New()

	assert.Equal(t,
		filepath.Join(s.Root(), "videos", userID.String(), "original", "in.mp4"),
		s.OriginalPath(&userID, "in.mp4"))
	assert.Equal(t,
		filepath.Join(s.Root(), "videos", "anon", "original", "in.mp4"),
		s.OriginalPath(nil, "in.mp4"))
	assert.Equal(t,
		filepath.Join(s.Root(), "videos", "anon", "processed", "processed_raw_"+jobID.String()+".mp4"),
		s.RawOutputPath(nil, jobID))
	assert.Equal(t,
		filepath.Join(s.Root(), "videos", "anon", "processed", "processed_"+jobID.String()+".mp4"),
		s.ProcessedPath(nil, jobID))
	assert.Equal(t,
		filepath.Join(s.Root(), "videos", "anon", "preview", "preview_"+jobID.String()+".jpg"),
		s.PreviewPath(nil, jobID))
}

func TestStorage_SaveUpload(t *testing.T) {
	s := newTestStorage(t)
	jobID := uuid.New()

	path, err := s.SaveUpload(nil, jobID, "drone_flight.mp4", strings.NewReader("video-bytes"))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(filepath.Base(path), jobID.String()+"_"))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "video-bytes", string(data))
}

func TestStorage_SaveUpload_RejectsBadExtension(t *testing.T) {
	s := newTestStorage(t)

	_, err := s.SaveUpload(nil, uuid.New(), "malware.exe", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrUnsupportedExtension)
}

func TestStorage_CopySample_LeavesSourceIntact(t *testing.T) {
	s := newTestStorage(t)
	sampleDir := t.TempDir()
	sample := filepath.Join(sampleDir, "sample.mp4")
	require.NoError(t, os.WriteFile(sample, []byte("sample-bytes"), 0o644))

	path, err := s.CopySample(nil, uuid.New(), sample)
	require.NoError(t, err)

	copied, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "sample-bytes", string(copied))

	original, err := os.ReadFile(sample)
	require.NoError(t, err)
	assert.Equal(t, "sample-bytes", string(original), "source sample untouched")
}

func TestStorage_CopySample_MissingSource(t *testing.T) {
	s := newTestStorage(t)

	_, err := s.CopySample(nil, uuid.New(), filepath.Join(t.TempDir(), "missing.mp4"))
	assert.Error(t, err)
}

func TestStorage_Remove(t *testing.T) {
	s := newTestStorage(t)
	path := filepath.Join(t.TempDir(), "f.mp4")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	assert.True(t, s.Remove(path))
	assert.False(t, s.Remove(path), "second removal is a no-op")
	assert.False(t, s.Remove(""))
}

func TestStorage_RemoveJobFiles(t *testing.T) {
	s := newTestStorage(t)
	jobID := uuid.New()

	source, err := s.SaveUpload(nil, jobID, "in.mp4", strings.NewReader("src"))
	require.NoError(t, err)

	processed := s.ProcessedPath(nil, jobID)
	require.NoError(t, os.MkdirAll(filepath.Dir(processed), 0o755))
	require.NoError(t, os.WriteFile(processed, []byte("out"), 0o644))

	job := &models.Job{ID: jobID, SourcePath: source, OutputPath: &processed}
	s.RemoveJobFiles(job)

	assert.NoFileExists(t, source)
	assert.NoFileExists(t, processed)
}
