// Package media manages the on-disk layout for uploaded, processed and
// preview files under the configured media root.
package media

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/gmanfredi/framewatch/pkg/models"
)

// ErrUnsupportedExtension is returned for uploads that are not a known
// video container format.
var ErrUnsupportedExtension = errors.New("unsupported video file extension")

var allowedExtensions = map[string]struct{}{
	".mp4": {},
	".avi": {},
	".mov": {},
	".mkv": {},
}

// Storage resolves and manipulates media paths. All videos live under
// root/videos/<owner>/ where owner is the user ID or "anon".
type Storage struct {
	root   string
	logger *slog.Logger
}

func NewStorage(root string, logger *slog.Logger) *Storage {
	return &Storage{root: root, logger: logger}
}

// Root returns the media root directory.
func (s *Storage) Root() string { return s.root }

// ValidateExtension checks that filename carries an allowed video
// extension and returns it lowercased.
func ValidateExtension(filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if _, ok := allowedExtensions[ext]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedExtension, ext)
	}
	return ext, nil
}

func (s *Storage) ownerDir(userID *uuid.UUID) string {
	if userID == nil {
		return "anon"
	}
	return userID.String()
}

// OriginalPath is where an uploaded source video is stored.
func (s *Storage) OriginalPath(userID *uuid.UUID, filename string) string {
	return filepath.Join(s.root, "videos", s.ownerDir(userID), "original", filename)
}

// RawOutputPath is the intermediate mpeg4 output written by the encoder
// before transcoding.
func (s *Storage) RawOutputPath(userID *uuid.UUID, jobID uuid.UUID) string {
	return filepath.Join(s.root, "videos", s.ownerDir(userID), "processed", fmt.Sprintf("processed_raw_%s.mp4", jobID))
}

// ProcessedPath is the final H.264 output for a job.
func (s *Storage) ProcessedPath(userID *uuid.UUID, jobID uuid.UUID) string {
	return filepath.Join(s.root, "videos", s.ownerDir(userID), "processed", fmt.Sprintf("processed_%s.mp4", jobID))
}

// PreviewPath is the periodic JPEG snapshot written during processing.
func (s *Storage) PreviewPath(userID *uuid.UUID, jobID uuid.UUID) string {
	return filepath.Join(s.root, "videos", s.ownerDir(userID), "preview", fmt.Sprintf("preview_%s.jpg", jobID))
}

// SaveUpload streams an uploaded video to its original location. The
// stored filename is prefixed with the job ID so concurrent uploads of
// the same file name cannot collide.
func (s *Storage) SaveUpload(userID *uuid.UUID, jobID uuid.UUID, filename string, r io.Reader) (string, error) {
	ext, err := ValidateExtension(filename)
	if err != nil {
		return "", err
	}

	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	dest := s.OriginalPath(userID, fmt.Sprintf("%s_%s%s", jobID, base, ext))

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("creating upload directory: %w", err)
	}

	out, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("creating upload file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, r); err != nil {
		os.Remove(dest)
		return "", fmt.Errorf("writing upload: %w", err)
	}
	return dest, nil
}

// CopySample copies a bundled sample video into the owner's original
// directory so processing never touches the shared source file.
func (s *Storage) CopySample(userID *uuid.UUID, jobID uuid.UUID, samplePath string) (string, error) {
	src, err := os.Open(samplePath)
	if err != nil {
		return "", fmt.Errorf("opening sample video: %w", err)
	}
	defer src.Close()

	dest := s.OriginalPath(userID, fmt.Sprintf("%s_%s", jobID, filepath.Base(samplePath)))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("creating upload directory: %w", err)
	}

	out, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("creating sample copy: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, src); err != nil {
		os.Remove(dest)
		return "", fmt.Errorf("copying sample video: %w", err)
	}
	return dest, nil
}

// Remove deletes path if it exists and reports whether a file was
// removed. Failures are logged, never returned; file cleanup is always
// best-effort.
func (s *Storage) Remove(path string) bool {
	if path == "" {
		return false
	}
	if err := os.Remove(path); err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("failed to remove media file", "path", path, "error", err)
		}
		return false
	}
	return true
}

// RemoveJobFiles deletes every file associated with a job: the original
// upload, the processed output (raw or final) and the preview snapshot.
func (s *Storage) RemoveJobFiles(job *models.Job) {
	s.Remove(job.SourcePath)
	if job.OutputPath != nil {
		s.Remove(*job.OutputPath)
	}
	s.Remove(s.RawOutputPath(job.UserID, job.ID))
	s.Remove(s.ProcessedPath(job.UserID, job.ID))
	s.Remove(s.PreviewPath(job.UserID, job.ID))
}
