package video

import (
	"bytes"
	"context"
	"image/jpeg"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/gmanfredi/framewatch/pkg/models"
)

const previewJPEGQuality = 85

func reencodeArgs(rawPath, finalPath string) []string {
	return []string{
		"-y",
		"-i", rawPath,
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-crf", "23",
		"-c:a", "copy",
		finalPath,
	}
}

// Reencode converts the raw mpeg4 output to browser-friendly H.264. On
// success the raw file is removed and finalPath is returned. When ffmpeg
// is missing or the transcode fails the raw file is kept and returned
// instead, so a processed video always survives.
func (f *FFmpeg) Reencode(ctx context.Context, rawPath, finalPath string) (string, bool) {
	if _, err := exec.LookPath(f.ffmpegBin); err != nil {
		f.logger.Warn("ffmpeg not found, keeping raw output",
			"error", ErrToolNotFound, "raw_path", rawPath)
		return rawPath, true
	}

	cmd := exec.CommandContext(ctx, f.ffmpegBin, reencodeArgs(rawPath, finalPath)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		f.logger.Warn("transcode failed, keeping raw output",
			"error", ErrTranscode, "detail", strings.TrimSpace(stderr.String()), "raw_path", rawPath)
		return rawPath, true
	}

	if err := os.Remove(rawPath); err != nil {
		f.logger.Warn("failed to remove raw video", "path", rawPath, "error", err)
	}
	return finalPath, false
}

// WritePreview saves frame as a JPEG snapshot at path.
func (f *FFmpeg) WritePreview(path string, frame *models.Frame) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer out.Close()

	return jpeg.Encode(out, frame, &jpeg.Options{Quality: previewJPEGQuality})
}

// Compile-time check that FFmpeg implements IO.
var _ IO = (*FFmpeg)(nil)
