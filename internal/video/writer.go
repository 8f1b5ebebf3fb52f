package video

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/gmanfredi/framewatch/pkg/models"
)

// ffmpegSink encodes rgb24 frames into a raw mpeg4 file over a stdin pipe.
type ffmpegSink struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	closed bool
}

func encodeArgs(path string, md Metadata) []string {
	return []string{
		"-y",
		"-v", "error",
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"-s", fmt.Sprintf("%dx%d", md.Width, md.Height),
		"-r", strconv.FormatFloat(md.FPS, 'f', -1, 64),
		"-i", "pipe:0",
		"-c:v", "mpeg4",
		path,
	}
}

// OpenSink starts an ffmpeg encode process writing the raw output video
// to path. The parent directory is created if needed.
func (f *FFmpeg) OpenSink(ctx context.Context, path string, md Metadata) (Sink, error) {
	if md.Width <= 0 || md.Height <= 0 {
		return nil, fmt.Errorf("%w: missing dimensions for %s", ErrWriterInit, path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWriterInit, err)
	}

	cmd := exec.CommandContext(ctx, f.ffmpegBin, encodeArgs(path, md)...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWriterInit, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: starting ffmpeg: %v", ErrWriterInit, err)
	}

	return &ffmpegSink{cmd: cmd, stdin: stdin}, nil
}

func (s *ffmpegSink) WriteFrame(frame *models.Frame) error {
	if _, err := s.stdin.Write(frame.Pix); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	return nil
}

// Close flushes the encoder and waits for the file to be finalized.
func (s *ffmpegSink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.stdin.Close(); err != nil {
		return fmt.Errorf("closing encoder input: %w", err)
	}
	if err := s.cmd.Wait(); err != nil {
		return fmt.Errorf("finalizing video: %w", err)
	}
	return nil
}
