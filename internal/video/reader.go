package video

import (
	"context"
	"fmt"
	"io"
	"os/exec"

	"github.com/gmanfredi/framewatch/pkg/models"
)

// ffmpegSource decodes a video into rgb24 frames over a stdout pipe.
type ffmpegSource struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	width  int
	height int
	closed bool
}

func decodeArgs(path string) []string {
	return []string{
		"-v", "error",
		"-i", path,
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"pipe:1",
	}
}

// OpenSource starts an ffmpeg decode process for path. The stream's
// dimensions must come from a prior Probe so frame buffers are sized
// correctly.
func (f *FFmpeg) OpenSource(ctx context.Context, path string, md Metadata) (Source, error) {
	if md.Width <= 0 || md.Height <= 0 {
		return nil, fmt.Errorf("%w: missing dimensions for %s", ErrVideoOpen, path)
	}

	cmd := exec.CommandContext(ctx, f.ffmpegBin, decodeArgs(path)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVideoOpen, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: starting ffmpeg: %v", ErrVideoOpen, err)
	}

	return &ffmpegSource{
		cmd:    cmd,
		stdout: stdout,
		width:  md.Width,
		height: md.Height,
	}, nil
}

// ReadFrame reads the next full frame from the decoder. A clean end of
// stream returns io.EOF; a partial final read is treated the same way
// since ffmpeg only emits whole frames.
func (s *ffmpegSource) ReadFrame() (*models.Frame, error) {
	frame := models.NewFrame(s.width, s.height)
	_, err := io.ReadFull(s.stdout, frame.Pix)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, fmt.Errorf("reading frame: %w", err)
	}
	return frame, nil
}

// Close terminates the decoder. Wait errors are discarded because the
// reader may stop before consuming the full stream.
func (s *ffmpegSource) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.stdout.Close()
	_ = s.cmd.Wait()
	return nil
}
