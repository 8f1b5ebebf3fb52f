// Package video wraps ffmpeg/ffprobe subprocesses for decoding, encoding and
// re-encoding. Frames cross the process boundary as rawvideo rgb24 pipes.
package video

import (
	"context"
	"errors"

	"github.com/gmanfredi/framewatch/pkg/models"
)

// Sentinel errors for video I/O failures.
var (
	ErrVideoOpen    = errors.New("cannot open video")
	ErrEmptyVideo   = errors.New("no readable frames in video")
	ErrWriterInit   = errors.New("video writer initialization failed")
	ErrToolNotFound = errors.New("transcoding tool not found")
	ErrTranscode    = errors.New("transcoding failed")
)

// Metadata describes a probed video stream.
type Metadata struct {
	Width       int
	Height      int
	FPS         float64
	TotalFrames int // 0 when the container does not report a frame count
}

// Source yields decoded frames in order.
type Source interface {
	// ReadFrame returns the next frame, or io.EOF when the stream ends.
	ReadFrame() (*models.Frame, error)
	Close() error
}

// Sink consumes annotated frames and writes the raw output video.
type Sink interface {
	WriteFrame(frame *models.Frame) error
	Close() error
}

// IO is the pipeline's view of the video layer.
type IO interface {
	Probe(ctx context.Context, path string) (Metadata, error)
	OpenSource(ctx context.Context, path string, md Metadata) (Source, error)
	OpenSink(ctx context.Context, path string, md Metadata) (Sink, error)
	// Reencode converts the raw output to H.264 at finalPath and deletes the
	// raw file. On any transcoding failure it falls back to the raw file:
	// the returned path is then rawPath and usedFallback is true. Errors are
	// handled locally and never propagate.
	Reencode(ctx context.Context, rawPath, finalPath string) (path string, usedFallback bool)
	// WritePreview saves one frame as a JPEG snapshot.
	WritePreview(path string, frame *models.Frame) error
}
