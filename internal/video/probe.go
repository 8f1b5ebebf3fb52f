package video

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"

	"github.com/gmanfredi/framewatch/internal/config"
)

// defaultFPS is used when the container reports no usable frame rate.
const defaultFPS = 25.0

// FFmpeg implements IO by shelling out to ffmpeg and ffprobe.
type FFmpeg struct {
	ffmpegBin  string
	ffprobeBin string
	logger     *slog.Logger
}

// NewFFmpeg creates the video layer from the configured binary paths.
func NewFFmpeg(cfg config.FFmpegConfig, logger *slog.Logger) *FFmpeg {
	return &FFmpeg{
		ffmpegBin:  cfg.FFmpegBin,
		ffprobeBin: cfg.FFprobeBin,
		logger:     logger,
	}
}

type probeOutput struct {
	Streams []probeStream `json:"streams"`
}

type probeStream struct {
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	RFrameRate string `json:"r_frame_rate"`
	NbFrames   string `json:"nb_frames"`
}

func probeArgs(path string) []string {
	return []string{
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,r_frame_rate,nb_frames",
		"-of", "json",
		path,
	}
}

// Probe reads stream metadata from the first video stream of path.
func (f *FFmpeg) Probe(ctx context.Context, path string) (Metadata, error) {
	cmd := exec.CommandContext(ctx, f.ffprobeBin, probeArgs(path)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return Metadata{}, fmt.Errorf("%w: ffprobe %s: %v: %s", ErrVideoOpen, path, err, strings.TrimSpace(stderr.String()))
	}

	md, err := parseProbeOutput(stdout.Bytes())
	if err != nil {
		return Metadata{}, fmt.Errorf("%w: %s: %v", ErrVideoOpen, path, err)
	}
	return md, nil
}

func parseProbeOutput(data []byte) (Metadata, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return Metadata{}, fmt.Errorf("parsing ffprobe output: %w", err)
	}
	if len(out.Streams) == 0 {
		return Metadata{}, fmt.Errorf("no video stream found")
	}

	s := out.Streams[0]
	if s.Width <= 0 || s.Height <= 0 {
		return Metadata{}, fmt.Errorf("invalid dimensions %dx%d", s.Width, s.Height)
	}

	return Metadata{
		Width:       s.Width,
		Height:      s.Height,
		FPS:         parseFrameRate(s.RFrameRate),
		TotalFrames: parseFrameCount(s.NbFrames),
	}, nil
}

// parseFrameRate handles ffprobe's rational frame rates ("30000/1001").
// Unparseable or zero rates fall back to defaultFPS.
func parseFrameRate(raw string) float64 {
	num, den := raw, "1"
	if i := strings.IndexByte(raw, '/'); i >= 0 {
		num, den = raw[:i], raw[i+1:]
	}

	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return defaultFPS
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return defaultFPS
	}

	fps := n / d
	if fps <= 0 {
		return defaultFPS
	}
	return fps
}

// parseFrameCount returns 0 when nb_frames is missing or "N/A", which some
// containers report for streamed input.
func parseFrameCount(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
