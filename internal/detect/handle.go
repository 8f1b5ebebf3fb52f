package detect

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"

	"github.com/gmanfredi/framewatch/internal/config"
	"github.com/gmanfredi/framewatch/pkg/models"
)

// Model is the loaded detector plus everything derived from its metadata.
// Shared read-only across all jobs in a worker process; no job mutates it.
type Model struct {
	Detector models.Detector
	Device   string
	Classes  *ClassTable
	Colors   ColorMap
}

// Handle lazily loads and caches the detection model for the life of the
// worker process. Construct one per process and pass it by reference into
// the pipeline; it is safe for concurrent use.
type Handle struct {
	cfg config.DetectConfig

	mu    sync.Mutex
	model *Model

	// newDetector is swappable in tests.
	newDetector func(config.DetectConfig) (models.Detector, error)
}

// NewHandle creates an unloaded handle. The model is loaded on first Get.
func NewHandle(cfg config.DetectConfig) *Handle {
	return &Handle{cfg: cfg, newDetector: NewDetector}
}

// Get returns the cached model, loading it on the first call. Only a
// successful load is cached: after a failure the next Get retries, so a
// transient sidecar outage fails only the jobs that hit it instead of
// every job until the process restarts.
func (h *Handle) Get(ctx context.Context) (*Model, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.model != nil {
		return h.model, nil
	}
	model, err := h.load(ctx)
	if err != nil {
		return nil, err
	}
	h.model = model
	return model, nil
}

func (h *Handle) load(ctx context.Context) (*Model, error) {
	if h.cfg.ModelPath != "" {
		if _, err := os.Stat(h.cfg.ModelPath); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrModelNotFound, h.cfg.ModelPath)
		}
	}

	detector, err := h.newDetector(h.cfg)
	if err != nil {
		return nil, err
	}

	names, err := detector.ClassNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch class names: %w", err)
	}
	if len(names) == 0 {
		slog.Warn("model reports no class names; all detections will use the default color")
	}

	device := h.cfg.Device
	if device == "" {
		device = detectDevice()
	}

	slog.Info("detection model loaded",
		"provider", detector.Name(),
		"device", device,
		"classes", len(names),
	)

	return &Model{
		Detector: detector,
		Device:   device,
		Classes:  NewClassTable(names),
		Colors:   BuildColorMap(names),
	}, nil
}

// detectDevice autodetects GPU availability, defaulting to CPU.
func detectDevice() string {
	if _, err := exec.LookPath("nvidia-smi"); err == nil {
		return "cuda"
	}
	return "cpu"
}
