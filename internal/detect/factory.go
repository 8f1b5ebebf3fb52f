package detect

import (
	"fmt"

	"github.com/gmanfredi/framewatch/internal/config"
	"github.com/gmanfredi/framewatch/internal/detect/mock"
	"github.com/gmanfredi/framewatch/internal/detect/sidecar"
	"github.com/gmanfredi/framewatch/pkg/models"
)

// NewDetector constructs the appropriate detector provider based on config.
// Called once per worker process, inside the handle's first Get.
func NewDetector(cfg config.DetectConfig) (models.Detector, error) {
	switch cfg.Provider {
	case "sidecar":
		return sidecar.NewProvider(cfg.BaseURL, cfg.ModelPath, cfg.Timeout), nil
	case "mock":
		return mock.NewMockProvider(), nil
	default:
		return nil, fmt.Errorf("unknown detector provider %q: must be one of sidecar, mock", cfg.Provider)
	}
}
