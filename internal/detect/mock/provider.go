package mock

import (
	"context"

	"github.com/gmanfredi/framewatch/pkg/models"
)

// MockProvider satisfies models.Detector for testing.
type MockProvider struct {
	Name_          string
	DetectFunc     func(ctx context.Context, frame *models.Frame, opts models.DetectOptions) ([]models.RawBox, error)
	ClassNamesFunc func(ctx context.Context) ([]string, error)
}

func (m *MockProvider) Name() string { return m.Name_ }

func (m *MockProvider) Detect(ctx context.Context, frame *models.Frame, opts models.DetectOptions) ([]models.RawBox, error) {
	if m.DetectFunc != nil {
		return m.DetectFunc(ctx, frame, opts)
	}
	return nil, nil
}

func (m *MockProvider) ClassNames(ctx context.Context) ([]string, error) {
	if m.ClassNamesFunc != nil {
		return m.ClassNamesFunc(ctx)
	}
	return nil, nil
}

// NewMockProvider returns a MockProvider with sensible default responses:
// two known classes and one centered box per frame.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock",
		ClassNamesFunc: func(_ context.Context) ([]string, error) {
			return []string{"hotspot", "defect"}, nil
		},
		DetectFunc: func(_ context.Context, frame *models.Frame, opts models.DetectOptions) ([]models.RawBox, error) {
			w, h := float64(frame.Width), float64(frame.Height)
			return []models.RawBox{{
				X1: w / 4, Y1: h / 4, X2: 3 * w / 4, Y2: 3 * h / 4,
				Confidence: 0.9, ClassID: 0,
			}}, nil
		},
	}
}

// NewFailingProvider returns a MockProvider whose Detect always returns err.
func NewFailingProvider(err error) *MockProvider {
	return &MockProvider{
		Name_: "mock-failing",
		ClassNamesFunc: func(_ context.Context) ([]string, error) {
			return []string{"hotspot"}, nil
		},
		DetectFunc: func(_ context.Context, _ *models.Frame, _ models.DetectOptions) ([]models.RawBox, error) {
			return nil, err
		},
	}
}

// Compile-time check that MockProvider implements Detector.
var _ models.Detector = (*MockProvider)(nil)
