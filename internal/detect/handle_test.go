package detect

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/gmanfredi/framewatch/internal/config"
	"github.com/gmanfredi/framewatch/internal/detect/mock"
	"github.com/gmanfredi/framewatch/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tempModelFile creates an empty weights file and returns its path.
func tempModelFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "best.pt")
	require.NoError(t, os.WriteFile(path, []byte("weights"), 0o644))
	return path
}

func newTestHandle(cfg config.DetectConfig, provider models.Detector) *Handle {
	h := NewHandle(cfg)
	h.newDetector = func(_ config.DetectConfig) (models.Detector, error) {
		return provider, nil
	}
	return h
}

func TestHandle_Get_LoadsOnce(t *testing.T) {
	loads := 0
	provider := &mock.MockProvider{
		Name_: "mock",
		ClassNamesFunc: func(_ context.Context) ([]string, error) {
			loads++
			return []string{"hotspot", "defect"}, nil
		},
	}
	h := newTestHandle(config.DetectConfig{ModelPath: tempModelFile(t), Device: "cpu"}, provider)

	first, err := h.Get(context.Background())
	require.NoError(t, err)
	second, err := h.Get(context.Background())
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, loads, "class names fetched once per process")
}

func TestHandle_Get_MissingModelPath(t *testing.T) {
	h := newTestHandle(config.DetectConfig{
		ModelPath: "/nonexistent/best.pt",
		Device:    "cpu",
	}, mock.NewMockProvider())

	_, err := h.Get(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrModelNotFound)

	// Still failing on retry while the path is missing.
	_, err2 := h.Get(context.Background())
	assert.ErrorIs(t, err2, ErrModelNotFound)
}

func TestHandle_Get_TransientFailureRetried(t *testing.T) {
	attempts := 0
	h := NewHandle(config.DetectConfig{ModelPath: tempModelFile(t), Device: "cpu"})
	h.newDetector = func(_ config.DetectConfig) (models.Detector, error) {
		attempts++
		if attempts == 1 {
			return nil, errors.New("sidecar unreachable")
		}
		return mock.NewMockProvider(), nil
	}

	_, err := h.Get(context.Background())
	require.EqualError(t, err, "sidecar unreachable")

	model, err := h.Get(context.Background())
	require.NoError(t, err, "a transient load failure is not cached")
	assert.NotNil(t, model)
	assert.Equal(t, 2, attempts)

	again, err := h.Get(context.Background())
	require.NoError(t, err)
	assert.Same(t, model, again, "the successful load is cached")
	assert.Equal(t, 2, attempts)
}

func TestHandle_Get_ExplicitDeviceWins(t *testing.T) {
	h := newTestHandle(config.DetectConfig{ModelPath: tempModelFile(t), Device: "cuda"}, mock.NewMockProvider())

	model, err := h.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cuda", model.Device)
}

func TestHandle_Get_BuildsClassTableAndColors(t *testing.T) {
	h := newTestHandle(config.DetectConfig{ModelPath: tempModelFile(t), Device: "cpu"}, mock.NewMockProvider())

	model, err := h.Get(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "hotspot", model.Classes.Lookup(0))
	assert.Equal(t, "defect", model.Classes.Lookup(1))
	assert.NotEqual(t, model.Colors.Lookup("hotspot"), model.Colors.Lookup("defect"))
}

func TestHandle_Get_EmptyClassListNonFatal(t *testing.T) {
	provider := &mock.MockProvider{
		Name_: "mock",
		ClassNamesFunc: func(_ context.Context) ([]string, error) {
			return nil, nil
		},
	}
	h := newTestHandle(config.DetectConfig{ModelPath: tempModelFile(t), Device: "cpu"}, provider)

	model, err := h.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, model.Classes.Len())
	assert.Equal(t, DefaultColor, model.Colors.Lookup("anything"))
}
