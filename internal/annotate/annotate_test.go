package annotate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gmanfredi/framewatch/internal/detect"
	"github.com/gmanfredi/framewatch/pkg/models"
)

func testClasses() (*detect.ClassTable, detect.ColorMap) {
	names := []string{"hotspot", "defect"}
	return detect.NewClassTable(names), detect.BuildColorMap(names)
}

func TestAnnotate_ReturnsDetectionRecords(t *testing.T) {
	classes, colors := testClasses()
	frame := models.NewFrame(640, 480)

	boxes := []models.RawBox{
		{X1: 100, Y1: 100, X2: 200, Y2: 200, Confidence: 0.92, ClassID: 0},
		{X1: 300, Y1: 50, X2: 400, Y2: 150, Confidence: 0.71, ClassID: 1},
	}

	detections := Annotate(frame, boxes, 42, classes, colors)
	require.Len(t, detections, 2)

	assert.Equal(t, 42, detections[0].FrameIndex)
	assert.Equal(t, "hotspot", detections[0].Class)
	assert.InDelta(t, 0.92, detections[0].Confidence, 1e-9)
	assert.Equal(t, 100.0, detections[0].X1)
	assert.Equal(t, 200.0, detections[0].Y2)
	assert.Equal(t, "defect", detections[1].Class)
}

func TestAnnotate_DrawsBoxOutline(t *testing.T) {
	classes, colors := testClasses()
	frame := models.NewFrame(640, 480)

	Annotate(frame, []models.RawBox{
		{X1: 100, Y1: 100, X2: 200, Y2: 200, Confidence: 0.9, ClassID: 0},
	}, 0, classes, colors)

	want := colors.Lookup("hotspot")
	r, g, b, _ := frame.At(150, 100).RGBA()
	assert.Equal(t, uint32(want.R)*0x101, r, "top border painted")
	assert.Equal(t, uint32(want.G)*0x101, g)
	assert.Equal(t, uint32(want.B)*0x101, b)

	// Center of the box stays untouched.
	r, g, b, _ = frame.At(150, 150).RGBA()
	assert.Zero(t, r)
	assert.Zero(t, g)
	assert.Zero(t, b)
}

func TestAnnotate_ClampsOutOfBoundsBoxes(t *testing.T) {
	classes, colors := testClasses()
	frame := models.NewFrame(320, 240)

	assert.NotPanics(t, func() {
		Annotate(frame, []models.RawBox{
			{X1: -50, Y1: -20, X2: 500, Y2: 400, Confidence: 0.5, ClassID: 0},
		}, 0, classes, colors)
	})
}

func TestAnnotate_EmptyBoxes(t *testing.T) {
	classes, colors := testClasses()
	frame := models.NewFrame(320, 240)

	assert.Nil(t, Annotate(frame, nil, 0, classes, colors))
}

func TestAnnotate_UnknownClassUsesStringifiedID(t *testing.T) {
	classes, colors := testClasses()
	frame := models.NewFrame(320, 240)

	detections := Annotate(frame, []models.RawBox{
		{X1: 10, Y1: 30, X2: 60, Y2: 80, Confidence: 0.6, ClassID: 9},
	}, 3, classes, colors)

	require.Len(t, detections, 1)
	assert.Equal(t, "9", detections[0].Class)
}

func TestLineThickness(t *testing.T) {
	assert.Equal(t, 2, lineThickness(320, 240), "small frames keep the minimum")
	assert.Equal(t, 6, lineThickness(1920, 1080))
	assert.Equal(t, 12, lineThickness(3840, 2160))
}
