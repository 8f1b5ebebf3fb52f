// Package annotate draws detection boxes and labels onto decoded frames.
package annotate

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/gmanfredi/framewatch/internal/detect"
	"github.com/gmanfredi/framewatch/pkg/models"
)

var (
	labelFace  = basicfont.Face7x13
	labelColor = color.RGBA{0, 0, 0, 255}
)

// Annotate draws every box onto frame and returns the corresponding
// detection records for frameIndex. Box coordinates are clamped to the
// frame bounds before drawing.
func Annotate(frame *models.Frame, boxes []models.RawBox, frameIndex int, classes *detect.ClassTable, colors detect.ColorMap) []models.Detection {
	if len(boxes) == 0 {
		return nil
	}

	thickness := lineThickness(frame.Width, frame.Height)
	detections := make([]models.Detection, 0, len(boxes))

	for _, box := range boxes {
		class := classes.Lookup(box.ClassID)
		col := colors.Lookup(class)

		x1 := clamp(int(math.Round(box.X1)), 0, frame.Width-1)
		y1 := clamp(int(math.Round(box.Y1)), 0, frame.Height-1)
		x2 := clamp(int(math.Round(box.X2)), 0, frame.Width-1)
		y2 := clamp(int(math.Round(box.Y2)), 0, frame.Height-1)

		drawRect(frame, x1, y1, x2, y2, thickness, col)
		drawLabel(frame, x1, y1, fmt.Sprintf("%s %.2f", class, box.Confidence), col)

		detections = append(detections, models.Detection{
			FrameIndex: frameIndex,
			Class:      class,
			Confidence: box.Confidence,
			X1:         box.X1,
			Y1:         box.Y1,
			X2:         box.X2,
			Y2:         box.Y2,
		})
	}

	return detections
}

// lineThickness scales the box outline with the frame size, never
// thinner than 2 pixels.
func lineThickness(width, height int) int {
	t := int(math.Round(0.002 * float64(width+height)))
	if t < 2 {
		return 2
	}
	return t
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// drawRect draws an outlined rectangle with the given border thickness.
func drawRect(frame *models.Frame, x1, y1, x2, y2, thickness int, col color.RGBA) {
	fillRect(frame, x1, y1, x2, y1+thickness-1, col) // top
	fillRect(frame, x1, y2-thickness+1, x2, y2, col) // bottom
	fillRect(frame, x1, y1, x1+thickness-1, y2, col) // left
	fillRect(frame, x2-thickness+1, y1, x2, y2, col) // right
}

func fillRect(frame *models.Frame, x1, y1, x2, y2 int, col color.RGBA) {
	x1 = clamp(x1, 0, frame.Width-1)
	x2 = clamp(x2, 0, frame.Width-1)
	y1 = clamp(y1, 0, frame.Height-1)
	y2 = clamp(y2, 0, frame.Height-1)
	for y := y1; y <= y2; y++ {
		for x := x1; x <= x2; x++ {
			frame.Set(x, y, col)
		}
	}
}

// drawLabel paints a filled background strip just above the box top-left
// corner and renders the label text in black on top of it.
func drawLabel(frame *models.Frame, x1, y1 int, text string, bg color.RGBA) {
	textWidth := font.MeasureString(labelFace, text).Ceil()
	textHeight := labelFace.Metrics().Height.Ceil()

	fillRect(frame, x1, y1-textHeight-8, x1+textWidth+6, y1, bg)

	drawer := &font.Drawer{
		Dst:  frame,
		Src:  image.NewUniform(labelColor),
		Face: labelFace,
		Dot:  fixed.P(x1+3, y1-4),
	}
	drawer.DrawString(text)
}
