package models

import (
	"image"
	"image/color"
)

// Frame is a single decoded video frame as a packed RGB24 buffer, the pixel
// format the ffmpeg pipes produce and consume. It implements draw.Image so
// the annotator and the preview encoder can work on it directly.
type Frame struct {
	Width  int
	Height int
	Pix    []byte // len == Width*Height*3, row-major RGB
}

// NewFrame allocates a zeroed frame of the given dimensions.
func NewFrame(width, height int) *Frame {
	return &Frame{Width: width, Height: height, Pix: make([]byte, width*height*3)}
}

func (f *Frame) ColorModel() color.Model { return color.RGBAModel }

func (f *Frame) Bounds() image.Rectangle { return image.Rect(0, 0, f.Width, f.Height) }

func (f *Frame) At(x, y int) color.Color {
	if x < 0 || y < 0 || x >= f.Width || y >= f.Height {
		return color.RGBA{}
	}
	i := (y*f.Width + x) * 3
	return color.RGBA{R: f.Pix[i], G: f.Pix[i+1], B: f.Pix[i+2], A: 0xff}
}

func (f *Frame) Set(x, y int, c color.Color) {
	if x < 0 || y < 0 || x >= f.Width || y >= f.Height {
		return
	}
	r, g, b, _ := c.RGBA()
	i := (y*f.Width + x) * 3
	f.Pix[i] = uint8(r >> 8)
	f.Pix[i+1] = uint8(g >> 8)
	f.Pix[i+2] = uint8(b >> 8)
}
