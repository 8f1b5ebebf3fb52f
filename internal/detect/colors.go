package detect

import "image/color"

// palette is the fixed 6-color cycle assigned to classes in index order.
var palette = []color.RGBA{
	{0, 255, 0, 255},   // green
	{0, 0, 255, 255},   // blue
	{255, 0, 0, 255},   // red
	{255, 255, 0, 255}, // yellow
	{255, 0, 255, 255}, // magenta
	{0, 255, 255, 255}, // cyan
}

// DefaultColor is used for classes missing from the map (including the
// empty-metadata fallback).
var DefaultColor = color.RGBA{0, 255, 0, 255}

// ColorMap is the deterministic class-label→color assignment derived once
// from the model's ordered class list. Read-only after construction.
type ColorMap map[string]color.RGBA

// BuildColorMap assigns each class a palette color by its index, cycling
// when there are more classes than colors.
func BuildColorMap(classNames []string) ColorMap {
	m := make(ColorMap, len(classNames))
	for i, name := range classNames {
		m[name] = palette[i%len(palette)]
	}
	return m
}

// Lookup returns the color for a class, or DefaultColor when unmapped.
func (m ColorMap) Lookup(class string) color.RGBA {
	if c, ok := m[class]; ok {
		return c
	}
	return DefaultColor
}
