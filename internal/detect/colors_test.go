package detect

import (
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildColorMap_Deterministic(t *testing.T) {
	names := []string{"person", "car", "bicycle"}

	a := BuildColorMap(names)
	b := BuildColorMap(names)

	for _, n := range names {
		assert.Equal(t, a.Lookup(n), b.Lookup(n), "class %s", n)
	}
}

func TestBuildColorMap_FollowsIndexOrder(t *testing.T) {
	m := BuildColorMap([]string{"a", "b", "c"})

	assert.Equal(t, palette[0], m.Lookup("a"))
	assert.Equal(t, palette[1], m.Lookup("b"))
	assert.Equal(t, palette[2], m.Lookup("c"))
}

func TestBuildColorMap_CyclesPalette(t *testing.T) {
	names := []string{"c0", "c1", "c2", "c3", "c4", "c5", "c6", "c7"}
	m := BuildColorMap(names)

	// The seventh class wraps back to the first palette color.
	assert.Equal(t, m.Lookup("c0"), m.Lookup("c6"))
	assert.Equal(t, m.Lookup("c1"), m.Lookup("c7"))
	assert.NotEqual(t, m.Lookup("c0"), m.Lookup("c1"))
}

func TestColorMap_UnknownClassFallsBackToDefault(t *testing.T) {
	m := BuildColorMap([]string{"known"})

	assert.Equal(t, DefaultColor, m.Lookup("unknown"))
}

func TestBuildColorMap_EmptyClassList(t *testing.T) {
	m := BuildColorMap(nil)

	assert.Empty(t, m)
	assert.Equal(t, color.RGBA{0, 255, 0, 255}, m.Lookup("anything"))
}
