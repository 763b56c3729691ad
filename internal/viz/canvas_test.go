package viz

import (
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

func TestCanvasSetAndUnset(t *testing.T) {
	c := NewCanvas(4, 2)
	w, h := c.DotSize()
	assert.Equal(t, 8, w)
	assert.Equal(t, 8, h)

	c.Set(3, 5)
	assert.True(t, c.IsSet(3, 5))
	assert.False(t, c.IsSet(2, 5))
	c.Unset(3, 5)
	assert.False(t, c.IsSet(3, 5))

	// out of range is ignored
	c.Set(-1, 0)
	c.Set(8, 0)
	assert.False(t, c.IsSet(8, 0))
}

func TestCanvasBrailleBits(t *testing.T) {
	c := NewCanvas(1, 1)
	c.Set(0, 0)
	c.Set(1, 3)
	assert.Equal(t, string(rune(brailleBase|0x1|0x80))+"\n", c.String())
}

func TestCanvasPlotOrientation(t *testing.T) {
	c := NewCanvas(10, 5)
	c.Plot(mgl32.Vec2{-0.99, 0.99})
	assert.True(t, c.IsSet(0, 0), "top left")

	c.Clear()
	c.Plot(mgl32.Vec2{0.99, -0.99})
	w, h := c.DotSize()
	assert.True(t, c.IsSet(w-1, h-1), "bottom right")

	c.Clear()
	c.Plot(mgl32.Vec2{-1000, -1000})
	assert.Equal(t, strings.Repeat(string(rune(brailleBase)), 10), strings.Split(c.String(), "\n")[4])
}

func TestCanvasFrame(t *testing.T) {
	c := NewCanvas(5, 3)
	c.Frame()
	w, h := c.DotSize()
	for x := 0; x < w; x++ {
		assert.True(t, c.IsSet(x, 0))
		assert.True(t, c.IsSet(x, h-1))
	}
	for y := 0; y < h; y++ {
		assert.True(t, c.IsSet(0, y))
		assert.True(t, c.IsSet(w-1, y))
	}
	assert.False(t, c.IsSet(w/2, h/2))
}

func TestSparklineChart(t *testing.T) {
	assert.Equal(t, "───", SparklineChart(nil, 3))
	assert.Equal(t, "▁█", SparklineChart([]float64{5, 1, 9}, 2))
	assert.Equal(t, "▁▁▁", SparklineChart([]float64{2, 2, 2}, 3))
}

func TestNextThemeCycles(t *testing.T) {
	defer SetTheme(ThemeCyberpunk.Name)
	SetTheme(ThemeCyberpunk.Name)
	for range Themes {
		NextTheme()
	}
	assert.Equal(t, ThemeCyberpunk.Name, CurrentTheme.Name)
	assert.Equal(t, ThemeCyberpunk, GetTheme("missing"))
}
