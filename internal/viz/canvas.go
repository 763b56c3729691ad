package viz

import (
	"math"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
)

const brailleBase = 0x2800

// Braille dots per cell:
//
//	1 4
//	2 5
//	3 6
//	7 8
var pixelMap = [4][2]rune{
	{0x1, 0x8},
	{0x2, 0x10},
	{0x4, 0x20},
	{0x40, 0x80},
}

// Canvas is a braille grid of Width x Height cells, addressed in dots:
// (Width*2) x (Height*4).
type Canvas struct {
	Width, Height int
	cells         []rune
}

func NewCanvas(w, h int) *Canvas {
	w, h = max(w, 1), max(h, 1)
	c := &Canvas{Width: w, Height: h, cells: make([]rune, w*h)}
	c.Clear()
	return c
}

// DotSize is the canvas resolution in dots.
func (c *Canvas) DotSize() (w, h int) {
	return c.Width * 2, c.Height * 4
}

func (c *Canvas) cell(x, y int) (*rune, rune, bool) {
	if x < 0 || y < 0 {
		return nil, 0, false
	}
	col, row := x/2, y/4
	if col >= c.Width || row >= c.Height {
		return nil, 0, false
	}
	return &c.cells[row*c.Width+col], pixelMap[y%4][x%2], true
}

func (c *Canvas) Set(x, y int) {
	if r, bit, ok := c.cell(x, y); ok {
		*r |= bit
	}
}

func (c *Canvas) Unset(x, y int) {
	if r, bit, ok := c.cell(x, y); ok {
		*r &^= bit
	}
}

func (c *Canvas) IsSet(x, y int) bool {
	r, bit, ok := c.cell(x, y)
	return ok && *r&bit != 0
}

func (c *Canvas) Clear() {
	for i := range c.cells {
		c.cells[i] = brailleBase
	}
}

// Plot sets the dot under a domain position in [-1,1]^2, y up.
func (c *Canvas) Plot(p mgl32.Vec2) {
	w, h := c.DotSize()
	x := (p.X()*0.5 + 0.5) * float32(w)
	y := (0.5 - p.Y()*0.5) * float32(h)
	if x < 0 || y < 0 {
		return
	}
	c.Set(int(x), int(y))
}

// Circle outlines a domain-space circle.
func (c *Canvas) Circle(center mgl32.Vec2, radius float32) {
	w, h := c.DotSize()
	steps := max(16, int(radius*float32(w+h)*2))
	for i := 0; i < steps; i++ {
		a := 2 * math.Pi * float64(i) / float64(steps)
		p := center.Add(mgl32.Vec2{
			radius * float32(math.Cos(a)),
			radius * float32(math.Sin(a)),
		})
		c.Plot(p)
	}
}

// DrawLine draws a line using Bresenham's algorithm.
func (c *Canvas) DrawLine(x0, y0, x1, y1 int) {
	dx := absInt(x1 - x0)
	dy := absInt(y1 - y0)
	sx := -1
	if x0 < x1 {
		sx = 1
	}
	sy := -1
	if y0 < y1 {
		sy = 1
	}
	err := dx - dy

	for {
		c.Set(x0, y0)
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x0 += sx
		}
		if e2 < dx {
			err += dx
			y0 += sy
		}
	}
}

// Frame draws the border of the domain.
func (c *Canvas) Frame() {
	w, h := c.DotSize()
	c.DrawLine(0, 0, w-1, 0)
	c.DrawLine(0, h-1, w-1, h-1)
	c.DrawLine(0, 0, 0, h-1)
	c.DrawLine(w-1, 0, w-1, h-1)
}

func (c *Canvas) String() string {
	var b strings.Builder
	b.Grow(c.Height * (c.Width*3 + 1))
	for row := 0; row < c.Height; row++ {
		b.WriteString(string(c.cells[row*c.Width : (row+1)*c.Width]))
		b.WriteByte('\n')
	}
	return b.String()
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
