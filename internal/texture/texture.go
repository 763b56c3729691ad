// Package texture models the GPU-resident buffers the passes read and
// write: a float RGBA state texture, a single-channel unsigned render
// target and a layered unsigned array texture.
package texture

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/san-kum/binsim/internal/particle"
)

var (
	ErrDimensionMismatch = errors.New("texture: dimension mismatch")
	ErrEmpty             = errors.New("texture: width and height must be positive")
)

// Texture2D is an RGBA32F texture holding one particle per texel.
type Texture2D struct {
	Width, Height int
	Data          []float32
}

// NewTexture2D allocates a zeroed width x height texture.
func NewTexture2D(width, height int) (*Texture2D, error) {
	if width <= 0 || height <= 0 {
		return nil, ErrEmpty
	}
	return &Texture2D{
		Width:  width,
		Height: height,
		Data:   make([]float32, width*height*particle.Components),
	}, nil
}

// NewTexture2DFrom allocates a texture and uploads ps in id order.
func NewTexture2DFrom(width, height int, ps []particle.Particle) (*Texture2D, error) {
	t, err := NewTexture2D(width, height)
	if err != nil {
		return nil, err
	}
	if err := t.Upload(ps); err != nil {
		return nil, err
	}
	return t, nil
}

// Len is the number of texels, which is also the particle count.
func (t *Texture2D) Len() int { return t.Width * t.Height }

// Upload overwrites every texel. len(ps) must equal Len.
func (t *Texture2D) Upload(ps []particle.Particle) error {
	if len(ps) != t.Len() {
		return fmt.Errorf("%w: %d particles for %dx%d texture", ErrDimensionMismatch, len(ps), t.Width, t.Height)
	}
	for id, p := range ps {
		t.Store(id, p)
	}
	return nil
}

// Load reads the particle stored at id.
func (t *Texture2D) Load(id int) particle.Particle {
	o := id * particle.Components
	return particle.FromTexel([particle.Components]float32{t.Data[o], t.Data[o+1], t.Data[o+2], t.Data[o+3]})
}

// Store writes p at id.
func (t *Texture2D) Store(id int, p particle.Particle) {
	o := id * particle.Components
	texel := p.Texel()
	copy(t.Data[o:o+particle.Components], texel[:])
}

// Readback appends every particle in id order to dst.
func (t *Texture2D) Readback(dst []particle.Particle) []particle.Particle {
	for id := 0; id < t.Len(); id++ {
		dst = append(dst, t.Load(id))
	}
	return dst
}

// Target2D is an R32UI render target. Fragments resolve with a depth-less
// test: the smallest non-zero value written to a texel wins.
type Target2D struct {
	Width, Height int
	Data          []uint32
}

// NewTarget2D allocates a cleared width x height target.
func NewTarget2D(width, height int) (*Target2D, error) {
	if width <= 0 || height <= 0 {
		return nil, ErrEmpty
	}
	return &Target2D{Width: width, Height: height, Data: make([]uint32, width*height)}, nil
}

// Clear resets every texel to 0.
func (t *Target2D) Clear() {
	clear(t.Data)
}

// At returns the texel at (x, y).
func (t *Target2D) At(x, y int) uint32 {
	return atomic.LoadUint32(&t.Data[y*t.Width+x])
}

// WriteMin stores v at (x, y) if the texel is empty or holds a larger
// value. v must be non-zero. Safe for concurrent writers.
func (t *Target2D) WriteMin(x, y int, v uint32) {
	addr := &t.Data[y*t.Width+x]
	for {
		cur := atomic.LoadUint32(addr)
		if cur != 0 && cur <= v {
			return
		}
		if atomic.CompareAndSwapUint32(addr, cur, v) {
			return
		}
	}
}

// TextureArray is a layered R32UI texture of shape Width x Height x Layers.
type TextureArray struct {
	Width, Height, Layers int
	Data                  []uint32
}

// NewTextureArray allocates a cleared array with the given layer count.
func NewTextureArray(width, height, layers int) (*TextureArray, error) {
	if width <= 0 || height <= 0 || layers <= 0 {
		return nil, ErrEmpty
	}
	return &TextureArray{
		Width:  width,
		Height: height,
		Layers: layers,
		Data:   make([]uint32, width*height*layers),
	}, nil
}

// At fetches one texel. Coordinates outside the texture read as 0.
func (a *TextureArray) At(x, y, layer int) uint32 {
	if x < 0 || y < 0 || layer < 0 || x >= a.Width || y >= a.Height || layer >= a.Layers {
		return 0
	}
	return a.Data[(layer*a.Height+y)*a.Width+x]
}

// CopyLayer copies a render target into one layer, like a framebuffer to
// array-texture copy.
func (a *TextureArray) CopyLayer(layer int, src *Target2D) error {
	if layer < 0 || layer >= a.Layers {
		return fmt.Errorf("%w: layer %d of %d", ErrDimensionMismatch, layer, a.Layers)
	}
	if src.Width != a.Width || src.Height != a.Height {
		return fmt.Errorf("%w: target %dx%d, array %dx%d", ErrDimensionMismatch, src.Width, src.Height, a.Width, a.Height)
	}
	n := a.Width * a.Height
	copy(a.Data[layer*n:(layer+1)*n], src.Data)
	return nil
}

// Clear zeroes every layer.
func (a *TextureArray) Clear() {
	clear(a.Data)
}
