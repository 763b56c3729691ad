package binning

import (
	"fmt"

	"github.com/san-kum/binsim/internal/texture"
)

// Dispatch runs kernel over [0, n), possibly split into parallel chunks.
// Kernels must only touch data that is safe for concurrent access.
type Dispatch func(n int, kernel func(start, end int))

// Serial runs the whole range on the calling goroutine.
func Serial(n int, kernel func(start, end int)) { kernel(0, n) }

// Builder owns the bin array and the intermediate target it is built
// through.
type Builder struct {
	grid   Grid
	target *texture.Target2D
	bins   *texture.TextureArray
}

// NewBuilder allocates an empty bin array for grid.
func NewBuilder(grid Grid) (*Builder, error) {
	if err := grid.Validate(); err != nil {
		return nil, err
	}
	target, err := texture.NewTarget2D(grid.Columns, grid.Rows)
	if err != nil {
		return nil, err
	}
	bins, err := texture.NewTextureArray(grid.Columns, grid.Rows, Capacity)
	if err != nil {
		return nil, err
	}
	return &Builder{grid: grid, target: target, bins: bins}, nil
}

// Grid is the layout the builder bins into.
func (b *Builder) Grid() Grid { return b.grid }

// Bins is the array written by the last completed passes.
func (b *Builder) Bins() *texture.TextureArray { return b.bins }

// Pass fills layer k of the bin array.
//
// Every particle is rasterized as one fragment at its bin. For k > 0 a
// fragment survives only if layer k-1 of that bin is occupied and holds a
// smaller id; the surviving fragments resolve with a less-than test so the
// smallest id wins. Layer k therefore ends up with the (k+1)-th smallest id
// in the bin, or Empty. Layers below k must already be built.
func (b *Builder) Pass(k int, state *texture.Texture2D, dispatch Dispatch) error {
	if k < 0 || k >= Capacity {
		return fmt.Errorf("%w: %d", ErrPassOutOfRange, k)
	}
	if dispatch == nil {
		dispatch = Serial
	}

	b.target.Clear()
	dispatch(state.Len(), func(start, end int) {
		for id := start; id < end; id++ {
			p := state.Load(id)
			bx, by, ok := b.grid.BinCoords(p.Position)
			if !ok {
				continue
			}
			enc := Encode(id)
			if k > 0 {
				prev := b.bins.At(bx, by, k-1)
				if prev == Empty || enc <= prev {
					continue
				}
			}
			b.target.WriteMin(bx, by, enc)
		}
	})

	return b.bins.CopyLayer(k, b.target)
}

// Build runs every pass in order.
func (b *Builder) Build(state *texture.Texture2D, dispatch Dispatch) error {
	for k := 0; k < Capacity; k++ {
		if err := b.Pass(k, state, dispatch); err != nil {
			return err
		}
	}
	return nil
}

// Occupants returns the slot values of one bin, layer order.
func (b *Builder) Occupants(x, y int) [Capacity]uint32 {
	return Occupants(b.bins, x, y)
}

// Occupants reads the slot values of bin (x, y) from a bin array.
func Occupants(bins *texture.TextureArray, x, y int) [Capacity]uint32 {
	var out [Capacity]uint32
	for k := range out {
		out[k] = bins.At(x, y, k)
	}
	return out
}
