// Package binning builds the uniform spatial partition the collision pass
// reads its neighbours from.
//
// The domain [-1,1]x[-1,1] is split into Columns x Rows bins. Each bin keeps
// up to Capacity occupant ids, stored 1-based in the layers of an R32UI
// array texture so that 0 can mean "empty". The array is rebuilt from
// scratch every tick by Capacity ordered passes; see [Builder.Pass].
package binning

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Capacity is the number of occupant slots per bin.
const Capacity = 4

// Empty is the slot value of a bin layer with no occupant.
const Empty uint32 = 0

// ErrPassOutOfRange is returned for a bin pass index outside [0, Capacity).
var ErrPassOutOfRange = errors.New("binning: pass index out of range")

// Grid is the bin layout over the [-1,1]^2 domain.
type Grid struct {
	Columns, Rows int
}

// Validate reports a grid that cannot hold any bin.
func (g Grid) Validate() error {
	if g.Columns <= 0 || g.Rows <= 0 {
		return fmt.Errorf("binning: grid must be positive, got %dx%d", g.Columns, g.Rows)
	}
	return nil
}

// BinCoords maps a domain position to its bin. ok is false for positions
// outside the domain; their contributions are discarded.
func (g Grid) BinCoords(p mgl32.Vec2) (x, y int, ok bool) {
	fx := float32(math.Floor(float64((p[0]*0.5 + 0.5) * float32(g.Columns))))
	fy := float32(math.Floor(float64((p[1]*0.5 + 0.5) * float32(g.Rows))))
	if !(fx >= 0 && fx < float32(g.Columns) && fy >= 0 && fy < float32(g.Rows)) {
		return 0, 0, false
	}
	return int(fx), int(fy), true
}

// Contains reports whether (x, y) names a bin of g.
func (g Grid) Contains(x, y int) bool {
	return x >= 0 && y >= 0 && x < g.Columns && y < g.Rows
}

// Encode converts a particle id to its slot value.
func Encode(id int) uint32 { return uint32(id) + 1 }

// Decode converts a slot value back to a particle id.
func Decode(v uint32) (id int, ok bool) {
	if v == Empty {
		return 0, false
	}
	return int(v - 1), true
}
