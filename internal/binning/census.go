package binning

import (
	"github.com/san-kum/binsim/internal/particle"
)

// Load summarizes how particles spread over the grid.
type Load struct {
	Binned   int // particles inside the domain
	Occupied int // bins with at least one particle
	Overflow int // particles beyond Capacity in their bin, dropped this tick
	MaxLoad  int // most particles in a single bin
}

// Census counts bin occupancy directly from particle positions.
func Census(grid Grid, ps []particle.Particle) Load {
	counts := make([]int, grid.Columns*grid.Rows)
	var l Load
	for _, p := range ps {
		x, y, ok := grid.BinCoords(p.Position)
		if !ok {
			continue
		}
		l.Binned++
		counts[y*grid.Columns+x]++
	}
	for _, c := range counts {
		if c == 0 {
			continue
		}
		l.Occupied++
		if c > Capacity {
			l.Overflow += c - Capacity
		}
		if c > l.MaxLoad {
			l.MaxLoad = c
		}
	}
	return l
}
