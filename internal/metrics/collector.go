package metrics

import (
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/san-kum/binsim/internal/binning"
	"github.com/san-kum/binsim/internal/particle"
	"github.com/san-kum/binsim/internal/present"
)

// Sample summarizes one tick.
type Sample struct {
	Tick          int64   `csv:"tick" json:"tick"`
	Elapsed       float64 `csv:"elapsed_s" json:"elapsed_s"`
	Active        int     `csv:"active" json:"active"`
	Parked        int     `csv:"parked" json:"parked"`
	MeanSpeed     float64 `csv:"mean_speed" json:"mean_speed"`
	StdSpeed      float64 `csv:"std_speed" json:"std_speed"`
	KineticEnergy float64 `csv:"kinetic_energy" json:"kinetic_energy"`
	Occupied      int     `csv:"occupied_bins" json:"occupied_bins"`
	Overflow      int     `csv:"overflow" json:"overflow"`
	MaxLoad       int     `csv:"max_load" json:"max_load"`
}

// Collector observes frames and keeps one Sample per tick plus the running
// Metrics. It is safe to read while a session writes to it.
type Collector struct {
	grid    binning.Grid
	every   int64
	metrics []Metric
	start   time.Time

	mu      sync.Mutex
	samples []Sample
	speeds  []float64
}

// NewCollector samples every tick; see SetEvery.
func NewCollector(grid binning.Grid, ms ...Metric) *Collector {
	return &Collector{grid: grid, every: 1, metrics: ms}
}

// SetEvery keeps only every n-th tick.
func (c *Collector) SetEvery(n int64) {
	if n < 1 {
		n = 1
	}
	c.mu.Lock()
	c.every = n
	c.mu.Unlock()
}

func (c *Collector) Observe(f present.Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.start.IsZero() || f.Tick <= 1 {
		c.start = time.Now()
	}
	elapsed := time.Since(c.start).Seconds()
	for _, m := range c.metrics {
		m.Observe(f.Particles, elapsed)
	}
	if f.Tick%c.every != 0 {
		return
	}

	s := c.summarize(f.Particles)
	s.Tick = f.Tick
	s.Elapsed = elapsed
	c.samples = append(c.samples, s)
}

func (c *Collector) summarize(ps []particle.Particle) Sample {
	var s Sample
	c.speeds = c.speeds[:0]
	for _, p := range ps {
		if p.IsParked() {
			s.Parked++
			continue
		}
		c.speeds = append(c.speeds, float64(p.Velocity.Len()))
	}
	s.Active = len(c.speeds)
	s.KineticEnergy = KineticEnergy(ps)

	switch len(c.speeds) {
	case 0:
	case 1:
		s.MeanSpeed = c.speeds[0]
	default:
		s.MeanSpeed, s.StdSpeed = stat.MeanStdDev(c.speeds, nil)
	}

	load := binning.Census(c.grid, ps)
	s.Occupied, s.Overflow, s.MaxLoad = load.Occupied, load.Overflow, load.MaxLoad
	return s
}

func (c *Collector) Samples() []Sample {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Sample(nil), c.samples...)
}

func (c *Collector) Last() (Sample, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.samples) == 0 {
		return Sample{}, false
	}
	return c.samples[len(c.samples)-1], true
}

// Values reports every metric by name.
func (c *Collector) Values() map[string]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]float64, len(c.metrics))
	for _, m := range c.metrics {
		out[m.Name()] = m.Value()
	}
	return out
}

// Series extracts one column of the samples for plotting.
func (c *Collector) Series(field func(Sample) float64) []float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]float64, 0, len(c.samples))
	for _, s := range c.samples {
		v := field(s)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			v = 0
		}
		out = append(out, v)
	}
	return out
}

func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.samples = nil
	c.start = time.Time{}
	for _, m := range c.metrics {
		m.Reset()
	}
}
