package config

import (
	"fmt"
	"math"
	"sort"
)

// Tunables are the numeric keys SetParam understands, for sweeps and
// scenarios.
var Tunables = map[string]func(c *Config, v float64){
	"count_sqrt":   func(c *Config, v float64) { c.Particles.CountSqrt = int(math.Round(v)) },
	"scale":        func(c *Config, v float64) { c.Particles.Scale = v },
	"min_velocity": func(c *Config, v float64) { c.Particles.MinVelocity = v },
	"max_velocity": func(c *Config, v float64) { c.Particles.MaxVelocity = v },
	"seed":         func(c *Config, v float64) { c.Particles.Seed = int64(v) },
	"grid": func(c *Config, v float64) {
		n := int(math.Round(v))
		c.Grid = GridConfig{Columns: n, Rows: n}
	},
	"gravity":     func(c *Config, v float64) { c.Physics.Gravity = v },
	"restitution": func(c *Config, v float64) { c.Physics.Restitution = v },
	"dt":          func(c *Config, v float64) { c.Physics.Dt = v },
	"max_dt":      func(c *Config, v float64) { c.Physics.MaxDt = v },
}

// SetParam sets one tunable key. It does not validate the result.
func (c *Config) SetParam(name string, v float64) error {
	set, ok := Tunables[name]
	if !ok {
		return fmt.Errorf("%w: unknown parameter %q (available: %v)", ErrInvalid, name, TunableNames())
	}
	set(c, v)
	return nil
}

func TunableNames() []string {
	names := make([]string, 0, len(Tunables))
	for name := range Tunables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
