package config

import "sort"

var Presets = map[string]func(*Config){
	"default": func(*Config) {},
	"small": func(c *Config) {
		c.Particles.CountSqrt = 64
		c.Particles.Scale = 4
		c.Grid = GridConfig{Columns: 64, Rows: 64}
	},
	"pegboard": func(c *Config) {
		c.Particles.CountSqrt = 128
		c.Particles.Scale = 2
		c.Collisions.DiagonalCellChecks = true
		for row := 0; row < 4; row++ {
			y := 0.5 - 0.35*float64(row)
			off := 0.2 * float64(row%2)
			for x := -0.8 + off; x <= 0.81; x += 0.4 {
				c.Colliders = append(c.Colliders, ColliderConfig{X: x, Y: y, Radius: 0.04})
			}
		}
	},
	"dense": func(c *Config) {
		c.Particles.CountSqrt = 400
		c.Grid = GridConfig{Columns: 256, Rows: 256}
		c.Collisions.DiagonalCellChecks = true
		c.Physics.Restitution = 0.2
	},
}

// GetPreset returns the default config with the named preset applied.
func GetPreset(name string) *Config {
	apply, ok := Presets[name]
	if !ok {
		return nil
	}
	cfg := DefaultConfig()
	apply(cfg)
	return cfg
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
