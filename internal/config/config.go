package config

import (
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/go-gl/mathgl/mgl32"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/binsim/internal/binning"
	"github.com/san-kum/binsim/internal/collision"
)

const (
	DefaultCountSqrt = 300
	DefaultRadius    = 0.00144675925
	DefaultGridSize  = 128
	DefaultMaxDt     = 0.05
	DefaultWidth     = 800
	DefaultHeight    = 600
	DefaultFPS       = 60
	DefaultBackend   = "auto"
	DefaultDataDir   = "runs"
)

var ErrInvalid = errors.New("config: invalid")

type Config struct {
	Particles  ParticlesConfig  `yaml:"particles"`
	Grid       GridConfig       `yaml:"grid"`
	Physics    PhysicsConfig    `yaml:"physics"`
	Collisions CollisionsConfig `yaml:"collisions"`
	Colliders  []ColliderConfig `yaml:"colliders"`
	Display    DisplayConfig    `yaml:"display"`
	Backend    string           `yaml:"backend"`
	LogLevel   string           `yaml:"log_level"`
	DataDir    string           `yaml:"data_dir"`
}

type ParticlesConfig struct {
	CountSqrt   int     `yaml:"count_sqrt"`
	Radius      float64 `yaml:"radius"`
	Scale       float64 `yaml:"scale"`
	MinVelocity float64 `yaml:"min_velocity"`
	MaxVelocity float64 `yaml:"max_velocity"`
	Seed        int64   `yaml:"seed"`
}

type GridConfig struct {
	Columns int `yaml:"columns"`
	Rows    int `yaml:"rows"`
}

type PhysicsConfig struct {
	Gravity     float64 `yaml:"gravity"`
	Restitution float64 `yaml:"restitution"`
	Dt          float64 `yaml:"dt"`     // 0 uses the measured frame delta
	MaxDt       float64 `yaml:"max_dt"` // upper bound for any step
}

type CollisionsConfig struct {
	Collisions         bool `yaml:"collisions"`
	StaticCollisions   bool `yaml:"static_collisions"`
	ExactCollisions    bool `yaml:"exact_collisions"`
	DiagonalCellChecks bool `yaml:"diagonal_cell_checks"`
}

type ColliderConfig struct {
	X      float64 `yaml:"x"`
	Y      float64 `yaml:"y"`
	Radius float64 `yaml:"radius"`
}

type DisplayConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
	FPS    int `yaml:"fps"`
}

func DefaultConfig() *Config {
	return &Config{
		Particles: ParticlesConfig{
			CountSqrt:   DefaultCountSqrt,
			Radius:      DefaultRadius,
			Scale:       1,
			MinVelocity: -0.1,
			MaxVelocity: 0.1,
		},
		Grid: GridConfig{Columns: DefaultGridSize, Rows: DefaultGridSize},
		Physics: PhysicsConfig{
			Gravity: 0.987,
			MaxDt:   DefaultMaxDt,
		},
		Collisions: CollisionsConfig{
			Collisions:       true,
			StaticCollisions: true,
			ExactCollisions:  true,
		},
		Display: DisplayConfig{
			Width:  DefaultWidth,
			Height: DefaultHeight,
			FPS:    DefaultFPS,
		},
		Backend:  DefaultBackend,
		LogLevel: "info",
		DataDir:  DefaultDataDir,
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Validate() error {
	p := c.Particles
	switch {
	case p.CountSqrt <= 0:
		return fmt.Errorf("%w: particles.count_sqrt must be positive, got %d", ErrInvalid, p.CountSqrt)
	case !(p.Radius > 0) || !(p.Scale > 0):
		return fmt.Errorf("%w: particles.radius and particles.scale must be positive", ErrInvalid)
	case p.MinVelocity > p.MaxVelocity:
		return fmt.Errorf("%w: particles.min_velocity %v exceeds max_velocity %v", ErrInvalid, p.MinVelocity, p.MaxVelocity)
	case c.Grid.Columns <= 0 || c.Grid.Rows <= 0:
		return fmt.Errorf("%w: grid must be positive, got %dx%d", ErrInvalid, c.Grid.Columns, c.Grid.Rows)
	case c.Physics.Restitution < 0 || c.Physics.Restitution > 1:
		return fmt.Errorf("%w: physics.restitution must be in [0,1], got %v", ErrInvalid, c.Physics.Restitution)
	case c.Physics.Dt < 0 || c.Physics.MaxDt < 0:
		return fmt.Errorf("%w: physics.dt and physics.max_dt must not be negative", ErrInvalid)
	case c.Display.Width <= 0 || c.Display.Height <= 0:
		return fmt.Errorf("%w: display must be positive, got %dx%d", ErrInvalid, c.Display.Width, c.Display.Height)
	case c.Display.FPS <= 0:
		return fmt.Errorf("%w: display.fps must be positive, got %d", ErrInvalid, c.Display.FPS)
	}
	for i, col := range c.Colliders {
		if !(col.Radius > 0) {
			return fmt.Errorf("%w: colliders[%d].radius must be positive, got %v", ErrInvalid, i, col.Radius)
		}
	}
	switch c.Backend {
	case "", "auto", "cpu", "opengl":
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrInvalid, c.Backend)
	}
	return nil
}

// Count is the particle budget, the size of the state texture.
func (c *Config) Count() int {
	return c.Particles.CountSqrt * c.Particles.CountSqrt
}

// ParticleRadius is the configured radius after scaling.
func (c *Config) ParticleRadius() float32 {
	return float32(c.Particles.Radius * c.Particles.Scale)
}

// Params builds the update pass configuration.
func (c *Config) Params() collision.Params {
	colliders := make([]collision.Collider, len(c.Colliders))
	for i, col := range c.Colliders {
		colliders[i] = collision.Collider{
			Center: mgl32.Vec2{float32(col.X), float32(col.Y)},
			Radius: float32(col.Radius),
		}
	}
	return collision.Params{
		Grid:        binning.Grid{Columns: c.Grid.Columns, Rows: c.Grid.Rows},
		Radius:      c.ParticleRadius(),
		Gravity:     float32(c.Physics.Gravity),
		Restitution: float32(c.Physics.Restitution),
		Flags: collision.Flags{
			Collisions:         c.Collisions.Collisions,
			StaticCollisions:   c.Collisions.StaticCollisions,
			ExactCollisions:    c.Collisions.ExactCollisions,
			DiagonalCellChecks: c.Collisions.DiagonalCellChecks,
		},
		Colliders: colliders,
	}
}

// StepDt returns the step for a measured frame delta in seconds: the fixed
// dt when one is set, otherwise the delta, clamped to max_dt either way.
func (c *Config) StepDt(delta float64) float32 {
	dt := delta
	if c.Physics.Dt > 0 {
		dt = c.Physics.Dt
	}
	if c.Physics.MaxDt > 0 {
		dt = math.Min(dt, c.Physics.MaxDt)
	}
	return float32(math.Max(dt, 0))
}
