// Package automation runs scripted scenarios and parameter sweeps.
package automation

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/binsim/internal/config"
	"github.com/san-kum/binsim/internal/experiment"
	"github.com/san-kum/binsim/internal/logging"
	"github.com/san-kum/binsim/internal/storage"
)

// Scenario defines a scripted sequence of runs.
type Scenario struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Steps       []ScenarioStep `yaml:"steps"`
}

// ScenarioStep is one run: a preset, overrides and a length.
type ScenarioStep struct {
	Preset string             `yaml:"preset"`
	Ticks  int64              `yaml:"ticks"`
	Params map[string]float64 `yaml:"params"`
	SaveAs string             `yaml:"save_as"`
}

// LoadScenario loads a scenario from a YAML file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, fmt.Errorf("automation: parse %s: %w", path, err)
	}
	if len(scenario.Steps) == 0 {
		return nil, fmt.Errorf("automation: scenario %q has no steps", scenario.Name)
	}
	return &scenario, nil
}

// StepConfig resolves a step against base: the step's preset replaces base
// when set, then its params apply.
func StepConfig(base config.Config, step ScenarioStep) (config.Config, error) {
	cfg := base
	if step.Preset != "" {
		p := config.GetPreset(step.Preset)
		if p == nil {
			return cfg, fmt.Errorf("unknown preset: %s (available: %v)", step.Preset, config.ListPresets())
		}
		p.Backend, p.LogLevel, p.DataDir = base.Backend, base.LogLevel, base.DataDir
		cfg = *p
	}
	for name, v := range step.Params {
		if err := cfg.SetParam(name, v); err != nil {
			return cfg, err
		}
	}
	return cfg, cfg.Validate()
}

// RunScenario executes all steps in order. Steps with save_as are stored
// in st under that ID when st is not nil.
func RunScenario(ctx context.Context, scenario *Scenario, base config.Config, st *storage.Store) ([]*experiment.Result, error) {
	logger := logging.Logger()
	results := make([]*experiment.Result, 0, len(scenario.Steps))

	for i, step := range scenario.Steps {
		logger.Info("scenario step", "scenario", scenario.Name, "step", i+1, "of", len(scenario.Steps), "preset", step.Preset)

		cfg, err := StepConfig(base, step)
		if err != nil {
			return results, fmt.Errorf("step %d: %w", i+1, err)
		}

		result, err := experiment.New(experiment.Config{Sim: cfg, Ticks: step.Ticks}).Run(ctx)
		if err != nil {
			return results, fmt.Errorf("step %d run: %w", i+1, err)
		}
		results = append(results, result)

		if step.SaveAs == "" || st == nil {
			continue
		}
		_, err = st.Save(storage.RunMetadata{
			ID:        step.SaveAs,
			Preset:    step.Preset,
			Timestamp: time.Now(),
			Backend:   result.Backend,
			Particles: cfg.Count(),
			Ticks:     result.Ticks,
			Wall:      result.Wall.Seconds(),
			Config:    cfg,
			Metrics:   result.Metrics,
		}, result.Samples)
		if err != nil {
			return results, fmt.Errorf("step %d save: %w", i+1, err)
		}
	}

	return results, nil
}

// ParameterSweep runs one experiment per evenly spaced value of a tunable
// parameter.
type ParameterSweep struct {
	Base      config.Config
	ParamName string
	ParamMin  float64
	ParamMax  float64
	NumSteps  int
	Ticks     int64
}

// SweepResult holds one sweep point.
type SweepResult struct {
	ParamValue float64
	Metrics    map[string]float64
	MaxLoad    int
	Overflow   int
}

// RunSweep executes a parameter sweep.
func RunSweep(ctx context.Context, sweep *ParameterSweep) ([]SweepResult, error) {
	if sweep.NumSteps < 1 {
		return nil, fmt.Errorf("automation: sweep needs at least one step, got %d", sweep.NumSteps)
	}
	logger := logging.Logger()
	results := make([]SweepResult, 0, sweep.NumSteps)

	paramStep := 0.0
	if sweep.NumSteps > 1 {
		paramStep = (sweep.ParamMax - sweep.ParamMin) / float64(sweep.NumSteps-1)
	}

	for i := 0; i < sweep.NumSteps; i++ {
		paramVal := sweep.ParamMin + float64(i)*paramStep
		cfg := sweep.Base
		if err := cfg.SetParam(sweep.ParamName, paramVal); err != nil {
			return nil, err
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("%s=%v: %w", sweep.ParamName, paramVal, err)
		}

		result, err := experiment.New(experiment.Config{Sim: cfg, Ticks: sweep.Ticks}).Run(ctx)
		if err != nil {
			return nil, err
		}

		var maxLoad, overflow int
		for _, s := range result.Samples {
			maxLoad = max(maxLoad, s.MaxLoad)
			overflow = max(overflow, s.Overflow)
		}
		results = append(results, SweepResult{
			ParamValue: paramVal,
			Metrics:    result.Metrics,
			MaxLoad:    maxLoad,
			Overflow:   overflow,
		})

		logger.Info("sweep point", "step", i+1, "of", sweep.NumSteps, sweep.ParamName, paramVal)
	}

	return results, nil
}
