// Package optim searches simulation parameters for the best value of a run
// metric.
package optim

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"math"

	"github.com/san-kum/binsim/internal/experiment"
	"github.com/san-kum/binsim/internal/logging"
)

var ErrNoResult = errors.New("optim: no parameter set produced the metric")

type GridSearch struct {
	paramNames []string
	ranges     [][]float64
	maximize   bool
}

// NewGridSearch tries every combination of ranges[i] for params[i] and
// keeps the lowest metric value.
func NewGridSearch(params []string, ranges [][]float64) *GridSearch {
	return &GridSearch{paramNames: params, ranges: ranges}
}

// Maximize keeps the highest value instead.
func (g *GridSearch) Maximize() *GridSearch {
	g.maximize = true
	return g
}

// Search runs one experiment per combination. Combinations that fail to
// build or run are logged and skipped.
func (g *GridSearch) Search(
	ctx context.Context,
	buildExperiment func(params map[string]float64) (*experiment.Experiment, error),
	metricName string,
) (map[string]float64, float64, error) {
	if len(g.paramNames) != len(g.ranges) {
		return nil, 0, fmt.Errorf("optim: %d params but %d ranges", len(g.paramNames), len(g.ranges))
	}

	best := math.Inf(1)
	if g.maximize {
		best = math.Inf(-1)
	}
	var bestParams map[string]float64

	err := g.searchRecursive(ctx, 0, make(map[string]float64), buildExperiment, metricName, &best, &bestParams)
	if err != nil {
		return nil, 0, err
	}
	if bestParams == nil {
		return nil, 0, ErrNoResult
	}
	return bestParams, best, nil
}

func (g *GridSearch) better(v, best float64) bool {
	if g.maximize {
		return v > best
	}
	return v < best
}

func (g *GridSearch) searchRecursive(
	ctx context.Context,
	depth int,
	current map[string]float64,
	buildExperiment func(map[string]float64) (*experiment.Experiment, error),
	metricName string,
	best *float64,
	bestParams *map[string]float64,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if depth == len(g.paramNames) {
		logger := logging.Logger()
		exp, err := buildExperiment(current)
		if err != nil {
			logger.Warn("skipping parameters", "params", current, "err", err)
			return nil
		}

		result, err := exp.Run(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warn("run failed", "params", current, "err", err)
			return nil
		}

		val, ok := result.Metrics[metricName]
		if !ok || math.IsNaN(val) {
			return nil
		}
		logger.Info("grid point", "params", current, metricName, val)
		if *bestParams == nil || g.better(val, *best) {
			*best = val
			*bestParams = maps.Clone(current)
		}
		return nil
	}

	paramName := g.paramNames[depth]
	for _, val := range g.ranges[depth] {
		newParams := maps.Clone(current)
		newParams[paramName] = val

		if err := g.searchRecursive(ctx, depth+1, newParams, buildExperiment, metricName, best, bestParams); err != nil {
			return err
		}
	}
	return nil
}
