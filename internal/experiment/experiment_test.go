package experiment

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/binsim/internal/compute"
	"github.com/san-kum/binsim/internal/config"
)

func smallConfig() config.Config {
	cfg := config.DefaultConfig()
	cfg.Particles.CountSqrt = 8
	cfg.Particles.Scale = 8
	cfg.Particles.Seed = 7
	cfg.Grid = config.GridConfig{Columns: 8, Rows: 8}
	cfg.Physics.Dt = 1.0 / 60
	cfg.Backend = compute.BackendCPU
	cfg.Display = config.DisplayConfig{Width: 64, Height: 64, FPS: 60}
	return *cfg
}

func TestRun(t *testing.T) {
	res, err := New(Config{Sim: smallConfig(), Ticks: 5}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(5), res.Ticks)
	assert.Len(t, res.Samples, 5)
	assert.Len(t, res.Final, 64)
	assert.Equal(t, compute.BackendCPU, res.Backend)
	for _, key := range []string{"energy", "energy_loss", "containment", "active", "max_load"} {
		assert.Contains(t, res.Metrics, key)
	}
}

func TestRunIsReproducible(t *testing.T) {
	a, err := New(Config{Sim: smallConfig(), Ticks: 10}).Run(context.Background())
	require.NoError(t, err)
	b, err := New(Config{Sim: smallConfig(), Ticks: 10}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, a.Final, b.Final)
}

func TestRunIsReproducibleWithMeasuredDt(t *testing.T) {
	cfg := smallConfig()
	cfg.Particles.CountSqrt = 4
	cfg.Physics.Dt = 0

	a, err := New(Config{Sim: cfg, Ticks: 1}).Run(context.Background())
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	b, err := New(Config{Sim: cfg, Ticks: 1}).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, a.Final, b.Final)

	c, err := New(Config{Sim: cfg, Ticks: 8}).Run(context.Background())
	require.NoError(t, err)
	d, err := New(Config{Sim: cfg, Ticks: 8}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, c.Final, d.Final)
}

func TestRunSampleEvery(t *testing.T) {
	res, err := New(Config{Sim: smallConfig(), Ticks: 10, SampleEvery: 5}).Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, res.Samples, 2)
}

func TestRunCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(Config{Sim: smallConfig(), Ticks: 10}).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunInvalidConfig(t *testing.T) {
	cfg := smallConfig()
	cfg.Grid.Columns = 0
	_, err := New(Config{Sim: cfg, Ticks: 1}).Run(context.Background())
	assert.Error(t, err)
}

func TestRunEnsemble(t *testing.T) {
	results, err := RunEnsemble(context.Background(), Config{Sim: smallConfig(), Ticks: 3}, 3, 1)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, r := range results {
		assert.Equal(t, int64(3), r.Ticks)
	}
	assert.NotEqual(t, results[0].Final, results[1].Final)

	_, err = RunEnsemble(context.Background(), Config{Sim: smallConfig()}, 0, 1)
	assert.Error(t, err)
}
