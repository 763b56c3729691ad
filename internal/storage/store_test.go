package storage

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/binsim/internal/config"
	"github.com/san-kum/binsim/internal/metrics"
	"github.com/san-kum/binsim/internal/particle"
	"github.com/san-kum/binsim/internal/present"
)

func testSamples() []metrics.Sample {
	return []metrics.Sample{
		{Tick: 1, Elapsed: 0.016, Active: 10, MeanSpeed: 0.05, StdSpeed: 0.01, KineticEnergy: 0.2},
		{Tick: 2, Elapsed: 0.032, Active: 9, Parked: 1, MeanSpeed: 0.04, KineticEnergy: 0.1, MaxLoad: 3},
	}
}

func TestStoreSaveLoad(t *testing.T) {
	st := New(t.TempDir())
	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	meta := RunMetadata{
		Preset:    "small",
		Backend:   "cpu",
		Particles: 10,
		Ticks:     2,
		Config:    *config.GetPreset("small"),
		Metrics:   map[string]float64{"energy": 1.5},
	}
	runID, err := st.Save(meta, testSamples())
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if runID == "" {
		t.Error("expected non-empty run id")
	}

	loaded, err := st.Load(runID)
	require.NoError(t, err)
	assert.Equal(t, runID, loaded.ID)
	assert.Equal(t, "small", loaded.Preset)
	assert.Equal(t, 1.5, loaded.Metrics["energy"])
	assert.Equal(t, 64, loaded.Config.Particles.CountSqrt)
	assert.False(t, loaded.Timestamp.IsZero())

	samples, err := st.LoadSamples(runID)
	require.NoError(t, err)
	assert.Equal(t, testSamples(), samples)
}

func TestStoreList(t *testing.T) {
	st := New(t.TempDir())
	require.NoError(t, st.Init())

	runs, err := st.List()
	require.NoError(t, err)
	assert.Empty(t, runs)

	older := time.Now().Add(-time.Hour)
	_, err = st.Save(RunMetadata{ID: "old", Timestamp: older}, nil)
	require.NoError(t, err)
	_, err = st.Save(RunMetadata{ID: "new", Timestamp: time.Now()}, nil)
	require.NoError(t, err)

	runs, err = st.List()
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "new", runs[0].ID)
	assert.Equal(t, "old", runs[1].ID)
}

func TestStoreListMissingDir(t *testing.T) {
	st := New(filepath.Join(t.TempDir(), "missing"))
	runs, err := st.List()
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestStoreFileStructure(t *testing.T) {
	dir := t.TempDir()
	st := New(dir)
	require.NoError(t, st.Init())

	runID, err := st.Save(RunMetadata{}, testSamples())
	require.NoError(t, err)

	for _, name := range []string{"metadata.json", "samples.csv"} {
		if _, err := os.Stat(filepath.Join(dir, runID, name)); err != nil {
			t.Errorf("%s not created: %v", name, err)
		}
	}
}

func TestLoadUnknownRun(t *testing.T) {
	st := New(t.TempDir())
	_, err := st.Load("nope")
	assert.ErrorIs(t, err, ErrRunNotFound)
	_, err = st.LoadSamples("nope")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestRunWithoutSamples(t *testing.T) {
	st := New(t.TempDir())
	runID, err := st.Save(RunMetadata{}, nil)
	require.NoError(t, err)

	samples, err := st.LoadSamples(runID)
	require.NoError(t, err)
	assert.Empty(t, samples)
}

func TestSnapshotRecorder(t *testing.T) {
	st := New(t.TempDir())
	runID := NewRunID()
	rec, err := st.NewSnapshotRecorder(runID, 2)
	require.NoError(t, err)

	ps := []particle.Particle{
		{Position: mgl32.Vec2{0.25, -0.5}, Velocity: mgl32.Vec2{0.1, 0}},
		particle.Park(),
	}
	for tick := int64(1); tick <= 4; tick++ {
		require.NoError(t, rec.Record(present.Frame{Tick: tick, Particles: ps}))
	}
	assert.Equal(t, 2, rec.Written())

	ticks, err := st.Snapshots(runID)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 4}, ticks)

	loaded, err := st.LoadSnapshot(runID, 4)
	require.NoError(t, err)
	assert.Equal(t, ps, loaded)

	require.NoError(t, rec.Close())
	assert.Error(t, rec.Record(present.Frame{Tick: 6}))
}

func TestExportJSON(t *testing.T) {
	st := New(t.TempDir())
	runID, err := st.Save(RunMetadata{Backend: "cpu"}, testSamples())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, st.ExportJSON(&buf, runID))

	var out ExportData
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, runID, out.Run.ID)
	assert.Len(t, out.Samples, 2)
}
