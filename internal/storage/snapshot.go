package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gocarina/gocsv"

	"github.com/san-kum/binsim/internal/particle"
	"github.com/san-kum/binsim/internal/present"
)

type snapshotRow struct {
	ID int     `csv:"id"`
	X  float32 `csv:"x"`
	Y  float32 `csv:"y"`
	VX float32 `csv:"vx"`
	VY float32 `csv:"vy"`
}

// SnapshotRecorder writes the particle state of every n-th tick under a
// run's snapshots directory.
type SnapshotRecorder struct {
	dir   string
	every int64

	mu      sync.Mutex
	written int
	closed  bool
	rows    []snapshotRow
}

func (s *Store) NewSnapshotRecorder(runID string, every int64) (*SnapshotRecorder, error) {
	if every < 1 {
		every = 1
	}
	dir := filepath.Join(s.baseDir, runID, snapshotDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &SnapshotRecorder{dir: dir, every: every}, nil
}

func (r *SnapshotRecorder) Record(f present.Frame) error {
	if f.Tick%r.every != 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return fmt.Errorf("storage: snapshot recorder closed")
	}

	r.rows = r.rows[:0]
	for id, p := range f.Particles {
		r.rows = append(r.rows, snapshotRow{
			ID: id,
			X:  p.Position.X(), Y: p.Position.Y(),
			VX: p.Velocity.X(), VY: p.Velocity.Y(),
		})
	}

	file, err := os.Create(filepath.Join(r.dir, snapshotName(f.Tick)))
	if err != nil {
		return err
	}
	defer file.Close()
	if err := gocsv.MarshalFile(&r.rows, file); err != nil {
		return fmt.Errorf("writing snapshot %d: %w", f.Tick, err)
	}
	r.written++
	return nil
}

// Written is the number of snapshots saved so far.
func (r *SnapshotRecorder) Written() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.written
}

func (r *SnapshotRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func snapshotName(tick int64) string {
	return fmt.Sprintf("tick_%08d.csv", tick)
}

// Snapshots lists the ticks with a stored snapshot, ascending.
func (s *Store) Snapshots(runID string) ([]int64, error) {
	entries, err := os.ReadDir(filepath.Join(s.baseDir, runID, snapshotDir))
	if err != nil {
		if os.IsNotExist(err) {
			return []int64{}, nil
		}
		return nil, err
	}
	ticks := make([]int64, 0, len(entries))
	for _, e := range entries {
		name := strings.TrimSuffix(strings.TrimPrefix(e.Name(), "tick_"), ".csv")
		tick, err := strconv.ParseInt(name, 10, 64)
		if err != nil {
			continue
		}
		ticks = append(ticks, tick)
	}
	sort.Slice(ticks, func(i, j int) bool { return ticks[i] < ticks[j] })
	return ticks, nil
}

func (s *Store) LoadSnapshot(runID string, tick int64) ([]particle.Particle, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, snapshotDir, snapshotName(tick)))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var rows []snapshotRow
	if err := gocsv.UnmarshalFile(file, &rows); err != nil {
		return nil, fmt.Errorf("reading snapshot %d: %w", tick, err)
	}
	ps := make([]particle.Particle, len(rows))
	for _, row := range rows {
		if row.ID < 0 || row.ID >= len(ps) {
			return nil, fmt.Errorf("storage: snapshot %d: particle id %d out of range", tick, row.ID)
		}
		ps[row.ID] = particle.Particle{
			Position: mgl32.Vec2{row.X, row.Y},
			Velocity: mgl32.Vec2{row.VX, row.VY},
		}
	}
	return ps, nil
}
