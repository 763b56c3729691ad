package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/google/uuid"

	"github.com/san-kum/binsim/internal/config"
	"github.com/san-kum/binsim/internal/metrics"
)

var ErrRunNotFound = errors.New("storage: run not found")

const (
	metadataFile = "metadata.json"
	samplesFile  = "samples.csv"
	snapshotDir  = "snapshots"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

func (s *Store) Dir() string { return s.baseDir }

type RunMetadata struct {
	ID        string             `json:"id"`
	Preset    string             `json:"preset,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
	Backend   string             `json:"backend"`
	Particles int                `json:"particles"`
	Ticks     int64              `json:"ticks"`
	Wall      float64            `json:"wall_seconds"`
	Config    config.Config      `json:"config"`
	Metrics   map[string]float64 `json:"metrics"`
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// Save writes the run metadata and its samples. A run without an ID gets a
// new one; the ID is returned either way.
func (s *Store) Save(meta RunMetadata, samples []metrics.Sample) (string, error) {
	if meta.ID == "" {
		meta.ID = NewRunID()
	}
	if meta.Timestamp.IsZero() {
		meta.Timestamp = time.Now()
	}
	runDir := filepath.Join(s.baseDir, meta.ID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	metaFile, err := os.Create(filepath.Join(runDir, metadataFile))
	if err != nil {
		return "", err
	}
	defer metaFile.Close()

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return "", err
	}

	if len(samples) == 0 {
		return meta.ID, nil
	}
	csvFile, err := os.Create(filepath.Join(runDir, samplesFile))
	if err != nil {
		return "", err
	}
	defer csvFile.Close()

	if err := gocsv.MarshalFile(&samples, csvFile); err != nil {
		return "", fmt.Errorf("writing samples: %w", err)
	}
	return meta.ID, nil
}

// List returns every stored run, newest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].Timestamp.After(runs[j].Timestamp)
	})
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (s *Store) LoadSamples(runID string) ([]metrics.Sample, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, samplesFile))
	if err != nil {
		if os.IsNotExist(err) {
			if _, statErr := os.Stat(filepath.Join(s.baseDir, runID)); statErr != nil {
				return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
			}
			return []metrics.Sample{}, nil
		}
		return nil, err
	}
	defer file.Close()

	samples := []metrics.Sample{}
	if err := gocsv.UnmarshalFile(file, &samples); err != nil {
		return nil, fmt.Errorf("reading samples: %w", err)
	}
	return samples, nil
}
