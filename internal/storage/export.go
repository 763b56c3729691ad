package storage

import (
	"encoding/json"
	"io"
	"os"

	"github.com/san-kum/binsim/internal/metrics"
)

type ExportData struct {
	Run     RunMetadata      `json:"run"`
	Samples []metrics.Sample `json:"samples"`
}

// ExportJSON writes a stored run with its samples as one JSON document.
func (s *Store) ExportJSON(w io.Writer, runID string) error {
	meta, err := s.Load(runID)
	if err != nil {
		return err
	}
	samples, err := s.LoadSamples(runID)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(ExportData{Run: *meta, Samples: samples})
}

func (s *Store) ExportJSONFile(path, runID string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return s.ExportJSON(file, runID)
}
