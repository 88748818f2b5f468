package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mgeddes/cabrun/pkg/api"
)

// SaveRunRecord writes rec to path atomically: the record is written to a
// temporary file in the same directory and renamed into place, so an
// interrupted write never clobbers the previous record.
func SaveRunRecord(path string, rec api.RunRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(filepath.Dir(path), ".runrecord-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// LoadRunRecord reads a persisted run record. A missing file surfaces as
// os.ErrNotExist for the caller to classify.
func LoadRunRecord(path string) (api.RunRecord, error) {
	var rec api.RunRecord
	data, err := os.ReadFile(path)
	if err != nil {
		return rec, err
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("run record %s: %w", path, err)
	}
	return rec, nil
}
