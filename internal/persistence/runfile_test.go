package persistence

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mgeddes/cabrun/pkg/api"
)

func sampleRecord() api.RunRecord {
	return api.RunRecord{
		Name: "demo",
		Steps: []api.StepRecord{
			{
				Number: 1, Label: "simms_1", Status: api.StatusCompleted,
				JType: "docker", Cab: "cab/simms",
				Volumes:  map[string]string{"/data/input": "/input:ro"},
				Environs: map[string]string{"INPUT": "/input"},
				LogFile:  "/tmp/log-demo-simms.txt",
			},
			{
				Number: 2, Label: "flag_2", Status: api.StatusFailed,
				JType: api.JTypeFunction, Function: "flag",
				Parameters: map[string]any{"threshold": 2.5},
			},
			{Number: 3, Label: "clean_3", Status: api.StatusRemaining, JType: "docker", Cab: "cab/wsclean"},
		},
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".last_demo.json")
	require.NoError(t, SaveRunRecord(path, sampleRecord()))

	got, err := LoadRunRecord(path)
	require.NoError(t, err)
	require.Equal(t, "demo", got.Name)
	require.Len(t, got.Steps, 3)
	require.Equal(t, "cab/simms", got.Steps[0].Cab)
	require.Equal(t, "/input:ro", got.Steps[0].Volumes["/data/input"])
	require.Equal(t, "flag", got.Steps[1].Function)
	require.Equal(t, 2.5, got.Steps[1].Parameters["threshold"])
	require.Equal(t, api.StatusRemaining, got.Steps[2].Status)
}

func TestSaveOverwritesAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".last_demo.json")

	require.NoError(t, SaveRunRecord(path, sampleRecord()))
	updated := sampleRecord()
	updated.Steps[1].Status = api.StatusCompleted
	require.NoError(t, SaveRunRecord(path, updated))

	got, err := LoadRunRecord(path)
	require.NoError(t, err)
	require.Equal(t, api.StatusCompleted, got.Steps[1].Status)

	// No temp file debris left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestLoadMissingFileIsNotExist(t *testing.T) {
	_, err := LoadRunRecord(filepath.Join(t.TempDir(), "absent.json"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadCorruptRecordFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := LoadRunRecord(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), path)
}

func TestPendingSkipsCompletedSteps(t *testing.T) {
	rec := sampleRecord()
	require.Equal(t, []int{2, 3}, rec.Pending())
}
