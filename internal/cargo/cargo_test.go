package cargo

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mgeddes/cabrun/pkg/api"
)

func newCargo(t *testing.T) *Registry {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "configs"), 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "configs", "simms_params.json"),
		[]byte(`{"msname": "default.ms", "dtime": 2}`), 0o644))

	reg, err := Open(dir)
	require.NoError(t, err)
	return reg
}

func TestOpenRejectsMissingDir(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
}

func TestOpenRejectsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	_, err := Open(path)
	require.Error(t, err)
}

func TestTemplatePathStripsImageTag(t *testing.T) {
	reg := newCargo(t)

	plain, err := reg.TemplatePath("cab/simms")
	require.NoError(t, err)
	tagged, err := reg.TemplatePath("cab/simms:1.2.0")
	require.NoError(t, err)
	require.Equal(t, plain, tagged)
}

func TestTemplatePathUnknownCabIsParameterError(t *testing.T) {
	reg := newCargo(t)

	_, err := reg.TemplatePath("cab/wsclean")
	require.True(t, api.IsParameterError(err))
	require.Contains(t, err.Error(), "cab/wsclean")
}

func TestWriteParamsMergesOverrides(t *testing.T) {
	reg := newCargo(t)
	dest := filepath.Join(t.TempDir(), "params", "run-simms.json")

	require.NoError(t, reg.WriteParams("cab/simms", map[string]any{"msname": "meerkat.ms", "synthesis": 0.25}, dest))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	var params map[string]any
	require.NoError(t, json.Unmarshal(data, &params))
	require.Equal(t, "meerkat.ms", params["msname"])
	require.Equal(t, float64(2), params["dtime"], "template values survive when not overridden")
	require.Equal(t, 0.25, params["synthesis"])
}

func TestWriteParamsWithoutOverridesCopiesTemplate(t *testing.T) {
	reg := newCargo(t)
	dest := filepath.Join(t.TempDir(), "run-simms.json")

	require.NoError(t, reg.WriteParams("cab/simms", nil, dest))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	var params map[string]any
	require.NoError(t, json.Unmarshal(data, &params))
	require.Equal(t, "default.ms", params["msname"])
}
