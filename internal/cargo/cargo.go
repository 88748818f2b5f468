// Package cargo resolves cab identifiers to their packaged parameter
// schemas and generates the per-job parameter files that get mounted into
// backend tasks.
package cargo

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/mgeddes/cabrun/pkg/api"
)

// Registry locates cab definitions under a cargo directory. The expected
// layout, for a cab named "cab/simms":
//
//	<dir>/configs/simms_params.json
type Registry struct {
	dir string
}

// Open validates dir and returns a registry rooted there.
func Open(dir string) (*Registry, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("cargo: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("cargo: %s is not a directory", dir)
	}
	return &Registry{dir: dir}, nil
}

// Dir returns the cargo root; it is mounted read-only into backend tasks.
func (r *Registry) Dir() string { return r.dir }

// TemplatePath returns the parameter schema template for cab. An unknown
// cab is a ParameterError.
func (r *Registry) TemplatePath(cab string) (string, error) {
	// Strip any image tag before resolving, so "cab/simms:1.2" and
	// "cab/simms" share a template.
	base := path.Base(strings.SplitN(cab, ":", 2)[0])
	p := filepath.Join(r.dir, "configs", base+"_params.json")
	if _, err := os.Stat(p); err != nil {
		return "", api.NewParameterError("unknown cab: %s", cab)
	}
	return p, nil
}

// WriteParams merges overrides into cab's schema template and writes the
// result to dest, creating parent directories as needed.
func (r *Registry) WriteParams(cab string, overrides map[string]any, dest string) error {
	tpl, err := r.TemplatePath(cab)
	if err != nil {
		return err
	}

	params, err := readJSON(tpl)
	if err != nil {
		return err
	}
	for k, v := range overrides {
		params[k] = v
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	return writeJSON(dest, params)
}

func readJSON(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("cargo: template %s: %w", path, err)
	}
	if out == nil {
		out = make(map[string]any)
	}
	return out, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
