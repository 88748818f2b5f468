// Package recipefile loads declarative recipe definitions from YAML.
//
// A definition names the recipe, sets the default data directories and
// backend, and lists the ordered steps:
//
//	name: simulate and image
//	backend: docker
//	cargo: /opt/cargo
//	msdir: ./msdir
//	output: ./output
//	steps:
//	  - name: simms
//	    cab: cab/simms
//	    params:
//	      msname: meerkat.ms
//	  - name: wsclean
//	    cab: cab/wsclean
//	    timeout: 2h
package recipefile

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration adds YAML decoding of Go duration strings ("30s", "2h").
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Definition is a parsed recipe file.
type Definition struct {
	Name    string `yaml:"name"`
	Backend string `yaml:"backend"`
	Cargo   string `yaml:"cargo"`
	Input   string `yaml:"input"`
	Output  string `yaml:"output"`
	MSDir   string `yaml:"msdir"`
	Steps   []Step `yaml:"steps"`
}

// Step is one ordered entry of a recipe file. Exactly one of cab or
// function must be set.
type Step struct {
	Name     string         `yaml:"name"`
	Label    string         `yaml:"label"`
	Cab      string         `yaml:"cab"`
	Params   map[string]any `yaml:"params"`
	Function string         `yaml:"function"`
	Args     map[string]any `yaml:"args"`
	Backend  string         `yaml:"backend"`
	Input    string         `yaml:"input"`
	Output   string         `yaml:"output"`
	MSDir    string         `yaml:"msdir"`
	Timeout  Duration       `yaml:"timeout"`
}

// Load reads and parses a recipe file.
func Load(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	def, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}

// Parse decodes and validates a recipe definition.
func Parse(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, err
	}
	if def.Name == "" {
		return nil, errors.New("recipe name is required")
	}
	if len(def.Steps) == 0 {
		return nil, errors.New("recipe has no steps")
	}
	for i, s := range def.Steps {
		if s.Name == "" {
			return nil, fmt.Errorf("step %d: name is required", i+1)
		}
		if s.Cab == "" && s.Function == "" {
			return nil, fmt.Errorf("step %d (%s): either cab or function is required", i+1, s.Name)
		}
		if s.Cab != "" && s.Function != "" {
			return nil, fmt.Errorf("step %d (%s): cab and function are mutually exclusive", i+1, s.Name)
		}
	}
	return &def, nil
}
