package cabrun

import (
	"time"

	"github.com/mgeddes/cabrun/internal/engine"
	"github.com/mgeddes/cabrun/pkg/api"
	"github.com/mgeddes/cabrun/pkg/recipefile"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Status         = api.Status
	StepRecord     = api.StepRecord
	RunRecord      = api.RunRecord
	DirSnapshot    = api.DirSnapshot
	FailureReport  = api.FailureReport
	ParameterError = api.ParameterError
	ExecutionError = api.ExecutionError
	RuntimeError   = api.RuntimeError
	FatalError     = api.FatalError

	Observer        = api.Observer
	NoopObserver    = api.NoopObserver
	LoggingObserver = api.LoggingObserver
	RunMetrics      = api.RunMetrics

	BackendKind = api.BackendKind
	MountPaths  = api.MountPaths
	Adapter     = api.Adapter
	Volume      = api.Volume

	Callable = api.Callable
	Registry = api.Registry

	Recipe     = engine.Recipe
	Config     = engine.Config
	JobSpec    = engine.JobSpec
	RunOptions = engine.RunOptions
)

// Re-export status values and backend kinds for convenience.

const (
	StatusCompleted = api.StatusCompleted
	StatusFailed    = api.StatusFailed
	StatusRemaining = api.StatusRemaining

	BackendDocker      = api.BackendDocker
	BackendPodman      = api.BackendPodman
	BackendUDocker     = api.BackendUDocker
	BackendSingularity = api.BackendSingularity
)

// Re-export common helpers.

var (
	NewRegistry          = api.NewRegistry
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
	MountPathsFor        = api.MountPathsFor

	IsParameterError = api.IsParameterError
	IsExecutionError = api.IsExecutionError
	IsRuntimeError   = api.IsRuntimeError
	IsFatalError     = api.IsFatalError
	AsFailureReport  = api.AsFailureReport
)

// NewRecipe builds an empty recipe with the given configuration. Steps
// are appended with Recipe.Add and executed with Recipe.Run.
func NewRecipe(name string, cfg Config) (*Recipe, error) {
	return engine.NewRecipe(name, cfg)
}

// FromFile builds a recipe from a YAML definition. Values in cfg win over
// the file's defaults; the file's steps are appended in order. Function
// steps resolve through cfg.Registry.
func FromFile(path string, cfg Config) (*Recipe, error) {
	def, err := recipefile.Load(path)
	if err != nil {
		return nil, err
	}

	if cfg.Input == "" {
		cfg.Input = def.Input
	}
	if cfg.Output == "" {
		cfg.Output = def.Output
	}
	if cfg.MSDir == "" {
		cfg.MSDir = def.MSDir
	}
	if cfg.Cargo == "" {
		cfg.Cargo = def.Cargo
	}
	if cfg.Backend == "" && def.Backend != "" {
		cfg.Backend = BackendKind(def.Backend)
	}

	r, err := engine.NewRecipe(def.Name, cfg)
	if err != nil {
		return nil, err
	}
	for _, s := range def.Steps {
		spec := JobSpec{
			Name:     s.Name,
			Label:    s.Label,
			Cab:      s.Cab,
			Params:   s.Params,
			Function: s.Function,
			Args:     s.Args,
			Backend:  BackendKind(s.Backend),
			Input:    s.Input,
			Output:   s.Output,
			MSDir:    s.MSDir,
			Timeout:  time.Duration(s.Timeout),
		}
		if err := r.Add(spec); err != nil {
			return nil, err
		}
	}
	return r, nil
}
