// Package engine implements the recipe execution engine: the ordered job
// list, payload construction per backend, the strictly sequential run
// loop, and the failure-capture / resume / redo protocol.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/user"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mgeddes/cabrun/internal/backend"
	"github.com/mgeddes/cabrun/internal/cargo"
	"github.com/mgeddes/cabrun/internal/persistence"
	"github.com/mgeddes/cabrun/pkg/api"
)

// Config carries the recipe-level defaults threaded into every Add call.
// All paths are host paths. There is no ambient lookup: what is not in
// here or in the individual JobSpec does not exist.
type Config struct {
	// Input, Output and MSDir are the default data directories for jobs
	// that do not override them. Output and MSDir are created if absent.
	Input  string
	Output string
	MSDir  string

	// Cargo is the cab definitions root. Required for backend tasks,
	// unused by recipes made of callables only.
	Cargo string

	// WorkDir is where the resume file, generated parameter files and
	// log files live. Defaults to ".".
	WorkDir string

	// Backend is the default backend kind for tasks. Defaults to docker.
	Backend api.BackendKind

	// Registry resolves callable names for function steps and for redo.
	Registry *api.Registry

	// Observer receives lifecycle events. Defaults to a no-op.
	Observer api.Observer

	// Logger overrides the recipe's default logger (stderr plus the
	// per-recipe log file in WorkDir).
	Logger *slog.Logger
}

// JobSpec describes one step appended to a recipe. Exactly one of Cab or
// Function must be set.
type JobSpec struct {
	// Name is required and restricted to [A-Za-z0-9_].
	Name string

	// Label is the step identity validated across runs on resume.
	// Defaults to "<Name>_<position>", which is stable between runs of
	// the same recipe shape.
	Label string

	// Backend-task fields.
	Cab     string          // cab image reference, e.g. "cab/simms"
	Params  map[string]any  // merged into the cab's parameter template
	Backend api.BackendKind // overrides the recipe default
	Adapter api.Adapter     // pre-built adapter used in place of Backend

	// Callable fields.
	Function string         // registry name
	Args     map[string]any // keyword arguments; must be JSON-marshalable

	// Per-step overrides of the recipe-level directories.
	Input  string
	Output string
	MSDir  string

	// Timeout is advisory wall-clock metadata handed to the backend
	// adapter; zero or negative means unbounded.
	Timeout time.Duration
}

// RunOptions selects which steps execute and in which recovery mode.
type RunOptions struct {
	// Steps are literal 1-based positions, honored in the order given,
	// deliberate repeats included.
	Steps []int

	// Labels select steps by label (the part before any "::"). Steps and
	// Labels are mutually exclusive.
	Labels []string

	// Resume continues a failed run from the recipe's resume file. Steps
	// and Labels then act as a filter over the non-completed steps.
	Resume bool

	// Redo re-runs an arbitrary persisted record at the given path,
	// rebuilding the whole job list from its contents. Steps and Labels
	// are ignored.
	Redo string
}

// Recipe owns an append-only ordered job list and the run loop. A job's
// position in the list is its permanent step number; the list is never
// reordered after Add.
type Recipe struct {
	name       string
	cfg        Config
	cargo      *cargo.Registry
	jobs       []*Job
	resumeFile string
	log        *slog.Logger
	obs        api.Observer

	mu     sync.Mutex
	active *Job

	// Transient partition, populated only when a run fails.
	completed []api.StepRecord
	failed    *api.StepRecord
	remaining []api.StepRecord
}

var jobNameRE = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// NewRecipe builds an empty recipe. The resume-file path is derived from
// name: <WorkDir>/.last_<normalized-name>.json.
func NewRecipe(name string, cfg Config) (*Recipe, error) {
	if name == "" {
		return nil, api.NewParameterError("recipe name is required")
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = "."
	}
	if cfg.Backend == "" {
		cfg.Backend = api.BackendDocker
	}
	if !cfg.Backend.Valid() {
		return nil, api.NewParameterError("unknown backend kind: %s", cfg.Backend)
	}
	if cfg.Registry == nil {
		cfg.Registry = api.NewRegistry()
	}

	obs := cfg.Observer
	if obs == nil {
		obs = api.NoopObserver{}
	}

	var cg *cargo.Registry
	if cfg.Cargo != "" {
		var err error
		cg, err = cargo.Open(cfg.Cargo)
		if err != nil {
			return nil, err
		}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = newFileLogger(cfg.WorkDir, name)
	}

	return &Recipe{
		name:       name,
		cfg:        cfg,
		cargo:      cg,
		resumeFile: filepath.Join(cfg.WorkDir, ".last_"+normalizeName(name)+".json"),
		log:        logger,
		obs:        obs,
	}, nil
}

func normalizeName(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, " ", "_"))
}

// newFileLogger logs to stderr and to log-<name>.txt in workDir. Falls
// back to the default logger if the file cannot be opened.
func newFileLogger(workDir, name string) *slog.Logger {
	logPath := filepath.Join(workDir, "log-"+normalizeName(name)+".txt")
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return slog.Default()
	}
	return slog.New(slog.NewTextHandler(io.MultiWriter(os.Stderr, f), nil))
}

// Name returns the recipe name.
func (r *Recipe) Name() string { return r.name }

// ResumeFile returns the path of the recipe's persisted run record.
func (r *Recipe) ResumeFile() string { return r.resumeFile }

// Len returns the number of jobs added so far.
func (r *Recipe) Len() int { return len(r.jobs) }

// Labels returns the labels of all jobs, in step order.
func (r *Recipe) Labels() []string {
	out := make([]string, len(r.jobs))
	for i, j := range r.jobs {
		out[i] = j.label
	}
	return out
}

// Completed, Failed and Remaining expose the partition captured by the
// most recent failed run. They are nil before any run and after a clean
// one.
func (r *Recipe) Completed() []api.StepRecord { return r.completed }
func (r *Recipe) Failed() *api.StepRecord     { return r.failed }
func (r *Recipe) Remaining() []api.StepRecord { return r.remaining }

// Add appends one job to the recipe. The job's full payload (volumes,
// environment, generated parameter file, directory snapshots) is built
// here, so Run never mutates a job's configuration.
func (r *Recipe) Add(spec JobSpec) error {
	if !jobNameRE.MatchString(spec.Name) {
		return api.NewParameterError("invalid job name %q: only [A-Za-z0-9_] is allowed", spec.Name)
	}
	if spec.Cab != "" && spec.Function != "" {
		return api.NewParameterError("job %s: Cab and Function are mutually exclusive", spec.Name)
	}

	label := spec.Label
	if label == "" {
		label = fmt.Sprintf("%s_%d", spec.Name, len(r.jobs)+1)
	}

	var (
		job *Job
		err error
	)
	if spec.Function != "" {
		job, err = r.buildFunctionJob(spec, label)
	} else {
		job, err = r.buildTaskJob(spec, label)
	}
	if err != nil {
		return err
	}

	r.jobs = append(r.jobs, job)
	return nil
}

func (r *Recipe) buildFunctionJob(spec JobSpec, label string) (*Job, error) {
	fn, err := r.cfg.Registry.Resolve(spec.Function)
	if err != nil {
		return nil, err
	}
	if _, err := json.Marshal(spec.Args); err != nil {
		return nil, api.NewParameterError("callable %s: arguments are not serializable: %v", spec.Function, err)
	}
	return &Job{
		name:     spec.Name,
		label:    label,
		jtype:    api.JTypeFunction,
		function: spec.Function,
		fn:       fn,
		args:     spec.Args,
		timeout:  spec.Timeout,
	}, nil
}

func (r *Recipe) buildTaskJob(spec JobSpec, label string) (*Job, error) {
	if spec.Cab == "" {
		return nil, api.NewParameterError("job %s: either Cab or Function must be set", spec.Name)
	}
	if r.cargo == nil {
		return nil, api.NewParameterError("job %s: recipe has no cargo directory configured", spec.Name)
	}

	kind := spec.Backend
	if spec.Adapter != nil {
		kind = spec.Adapter.Kind()
	}
	if kind == "" {
		kind = r.cfg.Backend
	}
	if !kind.Valid() {
		return nil, api.NewParameterError("job %s: unknown backend kind: %s", spec.Name, kind)
	}

	input := firstNonEmpty(spec.Input, r.cfg.Input)
	output := firstNonEmpty(spec.Output, r.cfg.Output)
	msdir := firstNonEmpty(spec.MSDir, r.cfg.MSDir)

	// Per-job generated artifacts. The instance name carries a fresh
	// token so reruns never collide with leftover containers.
	instance := fmt.Sprintf("%s-%s", spec.Name, uuid.NewString()[:8])
	logFile := filepath.Join(r.cfg.WorkDir, fmt.Sprintf("log-%s-%s.txt", normalizeName(r.name), spec.Name))
	paramFile := filepath.Join(r.cfg.WorkDir, "params", fmt.Sprintf("%s-%s.json", normalizeName(r.name), spec.Name))

	if err := r.cargo.WriteParams(spec.Cab, spec.Params, paramFile); err != nil {
		return nil, err
	}
	if err := touchFile(logFile); err != nil {
		return nil, err
	}

	ad := spec.Adapter
	if ad == nil {
		var err error
		ad, err = backend.New(kind, spec.Cab, instance, logFile, spec.Timeout)
		if err != nil {
			return nil, err
		}
	}

	paths := api.MountPathsFor(kind, hostUser())
	containerConfig := path.Join("/configs", filepath.Base(paramFile))

	ad.AddVolume(r.cargo.Dir(), "/cargo", "ro")
	ad.AddVolume(paramFile, containerConfig, "ro")
	ad.AddVolume(logFile, "/logfile", "rw")
	ad.AddEnv("CONFIG", containerConfig)
	ad.AddEnv("LOGFILE", "/logfile")

	job := &Job{
		name:    spec.Name,
		label:   label,
		jtype:   string(kind),
		adapter: ad,
		cab:     spec.Cab,
		timeout: spec.Timeout,
	}

	if output != "" {
		if err := os.MkdirAll(output, 0o755); err != nil {
			return nil, err
		}
		ad.AddVolume(output, paths.Output, "rw")
		ad.AddEnv("OUTPUT", paths.Output)
	}
	if input != "" {
		ad.AddVolume(input, paths.Input, "ro")
		ad.AddEnv("INPUT", paths.Input)
		job.inputContent = snapshotDir(input, paths.Input)
	}
	if msdir != "" {
		if err := os.MkdirAll(msdir, 0o755); err != nil {
			return nil, err
		}
		ad.AddVolume(msdir, paths.MSDir, "rw")
		ad.AddEnv("MSDIR", paths.MSDir)
		job.msdirContent = snapshotDir(msdir, paths.MSDir)
	}

	return job, nil
}

// snapshotDir records the immediate contents of dir for the audit trail.
// A read failure leaves the snapshot empty rather than failing the job.
func snapshotDir(dir, volume string) *api.DirSnapshot {
	snap := &api.DirSnapshot{Volume: volume, Dirs: []string{}, Files: []string{}}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return snap
	}
	for _, e := range entries {
		if e.IsDir() {
			snap.Dirs = append(snap.Dirs, e.Name())
		} else {
			snap.Files = append(snap.Files, e.Name())
		}
	}
	return snap
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func touchFile(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	return f.Close()
}

func hostUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	if v := os.Getenv("USER"); v != "" {
		return v
	}
	return "root"
}

// resolvedStep pairs a job with its 1-based recipe position for one run.
type resolvedStep struct {
	number int
	job    *Job
}

// resolve translates a requested step subset into concrete (position,
// job) pairs. No steps requested means every job in insertion order.
func (r *Recipe) resolve(opts RunOptions) ([]resolvedStep, error) {
	if len(opts.Steps) > 0 && len(opts.Labels) > 0 {
		return nil, api.NewParameterError("steps and labels cannot be combined")
	}

	if len(opts.Steps) > 0 {
		out := make([]resolvedStep, 0, len(opts.Steps))
		for _, n := range opts.Steps {
			if n < 1 || n > len(r.jobs) {
				return nil, api.NewParameterError("step %d is out of range (recipe has %d steps)", n, len(r.jobs))
			}
			out = append(out, resolvedStep{number: n, job: r.jobs[n-1]})
		}
		return out, nil
	}

	if len(opts.Labels) > 0 {
		out := make([]resolvedStep, 0, len(opts.Labels))
		for _, want := range opts.Labels {
			idx := -1
			for i, job := range r.jobs {
				if job.label == want || labelKey(job.label) == want {
					idx = i
					break
				}
			}
			if idx < 0 {
				return nil, api.NewParameterError("no step labelled %q", want)
			}
			out = append(out, resolvedStep{number: idx + 1, job: r.jobs[idx]})
		}
		return out, nil
	}

	out := make([]resolvedStep, len(r.jobs))
	for i, job := range r.jobs {
		out[i] = resolvedStep{number: i + 1, job: job}
	}
	return out, nil
}

// Run executes the recipe. A nil return means every selected step
// completed and the record on disk shows them all completed. A
// recoverable job failure returns a *api.FailureReport carrying the
// completed/failed/remaining partition; anything outside the recoverable
// taxonomy returns a *api.FatalError and persists nothing.
func (r *Recipe) Run(ctx context.Context, opts RunOptions) error {
	if opts.Redo != "" {
		return r.redo(ctx, opts.Redo)
	}

	var (
		steps  []resolvedStep
		record api.RunRecord
		err    error
	)
	if opts.Resume {
		steps, record, err = r.loadResume(opts)
		if err != nil {
			return err
		}
		if len(steps) == 0 {
			r.log.Info("nothing to resume, every step already completed", "recipe", r.name)
			return nil
		}
	} else {
		steps, err = r.resolve(opts)
		if err != nil {
			return err
		}
		record = api.RunRecord{Name: r.name, Steps: []api.StepRecord{}}
	}

	return r.execute(ctx, steps, record)
}

// execute is the strictly sequential run loop: at most one job is ever
// active, and execution order equals list order.
func (r *Recipe) execute(ctx context.Context, steps []resolvedStep, record api.RunRecord) error {
	r.obs.OnRecipeStart(ctx, r.name)
	r.completed, r.failed, r.remaining = nil, nil, nil

	for i, st := range steps {
		r.setActive(st.job)
		r.log.Info("running step",
			"recipe", r.name, "step", st.number, "label", st.job.label, "job", st.job.name)
		r.obs.OnJobStart(ctx, r.name, st.job.label, st.number)

		startAt := time.Now()
		err := st.job.Execute(ctx)
		r.obs.OnJobCompleted(ctx, r.name, st.job.label, st.number, err, time.Since(startAt))
		r.setActive(nil)

		if err == nil {
			record.Steps = append(record.Steps, st.job.Record(st.number, api.StatusCompleted))
			if rmErr := st.job.Remove(context.WithoutCancel(ctx)); rmErr != nil {
				r.log.Warn("best-effort remove failed",
					"recipe", r.name, "step", st.number, "label", st.job.label, "error", rmErr)
			}
			r.log.Info("step completed", "recipe", r.name, "step", st.number, "label", st.job.label)
			continue
		}

		if st.job.needsTeardown() {
			cleanupCtx := context.WithoutCancel(ctx)
			if stopErr := st.job.Stop(cleanupCtx); stopErr != nil {
				r.log.Warn("best-effort stop failed",
					"recipe", r.name, "step", st.number, "label", st.job.label, "error", stopErr)
			}
			if rmErr := st.job.Remove(cleanupCtx); rmErr != nil {
				r.log.Warn("best-effort remove failed",
					"recipe", r.name, "step", st.number, "label", st.job.label, "error", rmErr)
			}
		}

		if !api.Recoverable(err) {
			fatal := &api.FatalError{Cause: err}
			r.log.Error("fatal error, run state not persisted",
				"recipe", r.name, "step", st.number, "label", st.job.label, "error", err)
			r.obs.OnRecipeFailed(ctx, r.name, fatal)
			return fatal
		}

		return r.fail(ctx, steps, i, record, err)
	}

	sortRecord(&record)
	if err := persistence.SaveRunRecord(r.resumeFile, record); err != nil {
		return &api.FatalError{Cause: err}
	}
	r.log.Info("recipe completed", "recipe", r.name, "resume_file", r.resumeFile)
	r.obs.OnRecipeCompleted(ctx, r.name)
	return nil
}

// fail captures the completed/failed/remaining partition over the
// resolved step list, persists the full record, and wraps cause in a
// FailureReport.
func (r *Recipe) fail(ctx context.Context, steps []resolvedStep, idx int, record api.RunRecord, cause error) error {
	failedRec := steps[idx].job.Record(steps[idx].number, api.StatusFailed)
	record.Steps = append(record.Steps, failedRec)
	for _, st := range steps[idx+1:] {
		record.Steps = append(record.Steps, st.job.Record(st.number, api.StatusRemaining))
	}
	sortRecord(&record)

	// Completed covers everything in the record, including steps kept
	// verbatim from a prior failed run.
	var completedRecs, remainingRecs []api.StepRecord
	for _, s := range record.Steps {
		switch s.Status {
		case api.StatusCompleted:
			completedRecs = append(completedRecs, s)
		case api.StatusRemaining:
			remainingRecs = append(remainingRecs, s)
		}
	}
	r.completed, r.failed, r.remaining = completedRecs, &failedRec, remainingRecs

	if err := persistence.SaveRunRecord(r.resumeFile, record); err != nil {
		r.log.Error("persisting run record failed", "path", r.resumeFile, "error", err)
		fatal := &api.FatalError{Cause: errors.Join(cause, err)}
		r.obs.OnRecipeFailed(ctx, r.name, fatal)
		return fatal
	}
	r.log.Error("step failed, run state persisted",
		"recipe", r.name,
		"step", steps[idx].number,
		"label", steps[idx].job.label,
		"resume_file", r.resumeFile,
		"error", cause)

	report := &api.FailureReport{
		Recipe:    r.name,
		Completed: completedRecs,
		Failed:    failedRec,
		Remaining: remainingRecs,
		Cause:     cause,
	}
	r.obs.OnRecipeFailed(ctx, r.name, report)
	return report
}

// sortRecord orders steps by number and collapses repeated executions of
// the same step, keeping only the most recent one, so a deliberately
// repeated steps request still persists one entry per position.
func sortRecord(rec *api.RunRecord) {
	sort.SliceStable(rec.Steps, func(i, j int) bool {
		return rec.Steps[i].Number < rec.Steps[j].Number
	})
	out := rec.Steps[:0]
	for i, s := range rec.Steps {
		if i+1 < len(rec.Steps) && rec.Steps[i+1].Number == s.Number {
			continue
		}
		out = append(out, s)
	}
	rec.Steps = out
}

func (r *Recipe) setActive(j *Job) {
	r.mu.Lock()
	r.active = j
	r.mu.Unlock()
}

func (r *Recipe) activeJob() *Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Stop stops whatever job is currently active; queued jobs are simply
// never started.
func (r *Recipe) Stop(ctx context.Context) error {
	if j := r.activeJob(); j != nil {
		return j.Stop(ctx)
	}
	return nil
}

// Pause pauses the active job, effectively pausing the pipeline.
func (r *Recipe) Pause(ctx context.Context) error {
	if j := r.activeJob(); j != nil {
		return j.Pause(ctx)
	}
	return nil
}

// Resume unpauses the active job.
func (r *Recipe) Resume(ctx context.Context) error {
	if j := r.activeJob(); j != nil {
		return j.Resume(ctx)
	}
	return nil
}
