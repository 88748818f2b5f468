package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/mgeddes/cabrun/internal/backend"
	"github.com/mgeddes/cabrun/internal/persistence"
	"github.com/mgeddes/cabrun/pkg/api"
)

// loadResume loads the recipe's own resume file and turns it into the
// effective step list, plus the record of steps kept verbatim: those a
// prior run already completed, and pending steps an explicit filter
// excludes from this run.
//
// Before anything executes, every non-completed recorded step must carry
// the same label as the job currently occupying that position; otherwise
// the pipeline flow changed since the failed run and resuming it would be
// unsafe.
func (r *Recipe) loadResume(opts RunOptions) ([]resolvedStep, api.RunRecord, error) {
	var record api.RunRecord

	stored, err := persistence.LoadRunRecord(r.resumeFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, record, api.NewExecutionError(
				"recipe %s has no resume file at %s", r.name, r.resumeFile)
		}
		return nil, record, &api.FatalError{Cause: err}
	}

	record = api.RunRecord{Name: r.name}
	var pending []api.StepRecord

	for _, step := range stored.Steps {
		if step.Status == api.StatusCompleted {
			record.Steps = append(record.Steps, step)
			continue
		}
		if step.Number < 1 || step.Number > len(r.jobs) {
			return nil, record, api.NewExecutionError(
				"pipeline flow changed: recorded step %d does not exist in recipe %s",
				step.Number, r.name)
		}
		live := r.jobs[step.Number-1]
		if live.label != step.Label {
			return nil, record, api.NewExecutionError(
				"pipeline flow changed: step %d was %q, recipe now has %q",
				step.Number, step.Label, live.label)
		}
		pending = append(pending, step)
	}

	// An explicit steps request narrows the pending set; it never adds
	// already-completed steps back. Pending steps the filter excludes are
	// kept in the record verbatim, so every save still holds the full
	// partition and a later resume still sees them.
	if len(opts.Steps) > 0 || len(opts.Labels) > 0 {
		requested, err := r.resolve(RunOptions{Steps: opts.Steps, Labels: opts.Labels})
		if err != nil {
			return nil, record, err
		}
		want := make(map[int]bool, len(requested))
		for _, st := range requested {
			want[st.number] = true
		}
		var selected []api.StepRecord
		for _, step := range pending {
			if want[step.Number] {
				selected = append(selected, step)
				continue
			}
			record.Steps = append(record.Steps, step)
		}
		pending = selected
	}

	r.log.Info("resuming recipe",
		"recipe", r.name,
		"resume_file", r.resumeFile,
		"kept", len(record.Steps),
		"pending", len(pending))

	steps := make([]resolvedStep, 0, len(pending))
	for _, step := range pending {
		steps = append(steps, resolvedStep{number: step.Number, job: r.jobs[step.Number-1]})
	}
	return steps, record, nil
}

// redo rebuilds a job list from an arbitrary persisted record, not
// necessarily this recipe's own resume file, and runs it in full. This
// re-executes a previous, possibly differently named, pipeline snapshot.
func (r *Recipe) redo(ctx context.Context, path string) error {
	stored, err := persistence.LoadRunRecord(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return api.NewExecutionError("no run record at %s", path)
		}
		return &api.FatalError{Cause: err}
	}

	steps := make([]resolvedStep, 0, len(stored.Steps))
	for _, step := range stored.Steps {
		job, err := r.rehydrate(step)
		if err != nil {
			return err
		}
		steps = append(steps, resolvedStep{number: step.Number, job: job})
	}

	r.log.Info("re-running persisted record",
		"recipe", r.name, "source", path, "steps", len(steps))
	return r.execute(ctx, steps, api.RunRecord{Name: r.name, Steps: []api.StepRecord{}})
}

// rehydrate reconstructs a job from its persisted form. Backend steps
// come straight from the stored payload; function steps resolve their
// callable name through the registry, and an unknown name is a
// ParameterError, never a silent skip.
func (r *Recipe) rehydrate(step api.StepRecord) (*Job, error) {
	name := labelKey(step.Label)

	if step.JType == api.JTypeFunction {
		fn, err := r.cfg.Registry.Resolve(step.Function)
		if err != nil {
			return nil, err
		}
		return &Job{
			name:     name,
			label:    step.Label,
			jtype:    api.JTypeFunction,
			function: step.Function,
			fn:       fn,
			args:     step.Parameters,
		}, nil
	}

	kind := api.BackendKind(step.JType)
	if !kind.Valid() {
		return nil, api.NewParameterError("stored step %d: unknown backend kind %q", step.Number, step.JType)
	}

	instance := fmt.Sprintf("%s-%s", name, uuid.NewString()[:8])
	ad, err := backend.New(kind, step.Cab, instance, step.LogFile, 0)
	if err != nil {
		return nil, err
	}
	for host, mount := range step.Volumes {
		container, perm := splitMount(mount)
		ad.AddVolume(host, container, perm)
	}
	for k, v := range step.Environs {
		ad.AddEnv(k, v)
	}

	return &Job{
		name:         name,
		label:        step.Label,
		jtype:        step.JType,
		adapter:      ad,
		cab:          step.Cab,
		inputContent: step.InputContent,
		msdirContent: step.MSDirContent,
	}, nil
}

// splitMount splits the persisted "containerPath:perm" form.
func splitMount(s string) (container, perm string) {
	if i := strings.LastIndex(s, ":"); i >= 0 {
		return s[:i], s[i+1:]
	}
	return s, "rw"
}
