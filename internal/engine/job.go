package engine

import (
	"context"
	"strings"
	"time"

	"github.com/mgeddes/cabrun/pkg/api"
)

// creationState tracks how far a backend task got, so the recipe knows
// whether a best-effort stop is required on abnormal exit.
type creationState int

const (
	notCreated creationState = iota
	created
	finished
)

// Job wraps one unit of pipeline work together with its backend adapter.
// Its payload is fully built by Recipe.Add, before Run ever touches it,
// and the job lives exactly as long as the recipe that owns it.
type Job struct {
	name    string
	label   string
	jtype   string // backend kind, or "function"
	timeout time.Duration

	// Backend-task payload.
	adapter      api.Adapter
	cab          string
	inputContent *api.DirSnapshot
	msdirContent *api.DirSnapshot

	// Callable payload.
	function string
	fn       api.Callable
	args     map[string]any
	result   any

	state creationState
}

// Name returns the job's declared name.
func (j *Job) Name() string { return j.name }

// Label returns the identity used to match this job across separate runs.
func (j *Job) Label() string { return j.label }

// Result returns the value produced by a callable job's last execution.
func (j *Job) Result() any { return j.result }

// labelKey is the portion of a label consulted when resolving requested
// steps by label: everything before the first "::" separator.
func labelKey(label string) string {
	if i := strings.Index(label, "::"); i >= 0 {
		return label[:i]
	}
	return label
}

// Execute runs the job to completion, blocking until the backend or the
// callable reports success or failure.
func (j *Job) Execute(ctx context.Context) error {
	if j.fn != nil {
		out, err := j.fn(ctx, j.args)
		if err != nil {
			return &api.RuntimeError{Job: j.name, Backend: api.JTypeFunction, Cause: err}
		}
		j.result = out
		return nil
	}

	if err := j.adapter.Create(ctx); err != nil {
		return err
	}
	j.state = created

	if err := j.adapter.Start(ctx); err != nil {
		return err
	}
	j.state = finished
	return nil
}

// needsTeardown reports whether the backend was created but never
// finished cleanly.
func (j *Job) needsTeardown() bool {
	return j.adapter != nil && j.state == created
}

// Stop forwards to the backend adapter; callables have nothing to stop.
func (j *Job) Stop(ctx context.Context) error {
	if j.adapter == nil {
		return nil
	}
	return j.adapter.Stop(ctx)
}

// Remove forwards to the backend adapter; callables leave nothing behind.
func (j *Job) Remove(ctx context.Context) error {
	if j.adapter == nil {
		return nil
	}
	return j.adapter.Remove(ctx)
}

// Pause forwards to the backend adapter; a no-op for callables.
func (j *Job) Pause(ctx context.Context) error {
	if j.adapter == nil {
		return nil
	}
	return j.adapter.Pause(ctx)
}

// Resume forwards to the backend adapter; a no-op for callables.
func (j *Job) Resume(ctx context.Context) error {
	if j.adapter == nil {
		return nil
	}
	return j.adapter.Resume(ctx)
}

// Record snapshots the job as a persisted step with the given position
// and status.
func (j *Job) Record(number int, status api.Status) api.StepRecord {
	rec := api.StepRecord{
		Number: number,
		Label:  j.label,
		Status: status,
		JType:  j.jtype,
	}

	if j.fn != nil {
		rec.Function = j.function
		rec.Parameters = j.args
		return rec
	}

	rec.Cab = j.adapter.Image()
	vols := j.adapter.Volumes()
	if len(vols) > 0 {
		rec.Volumes = make(map[string]string, len(vols))
		for _, v := range vols {
			rec.Volumes[v.Host] = v.Container + ":" + v.Perm
		}
	}
	rec.Environs = j.adapter.Environment()
	rec.InputContent = j.inputContent
	rec.MSDirContent = j.msdirContent
	rec.LogFile = j.adapter.LogFile()
	return rec
}
