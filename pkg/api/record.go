package api

// Status is the persisted lifecycle state of a single pipeline step.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusRemaining Status = "remaining"
)

// JTypeFunction is the jtype recorded for in-process callable steps.
// Backend task steps record their backend kind instead.
const JTypeFunction = "function"

// DirSnapshot is a one-time top-level listing of a mounted input or MS
// directory, captured when the job's payload is built. It is an audit
// trail only and is never re-validated on resume.
type DirSnapshot struct {
	Volume string   `json:"volume"`
	Dirs   []string `json:"dirs"`
	Files  []string `json:"files"`
}

// StepRecord is the serializable snapshot of one job at a point in time:
// its identity, backend-specific resources, and execution status.
type StepRecord struct {
	Number int    `json:"number"`
	Label  string `json:"label"`
	Status Status `json:"status"`
	JType  string `json:"jtype"`

	// Backend-task payload. Volumes maps a host path to
	// "containerPath:perm".
	Cab          string            `json:"cab,omitempty"`
	Volumes      map[string]string `json:"volumes,omitempty"`
	Environs     map[string]string `json:"environs,omitempty"`
	InputContent *DirSnapshot      `json:"input_content,omitempty"`
	MSDirContent *DirSnapshot      `json:"msdir_content,omitempty"`
	LogFile      string            `json:"logfile,omitempty"`

	// Callable payload. Parameters must be representable in JSON, which
	// constrains the argument values a callable step may carry.
	Function   string         `json:"function,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// RunRecord is the persisted form of a whole run: one entry per step, in
// step order. A run that failed at step k records steps before k as
// completed, step k as failed, and everything after as remaining.
type RunRecord struct {
	Name  string       `json:"name"`
	Steps []StepRecord `json:"steps"`
}

// Pending returns the numbers of the steps that are not completed, in
// record order.
func (r RunRecord) Pending() []int {
	var out []int
	for _, s := range r.Steps {
		if s.Status != StatusCompleted {
			out = append(out, s.Number)
		}
	}
	return out
}
