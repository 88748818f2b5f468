package api

import (
	"errors"
	"fmt"
)

// FailureReport partitions a failed run at the moment of failure: every
// step that completed before the failure, the one step whose execution
// raised a recoverable error, and every step that never ran. It wraps the
// original job error and is constructed exactly once per failed run, so
// callers can inspect how far the pipeline got without parsing logs.
type FailureReport struct {
	Recipe    string
	Completed []StepRecord
	Failed    StepRecord
	Remaining []StepRecord
	Cause     error
}

func (e *FailureReport) Error() string {
	return fmt.Sprintf("recipe %s failed at step %d (%s): %v (%d completed, %d remaining)",
		e.Recipe, e.Failed.Number, e.Failed.Label, e.Cause, len(e.Completed), len(e.Remaining))
}

func (e *FailureReport) Unwrap() error { return e.Cause }

// AsFailureReport extracts a FailureReport from err, if any.
func AsFailureReport(err error) (*FailureReport, bool) {
	var f *FailureReport
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}
