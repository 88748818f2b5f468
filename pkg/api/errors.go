package api

import (
	"errors"
	"fmt"
)

// ParameterError reports invalid construction input: a bad job name, an
// unknown cab or callable, an unresolvable step label. It is always raised
// before any execution side effect and is never partially applied.
type ParameterError struct {
	Msg string
}

func (e *ParameterError) Error() string { return e.Msg }

// NewParameterError formats a new ParameterError.
func NewParameterError(format string, args ...any) error {
	return &ParameterError{Msg: fmt.Sprintf(format, args...)}
}

// IsParameterError reports whether err is (or wraps) a ParameterError.
func IsParameterError(err error) bool {
	var p *ParameterError
	return errors.As(err, &p)
}

// ExecutionError reports an unrunnable recovery request: a missing resume
// file, or a persisted record whose step composition no longer matches the
// live job list. It aborts before any job executes.
type ExecutionError struct {
	Msg string
}

func (e *ExecutionError) Error() string { return e.Msg }

// NewExecutionError formats a new ExecutionError.
func NewExecutionError(format string, args ...any) error {
	return &ExecutionError{Msg: fmt.Sprintf(format, args...)}
}

// IsExecutionError reports whether err is (or wraps) an ExecutionError.
func IsExecutionError(err error) bool {
	var e *ExecutionError
	return errors.As(err, &e)
}

// RuntimeError reports that a job's backend (or callable) failed during
// execution. It carries job and backend identity so the recipe can react
// uniformly regardless of backend. This is the only error kind that causes
// the run loop to snapshot and persist the completed/failed/remaining
// partition.
type RuntimeError struct {
	Job     string // job name or backend instance name
	Backend string // backend kind, or "function" for callables
	Cause   error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("job %s (%s) failed: %v", e.Job, e.Backend, e.Cause)
}

func (e *RuntimeError) Unwrap() error { return e.Cause }

// IsRuntimeError reports whether err is (or wraps) a RuntimeError.
func IsRuntimeError(err error) bool {
	var r *RuntimeError
	return errors.As(err, &r)
}

// FatalError marks an error outside the recoverable taxonomy. It bypasses
// resume-file persistence and terminates the run; treat it as a defect in
// the pipeline definition or the engine itself.
type FatalError struct {
	Cause error
}

func (e *FatalError) Error() string { return fmt.Sprintf("fatal: %v", e.Cause) }

func (e *FatalError) Unwrap() error { return e.Cause }

// IsFatalError reports whether err is (or wraps) a FatalError.
func IsFatalError(err error) bool {
	var f *FatalError
	return errors.As(err, &f)
}

// Recoverable reports whether err belongs to the taxonomy the run loop
// captures state for, as opposed to a fatal condition.
func Recoverable(err error) bool {
	return IsParameterError(err) || IsExecutionError(err) || IsRuntimeError(err)
}
