package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mgeddes/cabrun/internal/persistence"
	"github.com/mgeddes/cabrun/pkg/api"
)

// newTestRecipe returns a recipe whose callables append their job name to
// trace, so tests can assert execution order.
func newTestRecipe(t *testing.T, names ...string) (*Recipe, *[]string) {
	t.Helper()

	trace := &[]string{}
	reg := api.NewRegistry()
	rec, err := NewRecipe("test pipeline", Config{
		WorkDir:  t.TempDir(),
		Registry: reg,
	})
	require.NoError(t, err)

	for _, name := range names {
		name := name
		require.NoError(t, reg.Register(name, func(ctx context.Context, args map[string]any) (any, error) {
			*trace = append(*trace, name)
			return name, nil
		}))
		require.NoError(t, rec.Add(JobSpec{Name: name, Function: name}))
	}
	return rec, trace
}

func TestRunExecutesAllStepsInOrder(t *testing.T) {
	rec, trace := newTestRecipe(t, "a", "b", "c")

	require.NoError(t, rec.Run(context.Background(), RunOptions{}))
	require.Equal(t, []string{"a", "b", "c"}, *trace)

	stored, err := persistence.LoadRunRecord(rec.ResumeFile())
	require.NoError(t, err)
	require.Equal(t, "test pipeline", stored.Name)
	require.Len(t, stored.Steps, 3)
	for i, step := range stored.Steps {
		require.Equal(t, i+1, step.Number)
		require.Equal(t, api.StatusCompleted, step.Status)
		require.Equal(t, api.JTypeFunction, step.JType)
	}
}

func TestRunStepSubsetHonorsOrderAndRepeats(t *testing.T) {
	rec, trace := newTestRecipe(t, "a", "b", "c")

	require.NoError(t, rec.Run(context.Background(), RunOptions{Steps: []int{3, 1, 3}}))
	require.Equal(t, []string{"c", "a", "c"}, *trace)
}

func TestRunStepOutOfRangeIsParameterError(t *testing.T) {
	rec, trace := newTestRecipe(t, "a", "b")

	err := rec.Run(context.Background(), RunOptions{Steps: []int{5}})
	require.True(t, api.IsParameterError(err))
	require.Empty(t, *trace, "nothing may execute on a bad step request")
}

func TestRunByLabel(t *testing.T) {
	rec, trace := newTestRecipe(t, "a", "b", "c")

	require.NoError(t, rec.Run(context.Background(), RunOptions{Labels: []string{"b_2"}}))
	require.Equal(t, []string{"b"}, *trace)
}

func TestRunUnknownLabelIsParameterErrorNamingLabel(t *testing.T) {
	rec, trace := newTestRecipe(t, "a", "b")

	err := rec.Run(context.Background(), RunOptions{Labels: []string{"nope"}})
	require.True(t, api.IsParameterError(err))
	require.Contains(t, err.Error(), "nope")
	require.Empty(t, *trace)
}

func TestLabelResolutionUsesPrefixBeforeSeparator(t *testing.T) {
	trace := &[]string{}
	reg := api.NewRegistry()
	require.NoError(t, reg.Register("work", func(ctx context.Context, args map[string]any) (any, error) {
		*trace = append(*trace, "work")
		return nil, nil
	}))

	rec, err := NewRecipe("labelled", Config{WorkDir: t.TempDir(), Registry: reg})
	require.NoError(t, err)
	require.NoError(t, rec.Add(JobSpec{Name: "work", Function: "work", Label: "clean::first pass"}))

	require.NoError(t, rec.Run(context.Background(), RunOptions{Labels: []string{"clean"}}))
	require.Equal(t, []string{"work"}, *trace)
}

func TestAddRejectsInvalidJobName(t *testing.T) {
	rec, _ := newTestRecipe(t)

	err := rec.Add(JobSpec{Name: "bad name!", Function: "whatever"})
	require.True(t, api.IsParameterError(err))
}

func TestAddRejectsUnknownCallable(t *testing.T) {
	rec, _ := newTestRecipe(t)

	err := rec.Add(JobSpec{Name: "step", Function: "not_registered"})
	require.True(t, api.IsParameterError(err))
	require.Contains(t, err.Error(), "not_registered")
}

func TestAddRejectsUnserializableArgs(t *testing.T) {
	reg := api.NewRegistry()
	require.NoError(t, reg.Register("fn", func(ctx context.Context, args map[string]any) (any, error) {
		return nil, nil
	}))
	rec, err := NewRecipe("args", Config{WorkDir: t.TempDir(), Registry: reg})
	require.NoError(t, err)

	err = rec.Add(JobSpec{
		Name:     "step",
		Function: "fn",
		Args:     map[string]any{"ch": make(chan int)},
	})
	require.True(t, api.IsParameterError(err))
}

func TestDefaultLabelIsNameAndPosition(t *testing.T) {
	rec, _ := newTestRecipe(t, "a", "b")
	require.Equal(t, []string{"a_1", "b_2"}, rec.Labels())
}

// failingRecipe builds a 3-step recipe (a, b, c) where b fails until
// *allow is set.
func failingRecipe(t *testing.T, allow *bool) (*Recipe, *[]string) {
	t.Helper()

	trace := &[]string{}
	reg := api.NewRegistry()
	step := func(name string, fail bool) api.Callable {
		return func(ctx context.Context, args map[string]any) (any, error) {
			if fail && !*allow {
				return nil, errors.New("simulated failure")
			}
			*trace = append(*trace, name)
			return nil, nil
		}
	}
	require.NoError(t, reg.Register("a", step("a", false)))
	require.NoError(t, reg.Register("b", step("b", true)))
	require.NoError(t, reg.Register("c", step("c", false)))

	rec, err := NewRecipe("flaky", Config{WorkDir: t.TempDir(), Registry: reg})
	require.NoError(t, err)
	for _, name := range []string{"a", "b", "c"} {
		require.NoError(t, rec.Add(JobSpec{Name: name, Function: name}))
	}
	return rec, trace
}

func TestFailureCapturesPartitionAndPersistsRecord(t *testing.T) {
	allow := false
	rec, trace := failingRecipe(t, &allow)

	err := rec.Run(context.Background(), RunOptions{})
	require.Error(t, err)

	report, ok := api.AsFailureReport(err)
	require.True(t, ok)
	require.Equal(t, "flaky", report.Recipe)
	require.Len(t, report.Completed, 1)
	require.Equal(t, "a_1", report.Completed[0].Label)
	require.Equal(t, 2, report.Failed.Number)
	require.Equal(t, "b_2", report.Failed.Label)
	require.Len(t, report.Remaining, 1)
	require.Equal(t, "c_3", report.Remaining[0].Label)
	require.True(t, api.IsRuntimeError(report.Cause))

	// Transient run-state mirrors the report.
	require.Equal(t, report.Completed, rec.Completed())
	require.Equal(t, report.Failed, *rec.Failed())
	require.Equal(t, report.Remaining, rec.Remaining())

	require.Equal(t, []string{"a"}, *trace, "c must never start")

	stored, err := persistence.LoadRunRecord(rec.ResumeFile())
	require.NoError(t, err)
	require.Len(t, stored.Steps, 3)
	require.Equal(t, api.StatusCompleted, stored.Steps[0].Status)
	require.Equal(t, api.StatusFailed, stored.Steps[1].Status)
	require.Equal(t, api.StatusRemaining, stored.Steps[2].Status)
	for i, step := range stored.Steps {
		require.Equal(t, i+1, step.Number)
	}
}

func TestResumeExecutesOnlyPendingSteps(t *testing.T) {
	allow := false
	rec, trace := failingRecipe(t, &allow)

	require.Error(t, rec.Run(context.Background(), RunOptions{}))
	*trace = nil

	allow = true
	require.NoError(t, rec.Run(context.Background(), RunOptions{Resume: true}))
	require.Equal(t, []string{"b", "c"}, *trace, "a already completed, only b and c run")

	stored, err := persistence.LoadRunRecord(rec.ResumeFile())
	require.NoError(t, err)
	require.Len(t, stored.Steps, 3)
	for _, step := range stored.Steps {
		require.Equal(t, api.StatusCompleted, step.Status)
	}
}

func TestResumeIsNoopWhenEverythingCompleted(t *testing.T) {
	rec, trace := newTestRecipe(t, "a", "b")

	require.NoError(t, rec.Run(context.Background(), RunOptions{}))
	*trace = nil

	require.NoError(t, rec.Run(context.Background(), RunOptions{Resume: true}))
	require.Empty(t, *trace)
}

func TestResumeWithoutFileIsExecutionError(t *testing.T) {
	rec, trace := newTestRecipe(t, "a")

	err := rec.Run(context.Background(), RunOptions{Resume: true})
	require.True(t, api.IsExecutionError(err))
	require.Empty(t, *trace)
}

func TestResumeRejectsChangedPipelineFlow(t *testing.T) {
	allow := false
	rec, _ := failingRecipe(t, &allow)
	require.Error(t, rec.Run(context.Background(), RunOptions{}))

	// Same persisted record, but a recipe whose step 2 carries a
	// different label now.
	reg := api.NewRegistry()
	noop := func(ctx context.Context, args map[string]any) (any, error) { return nil, nil }
	require.NoError(t, reg.Register("noop", noop))

	changed, err := NewRecipe("flaky", Config{WorkDir: rec.cfg.WorkDir, Registry: reg})
	require.NoError(t, err)
	for _, label := range []string{"a_1", "edited_2", "c_3"} {
		require.NoError(t, changed.Add(JobSpec{Name: "noop", Function: "noop", Label: label}))
	}

	err = changed.Run(context.Background(), RunOptions{Resume: true})
	require.True(t, api.IsExecutionError(err))
	require.Contains(t, err.Error(), "pipeline flow changed")
}

func TestResumeHonorsStepsAsFilter(t *testing.T) {
	allow := false
	rec, trace := failingRecipe(t, &allow)
	require.Error(t, rec.Run(context.Background(), RunOptions{}))
	*trace = nil

	allow = true
	// Only step 2 from the pending set; step 3 stays remaining, step 1
	// is already completed and is never re-run.
	require.NoError(t, rec.Run(context.Background(), RunOptions{Resume: true, Steps: []int{1, 2}}))
	require.Equal(t, []string{"b"}, *trace)
}

func TestFilteredResumeKeepsExcludedStepsInRecord(t *testing.T) {
	allow := false
	rec, trace := failingRecipe(t, &allow)
	require.Error(t, rec.Run(context.Background(), RunOptions{}))
	*trace = nil

	allow = true
	require.NoError(t, rec.Run(context.Background(), RunOptions{Resume: true, Steps: []int{2}}))
	require.Equal(t, []string{"b"}, *trace)

	// The step the filter excluded must survive the save as remaining,
	// never silently drop out of the partition.
	stored, err := persistence.LoadRunRecord(rec.ResumeFile())
	require.NoError(t, err)
	require.Len(t, stored.Steps, 3)
	require.Equal(t, api.StatusCompleted, stored.Steps[0].Status)
	require.Equal(t, api.StatusCompleted, stored.Steps[1].Status)
	require.Equal(t, api.StatusRemaining, stored.Steps[2].Status)

	// A plain resume afterwards still runs the leftover step.
	*trace = nil
	require.NoError(t, rec.Run(context.Background(), RunOptions{Resume: true}))
	require.Equal(t, []string{"c"}, *trace)

	stored, err = persistence.LoadRunRecord(rec.ResumeFile())
	require.NoError(t, err)
	require.Len(t, stored.Steps, 3)
	for _, step := range stored.Steps {
		require.Equal(t, api.StatusCompleted, step.Status)
	}
}

func TestRepeatedStepsCollapseInRecord(t *testing.T) {
	rec, trace := newTestRecipe(t, "a", "b", "c")

	require.NoError(t, rec.Run(context.Background(), RunOptions{Steps: []int{3, 1, 3}}))
	require.Equal(t, []string{"c", "a", "c"}, *trace)

	stored, err := persistence.LoadRunRecord(rec.ResumeFile())
	require.NoError(t, err)
	require.Len(t, stored.Steps, 2, "one entry per position, repeats collapsed")
	require.Equal(t, 1, stored.Steps[0].Number)
	require.Equal(t, 3, stored.Steps[1].Number)
	for _, step := range stored.Steps {
		require.Equal(t, api.StatusCompleted, step.Status)
	}
}

func TestFatalErrorSkipsPersistence(t *testing.T) {
	rec := newTaskRecipe(t)

	// A raw error from an adapter is outside the recoverable taxonomy.
	fake := newFakeAdapter()
	fake.StartErr = errors.New("disk on fire")
	require.NoError(t, rec.Add(taskSpec("boom", fake)))

	err := rec.Run(context.Background(), RunOptions{})
	require.True(t, api.IsFatalError(err))

	_, ok := api.AsFailureReport(err)
	require.False(t, ok)

	_, err = persistence.LoadRunRecord(rec.ResumeFile())
	require.Error(t, err, "fatal failures must not write a resume file")
}

func TestCallableResultIsKept(t *testing.T) {
	reg := api.NewRegistry()
	require.NoError(t, reg.Register("sum", func(ctx context.Context, args map[string]any) (any, error) {
		return fmt.Sprintf("%v+%v", args["x"], args["y"]), nil
	}))

	rec, err := NewRecipe("results", Config{WorkDir: t.TempDir(), Registry: reg})
	require.NoError(t, err)
	require.NoError(t, rec.Add(JobSpec{
		Name: "sum", Function: "sum",
		Args: map[string]any{"x": 1, "y": 2},
	}))
	require.NoError(t, rec.Run(context.Background(), RunOptions{}))

	require.Equal(t, "1+2", rec.jobs[0].Result())
}
