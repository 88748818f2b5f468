package api

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Observer receives callbacks from the recipe engine for logging and
// metrics.
//
// Implementations should be fast and non-blocking; heavy work should be
// done asynchronously so as not to delay pipeline execution.
type Observer interface {
	// OnRecipeStart is called once per run, before the first job executes.
	OnRecipeStart(ctx context.Context, recipe string)

	// OnRecipeCompleted is called when every selected step finished cleanly.
	OnRecipeCompleted(ctx context.Context, recipe string)

	// OnRecipeFailed is called when the run terminates with an error,
	// recoverable or fatal.
	OnRecipeFailed(ctx context.Context, recipe string, err error)

	// OnJobStart is called before a job executes. number is the job's
	// 1-based position in the recipe.
	OnJobStart(ctx context.Context, recipe, label string, number int)

	// OnJobCompleted is called after a job returns, for both successes and
	// failures (err != nil).
	OnJobCompleted(ctx context.Context, recipe, label string, number int, err error, duration time.Duration)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnRecipeStart(ctx context.Context, recipe string)                 {}
func (NoopObserver) OnRecipeCompleted(ctx context.Context, recipe string)             {}
func (NoopObserver) OnRecipeFailed(ctx context.Context, recipe string, err error)     {}
func (NoopObserver) OnJobStart(ctx context.Context, recipe, label string, number int) {}
func (NoopObserver) OnJobCompleted(ctx context.Context, recipe, label string, number int, err error, d time.Duration) {
}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnRecipeStart(ctx context.Context, recipe string) {
	for _, o := range c.observers {
		o.OnRecipeStart(ctx, recipe)
	}
}

func (c *CompositeObserver) OnRecipeCompleted(ctx context.Context, recipe string) {
	for _, o := range c.observers {
		o.OnRecipeCompleted(ctx, recipe)
	}
}

func (c *CompositeObserver) OnRecipeFailed(ctx context.Context, recipe string, err error) {
	for _, o := range c.observers {
		o.OnRecipeFailed(ctx, recipe, err)
	}
}

func (c *CompositeObserver) OnJobStart(ctx context.Context, recipe, label string, number int) {
	for _, o := range c.observers {
		o.OnJobStart(ctx, recipe, label, number)
	}
}

func (c *CompositeObserver) OnJobCompleted(ctx context.Context, recipe, label string, number int, err error, d time.Duration) {
	for _, o := range c.observers {
		o.OnJobCompleted(ctx, recipe, label, number, err, d)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs recipe and job
// lifecycle events using the provided slog.Logger. If logger is nil,
// slog.Default() is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnRecipeStart(ctx context.Context, recipe string) {
	o.Logger.InfoContext(ctx, "recipe_start", slog.String("recipe", recipe))
}

func (o *LoggingObserver) OnRecipeCompleted(ctx context.Context, recipe string) {
	o.Logger.InfoContext(ctx, "recipe_completed", slog.String("recipe", recipe))
}

func (o *LoggingObserver) OnRecipeFailed(ctx context.Context, recipe string, err error) {
	o.Logger.ErrorContext(ctx, "recipe_failed",
		slog.String("recipe", recipe),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnJobStart(ctx context.Context, recipe, label string, number int) {
	o.Logger.InfoContext(ctx, "job_start",
		slog.String("recipe", recipe),
		slog.String("label", label),
		slog.Int("step", number),
	)
}

func (o *LoggingObserver) OnJobCompleted(ctx context.Context, recipe, label string, number int, err error, d time.Duration) {
	level := slog.LevelInfo
	if err != nil {
		level = slog.LevelError
	}
	o.Logger.Log(ctx, level, "job_completed",
		slog.String("recipe", recipe),
		slog.String("label", label),
		slog.Int("step", number),
		slog.Duration("duration", d),
		slog.Any("error", err),
	)
}

// RunMetrics collects simple counters and aggregate job durations. It
// implements Observer and can be combined with LoggingObserver via
// NewCompositeObserver.
type RunMetrics struct {
	NoopObserver

	recipesStarted   atomic.Int64
	recipesCompleted atomic.Int64
	recipesFailed    atomic.Int64
	jobsCompleted    atomic.Int64
	totalJobDuration atomic.Int64 // nanoseconds
}

// RunMetricsSnapshot is an immutable snapshot of RunMetrics.
type RunMetricsSnapshot struct {
	RecipesStarted   int64
	RecipesCompleted int64
	RecipesFailed    int64

	JobsCompleted  int64
	AvgJobDuration time.Duration
}

func (m *RunMetrics) OnRecipeStart(ctx context.Context, recipe string) {
	m.recipesStarted.Add(1)
}

func (m *RunMetrics) OnRecipeCompleted(ctx context.Context, recipe string) {
	m.recipesCompleted.Add(1)
}

func (m *RunMetrics) OnRecipeFailed(ctx context.Context, recipe string, err error) {
	m.recipesFailed.Add(1)
}

func (m *RunMetrics) OnJobCompleted(ctx context.Context, recipe, label string, number int, err error, d time.Duration) {
	// Only successful jobs count toward the average duration.
	if err == nil {
		m.jobsCompleted.Add(1)
		m.totalJobDuration.Add(d.Nanoseconds())
	}
}

// Snapshot returns a snapshot of the current metrics.
func (m *RunMetrics) Snapshot() RunMetricsSnapshot {
	jobs := m.jobsCompleted.Load()
	totalNs := m.totalJobDuration.Load()

	var avg time.Duration
	if jobs > 0 {
		avg = time.Duration(totalNs / jobs)
	}

	return RunMetricsSnapshot{
		RecipesStarted:   m.recipesStarted.Load(),
		RecipesCompleted: m.recipesCompleted.Load(),
		RecipesFailed:    m.recipesFailed.Load(),
		JobsCompleted:    jobs,
		AvgJobDuration:   avg,
	}
}
