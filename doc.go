// Package cabrun is a pipeline orchestrator for long-running scientific
// processing runs. A Recipe is an ordered list of jobs (containerized
// cabs or in-process callables) executed strictly in sequence against a
// shared set of input/output/MS directories, with enough persisted state
// to restart a failed run at the step that broke instead of from scratch.
//
// # Core Concepts
//
//  1. Recipe: owns the ordered job list and the run loop.
//  2. Job: one unit of work plus the backend adapter that executes it.
//  3. StepRecord / RunRecord: the persisted snapshot of each job, written
//     to the recipe's resume file.
//  4. FailureReport: the completed/failed/remaining partition raised when
//     a run fails.
//  5. Registry: stable names for in-process callables, so function steps
//     survive persistence and redo.
//
// # Recipes and Jobs
//
// A recipe is built once and executed as a whole:
//
//	reg := cabrun.NewRegistry()
//	rec, err := cabrun.NewRecipe("simulate and image", cabrun.Config{
//	    Cargo:  "/opt/cargo",
//	    Output: "output",
//	    MSDir:  "msdir",
//	    Registry: reg,
//	})
//	rec.Add(cabrun.JobSpec{Name: "simms", Cab: "cab/simms",
//	    Params: map[string]any{"msname": "meerkat.ms"}})
//	rec.Add(cabrun.JobSpec{Name: "wsclean", Cab: "cab/wsclean"})
//	err = rec.Run(ctx, cabrun.RunOptions{})
//
// Jobs execute in insertion order; a job's position is its permanent step
// number. RunOptions can narrow a run to explicit positions or labels.
//
// # Failure, Resume and Redo
//
// When a job fails with a recoverable error, the recipe writes a JSON
// resume file partitioning every step into completed, failed and
// remaining, and returns a *FailureReport wrapping the original error.
// Running again with RunOptions{Resume: true} reloads that file, verifies
// the pipeline shape is unchanged, and continues from the first
// non-completed step. RunOptions{Redo: path} instead rebuilds the whole
// job list from any persisted record and re-runs it.
//
// # Backends
//
// Backend tasks run through a closed set of adapters (docker, podman,
// udocker, singularity), each imposing its own in-container mount
// conventions. Callables run in-process and are looked up by name in the
// Registry. Adapters live behind a small capability contract; the engine
// never talks to a container runtime directly.
//
// Recipe definitions can also be loaded from YAML via FromFile; see
// pkg/recipefile. Run/step telemetry can be recorded to SQLite for
// operators; see the cabrun history command.
package cabrun
