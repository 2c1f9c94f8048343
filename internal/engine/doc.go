// Package engine runs simulation engines as subprocesses bound to a job
// workspace.
//
// Engines read and write fixed file names in their working directory, so a
// stage action runs the engine with the workspace as its cwd and then calls
// Relocate to rename the fixed-name outputs into stage-qualified evidence
// (run1a.dat becomes run.melt, fort.12 becomes fort.12.melt, ...). A non-zero
// exit surfaces as EngineExecutionError and a missing expected output as
// IncompleteStageOutputError. Neither is retried here; the next scheduling
// pass re-evaluates the stage.
//
// Batch-queue engines go through Submit, which records a <stage>.submitted
// marker as soon as the queue accepts the work so later passes do not submit
// the same stage again.
package engine
