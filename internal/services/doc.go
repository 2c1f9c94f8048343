// Package services defines shared utilities consumed by the pipeline stages,
// the scheduler, and the engine runner.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, stage names, and pass identifiers
//     for logging and tracing.
//   - Structured error markers plus the Wrap helper that classify failures
//     (engine execution, incomplete output, corrupt artifacts, registry
//     misconfiguration, replicate overruns) so reports stay uniform.
//
// Use these helpers when wiring new stage logic so operational behaviour
// (error handling, observability) stays uniform across the pipeline.
package services
