// Package job owns the per-job workspace and State Document.
//
// A job is one parameter combination (its Statepoint). The job id is the
// SHA-256 of the statepoint's canonical JSON, so the same parameters always
// map to the same workspace directory. Each workspace holds statepoint.json
// (immutable) and document.json, a flat key/value State Document that stage
// actions and the replicate controller mutate. Document writes take an
// advisory file lock and replace the file atomically so a concurrent pass
// never reads a torn document.
package job
