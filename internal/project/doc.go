// Package project wires a configured simflow project together: the job
// store, the pass ledger, the pipeline registry, and the scheduler.
//
// Commands that dispatch stages (run, watch) hold a flock on
// <state_dir>/simflow.lock so only one runner drives a project per node.
// Read-only commands (status, history) never take it.
package project
