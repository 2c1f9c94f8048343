// Package pipelines declares the stage pipelines for each supported engine
// and molecule and registers them under their discriminators.
//
// Every stage reads its completion state from files in the job workspace,
// so a pipeline can be resumed from any point after a crash or a manual
// cleanup: deleting an output makes its stage eligible again on the next
// pass.
package pipelines
