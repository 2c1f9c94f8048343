// Package ledger keeps an advisory SQLite history of scheduling passes.
//
// Every dispatch a pass makes is appended with its pass id, job, stage,
// outcome, and error classification so operators can answer "what ran and
// what keeps failing" without walking every workspace. The ledger is never
// consulted for eligibility: durable artifacts and the State Document remain
// the only source of truth, and deleting ledger.db loses history only.
package ledger
