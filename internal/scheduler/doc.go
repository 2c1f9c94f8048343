// Package scheduler runs cooperative scheduling passes over jobs.
//
// A pass recomputes eligibility for every job from durable evidence,
// dispatches at most one stage per job (the first eligible stage in
// declaration order), and reports what happened. Jobs are independent and
// dispatched in parallel; a failing job never affects the others. Nothing is
// retried inside a pass. A failed stage simply stays eligible and is picked
// up by the next pass.
package scheduler
