package scheduler

import (
	"time"
)

// Status is the pass-local state of a (job, stage) pair. It is reported,
// never persisted as truth.
type Status string

const (
	StatusNotEligible Status = "not_eligible"
	StatusEligible    Status = "eligible"
	StatusRunning     Status = "running"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
)

// JobReport describes one job within a pass.
type JobReport struct {
	JobID         string
	Label         string
	Discriminator string
	// Stage is the stage attempted, the eligible stage (plans), or the
	// first incomplete stage when nothing is eligible.
	Stage string
	// StageIndex and StageCount place Stage within the pipeline.
	StageIndex int
	StageCount int
	Status     Status
	Dispatched bool
	Terminal   bool
	// Blocker names the failing precondition part when not eligible.
	Blocker   string
	Err       error
	ErrorKind string
	Duration  time.Duration
}

// Report is the outcome of one pass or plan.
type Report struct {
	PassID     string
	StartedAt  time.Time
	FinishedAt time.Time
	Jobs       []JobReport
}

// Dispatched counts jobs that had an action started.
func (r Report) Dispatched() int {
	n := 0
	for _, j := range r.Jobs {
		if j.Dispatched {
			n++
		}
	}
	return n
}

// Failed counts jobs whose evaluation or action failed.
func (r Report) Failed() int {
	n := 0
	for _, j := range r.Jobs {
		if j.Status == StatusFailed {
			n++
		}
	}
	return n
}

// Terminal counts jobs whose every stage postcondition holds.
func (r Report) Terminal() int {
	n := 0
	for _, j := range r.Jobs {
		if j.Terminal {
			n++
		}
	}
	return n
}

// AllTerminal reports whether every job in the report is finished.
func (r Report) AllTerminal() bool {
	return len(r.Jobs) > 0 && r.Terminal() == len(r.Jobs)
}

// Counts tallies jobs by status.
func (r Report) Counts() map[Status]int {
	counts := make(map[Status]int)
	for _, j := range r.Jobs {
		counts[j.Status]++
	}
	return counts
}
