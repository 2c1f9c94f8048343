package stage

import (
	"context"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"simflow/internal/artifact"
	"simflow/internal/job"
)

// Action performs a stage for one job. It must be idempotent given the
// stage's output renaming convention, since an interrupted action is simply
// dispatched again on a later pass.
type Action func(ctx context.Context, j *job.Job) error

// Definition is an immutable stage declaration. InFlight, when set, holds
// while work the action handed to an external queue is still outstanding;
// the stage is then neither complete nor eligible.
type Definition struct {
	Name     string
	Pre      artifact.Predicate
	Post     artifact.Predicate
	InFlight artifact.Predicate
	Action   Action
}

// Label renders the stage name for tables ("equil_npt" becomes "Equil Npt").
func (d Definition) Label() string {
	return Label(d.Name)
}

// Label title-cases a stage identifier. A Caser keeps state, so each call
// builds its own.
func Label(name string) string {
	if name == "" {
		return ""
	}
	return cases.Title(language.English).String(strings.NewReplacer("_", " ", "-", " ").Replace(name))
}

// Eligibility is the result of evaluating one stage for one job.
type Eligibility struct {
	Stage     string
	PreOK     bool
	PostOK    bool
	InFlight  bool
	FailedPre string
	Err       error
}

// Eligible reports whether the stage should be dispatched.
func (e Eligibility) Eligible() bool {
	return e.Err == nil && e.PreOK && !e.PostOK && !e.InFlight
}

// Evaluate computes eligibility. Outstanding external work is checked
// first: while it runs, the evidence the postcondition reads may be half
// written, so neither predicate is consulted. The postcondition comes next
// so a completed stage never runs its precondition.
func (d Definition) Evaluate(ctx context.Context, j *job.Job) Eligibility {
	result := Eligibility{Stage: d.Name}
	if !d.InFlight.IsZero() {
		inflight, _, err := artifact.Evaluate(ctx, j, d.InFlight)
		if err != nil {
			result.Err = err
			return result
		}
		if inflight {
			result.InFlight = true
			return result
		}
	}
	post, _, err := artifact.Evaluate(ctx, j, d.Post)
	if err != nil {
		result.Err = err
		return result
	}
	result.PostOK = post
	if post {
		return result
	}
	pre, failed, err := artifact.Evaluate(ctx, j, d.Pre)
	if err != nil {
		result.Err = err
		return result
	}
	result.PreOK = pre
	result.FailedPre = failed
	return result
}
