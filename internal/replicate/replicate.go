// Package replicate repeats one stage a fixed number of times per job.
//
// The State Document is the only record of progress: replicates_completed
// counts replicates whose completion evidence exists, and
// num_target_replicates is the goal. Each attempt runs replicate
// replicates_completed+1 under a replicate-qualified name (production1,
// production2, ...) so runs never overwrite each other's evidence. The
// counter moves only after that evidence is on disk, and evidence found
// before running (a restart after the engine finished) is counted without
// running again.
package replicate

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"simflow/internal/artifact"
	"simflow/internal/job"
	"simflow/internal/logging"
	"simflow/internal/services"
	"simflow/internal/stage"
)

// Outcome describes what AttemptNext did.
type Outcome string

const (
	// OutcomeSatisfied means the target was already reached; nothing ran.
	OutcomeSatisfied Outcome = "satisfied"
	// OutcomeRecovered means evidence already existed and was counted.
	OutcomeRecovered Outcome = "recovered"
	// OutcomeCompleted means the replicate ran and its evidence was counted.
	OutcomeCompleted Outcome = "completed"
)

// Stage is a repeatable stage. Evidence returns the completion predicate for
// a replicate-qualified name and Run performs that replicate.
type Stage struct {
	Base     string
	Pre      artifact.Predicate
	Evidence func(name string) artifact.Predicate
	Run      func(ctx context.Context, j *job.Job, name string) error
}

// Name returns the replicate-qualified stage name for ordinal.
func (s Stage) Name(ordinal int) string {
	return s.Base + strconv.Itoa(ordinal)
}

// ReplicateOverrunError reports an increment that would break
// replicates_completed <= num_target_replicates or count a replicate twice.
type ReplicateOverrunError struct {
	JobID     string
	Completed int
	Target    int
	Reason    string
}

func (e *ReplicateOverrunError) Error() string {
	return fmt.Sprintf("replicate overrun for job %s: completed=%d target=%d: %s", e.JobID, e.Completed, e.Target, e.Reason)
}

func (e *ReplicateOverrunError) Is(target error) bool {
	return target == services.ErrReplicateOverrun
}

// Controller advances replicate stages.
type Controller struct {
	logger *slog.Logger
}

// NewController builds a controller.
func NewController(logger *slog.Logger) *Controller {
	return &Controller{logger: logging.NewComponentLogger(logger, "replicate")}
}

// Progress reads the counter and target from the State Document.
func Progress(j *job.Job) (completed, target int, targetSet bool, err error) {
	values, err := j.Document().Load()
	if err != nil {
		return 0, 0, false, err
	}
	completed, _ = values.Int(job.KeyReplicatesCompleted)
	target, targetSet = values.Int(job.KeyNumTargetReplicates)
	return completed, target, targetSet, nil
}

// SetTarget records the replicate target once and initializes the counter.
// An existing target is left alone so a config change never rewrites the
// goal of a job already in production.
func (c *Controller) SetTarget(ctx context.Context, j *job.Job, target int) error {
	if target < 0 {
		return services.Wrap(services.ErrValidation, "", "set replicate target", fmt.Sprintf("target %d is negative", target), nil)
	}
	return j.Document().Update(ctx, func(v job.Values) error {
		if _, ok := v.Int(job.KeyNumTargetReplicates); !ok {
			v[job.KeyNumTargetReplicates] = int64(target)
		}
		if _, ok := v.Int(job.KeyReplicatesCompleted); !ok {
			v[job.KeyReplicatesCompleted] = int64(0)
		}
		return nil
	})
}

// AttemptNext advances st by at most one replicate toward target.
func (c *Controller) AttemptNext(ctx context.Context, j *job.Job, st Stage, target int) (Outcome, error) {
	completed, _, _, err := Progress(j)
	if err != nil {
		return "", err
	}
	if completed >= target {
		return OutcomeSatisfied, nil
	}

	name := st.Name(completed + 1)
	ctx = services.WithStage(ctx, name)
	logger := logging.WithContext(ctx, c.logger)

	done, err := st.Evidence(name).Eval(ctx, j)
	if err != nil {
		return "", err
	}
	if done {
		if err := c.increment(ctx, j, completed, target); err != nil {
			return "", err
		}
		logger.Info("replicate evidence recovered",
			logging.String(logging.FieldEventType, "replicate_recovered"),
			logging.Int("replicates_completed", completed+1),
			logging.Int("num_target_replicates", target),
		)
		return OutcomeRecovered, nil
	}

	if err := st.Run(ctx, j, name); err != nil {
		return "", err
	}

	done, err = st.Evidence(name).Eval(ctx, j)
	if err != nil {
		return "", err
	}
	if !done {
		return "", services.Wrap(services.ErrEngineExecution, name, "replicate", "run finished without completion evidence", nil)
	}
	if err := c.increment(ctx, j, completed, target); err != nil {
		return "", err
	}
	logger.Info("replicate completed",
		logging.String(logging.FieldEventType, "replicate_completed"),
		logging.Int("replicates_completed", completed+1),
		logging.Int("num_target_replicates", target),
	)
	return OutcomeCompleted, nil
}

// increment moves the counter from expected to expected+1. It re-reads the
// document under its lock and refuses if another pass already moved the
// counter or the target is reached.
func (c *Controller) increment(ctx context.Context, j *job.Job, expected, target int) error {
	return j.Document().Update(ctx, func(v job.Values) error {
		current, _ := v.Int(job.KeyReplicatesCompleted)
		if current != expected {
			return &ReplicateOverrunError{JobID: j.ID, Completed: current, Target: target, Reason: fmt.Sprintf("counter moved from %d during attempt", expected)}
		}
		if current >= target {
			return &ReplicateOverrunError{JobID: j.ID, Completed: current, Target: target, Reason: "target already reached"}
		}
		v[job.KeyReplicatesCompleted] = int64(current + 1)
		return nil
	})
}

// TargetReached holds when the counter equals the recorded target.
func TargetReached() artifact.Predicate {
	return artifact.New("replicates_done", func(_ context.Context, j *job.Job) (bool, error) {
		completed, target, ok, err := Progress(j)
		if err != nil || !ok {
			return false, err
		}
		return completed == target, nil
	})
}

// TargetSet holds once num_target_replicates is recorded.
func TargetSet() artifact.Predicate {
	return artifact.DocumentInt("replicate_target_set", job.KeyNumTargetReplicates, func(int) bool { return true })
}

// AsStage wraps st as a stage definition. Its postcondition is the target
// being reached and its action advances one replicate, so each scheduling
// pass moves the counter by at most one.
func (c *Controller) AsStage(st Stage) stage.Definition {
	return stage.Definition{
		Name: st.Base,
		Pre:  artifact.All(st.Base+"_ready", st.Pre, TargetSet()),
		Post: TargetReached(),
		Action: func(ctx context.Context, j *job.Job) error {
			_, target, ok, err := Progress(j)
			if err != nil {
				return err
			}
			if !ok {
				return services.Wrap(services.ErrValidation, st.Base, "replicate", "num_target_replicates is not set", nil)
			}
			_, err = c.AttemptNext(ctx, j, st, target)
			return err
		},
	}
}

// TargetStage is the stage that records the replicate target (the first
// stage of a replicate-bearing pipeline).
func (c *Controller) TargetStage(name string, pre artifact.Predicate, target int) stage.Definition {
	return stage.Definition{
		Name: name,
		Pre:  pre,
		Post: TargetSet(),
		Action: func(ctx context.Context, j *job.Job) error {
			return c.SetTarget(ctx, j, target)
		},
	}
}
