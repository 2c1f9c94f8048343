package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"regexp"
	"time"

	"simflow/internal/fileutil"
	"simflow/internal/job"
	"simflow/internal/logging"
	"simflow/internal/services"
)

// Option configures a Runner.
type Option func(*Runner)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(r *Runner) {
		if exec != nil {
			r.exec = exec
		}
	}
}

// WithTimeout bounds every command. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) { r.timeout = d }
}

// WithLogger sets the runner logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) { r.logger = logging.NewComponentLogger(logger, "engine") }
}

// Runner executes engine commands. It never retries.
type Runner struct {
	exec    Executor
	timeout time.Duration
	logger  *slog.Logger
}

// NewRunner constructs a Runner backed by os/exec unless overridden.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{exec: commandExecutor{}, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes cmd and converts a non-zero exit into EngineExecutionError.
func (r *Runner) Run(ctx context.Context, cmd Command) (Result, error) {
	if cmd.Path == "" {
		return Result{}, &EngineExecutionError{Command: "<empty>", ExitCode: -1, Cause: errors.New("command path required")}
	}
	runCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	logger := logging.WithContext(ctx, r.logger)
	logger.Debug("engine command starting", logging.String("command", cmd.String()), logging.String("dir", cmd.Dir))

	result, err := r.exec.Execute(runCtx, cmd)
	stage := stageFrom(ctx)
	if err != nil {
		return result, &EngineExecutionError{Stage: stage, Command: cmd.String(), ExitCode: -1, Stderr: result.Stderr, Cause: err}
	}
	if result.ExitCode != 0 {
		return result, &EngineExecutionError{Stage: stage, Command: cmd.String(), ExitCode: result.ExitCode, Stderr: result.Stderr}
	}
	logger.Debug("engine command finished",
		logging.String("command", cmd.String()),
		logging.Duration("duration", result.Duration),
	)
	return result, nil
}

// RunStage runs cmd in the job workspace and persists its output to
// <stage>.stdout and <stage>.stderr for diagnosis, whatever the outcome.
func (r *Runner) RunStage(ctx context.Context, j *job.Job, stage string, cmd Command) (Result, error) {
	if cmd.Dir == "" {
		cmd.Dir = j.Workspace
	}
	result, runErr := r.Run(ctx, cmd)
	var execErr *EngineExecutionError
	if errors.As(runErr, &execErr) {
		execErr.Stage = stage
	}
	if err := persistOutput(j, stage, result); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, r.logger), "failed to persist engine output", "engine_output_persist_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check workspace permissions"),
			logging.String(logging.FieldImpact, "engine stdout/stderr not kept on disk"),
		)
	}
	return result, runErr
}

func stageFrom(ctx context.Context) string {
	stage, _ := services.StageFromContext(ctx)
	return stage
}

func persistOutput(j *job.Job, stage string, result Result) error {
	if err := os.WriteFile(j.Path(stage+".stdout"), []byte(result.Stdout), 0o644); err != nil {
		return err
	}
	return os.WriteFile(j.Path(stage+".stderr"), []byte(result.Stderr), 0o644)
}

// Submission is the content of a <stage>.submitted marker.
type Submission struct {
	Stage       string    `json:"stage"`
	BatchID     string    `json:"batch_id,omitempty"`
	Command     string    `json:"command"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// SubmittedMarker is the marker file name for stage.
func SubmittedMarker(stage string) string {
	return stage + ".submitted"
}

var batchIDPattern = regexp.MustCompile(`(?i)submitted batch job\s+(\d+)`)

// Submit hands cmd to a batch queue and records the submission marker once
// the queue accepted it. The marker is the evidence that keeps later passes
// from submitting the stage again before its real outputs appear.
func (r *Runner) Submit(ctx context.Context, j *job.Job, stage string, cmd Command) (Submission, error) {
	result, err := r.RunStage(ctx, j, stage+".submit", cmd)
	if err != nil {
		return Submission{}, err
	}
	sub := Submission{
		Stage:       stage,
		Command:     cmd.String(),
		SubmittedAt: time.Now().UTC(),
	}
	if m := batchIDPattern.FindStringSubmatch(result.Stdout); m != nil {
		sub.BatchID = m[1]
	}
	data, err := json.MarshalIndent(sub, "", "  ")
	if err != nil {
		return Submission{}, fmt.Errorf("encode submission: %w", err)
	}
	if err := fileutil.WriteFileAtomic(j.Path(SubmittedMarker(stage)), append(data, '\n'), 0o644); err != nil {
		return Submission{}, fmt.Errorf("write submission marker: %w", err)
	}
	logging.WithContext(ctx, r.logger).Info("stage submitted",
		logging.String(logging.FieldEventType, "stage_submitted"),
		logging.String(logging.FieldStage, stage),
		logging.String("batch_id", sub.BatchID),
	)
	return sub, nil
}

// ReadSubmission loads the marker for stage, if present.
func ReadSubmission(j *job.Job, stage string) (Submission, bool, error) {
	data, err := os.ReadFile(j.Path(SubmittedMarker(stage)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Submission{}, false, nil
		}
		return Submission{}, false, err
	}
	var sub Submission
	if err := json.Unmarshal(data, &sub); err != nil {
		return Submission{}, false, fmt.Errorf("decode submission marker: %w", err)
	}
	return sub, true, nil
}
