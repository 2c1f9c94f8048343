package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"simflow/internal/job"
	"simflow/internal/ledger"
	"simflow/internal/logging"
	"simflow/internal/services"
	"simflow/internal/stage"
)

// Recorder receives dispatch history. *ledger.Store implements it.
type Recorder interface {
	UpsertJob(ctx context.Context, rec ledger.JobRecord) error
	RecordDispatch(ctx context.Context, d ledger.Dispatch) (int64, error)
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithRecorder records every dispatch.
func WithRecorder(r Recorder) Option {
	return func(s *Scheduler) { s.recorder = r }
}

// WithMaxParallel bounds concurrently dispatched jobs. Values below one
// leave the pass unbounded.
func WithMaxParallel(n int) Option {
	return func(s *Scheduler) { s.maxParallel = n }
}

// WithLogger sets the scheduler logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = logging.NewComponentLogger(logger, "scheduler") }
}

// Scheduler evaluates and dispatches stages from an explicit registry.
type Scheduler struct {
	registry    *stage.Registry
	recorder    Recorder
	maxParallel int
	logger      *slog.Logger
	now         func() time.Time
}

// New constructs a scheduler over registry.
func New(registry *stage.Registry, opts ...Option) *Scheduler {
	s := &Scheduler{
		registry: registry,
		logger:   logging.NewComponentLogger(nil, "scheduler"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// selection is the evaluation of one job before dispatch.
type selection struct {
	report JobReport
	def    *stage.Definition
}

// Plan evaluates every job without dispatching anything.
func (s *Scheduler) Plan(ctx context.Context, jobs []*job.Job) (Report, error) {
	report := Report{StartedAt: s.now()}
	report.Jobs = make([]JobReport, len(jobs))
	for i, j := range jobs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Jobs[i] = s.evaluate(ctx, j).report
	}
	report.FinishedAt = s.now()
	return report, nil
}

// Pass evaluates every job and dispatches at most one stage per job. Job
// failures are captured in the report. The error is non-nil only when ctx
// ends the pass early.
func (s *Scheduler) Pass(ctx context.Context, jobs []*job.Job) (Report, error) {
	passID := uuid.NewString()
	ctx = services.WithPassID(ctx, passID)
	logger := logging.WithContext(ctx, s.logger)
	report := Report{PassID: passID, StartedAt: s.now(), Jobs: make([]JobReport, len(jobs))}

	logger.Info("pass started",
		logging.String(logging.FieldEventType, "pass_start"),
		logging.Int("jobs", len(jobs)),
	)

	g, gctx := errgroup.WithContext(ctx)
	if s.maxParallel > 0 {
		g.SetLimit(s.maxParallel)
	}
	for i, j := range jobs {
		g.Go(func() error {
			report.Jobs[i] = s.runJob(gctx, passID, j)
			return nil
		})
	}
	_ = g.Wait()
	report.FinishedAt = s.now()

	logger.Info("pass finished",
		logging.String(logging.FieldEventType, "pass_complete"),
		logging.Int("jobs", len(jobs)),
		logging.Int("dispatched", report.Dispatched()),
		logging.Int("failed", report.Failed()),
		logging.Int("terminal", report.Terminal()),
		logging.Duration("pass_duration", report.FinishedAt.Sub(report.StartedAt)),
	)
	return report, ctx.Err()
}

func (s *Scheduler) runJob(ctx context.Context, passID string, j *job.Job) JobReport {
	ctx = services.WithJobID(ctx, j.ID)
	sel := s.evaluate(ctx, j)
	s.indexJob(ctx, j, sel.report.Discriminator)
	if sel.def == nil {
		return sel.report
	}

	def := *sel.def
	result := sel.report
	stageCtx := services.WithStage(ctx, def.Name)
	logger := logging.WithContext(stageCtx, s.logger)

	started := s.now()
	result.Status = StatusRunning
	result.Dispatched = true
	logger.Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("job", j.Statepoint.Label()),
	)

	err := runAction(stageCtx, def, j)
	finished := s.now()
	result.Duration = finished.Sub(started)

	dispatch := ledger.Dispatch{
		PassID:     passID,
		JobID:      j.ID,
		Stage:      def.Name,
		StartedAt:  started,
		FinishedAt: finished,
	}
	if err != nil {
		details := services.Details(err)
		result.Status = StatusFailed
		result.Err = err
		result.ErrorKind = details.Kind
		dispatch.Outcome = ledger.OutcomeFailed
		dispatch.ErrorKind = details.Kind
		dispatch.ErrorMessage = err.Error()

		attrs := []logging.Attr{
			logging.Alert("stage_failure"),
			logging.String(logging.FieldEventType, "stage_failure"),
			logging.String(logging.FieldErrorKind, details.Kind),
			logging.String(logging.FieldErrorOperation, details.Operation),
			logging.String(logging.FieldErrorHint, failureHint(err)),
			logging.Duration("stage_duration", result.Duration),
			logging.Error(err),
		}
		logger.Error("stage failed", logging.Args(attrs...)...)
	} else {
		result.Status = StatusCompleted
		dispatch.Outcome = ledger.OutcomeCompleted
		logger.Info("stage completed",
			logging.String(logging.FieldEventType, "stage_complete"),
			logging.Duration("stage_duration", result.Duration),
		)
	}
	s.record(ctx, dispatch)
	return result
}

// runAction converts a panicking action into a job-local failure.
func runAction(ctx context.Context, def stage.Definition, j *job.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("stage %s panicked: %v", def.Name, r)
		}
	}()
	return def.Action(ctx, j)
}

// evaluate picks the first eligible stage in declaration order.
func (s *Scheduler) evaluate(ctx context.Context, j *job.Job) selection {
	report := JobReport{JobID: j.ID, Label: j.Statepoint.Label()}
	disc, defs := s.registry.Resolve(j.Statepoint.Engine, j.Statepoint.Molecule)
	report.Discriminator = disc
	report.StageCount = len(defs)
	if len(defs) == 0 {
		report.Status = StatusNotEligible
		report.Blocker = fmt.Sprintf("no pipeline registered for %s", stage.Discriminator(j.Statepoint.Engine, j.Statepoint.Molecule))
		return selection{report: report}
	}

	firstIncomplete := -1
	inFlight := false
	for i := range defs {
		elig := defs[i].Evaluate(ctx, j)
		if elig.Err != nil {
			report.Stage = defs[i].Name
			report.StageIndex = i
			report.Status = StatusFailed
			report.Err = elig.Err
			report.ErrorKind = services.Kind(elig.Err)
			logging.WarnWithContext(logging.WithContext(services.WithStage(ctx, defs[i].Name), s.logger),
				"stage evaluation failed", "stage_evaluation_failed",
				logging.Error(elig.Err),
				logging.String(logging.FieldErrorKind, report.ErrorKind),
				logging.String(logging.FieldErrorHint, "inspect the job workspace and state document"),
				logging.String(logging.FieldImpact, "job skipped for this pass"),
			)
			return selection{report: report}
		}
		if elig.Eligible() {
			report.Stage = defs[i].Name
			report.StageIndex = i
			report.Status = StatusEligible
			return selection{report: report, def: &defs[i]}
		}
		if !elig.PostOK && firstIncomplete < 0 {
			firstIncomplete = i
			report.Blocker = elig.FailedPre
			if elig.InFlight {
				inFlight = true
				report.Blocker = "awaiting result of submitted work"
			}
		}
	}

	if firstIncomplete < 0 {
		report.Terminal = true
		report.Status = StatusCompleted
		report.StageIndex = len(defs)
		return selection{report: report}
	}
	report.Stage = defs[firstIncomplete].Name
	report.StageIndex = firstIncomplete
	report.Status = StatusNotEligible
	if inFlight {
		report.Status = StatusRunning
	}
	logging.WithContext(ctx, s.logger).Debug("no eligible stage",
		logging.String(logging.FieldEventType, "stage_skipped"),
		logging.String(logging.FieldStage, report.Stage),
		logging.String("blocker", report.Blocker),
	)
	return selection{report: report}
}

func (s *Scheduler) indexJob(ctx context.Context, j *job.Job, disc string) {
	if s.recorder == nil {
		return
	}
	data, err := json.Marshal(j.Statepoint)
	if err != nil {
		return
	}
	if err := s.recorder.UpsertJob(ctx, ledger.JobRecord{
		ID:             j.ID,
		Discriminator:  disc,
		Label:          j.Statepoint.Label(),
		StatepointJSON: string(data),
	}); err != nil {
		s.warnLedger(ctx, err)
	}
}

func (s *Scheduler) record(ctx context.Context, d ledger.Dispatch) {
	if s.recorder == nil {
		return
	}
	// History is written even when the pass context was cancelled mid-stage.
	if _, err := s.recorder.RecordDispatch(context.WithoutCancel(ctx), d); err != nil {
		s.warnLedger(ctx, err)
	}
}

func (s *Scheduler) warnLedger(ctx context.Context, err error) {
	logging.WarnWithContext(logging.WithContext(ctx, s.logger), "ledger write failed", "ledger_write_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check the state directory; delete ledger.db to reset history"),
		logging.String(logging.FieldImpact, "dispatch history incomplete; scheduling unaffected"),
	)
}

func failureHint(err error) string {
	switch {
	case errors.Is(err, services.ErrEngineExecution):
		return "inspect <stage>.stderr in the job workspace"
	case errors.Is(err, services.ErrIncompleteOutput):
		return "engine exited cleanly without all outputs; inspect the workspace"
	case errors.Is(err, services.ErrCorruptArtifact):
		return "repair or remove the corrupt artifact"
	case errors.Is(err, services.ErrReplicateOverrun):
		return "check replicates_completed in document.json"
	case errors.Is(err, services.ErrConfiguration):
		return "fix simflow.toml"
	default:
		return "check logs for details"
	}
}

// Watch runs passes every interval until every job is terminal or ctx ends.
// load is called before each pass so new jobs join without a restart.
func (s *Scheduler) Watch(ctx context.Context, interval time.Duration, load func(context.Context) ([]*job.Job, error), onReport func(Report)) error {
	if interval <= 0 {
		interval = time.Minute
	}
	for {
		jobs, err := load(ctx)
		if err != nil {
			return err
		}
		report, err := s.Pass(ctx, jobs)
		if onReport != nil {
			onReport(report)
		}
		if err != nil {
			return err
		}
		if len(jobs) == 0 || report.AllTerminal() {
			return nil
		}
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// SortReports orders job reports by label for display.
func SortReports(reports []JobReport) {
	sort.SliceStable(reports, func(a, b int) bool {
		if reports[a].Label != reports[b].Label {
			return reports[a].Label < reports[b].Label
		}
		return reports[a].JobID < reports[b].JobID
	})
}
