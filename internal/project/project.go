package project

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofrs/flock"

	"simflow/internal/artifact"
	"simflow/internal/config"
	"simflow/internal/engine"
	"simflow/internal/job"
	"simflow/internal/ledger"
	"simflow/internal/logging"
	"simflow/internal/pipelines"
	"simflow/internal/replicate"
	"simflow/internal/scheduler"
	"simflow/internal/stage"
)

// ErrLocked reports that another runner holds the project lock.
var ErrLocked = errors.New("another simflow runner is active for this project")

// Option customizes Open.
type Option func(*options)

type options struct {
	executor engine.Executor
}

// WithExecutor replaces the process executor (primarily for tests).
func WithExecutor(exec engine.Executor) Option {
	return func(o *options) { o.executor = exec }
}

// Project is an opened simflow project.
type Project struct {
	cfg       *config.Config
	logger    *slog.Logger
	jobs      *job.Store
	ledger    *ledger.Store
	registry  *stage.Registry
	scheduler *scheduler.Scheduler

	lockPath string
	lock     *flock.Flock
}

// Open builds every collaborator from cfg. The caller must Close the project.
func Open(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Project, error) {
	if cfg == nil {
		return nil, errors.New("project requires config")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	jobs, err := job.Open(cfg.Paths.WorkspaceDir, logger)
	if err != nil {
		return nil, err
	}
	store, err := ledger.Open(cfg.LedgerPath())
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	runnerOpts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithTimeout(time.Duration(cfg.Workflow.CommandTimeout) * time.Second),
	}
	if o.executor != nil {
		runnerOpts = append(runnerOpts, engine.WithExecutor(o.executor))
	}
	registry, err := pipelines.Build(pipelines.Deps{
		Config:     cfg,
		Runner:     engine.NewRunner(runnerOpts...),
		Evaluator:  artifact.NewEvaluator(logger),
		Replicates: replicate.NewController(logger),
		Logger:     logger,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	sched := scheduler.New(registry,
		scheduler.WithRecorder(store),
		scheduler.WithMaxParallel(cfg.Workflow.MaxParallel),
		scheduler.WithLogger(logger),
	)
	return &Project{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "project"),
		jobs:      jobs,
		ledger:    store,
		registry:  registry,
		scheduler: sched,
		lockPath:  cfg.LockPath(),
		lock:      flock.New(cfg.LockPath()),
	}, nil
}

// Jobs returns the job store.
func (p *Project) Jobs() *job.Store { return p.jobs }

// Ledger returns the pass ledger.
func (p *Project) Ledger() *ledger.Store { return p.ledger }

// Registry returns the pipeline registry.
func (p *Project) Registry() *stage.Registry { return p.registry }

// Lock acquires the single-runner lock without blocking.
func (p *Project) Lock() error {
	ok, err := p.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w (lock %s)", ErrLocked, p.lockPath)
	}
	return nil
}

// Unlock releases the single-runner lock.
func (p *Project) Unlock() {
	if err := p.lock.Unlock(); err != nil {
		logging.WarnWithContext(p.logger, "failed to release project lock", "project_lock_release_failed",
			logging.Error(err),
			logging.String("lock", p.lockPath),
			logging.String(logging.FieldErrorHint, "remove the lock file if no runner is active"),
		)
	}
}

// Close releases resources held by the project.
func (p *Project) Close() error {
	if p.lock.Locked() {
		p.Unlock()
	}
	return p.ledger.Close()
}

// Init creates a workspace for every statepoint that has none yet and
// indexes it in the ledger. It is idempotent.
func (p *Project) Init(ctx context.Context, sps []job.Statepoint) (created, existing int, err error) {
	for _, sp := range sps {
		j, isNew, err := p.jobs.Init(sp)
		if err != nil {
			return created, existing, fmt.Errorf("init %s: %w", sp.Label(), err)
		}
		if isNew {
			created++
		} else {
			existing++
		}
		p.index(ctx, j)
	}
	p.logger.Info("jobs initialized",
		logging.String(logging.FieldEventType, "jobs_initialized"),
		logging.Int("created", created),
		logging.Int("existing", existing),
	)
	return created, existing, nil
}

func (p *Project) index(ctx context.Context, j *job.Job) {
	data, err := json.Marshal(j.Statepoint)
	if err != nil {
		return
	}
	disc, _ := p.registry.Resolve(j.Statepoint.Engine, j.Statepoint.Molecule)
	if err := p.ledger.UpsertJob(ctx, ledger.JobRecord{
		ID:             j.ID,
		Discriminator:  disc,
		Label:          j.Statepoint.Label(),
		StatepointJSON: string(data),
	}); err != nil {
		logging.WarnWithContext(p.logger, "ledger index failed", "ledger_write_failed",
			logging.Error(err),
			logging.String(logging.FieldJobID, j.ID),
			logging.String(logging.FieldImpact, "job missing from history views"),
		)
	}
}

// Pass runs one scheduling pass over every job. The caller must hold the
// project lock.
func (p *Project) Pass(ctx context.Context) (scheduler.Report, error) {
	jobs, err := p.jobs.List()
	if err != nil {
		return scheduler.Report{}, err
	}
	return p.scheduler.Pass(ctx, jobs)
}

// Watch repeats passes at the configured interval until every job is
// terminal or ctx ends. The caller must hold the project lock.
func (p *Project) Watch(ctx context.Context, onReport func(scheduler.Report)) error {
	interval := time.Duration(p.cfg.Workflow.WatchInterval) * time.Second
	return p.scheduler.Watch(ctx, interval, func(context.Context) ([]*job.Job, error) {
		return p.jobs.List()
	}, onReport)
}

// Status evaluates every job without dispatching anything.
func (p *Project) Status(ctx context.Context) (scheduler.Report, error) {
	jobs, err := p.jobs.List()
	if err != nil {
		return scheduler.Report{}, err
	}
	report, err := p.scheduler.Plan(ctx, jobs)
	if err != nil {
		return report, err
	}
	scheduler.SortReports(report.Jobs)
	return report, nil
}

// Rename records one re-keyed job.
type Rename struct {
	OldID string
	NewID string
	Label string
}

// RenameMolecule moves every job of molecule from (restricted to engines
// when given) to molecule to. Each job is re-keyed under its new statepoint
// and its ledger history follows it. The caller must hold the project lock.
func (p *Project) RenameMolecule(ctx context.Context, from, to string, engines []string, dryRun bool) ([]Rename, error) {
	allowed := make(map[string]bool, len(engines))
	for _, e := range engines {
		allowed[e] = true
	}
	matches, err := p.jobs.Find(func(sp job.Statepoint) bool {
		return sp.Molecule == from && (len(allowed) == 0 || allowed[sp.Engine])
	})
	if err != nil {
		return nil, err
	}
	renames := make([]Rename, 0, len(matches))
	for _, j := range matches {
		if dryRun {
			sp := j.Statepoint
			sp.Molecule = to
			id, err := sp.ID()
			if err != nil {
				return renames, err
			}
			renames = append(renames, Rename{OldID: j.ID, NewID: id, Label: sp.Label()})
			continue
		}
		moved, err := p.jobs.UpdateStatepoint(j, func(sp *job.Statepoint) { sp.Molecule = to })
		if err != nil {
			return renames, fmt.Errorf("rename %s: %w", j.ShortID(), err)
		}
		if err := p.ledger.RenameJob(ctx, j.ID, moved.ID); err != nil {
			logging.WarnWithContext(p.logger, "ledger rename failed", "ledger_write_failed",
				logging.Error(err),
				logging.String(logging.FieldJobID, moved.ID),
				logging.String(logging.FieldImpact, "history of the old id stays under the old id"),
			)
		}
		p.index(ctx, moved)
		p.logger.Info("job renamed",
			logging.String(logging.FieldEventType, "job_renamed"),
			logging.String("old_id", j.ID),
			logging.String(logging.FieldJobID, moved.ID),
		)
		renames = append(renames, Rename{OldID: j.ID, NewID: moved.ID, Label: moved.Statepoint.Label()})
	}
	return renames, nil
}
