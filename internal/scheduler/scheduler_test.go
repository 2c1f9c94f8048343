package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"simflow/internal/artifact"
	"simflow/internal/job"
	"simflow/internal/ledger"
	"simflow/internal/replicate"
	"simflow/internal/stage"
)

const marker = "Program ended"

type memRecorder struct {
	mu         sync.Mutex
	jobs       map[string]ledger.JobRecord
	dispatches []ledger.Dispatch
}

func (m *memRecorder) UpsertJob(_ context.Context, rec ledger.JobRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.jobs == nil {
		m.jobs = make(map[string]ledger.JobRecord)
	}
	m.jobs[rec.ID] = rec
	return nil
}

func (m *memRecorder) RecordDispatch(_ context.Context, d ledger.Dispatch) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dispatches = append(m.dispatches, d)
	return int64(len(m.dispatches)), nil
}

func newStore(t *testing.T) *job.Store {
	t.Helper()
	store, err := job.Open(filepath.Join(t.TempDir(), "workspace"), nil)
	if err != nil {
		t.Fatal(err)
	}
	return store
}

func newJob(t *testing.T, store *job.Store, replica int) *job.Job {
	t.Helper()
	j, _, err := store.Init(job.Statepoint{Molecule: "methane", Engine: "mcccs", Temperature: 140, Pressure: 1318, Replica: replica})
	if err != nil {
		t.Fatal(err)
	}
	return j
}

func touch(name, content string) stage.Action {
	return func(_ context.Context, j *job.Job) error {
		return os.WriteFile(j.Path(name), []byte(content), 0o644)
	}
}

type counter struct {
	mu    sync.Mutex
	calls map[string]int
}

func (c *counter) wrap(name string, action stage.Action) stage.Action {
	return func(ctx context.Context, j *job.Job) error {
		c.mu.Lock()
		if c.calls == nil {
			c.calls = make(map[string]int)
		}
		c.calls[name]++
		c.mu.Unlock()
		return action(ctx, j)
	}
}

func (c *counter) get(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[name]
}

func TestPassDispatchesFirstEligibleStageOnly(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	j := newJob(t, store, 0)
	calls := &counter{}

	reg := stage.NewRegistry()
	reg.MustRegister(stage.Discriminator("mcccs", "methane"),
		stage.Definition{Name: "copy_files", Post: artifact.Exists("fort.4.melt"), Action: calls.wrap("copy_files", touch("fort.4.melt", "x"))},
		stage.Definition{Name: "copy_topmon", Post: artifact.Exists("topmon.inp"), Action: calls.wrap("copy_topmon", touch("topmon.inp", "x"))},
	)
	s := New(reg)

	report, err := s.Pass(ctx, []*job.Job{j})
	if err != nil {
		t.Fatalf("Pass: %v", err)
	}
	if report.Dispatched() != 1 || report.Jobs[0].Stage != "copy_files" {
		t.Fatalf("unexpected report %+v", report.Jobs)
	}
	if calls.get("copy_topmon") != 0 {
		t.Fatal("second stage must wait for the next pass")
	}

	report, _ = s.Pass(ctx, []*job.Job{j})
	if report.Jobs[0].Stage != "copy_topmon" || calls.get("copy_files") != 1 {
		t.Fatalf("second pass report %+v calls %v", report.Jobs, calls.calls)
	}

	report, _ = s.Pass(ctx, []*job.Job{j})
	if !report.AllTerminal() || report.Dispatched() != 0 {
		t.Fatalf("expected terminal job, got %+v", report.Jobs)
	}
}

func TestCompletedStageIsNeverDispatched(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	j := newJob(t, store, 0)
	var ran atomic.Int32

	reg := stage.NewRegistry()
	reg.MustRegister(stage.Discriminator("mcccs", stage.Wildcard), stage.Definition{
		Name:   "melt",
		Pre:    artifact.True(),
		Post:   artifact.True(),
		Action: func(context.Context, *job.Job) error { ran.Add(1); return nil },
	})
	report, err := New(reg).Pass(ctx, []*job.Job{j})
	if err != nil {
		t.Fatal(err)
	}
	if ran.Load() != 0 || report.Dispatched() != 0 || !report.Jobs[0].Terminal {
		t.Fatalf("stage with satisfied postcondition ran: %+v", report.Jobs[0])
	}
}

func TestRepeatedPassWithoutNewEvidenceIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	j := newJob(t, store, 0)
	calls := &counter{}

	reg := stage.NewRegistry()
	reg.MustRegister(stage.Discriminator("mcccs", "methane"),
		stage.Definition{
			Name:   "em_nvt",
			Post:   artifact.Exists("em_nvt.submitted"),
			Action: calls.wrap("em_nvt", touch("em_nvt.submitted", "{}")),
		},
		stage.Definition{
			Name:   "equil_npt",
			Pre:    artifact.Exists("minimized.restart-0"),
			Post:   artifact.Exists("equil_npt.submitted"),
			Action: calls.wrap("equil_npt", touch("equil_npt.submitted", "{}")),
		},
	)
	s := New(reg)
	if _, err := s.Pass(ctx, []*job.Job{j}); err != nil {
		t.Fatal(err)
	}

	before, _ := j.Document().Load()
	for i := 0; i < 2; i++ {
		report, err := s.Pass(ctx, []*job.Job{j})
		if err != nil {
			t.Fatal(err)
		}
		if report.Dispatched() != 0 {
			t.Fatalf("pass %d dispatched %+v", i, report.Jobs)
		}
		if report.Jobs[0].Stage != "equil_npt" || report.Jobs[0].Status != StatusNotEligible {
			t.Fatalf("unexpected report %+v", report.Jobs[0])
		}
		if report.Jobs[0].Blocker != "exists(minimized.restart-0)" {
			t.Fatalf("blocker = %q", report.Jobs[0].Blocker)
		}
	}
	after, _ := j.Document().Load()
	if len(before) != len(after) || calls.get("em_nvt") != 1 || calls.get("equil_npt") != 0 {
		t.Fatalf("state changed without new evidence: calls=%v", calls.calls)
	}
}

func TestFailuresAreIsolatedPerJob(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	bad := newJob(t, store, 0)
	good := newJob(t, store, 1)
	broken := newJob(t, store, 2)
	if err := os.WriteFile(broken.Path("document.json"), []byte("[]"), 0o644); err != nil {
		t.Fatal(err)
	}
	rec := &memRecorder{}

	reg := stage.NewRegistry()
	reg.MustRegister(stage.Discriminator("mcccs", "methane"), stage.Definition{
		Name: "melt",
		Pre: artifact.New("doc_readable", func(_ context.Context, j *job.Job) (bool, error) {
			_, err := j.Document().Load()
			return err == nil, err
		}),
		Post: artifact.LogMarker("run.melt", marker),
		Action: func(_ context.Context, j *job.Job) error {
			if j.ID == bad.ID {
				return errors.New("topmon crashed")
			}
			return os.WriteFile(j.Path("run.melt"), []byte(marker), 0o644)
		},
	})

	report, err := New(reg, WithRecorder(rec), WithMaxParallel(2)).Pass(ctx, []*job.Job{bad, good, broken})
	if err != nil {
		t.Fatalf("Pass: %v", err)
	}
	byID := map[string]JobReport{}
	for _, r := range report.Jobs {
		byID[r.JobID] = r
	}
	if byID[bad.ID].Status != StatusFailed || byID[bad.ID].Err == nil {
		t.Fatalf("bad job: %+v", byID[bad.ID])
	}
	if byID[good.ID].Status != StatusCompleted {
		t.Fatalf("good job: %+v", byID[good.ID])
	}
	if byID[broken.ID].Status != StatusFailed || byID[broken.ID].ErrorKind != "corrupt_artifact" || byID[broken.ID].Dispatched {
		t.Fatalf("broken job: %+v", byID[broken.ID])
	}
	if len(rec.dispatches) != 2 {
		t.Fatalf("expected 2 recorded dispatches, got %+v", rec.dispatches)
	}
	for _, d := range rec.dispatches {
		if d.PassID != report.PassID {
			t.Fatalf("dispatch pass id %q != %q", d.PassID, report.PassID)
		}
		if d.JobID == bad.ID && (d.Outcome != ledger.OutcomeFailed || d.ErrorMessage == "") {
			t.Fatalf("failed dispatch not recorded: %+v", d)
		}
	}
	if len(rec.jobs) != 3 {
		t.Fatalf("expected 3 indexed jobs, got %d", len(rec.jobs))
	}
}

func TestReplicatePipelineReachesTarget(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	j := newJob(t, store, 0)
	ctrl := replicate.NewController(nil)
	var runs []string

	prod := replicate.Stage{
		Base: "production",
		Evidence: func(name string) artifact.Predicate {
			return artifact.LogMarker("run."+name, marker)
		},
		Run: func(_ context.Context, j *job.Job, name string) error {
			runs = append(runs, name)
			return os.WriteFile(j.Path("run."+name), []byte(marker), 0o644)
		},
	}
	reg := stage.NewRegistry()
	reg.MustRegister(stage.Discriminator("mcccs", "methane"),
		ctrl.TargetStage("set_prod_replicates", artifact.True(), 4),
		ctrl.AsStage(prod),
	)
	s := New(reg)

	for i := 0; i < 5; i++ {
		if _, err := s.Pass(ctx, []*job.Job{j}); err != nil {
			t.Fatal(err)
		}
	}
	completed, target, _, err := replicate.Progress(j)
	if err != nil {
		t.Fatal(err)
	}
	if completed != 4 || target != 4 {
		t.Fatalf("progress %d/%d", completed, target)
	}
	if len(runs) != 4 || runs[3] != "production4" {
		t.Fatalf("runs = %v", runs)
	}

	report, _ := s.Pass(ctx, []*job.Job{j})
	if report.Dispatched() != 0 || !report.AllTerminal() {
		t.Fatalf("pass after target dispatched %+v", report.Jobs)
	}
}

func TestPlanDoesNotDispatch(t *testing.T) {
	store := newStore(t)
	j := newJob(t, store, 0)
	var ran atomic.Int32
	reg := stage.NewRegistry()
	reg.MustRegister(stage.Discriminator("mcccs", "methane"), stage.Definition{
		Name:   "copy_files",
		Post:   artifact.Exists("fort.4.melt"),
		Action: func(context.Context, *job.Job) error { ran.Add(1); return nil },
	})
	report, err := New(reg).Plan(context.Background(), []*job.Job{j})
	if err != nil {
		t.Fatal(err)
	}
	if ran.Load() != 0 || report.Jobs[0].Status != StatusEligible || report.Jobs[0].Dispatched {
		t.Fatalf("plan dispatched or misreported: %+v", report.Jobs[0])
	}
}

func TestUnknownPipelineIsNotEligible(t *testing.T) {
	store := newStore(t)
	j := newJob(t, store, 0)
	report, err := New(stage.NewRegistry()).Pass(context.Background(), []*job.Job{j})
	if err != nil {
		t.Fatal(err)
	}
	if report.Jobs[0].Status != StatusNotEligible || report.Jobs[0].Blocker == "" {
		t.Fatalf("unexpected report %+v", report.Jobs[0])
	}
}

func TestWatchStopsWhenTerminal(t *testing.T) {
	store := newStore(t)
	j := newJob(t, store, 0)
	reg := stage.NewRegistry()
	reg.MustRegister(stage.Discriminator("mcccs", "methane"),
		stage.Definition{Name: "a", Post: artifact.Exists("a"), Action: touch("a", "")},
		stage.Definition{Name: "b", Post: artifact.Exists("b"), Action: touch("b", "")},
	)
	passes := 0
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := New(reg).Watch(ctx, time.Millisecond,
		func(context.Context) ([]*job.Job, error) { return []*job.Job{j}, nil },
		func(Report) { passes++ },
	)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if passes != 3 {
		t.Fatalf("expected 3 passes, got %d", passes)
	}
}
