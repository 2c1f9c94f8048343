package equilibration

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"testing"

	"simflow/internal/artifact"
	"simflow/internal/config"
	"simflow/internal/engine"
	"simflow/internal/job"
	"simflow/internal/services"
)

// columnClassifier marks series equilibrated by their first value, so a
// table row prefix decides each column's verdict.
type columnClassifier struct {
	calls int
}

func (c *columnClassifier) IsEquilibrated(_ context.Context, series []float64) (Result, error) {
	c.calls++
	return Result{Equilibrated: len(series) > 0 && series[0] > 0}, nil
}

func newJob(t *testing.T) *job.Job {
	t.Helper()
	return &job.Job{ID: "0123abcd", Workspace: t.TempDir()}
}

func TestLatestRequiresEveryColumn(t *testing.T) {
	j := newJob(t)
	// columns 1, 2, 4 positive; column 6 negative.
	table := "0 1 1 0 1 0 -1\n1 1 1 0 1 0 -1\n"
	if err := os.WriteFile(j.Path("eqlog4.txt"), []byte(table), 0o644); err != nil {
		t.Fatal(err)
	}
	classifier := &columnClassifier{}
	check := Check{
		Evaluator:  artifact.NewEvaluator(nil),
		Classifier: classifier,
		Pattern:    "eqlog*.txt",
		Columns:    []int{1, 2, 4, 6},
	}
	ok, err := check.Latest(context.Background(), j)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if ok {
		t.Fatal("three of four equilibrated must be false")
	}
	if classifier.calls != 4 {
		t.Fatalf("expected every column classified, got %d", classifier.calls)
	}

	table = "0 1 1 0 1 0 1\n"
	if err := os.WriteFile(j.Path("eqlog12.txt"), []byte(table), 0o644); err != nil {
		t.Fatal(err)
	}
	if ok, err := check.Latest(context.Background(), j); err != nil || !ok {
		t.Fatalf("latest artifact is fully equilibrated, got ok=%v err=%v", ok, err)
	}
}

func TestLatestWithoutArtifactSkipsClassifier(t *testing.T) {
	classifier := &columnClassifier{}
	check := Check{Evaluator: artifact.NewEvaluator(nil), Classifier: classifier, Pattern: "eqlog*.txt", Columns: []int{1}}
	ok, err := check.Latest(context.Background(), newJob(t))
	if err != nil || ok {
		t.Fatalf("expected false without artifact, got ok=%v err=%v", ok, err)
	}
	if classifier.calls != 0 {
		t.Fatal("classifier must not be consulted")
	}
}

func TestDriftClassifier(t *testing.T) {
	d := DriftClassifier{Threshold: 5, ProdFraction: 0.5}
	rng := rand.New(rand.NewSource(7))

	flat := make([]float64, 400)
	for i := range flat {
		flat[i] = 10 + rng.NormFloat64()*0.1
	}
	res, err := d.IsEquilibrated(context.Background(), flat)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Equilibrated {
		t.Fatalf("stationary noise should be equilibrated: %+v", res.Metadata)
	}

	ramp := make([]float64, 400)
	for i := range ramp {
		ramp[i] = float64(i) + rng.NormFloat64()*0.1
	}
	res, _ = d.IsEquilibrated(context.Background(), ramp)
	if res.Equilibrated {
		t.Fatalf("drifting series must not be equilibrated: %+v", res.Metadata)
	}

	res, _ = d.IsEquilibrated(context.Background(), []float64{1, 1})
	if res.Equilibrated {
		t.Fatal("too few samples must not be equilibrated")
	}
}

type stubExecutor struct {
	stdout string
	stdin  string
}

func (s *stubExecutor) Execute(_ context.Context, cmd engine.Command) (engine.Result, error) {
	s.stdin = cmd.Stdin
	return engine.Result{Stdout: s.stdout}, nil
}

func TestExternalClassifier(t *testing.T) {
	exec := &stubExecutor{stdout: `{"equilibrated": true, "metadata": {"t0": 12}}`}
	runner := engine.NewRunner(engine.WithExecutor(exec))
	classifier, err := NewClassifier(config.Equilibration{Method: MethodExternal, Command: "python is_equilibrated.py"}, runner)
	if err != nil {
		t.Fatalf("NewClassifier: %v", err)
	}
	res, err := classifier.IsEquilibrated(context.Background(), []float64{1.5, 2})
	if err != nil {
		t.Fatalf("IsEquilibrated: %v", err)
	}
	if !res.Equilibrated || res.Metadata["t0"] != 12 {
		t.Fatalf("unexpected result %+v", res)
	}
	if exec.stdin != "1.5\n2\n" {
		t.Fatalf("stdin = %q", exec.stdin)
	}
}

func TestNewClassifierRejectsUnknownMethod(t *testing.T) {
	_, err := NewClassifier(config.Equilibration{Method: "magic"}, nil)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
	if _, err := NewClassifier(config.Equilibration{Method: MethodExternal}, nil); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("empty external command should be rejected, got %v", err)
	}
}
