package job

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"simflow/internal/services"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "workspace"), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return store
}

func TestStoreInitIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	sp := sampleStatepoint()

	first, created, err := store.Init(sp)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if !created {
		t.Fatal("expected first Init to create the job")
	}
	if _, err := os.Stat(first.Path(statepointFile)); err != nil {
		t.Fatalf("statepoint not written: %v", err)
	}

	second, created, err := store.Init(sp)
	if err != nil {
		t.Fatalf("second Init: %v", err)
	}
	if created {
		t.Fatal("second Init should not recreate the job")
	}
	if second.ID != first.ID {
		t.Fatalf("ids differ: %s vs %s", first.ID, second.ID)
	}
}

func TestStoreGetAndResolve(t *testing.T) {
	store := newTestStore(t)
	j, _, err := store.Init(sampleStatepoint())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	got, err := store.Get(j.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Statepoint != j.Statepoint {
		t.Fatalf("statepoint mismatch: %+v", got.Statepoint)
	}

	resolved, err := store.Resolve(j.ShortID())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolved.ID != j.ID {
		t.Fatalf("resolved %s, want %s", resolved.ID, j.ID)
	}

	if _, err := store.Get("missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreListSkipsDamagedWorkspaces(t *testing.T) {
	store := newTestStore(t)
	sp := sampleStatepoint()
	if _, _, err := store.Init(sp); err != nil {
		t.Fatal(err)
	}
	sp.Replica = 1
	if _, _, err := store.Init(sp); err != nil {
		t.Fatal(err)
	}

	// Directory name does not match the statepoint hash.
	bogus := filepath.Join(store.Root(), "deadbeef")
	if err := os.MkdirAll(bogus, 0o755); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(filepath.Join(store.Root(), mustID(t, sp), statepointFile))
	if err := os.WriteFile(filepath.Join(bogus, statepointFile), data, 0o644); err != nil {
		t.Fatal(err)
	}
	// Workspace without any statepoint.
	if err := os.MkdirAll(filepath.Join(store.Root(), "empty"), 0o755); err != nil {
		t.Fatal(err)
	}

	jobs, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	if jobs[0].ID > jobs[1].ID {
		t.Fatal("jobs not sorted by id")
	}

	replicaOne, err := store.Find(func(sp Statepoint) bool { return sp.Replica == 1 })
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(replicaOne) != 1 || replicaOne[0].Statepoint.Replica != 1 {
		t.Fatalf("unexpected Find result %+v", replicaOne)
	}
}

func TestStoreUpdateStatepointRekeys(t *testing.T) {
	store := newTestStore(t)
	j, _, err := store.Init(sampleStatepoint())
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(j.Path("run.melt"), []byte("Program ended\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	moved, err := store.UpdateStatepoint(j, func(sp *Statepoint) { sp.Molecule = "methane" })
	if err != nil {
		t.Fatalf("UpdateStatepoint: %v", err)
	}
	if moved.ID == j.ID {
		t.Fatal("id should change with the molecule")
	}
	if _, err := os.Stat(moved.Path("run.melt")); err != nil {
		t.Fatalf("artifact not carried over: %v", err)
	}
	if _, err := os.Stat(j.Workspace); !os.IsNotExist(err) {
		t.Fatalf("old workspace still present: %v", err)
	}
	reloaded, err := store.Get(moved.ID)
	if err != nil {
		t.Fatalf("Get after rename: %v", err)
	}
	if reloaded.Statepoint.Molecule != "methane" {
		t.Fatalf("statepoint not rewritten: %+v", reloaded.Statepoint)
	}
}

func TestStoreUpdateStatepointRefusesCollision(t *testing.T) {
	store := newTestStore(t)
	a, _, _ := store.Init(sampleStatepoint())
	sp := sampleStatepoint()
	sp.Replica = 3
	if _, _, err := store.Init(sp); err != nil {
		t.Fatal(err)
	}

	_, err := store.UpdateStatepoint(a, func(sp *Statepoint) { sp.Replica = 3 })
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation on collision, got %v", err)
	}
	if _, err := os.Stat(a.Workspace); err != nil {
		t.Fatalf("source workspace should remain: %v", err)
	}
}

func TestStoreUpdateStatepointRestoresWorkspaceOnWriteFailure(t *testing.T) {
	store := newTestStore(t)
	a, _, err := store.Init(sampleStatepoint())
	if err != nil {
		t.Fatal(err)
	}
	// A directory in place of statepoint.json makes the rewrite fail.
	if err := os.Remove(a.Path(statepointFile)); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(a.Path(statepointFile), "blocker"), 0o755); err != nil {
		t.Fatal(err)
	}

	if _, err := store.UpdateStatepoint(a, func(sp *Statepoint) { sp.Molecule = "CH4" }); err == nil {
		t.Fatal("expected the statepoint rewrite to fail")
	}
	if _, err := os.Stat(a.Workspace); err != nil {
		t.Fatalf("workspace should be back under its old id: %v", err)
	}
	renamed := sampleStatepoint()
	renamed.Molecule = "CH4"
	if _, err := os.Stat(filepath.Join(store.Root(), mustID(t, renamed))); !os.IsNotExist(err) {
		t.Fatalf("no workspace expected under the new id, stat err=%v", err)
	}

	if err := os.RemoveAll(a.Path(statepointFile)); err != nil {
		t.Fatal(err)
	}
	if err := writeStatepoint(a); err != nil {
		t.Fatal(err)
	}
	jobs, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != a.ID {
		t.Fatalf("expected the original job listed, got %+v", jobs)
	}
}

func mustID(t *testing.T, sp Statepoint) string {
	t.Helper()
	id, err := sp.ID()
	if err != nil {
		t.Fatal(err)
	}
	return id
}
