package testsupport

import (
	"testing"

	"simflow/internal/config"
	"simflow/internal/job"
	"simflow/internal/ledger"
)

// MustOpenJobs opens the job store rooted at the configured workspace.
func MustOpenJobs(t testing.TB, cfg *config.Config) *job.Store {
	t.Helper()

	store, err := job.Open(cfg.Paths.WorkspaceDir, nil)
	if err != nil {
		t.Fatalf("job.Open: %v", err)
	}
	return store
}

// MustOpenLedger opens the pass ledger for tests and registers cleanup.
func MustOpenLedger(t testing.TB, cfg *config.Config) *ledger.Store {
	t.Helper()

	store, err := ledger.Open(cfg.LedgerPath())
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewJob initializes a job for sp.
func NewJob(t testing.TB, store *job.Store, sp job.Statepoint) *job.Job {
	t.Helper()

	j, _, err := store.Init(sp)
	if err != nil {
		t.Fatalf("store.Init: %v", err)
	}
	return j
}
