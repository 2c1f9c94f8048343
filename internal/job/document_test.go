package job

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"simflow/internal/services"
)

func newTestDocument(t *testing.T) *Document {
	t.Helper()
	return newDocument(filepath.Join(t.TempDir(), documentFile))
}

func TestDocumentMissingLoadsEmpty(t *testing.T) {
	doc := newTestDocument(t)
	values, err := doc.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(values) != 0 {
		t.Fatalf("expected empty document, got %v", values)
	}
}

func TestDocumentSetAndLoad(t *testing.T) {
	ctx := context.Background()
	doc := newTestDocument(t)
	if err := doc.Set(ctx, KeyNumTargetReplicates, 4); err != nil {
		t.Fatalf("Set target: %v", err)
	}
	if err := doc.Set(ctx, "files_copied", true); err != nil {
		t.Fatalf("Set bool: %v", err)
	}
	if err := doc.Set(ctx, "density", 0.42); err != nil {
		t.Fatalf("Set float: %v", err)
	}

	values, err := doc.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if n, ok := values.Int(KeyNumTargetReplicates); !ok || n != 4 {
		t.Fatalf("target = %v (%v), want 4", n, ok)
	}
	if b, ok := values.Bool("files_copied"); !ok || !b {
		t.Fatalf("files_copied = %v (%v)", b, ok)
	}
	if _, ok := values["density"].(float64); !ok {
		t.Fatalf("density decoded as %T", values["density"])
	}
	if keys := values.Keys(); len(keys) != 3 || keys[0] != "density" {
		t.Fatalf("unexpected keys %v", keys)
	}
}

func TestDocumentRejectsOverrun(t *testing.T) {
	ctx := context.Background()
	doc := newTestDocument(t)
	if err := doc.Update(ctx, func(v Values) error {
		v[KeyNumTargetReplicates] = int64(2)
		v[KeyReplicatesCompleted] = int64(2)
		return nil
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	err := doc.Update(ctx, func(v Values) error {
		v[KeyReplicatesCompleted] = int64(3)
		return nil
	})
	if !errors.Is(err, services.ErrReplicateOverrun) {
		t.Fatalf("expected ErrReplicateOverrun, got %v", err)
	}
	values, _ := doc.Load()
	if n, _ := values.Int(KeyReplicatesCompleted); n != 2 {
		t.Fatalf("counter changed after rejected update: %d", n)
	}
}

func TestDocumentMutateErrorWritesNothing(t *testing.T) {
	doc := newTestDocument(t)
	sentinel := errors.New("boom")
	err := doc.Update(context.Background(), func(v Values) error {
		v["x"] = int64(1)
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel, got %v", err)
	}
	if _, err := os.Stat(doc.Path()); !os.IsNotExist(err) {
		t.Fatalf("document should not exist, stat err=%v", err)
	}
}

func TestDocumentCorruptSchema(t *testing.T) {
	doc := newTestDocument(t)
	if err := os.WriteFile(doc.Path(), []byte(`{"replicates_completed": -1}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := doc.Load(); !errors.Is(err, services.ErrCorruptArtifact) {
		t.Fatalf("expected ErrCorruptArtifact, got %v", err)
	}

	if err := os.WriteFile(doc.Path(), []byte(`{"nested": {"a": 1}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := doc.Load(); !errors.Is(err, services.ErrCorruptArtifact) {
		t.Fatalf("expected ErrCorruptArtifact for nested value, got %v", err)
	}
}

func TestDocumentConcurrentUpdates(t *testing.T) {
	ctx := context.Background()
	doc := newTestDocument(t)
	const writers = 8

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Each goroutine uses its own handle, like separate passes would.
			handle := newDocument(doc.Path())
			err := handle.Update(ctx, func(v Values) error {
				n, _ := v.Int("counter")
				v["counter"] = int64(n + 1)
				return nil
			})
			if err != nil {
				t.Errorf("Update: %v", err)
			}
		}()
	}
	wg.Wait()

	values, err := doc.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if n, _ := values.Int("counter"); n != writers {
		t.Fatalf("counter = %d, want %d", n, writers)
	}
}
