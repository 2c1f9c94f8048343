package services_test

import (
	"context"
	"testing"

	"simflow/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithJobID(ctx, "abc123")
	ctx = services.WithStage(ctx, "melt")
	ctx = services.WithPassID(ctx, "pass-1")

	if id, ok := services.JobIDFromContext(ctx); !ok || id != "abc123" {
		t.Fatalf("unexpected job id: %v %v", id, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "melt" {
		t.Fatalf("unexpected stage: %v %v", stage, ok)
	}
	if pid, ok := services.PassIDFromContext(ctx); !ok || pid != "pass-1" {
		t.Fatalf("unexpected pass id: %v %v", pid, ok)
	}
}

func TestBlankValuesPreserveContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithStage(ctx, "")
	ctx = services.WithJobID(ctx, "")
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected no stage value")
	}
	if _, ok := services.JobIDFromContext(ctx); ok {
		t.Fatal("expected no job id value")
	}
}
