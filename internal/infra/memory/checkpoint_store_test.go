package memory

import (
	"context"
	"testing"

	"exam-session-service/internal/domain"
)

func TestCheckpointStore(t *testing.T) {
	ctx := context.Background()
	store := NewCheckpointStore()

	if _, ok, _ := store.Load(ctx); ok {
		t.Fatalf("expected empty checkpoint")
	}
	_ = store.Save(ctx, domain.Checkpoint{ActiveExamID: "e1", Assigned: true, TimeLimitSeconds: 60})
	cp, ok, _ := store.Load(ctx)
	if !ok || cp.ActiveExamID != "e1" || !cp.Assigned {
		t.Fatalf("unexpected checkpoint %+v", cp)
	}
	_ = store.Save(ctx, domain.Checkpoint{})
	if _, ok, _ := store.Load(ctx); ok {
		t.Fatalf("expected idle checkpoint to clear")
	}
}
