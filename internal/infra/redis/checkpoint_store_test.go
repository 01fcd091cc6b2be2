package redis

import (
	"context"
	"testing"
	"time"

	"exam-session-service/internal/domain"
	miniredis "github.com/alicebob/miniredis/v2"
)

func TestCheckpointStoreSetsAndClearsKey(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	store := NewCheckpointStore(newClient(mr), time.Hour)

	if _, ok, err := store.Load(ctx); err != nil || ok {
		t.Fatalf("expected empty store, got ok=%v err=%v", ok, err)
	}

	want := domain.Checkpoint{ActiveExamID: "exam-1", Assigned: true, TimeLimitSeconds: 1800}
	if err := store.Save(ctx, want); err != nil {
		t.Fatalf("save: %v", err)
	}
	if !mr.Exists(checkpointKey) {
		t.Fatalf("expected redis key to be set")
	}
	got, ok, err := store.Load(ctx)
	if err != nil || !ok || got != want {
		t.Fatalf("load mismatch: %+v ok=%v err=%v", got, ok, err)
	}

	if err := store.Save(ctx, domain.Checkpoint{}); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if mr.Exists(checkpointKey) {
		t.Fatalf("expected redis key to be removed")
	}
}
