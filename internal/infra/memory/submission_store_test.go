package memory

import (
	"context"
	"testing"

	"exam-session-service/internal/domain"
)

func TestSubmissionStoreDeletes(t *testing.T) {
	ctx := context.Background()
	store := NewSubmissionStore()
	for _, sub := range []domain.Submission{
		{ID: "s1", ExamID: "a"},
		{ID: "s2", ExamID: "a"},
		{ID: "s3", ExamID: "b"},
	} {
		if err := store.Append(ctx, sub); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	if err := store.DeleteByIDs(ctx, []string{"s1", "unknown"}); err != nil {
		t.Fatalf("delete ids: %v", err)
	}
	subs, _ := store.ListByExam(ctx, "a")
	if len(subs) != 1 || subs[0].ID != "s2" {
		t.Fatalf("expected only s2 left for exam a, got %+v", subs)
	}

	_ = store.DeleteByExam(ctx, "b")
	_ = store.DeleteByExam(ctx, "b")
	if subs, _ := store.ListByExam(ctx, "b"); len(subs) != 0 {
		t.Fatalf("expected exam b cleared, got %+v", subs)
	}

	_ = store.ClearAll(ctx)
	if subs, _ := store.ListByExam(ctx, "a"); len(subs) != 0 {
		t.Fatalf("expected store cleared, got %+v", subs)
	}
}
