package memory

import (
	"context"
	"errors"
	"testing"

	"exam-session-service/internal/domain"
)

func TestExamRepositoryLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewExamRepository()

	id, err := repo.Create(ctx, sampleExam())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id == "" {
		t.Fatalf("expected generated id")
	}

	got, err := repo.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "Mock 1" || got.AnswerKey["q1"] != domain.ChoiceA {
		t.Fatalf("unexpected exam %+v", got)
	}

	assigned, limit := true, 1800
	if err := repo.Update(ctx, id, domain.ExamPatch{Assigned: &assigned, TimeLimitSeconds: &limit}); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ = repo.Get(ctx, id)
	if !got.Assigned || got.TimeLimitSeconds != 1800 {
		t.Fatalf("patch not applied: %+v", got)
	}

	listed, _ := repo.List(ctx, domain.ExamFilter{AssignedOnly: true})
	if len(listed) != 1 {
		t.Fatalf("expected 1 assigned exam, got %d", len(listed))
	}

	if err := repo.Delete(ctx, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.Get(ctx, id); !errors.Is(err, domain.ErrExamNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := repo.Update(ctx, id, domain.ExamPatch{}); !errors.Is(err, domain.ErrExamNotFound) {
		t.Fatalf("expected not found on update, got %v", err)
	}
}

func TestExamRepositoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewExamRepository()
	id, _ := repo.Create(ctx, sampleExam())

	got, _ := repo.Get(ctx, id)
	got.AnswerKey["q1"] = domain.ChoiceD
	got.Images[1][0].Ref = "changed"

	again, _ := repo.Get(ctx, id)
	if again.AnswerKey["q1"] != domain.ChoiceA || again.Images[1][0].Ref != "img-1" {
		t.Fatalf("stored exam was mutated through a returned copy: %+v", again)
	}
}

func sampleExam() domain.Exam {
	return domain.Exam{
		Name:      "Mock 1",
		CreatedBy: "admin",
		Audio:     map[int]domain.MediaRef{1: {Ref: "audio-1", Filename: "a.mp3"}},
		Images:    map[int][]domain.MediaRef{1: {{Ref: "img-1", Filename: "1.png"}}},
		AnswerKey: domain.AnswerKey{"q1": domain.ChoiceA, "q2": domain.ChoiceB},
	}
}
