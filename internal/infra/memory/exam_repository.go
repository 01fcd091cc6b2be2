package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"exam-session-service/internal/domain"
	"github.com/google/uuid"
)

// ExamRepository is an in-memory implementation of app.ExamRepository.
type ExamRepository struct {
	mu    sync.RWMutex
	clock func() time.Time
	exams map[string]domain.Exam
}

func NewExamRepository() *ExamRepository {
	return &ExamRepository{
		clock: time.Now,
		exams: make(map[string]domain.Exam),
	}
}

func (r *ExamRepository) Create(_ context.Context, exam domain.Exam) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if exam.ID == "" {
		exam.ID = uuid.NewString()
	}
	if exam.CreatedAt.IsZero() {
		exam.CreatedAt = r.clock().UTC()
	}
	r.exams[exam.ID] = exam.Clone()
	return exam.ID, nil
}

func (r *ExamRepository) Get(_ context.Context, id string) (domain.Exam, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exam, ok := r.exams[id]
	if !ok {
		return domain.Exam{}, domain.ErrExamNotFound
	}
	return exam.Clone(), nil
}

// List returns matching exams, newest first.
func (r *ExamRepository) List(_ context.Context, filter domain.ExamFilter) ([]domain.Exam, error) {
	r.mu.RLock()
	out := make([]domain.Exam, 0, len(r.exams))
	for _, exam := range r.exams {
		if filter.Matches(exam) {
			out = append(out, exam.Clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *ExamRepository) Update(_ context.Context, id string, patch domain.ExamPatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	exam, ok := r.exams[id]
	if !ok {
		return domain.ErrExamNotFound
	}
	r.exams[id] = patch.Apply(exam)
	return nil
}

func (r *ExamRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.exams[id]; !ok {
		return domain.ErrExamNotFound
	}
	delete(r.exams, id)
	return nil
}
