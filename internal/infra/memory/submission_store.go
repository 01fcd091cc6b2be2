package memory

import (
	"context"
	"sync"

	"exam-session-service/internal/domain"
)

// SubmissionStore keeps submissions in insertion order.
type SubmissionStore struct {
	mu          sync.RWMutex
	submissions []domain.Submission
}

func NewSubmissionStore() *SubmissionStore {
	return &SubmissionStore{}
}

func (s *SubmissionStore) Append(_ context.Context, sub domain.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submissions = append(s.submissions, sub)
	return nil
}

func (s *SubmissionStore) ListByExam(_ context.Context, examID string) ([]domain.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Submission, 0)
	for _, sub := range s.submissions {
		if sub.ExamID == examID {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (s *SubmissionStore) DeleteByIDs(_ context.Context, ids []string) error {
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	s.filter(func(sub domain.Submission) bool {
		_, ok := drop[sub.ID]
		return !ok
	})
	return nil
}

func (s *SubmissionStore) DeleteByExam(_ context.Context, examID string) error {
	s.filter(func(sub domain.Submission) bool { return sub.ExamID != examID })
	return nil
}

func (s *SubmissionStore) ClearAll(_ context.Context) error {
	s.mu.Lock()
	s.submissions = nil
	s.mu.Unlock()
	return nil
}

func (s *SubmissionStore) filter(keep func(domain.Submission) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.submissions[:0]
	for _, sub := range s.submissions {
		if keep(sub) {
			kept = append(kept, sub)
		}
	}
	s.submissions = kept
}
