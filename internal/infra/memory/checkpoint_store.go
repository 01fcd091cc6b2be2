package memory

import (
	"context"
	"sync"

	"exam-session-service/internal/domain"
)

// CheckpointStore keeps the last session checkpoint for the process lifetime.
type CheckpointStore struct {
	mu    sync.RWMutex
	saved *domain.Checkpoint
}

func NewCheckpointStore() *CheckpointStore {
	return &CheckpointStore{}
}

func (s *CheckpointStore) Save(_ context.Context, cp domain.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cp.ActiveExamID == "" {
		s.saved = nil
		return nil
	}
	s.saved = &cp
	return nil
}

// Load returns ok=false when no exam was active.
func (s *CheckpointStore) Load(_ context.Context) (domain.Checkpoint, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.saved == nil {
		return domain.Checkpoint{}, false, nil
	}
	return *s.saved, true, nil
}
