package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"exam-session-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

const checkpointKey = "exam:session:checkpoint"

// CheckpointStore keeps the session checkpoint in a single redis key so a
// restarted process can pick the active exam back up.
type CheckpointStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCheckpointStore returns a store whose key expires after ttl; zero keeps it forever.
func NewCheckpointStore(client *redis.Client, ttl time.Duration) *CheckpointStore {
	return &CheckpointStore{client: client, ttl: ttl}
}

// Save writes cp. A checkpoint without an active exam removes the key.
func (s *CheckpointStore) Save(ctx context.Context, cp domain.Checkpoint) error {
	if cp.ActiveExamID == "" {
		return s.client.Del(ctx, checkpointKey).Err()
	}
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	return s.client.Set(ctx, checkpointKey, data, s.ttl).Err()
}

func (s *CheckpointStore) Load(ctx context.Context) (domain.Checkpoint, bool, error) {
	data, err := s.client.Get(ctx, checkpointKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Checkpoint{}, false, nil
	}
	if err != nil {
		return domain.Checkpoint{}, false, err
	}
	var cp domain.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return domain.Checkpoint{}, false, fmt.Errorf("unmarshal checkpoint: %w", err)
	}
	return cp, true, nil
}
