package memory

import (
	"context"
	"path"
	"strings"
	"sync"

	"exam-session-service/internal/domain"
	"github.com/google/uuid"
)

// RefPrefix starts every reference handed out by BlobStore.
const RefPrefix = "/memory"

// BlobStore holds blobs in a map; useful for tests and demos.
type BlobStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewBlobStore() *BlobStore {
	return &BlobStore{blobs: make(map[string][]byte)}
}

func (s *BlobStore) Put(_ context.Context, filename string, data []byte) (string, error) {
	ref := RefPrefix + "/" + uuid.NewString() + strings.ToLower(path.Ext(filename))
	s.mu.Lock()
	s.blobs[ref] = append([]byte(nil), data...)
	s.mu.Unlock()
	return ref, nil
}

func (s *BlobStore) Get(_ context.Context, ref string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blobs[ref]
	if !ok {
		return nil, domain.ErrBlobNotFound
	}
	return append([]byte(nil), data...), nil
}

// Delete is idempotent: unknown refs are not an error.
func (s *BlobStore) Delete(_ context.Context, ref string) error {
	s.mu.Lock()
	delete(s.blobs, ref)
	s.mu.Unlock()
	return nil
}

// Len reports how many blobs are stored.
func (s *BlobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
