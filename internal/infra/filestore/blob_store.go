// Package filestore keeps media blobs as files in one directory. Each blob
// gets a uuid file name and is addressed by "<publicPrefix>/<name>", which is
// also the path the HTTP adapter serves it under.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"exam-session-service/internal/domain"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

type BlobStore struct {
	dir    string
	prefix string
}

// New creates dir if needed.
func New(dir, publicPrefix string) (*BlobStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	prefix := strings.TrimRight(publicPrefix, "/")
	if prefix == "" {
		prefix = "/uploads"
	}
	return &BlobStore{dir: dir, prefix: prefix}, nil
}

// Put writes data under a fresh name. The extension comes from filename, or
// from the sniffed content when filename has none.
func (s *BlobStore) Put(ctx context.Context, filename string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		ext = mimetype.Detect(data).Extension()
	}
	name := uuid.NewString() + ext

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close file: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		return "", fmt.Errorf("store file: %w", err)
	}
	return s.prefix + "/" + name, nil
}

func (s *BlobStore) Get(ctx context.Context, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, ok := s.path(ref)
	if !ok {
		return nil, domain.ErrBlobNotFound
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, domain.ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return data, nil
}

// Delete removes the blob. Unknown references are already gone.
func (s *BlobStore) Delete(ctx context.Context, ref string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, ok := s.path(ref)
	if !ok {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove file: %w", err)
	}
	return nil
}

// path maps a reference back to a file inside dir, refusing anything that
// would leave it.
func (s *BlobStore) path(ref string) (string, bool) {
	name, ok := strings.CutPrefix(ref, s.prefix+"/")
	if !ok || name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", false
	}
	return filepath.Join(s.dir, name), true
}
