package filestore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"exam-session-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutGetDelete(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := New(dir, "/uploads/")
	require.NoError(t, err)

	ref, err := store.Put(ctx, "Listening.MP3", []byte("audio"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ref, "/uploads/"))
	assert.True(t, strings.HasSuffix(ref, ".mp3"))

	data, err := store.Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "audio", string(data))

	require.NoError(t, store.Delete(ctx, ref))
	require.NoError(t, store.Delete(ctx, ref))
	_, err = store.Get(ctx, ref)
	assert.ErrorIs(t, err, domain.ErrBlobNotFound)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPutSniffsMissingExtension(t *testing.T) {
	store, err := New(t.TempDir(), "/media")
	require.NoError(t, err)

	ref, err := store.Put(context.Background(), "scan", []byte("\x89PNG\r\n\x1a\n0000000000000000"))
	require.NoError(t, err)
	assert.Equal(t, ".png", filepath.Ext(ref))
}

func TestRefsCannotEscapeDir(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	outside := filepath.Join(filepath.Dir(dir), "secret.txt")
	require.NoError(t, os.WriteFile(outside, []byte("x"), 0o600))
	t.Cleanup(func() { os.Remove(outside) })

	store, err := New(dir, "/uploads")
	require.NoError(t, err)

	for _, ref := range []string{"/uploads/../secret.txt", "/uploads/", "/elsewhere/a.mp3", "/uploads/.upload-1"} {
		_, err := store.Get(ctx, ref)
		assert.ErrorIs(t, err, domain.ErrBlobNotFound, ref)
		assert.NoError(t, store.Delete(ctx, ref), ref)
	}
	_, err = os.Stat(outside)
	assert.NoError(t, err)
}
