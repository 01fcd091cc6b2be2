package bundle_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"exam-session-service/internal/bundle"
	"exam-session-service/internal/domain"
	"exam-session-service/internal/infra/memory"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := memory.NewBlobStore()

	put := func(name, content string) domain.MediaRef {
		ref, err := src.Put(ctx, name, []byte(content))
		require.NoError(t, err)
		return domain.MediaRef{Ref: ref, Filename: name}
	}

	exam := domain.Exam{
		ID:        "exam-1",
		Name:      "Mock test 3",
		CreatedBy: "proctor@example.com",
		Audio: map[int]domain.MediaRef{
			1: put("listening-1.MP3", "audio one"),
			4: put("listening-4.wav", "audio four"),
		},
		Images: map[int][]domain.MediaRef{
			1: {put("b.png", "img b"), put("a.png", "img a")},
			7: {put("page.jpg", "img seven")},
		},
		AnswerKey:        domain.AnswerKey{"q1": domain.ChoiceA, "q2": domain.ChoiceD},
		Assigned:         true,
		TimeLimitSeconds: 3600,
	}

	var buf bytes.Buffer
	require.NoError(t, bundle.Encode(ctx, &buf, exam, src))

	dst := memory.NewBlobStore()
	got, err := bundle.Decode(ctx, buf.Bytes(), dst, bundle.Options{})
	require.NoError(t, err)

	assert.NotEqual(t, exam.ID, got.ID)
	assert.NotEmpty(t, got.ID)
	assert.False(t, got.Assigned)
	assert.Equal(t, exam.Name, got.Name)
	assert.Equal(t, exam.CreatedBy, got.CreatedBy)
	assert.Equal(t, exam.AnswerKey, got.AnswerKey)
	assert.Equal(t, 3600, got.TimeLimitSeconds)

	require.Len(t, got.Audio, 2)
	assertBlob(t, dst, got.Audio[1].Ref, "audio one")
	assertBlob(t, dst, got.Audio[4].Ref, "audio four")
	assert.Equal(t, "part1.mp3", got.Audio[1].Filename)

	require.Len(t, got.Images[1], 2)
	assert.Equal(t, "b.png", got.Images[1][0].Filename)
	assert.Equal(t, "a.png", got.Images[1][1].Filename)
	assertBlob(t, dst, got.Images[1][0].Ref, "img b")
	assertBlob(t, dst, got.Images[1][1].Ref, "img a")
	require.Len(t, got.Images[7], 1)
	assertBlob(t, dst, got.Images[7][0].Ref, "img seven")
	assert.Equal(t, 5, dst.Len())
}

func TestRoundTripEmptyExam(t *testing.T) {
	ctx := context.Background()
	exam := domain.Exam{AnswerKey: domain.AnswerKey{}}

	var buf bytes.Buffer
	require.NoError(t, bundle.Encode(ctx, &buf, exam, memory.NewBlobStore()))

	dst := memory.NewBlobStore()
	got, err := bundle.Decode(ctx, buf.Bytes(), dst, bundle.Options{})
	require.NoError(t, err)
	assert.Empty(t, got.Name)
	assert.Empty(t, got.AnswerKey)
	assert.Empty(t, got.Audio)
	assert.Empty(t, got.Images)
	assert.Equal(t, domain.DefaultTimeLimitSeconds, got.TimeLimitSeconds)
	assert.Zero(t, dst.Len())
}

func TestDecodeMissingManifest(t *testing.T) {
	data := archive(t, map[string]string{"audio/part1.mp3": "x"})
	dst := memory.NewBlobStore()

	_, err := bundle.Decode(context.Background(), data, dst, bundle.Options{})
	assert.ErrorIs(t, err, domain.ErrMalformedPackage)
	assert.Zero(t, dst.Len())
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := bundle.Decode(context.Background(), []byte("not a zip"), memory.NewBlobStore(), bundle.Options{})
	assert.ErrorIs(t, err, domain.ErrMalformedPackage)

	data := archive(t, map[string]string{"exam.json": "{not json"})
	_, err = bundle.Decode(context.Background(), data, memory.NewBlobStore(), bundle.Options{})
	assert.ErrorIs(t, err, domain.ErrMalformedPackage)
}

func TestDecodeInvalidAnswerKey(t *testing.T) {
	data := archive(t, map[string]string{
		"exam.json":       `{"name":"x","createdBy":"y","answerKey":{"q1":"E"}}`,
		"audio/part1.mp3": "audio",
	})
	dst := memory.NewBlobStore()

	_, err := bundle.Decode(context.Background(), data, dst, bundle.Options{})
	assert.ErrorIs(t, err, domain.ErrInvalidAnswerKey)
	assert.Zero(t, dst.Len(), "no blob may be written for a rejected key")
}

func TestDecodeIgnoresUnknownEntries(t *testing.T) {
	data := archive(t, map[string]string{
		"exam.json":              `{"name":"x","createdBy":"y","answerKey":{"q1":"b"}}`,
		"README.txt":             "hello",
		"audio/part9.mp3":        "out of range",
		"images/part8/000_a.png": "out of range",
		"images/part2/raw.png":   "no ordinal",
		"extras/part1.mp3":       "elsewhere",
	})
	dst := memory.NewBlobStore()

	got, err := bundle.Decode(context.Background(), data, dst, bundle.Options{})
	require.NoError(t, err)
	assert.Equal(t, domain.AnswerKey{"q1": domain.ChoiceB}, got.AnswerKey)
	assert.Empty(t, got.Audio)
	require.Len(t, got.Images[2], 1)
	assert.Equal(t, "raw.png", got.Images[2][0].Filename)
	assert.Equal(t, 1, dst.Len())
}

func TestDecodeRejectsTraversal(t *testing.T) {
	data := archive(t, map[string]string{
		"exam.json":           `{"name":"x","createdBy":"y","answerKey":{}}`,
		"images/../../etc/pw": "nope",
	})
	dst := memory.NewBlobStore()

	_, err := bundle.Decode(context.Background(), data, dst, bundle.Options{})
	require.ErrorIs(t, err, domain.ErrMalformedPackage)
	assert.Equal(t, 0, dst.Len())
}

func TestDecodeCleansUpOnBlobFailure(t *testing.T) {
	data := archive(t, map[string]string{
		"exam.json":              `{"name":"x","createdBy":"y","answerKey":{}}`,
		"audio/part1.mp3":        "a1",
		"audio/part2.mp3":        "a2",
		"images/part1/000_a.png": "i1",
	})
	store := &failingStore{BlobStore: memory.NewBlobStore(), failAfter: 2}

	_, err := bundle.Decode(context.Background(), data, store, bundle.Options{})
	assert.ErrorIs(t, err, domain.ErrBlobStore)
	assert.Zero(t, store.Len(), "written blobs must be removed")
}

func TestDecodeSizeLimit(t *testing.T) {
	data := archive(t, map[string]string{
		"exam.json":       `{"name":"x","createdBy":"y","answerKey":{}}`,
		"audio/part1.mp3": string(bytes.Repeat([]byte("a"), 1024)),
	})
	dst := memory.NewBlobStore()

	_, err := bundle.Decode(context.Background(), data, dst, bundle.Options{MaxBytes: 512})
	assert.ErrorIs(t, err, domain.ErrMalformedPackage)
	assert.Zero(t, dst.Len())
}

func TestEncodeFailsOnUnreadableBlob(t *testing.T) {
	exam := domain.Exam{
		AnswerKey: domain.AnswerKey{},
		Audio:     map[int]domain.MediaRef{2: {Ref: "/uploads/missing.mp3"}},
	}
	err := bundle.Encode(context.Background(), &bytes.Buffer{}, exam, memory.NewBlobStore())
	assert.ErrorIs(t, err, domain.ErrBlobStore)
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "Mock_test_3.zip", bundle.FileName("Mock test 3"))
	assert.Equal(t, "exam.zip", bundle.FileName("///"))
}

func assertBlob(t *testing.T, store *memory.BlobStore, ref, want string) {
	t.Helper()
	data, err := store.Get(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, want, string(data))
}

func archive(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

type failingStore struct {
	*memory.BlobStore
	failAfter int
	puts      int
}

func (s *failingStore) Put(ctx context.Context, filename string, data []byte) (string, error) {
	s.puts++
	if s.puts > s.failAfter {
		return "", errors.New("disk full")
	}
	return s.BlobStore.Put(ctx, filename, data)
}
