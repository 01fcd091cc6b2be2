package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"exam-session-service/internal/app"
	"exam-session-service/internal/broadcast"
	"exam-session-service/internal/domain"
	"exam-session-service/internal/infra/memory"
	"github.com/rs/zerolog"
)

var errBoom = errors.New("boom")

// recordingBus is a synchronous Broadcaster that remembers what was sent.
type recordingBus struct {
	mu        sync.Mutex
	published []domain.Event
	direct    map[string][]domain.Event
	conns     map[string]broadcast.Conn
	next      int
}

func newRecordingBus() *recordingBus {
	return &recordingBus{
		direct: make(map[string][]domain.Event),
		conns:  make(map[string]broadcast.Conn),
	}
}

func (b *recordingBus) Register(conn broadcast.Conn) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	id := "conn-" + string(rune('0'+b.next))
	b.conns[id] = conn
	return id
}

func (b *recordingBus) Unregister(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.conns, id)
}

func (b *recordingBus) Publish(ev domain.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, ev)
}

func (b *recordingBus) SendTo(id string, ev domain.Event) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.conns[id]; !ok {
		return false
	}
	b.direct[id] = append(b.direct[id], ev)
	return true
}

func (b *recordingBus) OnEvict(func(string)) {}

func (b *recordingBus) events() []domain.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]domain.Event(nil), b.published...)
}

func (b *recordingBus) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = nil
}

func (b *recordingBus) lastOf(typ domain.EventType) (domain.Event, bool) {
	evs := b.events()
	for i := len(evs) - 1; i >= 0; i-- {
		if evs[i].Type == typ {
			return evs[i], true
		}
	}
	return domain.Event{}, false
}

// flakyExams fails selected operations of an otherwise working repository.
type flakyExams struct {
	*memory.ExamRepository
	failCreate error
	failUpdate error
	failDelete error
}

func (f *flakyExams) Create(ctx context.Context, exam domain.Exam) (string, error) {
	if f.failCreate != nil {
		return "", f.failCreate
	}
	return f.ExamRepository.Create(ctx, exam)
}

func (f *flakyExams) Update(ctx context.Context, id string, patch domain.ExamPatch) error {
	if f.failUpdate != nil {
		return f.failUpdate
	}
	return f.ExamRepository.Update(ctx, id, patch)
}

func (f *flakyExams) Delete(ctx context.Context, id string) error {
	if f.failDelete != nil {
		return f.failDelete
	}
	return f.ExamRepository.Delete(ctx, id)
}

type flakySubmissions struct {
	*memory.SubmissionStore
	failAppend error
	failClear  error
}

func (f *flakySubmissions) ClearAll(ctx context.Context) error {
	if f.failClear != nil {
		return f.failClear
	}
	return f.SubmissionStore.ClearAll(ctx)
}

// flakyBlobs fails Delete for one reference.
type flakyBlobs struct {
	*memory.BlobStore
	failRef string
}

func (f *flakyBlobs) Delete(ctx context.Context, ref string) error {
	if f.failRef != "" && ref == f.failRef {
		return errBoom
	}
	return f.BlobStore.Delete(ctx, ref)
}

func (f *flakySubmissions) Append(ctx context.Context, sub domain.Submission) error {
	if f.failAppend != nil {
		return f.failAppend
	}
	return f.SubmissionStore.Append(ctx, sub)
}

type fixture struct {
	exams       *flakyExams
	submissions *flakySubmissions
	blobs       *flakyBlobs
	checkpoints *memory.CheckpointStore
	bus         *recordingBus
	session     *app.SessionService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		exams:       &flakyExams{ExamRepository: memory.NewExamRepository()},
		submissions: &flakySubmissions{SubmissionStore: memory.NewSubmissionStore()},
		blobs:       &flakyBlobs{BlobStore: memory.NewBlobStore()},
		checkpoints: memory.NewCheckpointStore(),
		bus:         newRecordingBus(),
	}
	f.session = f.newSession()
	return f
}

func (f *fixture) newSession() *app.SessionService {
	return app.NewSessionService(app.Deps{
		Exams:       f.exams,
		Submissions: f.submissions,
		Blobs:       f.blobs,
		Checkpoints: f.checkpoints,
		Bus:         f.bus,
		Logger:      zerolog.Nop(),
		Now:         func() time.Time { return time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC) },
	})
}

// addExam stores an exam with one audio blob and the given key.
func (f *fixture) addExam(t *testing.T, name string, key map[string]string) domain.Exam {
	t.Helper()
	ctx := context.Background()
	ref, err := f.blobs.Put(ctx, "part1.mp3", []byte("audio-"+name))
	if err != nil {
		t.Fatalf("put blob: %v", err)
	}
	answerKey, err := domain.ValidateAnswerKey(key, nil)
	if err != nil {
		t.Fatalf("answer key: %v", err)
	}
	exam := domain.Exam{
		Name:      name,
		Audio:     map[int]domain.MediaRef{1: {Ref: ref, Filename: "part1.mp3"}},
		AnswerKey: answerKey,
	}
	id, err := f.exams.Create(ctx, exam)
	if err != nil {
		t.Fatalf("create exam: %v", err)
	}
	exam.ID = id
	return exam
}

type nopConn struct{}

func (nopConn) Send(domain.Event) error { return nil }
func (nopConn) Close() error            { return nil }
