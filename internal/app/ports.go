package app

import (
	"context"

	"exam-session-service/internal/broadcast"
	"exam-session-service/internal/domain"
)

// ExamRepository persists exam definitions (postgres, memory, redis-cached).
type ExamRepository interface {
	Create(ctx context.Context, exam domain.Exam) (string, error)
	Get(ctx context.Context, id string) (domain.Exam, error)
	List(ctx context.Context, filter domain.ExamFilter) ([]domain.Exam, error)
	Update(ctx context.Context, id string, patch domain.ExamPatch) error
	Delete(ctx context.Context, id string) error
}

// SubmissionStore keeps the submission history of every exam.
type SubmissionStore interface {
	Append(ctx context.Context, sub domain.Submission) error
	ListByExam(ctx context.Context, examID string) ([]domain.Submission, error)
	DeleteByIDs(ctx context.Context, ids []string) error
	DeleteByExam(ctx context.Context, examID string) error
	ClearAll(ctx context.Context) error
}

// BlobStore stores media bytes and hands back a reference to them.
// Delete must treat unknown references as already deleted.
type BlobStore interface {
	Put(ctx context.Context, filename string, data []byte) (string, error)
	Get(ctx context.Context, ref string) ([]byte, error)
	Delete(ctx context.Context, ref string) error
}

// CheckpointStore remembers which exam was active across restarts.
type CheckpointStore interface {
	Save(ctx context.Context, cp domain.Checkpoint) error
	Load(ctx context.Context) (domain.Checkpoint, bool, error)
}

// Broadcaster is the fan-out the session publishes through.
type Broadcaster interface {
	Register(conn broadcast.Conn) string
	Unregister(id string)
	Publish(ev domain.Event)
	SendTo(id string, ev domain.Event) bool
	OnEvict(fn func(id string))
}
