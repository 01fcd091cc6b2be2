package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"exam-session-service/internal/domain"
	"github.com/jackc/pgx/v4/pgxpool"
)

// SubmissionStore keeps every graded submission in the submissions table.
type SubmissionStore struct {
	pool *pgxpool.Pool
}

func NewSubmissionStore(pool *pgxpool.Pool) *SubmissionStore {
	return &SubmissionStore{pool: pool}
}

func (s *SubmissionStore) Append(ctx context.Context, sub domain.Submission) error {
	answers, err := json.Marshal(sub.Answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO submissions (id, exam_id, participant, answers, score, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		sub.ID, sub.ExamID, sub.Participant, answers, sub.Score, sub.SubmittedAt,
	)
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

// ListByExam returns the exam's submissions oldest first.
func (s *SubmissionStore) ListByExam(ctx context.Context, examID string) ([]domain.Submission, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, exam_id, participant, answers, score, submitted_at
		FROM submissions WHERE exam_id = $1
		ORDER BY submitted_at, id`, examID)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	subs := make([]domain.Submission, 0)
	for rows.Next() {
		var (
			sub     domain.Submission
			answers []byte
		)
		if err := rows.Scan(&sub.ID, &sub.ExamID, &sub.Participant, &answers, &sub.Score, &sub.SubmittedAt); err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		if err := json.Unmarshal(answers, &sub.Answers); err != nil {
			return nil, fmt.Errorf("unmarshal answers: %w", err)
		}
		sub.SubmittedAt = sub.SubmittedAt.UTC()
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func (s *SubmissionStore) DeleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM submissions WHERE id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("delete submissions: %w", err)
	}
	return nil
}

func (s *SubmissionStore) DeleteByExam(ctx context.Context, examID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM submissions WHERE exam_id = $1`, examID); err != nil {
		return fmt.Errorf("delete exam submissions: %w", err)
	}
	return nil
}

func (s *SubmissionStore) ClearAll(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM submissions`); err != nil {
		return fmt.Errorf("clear submissions: %w", err)
	}
	return nil
}
