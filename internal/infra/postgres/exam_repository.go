package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"exam-session-service/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

const examColumns = `id, name, created_by, audio, images, answer_key, assigned, time_limit_seconds, created_at`

// ExamRepository stores exams in the exams table. Media and answer keys are
// JSONB columns.
type ExamRepository struct {
	pool *pgxpool.Pool
}

func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

func (r *ExamRepository) Create(ctx context.Context, exam domain.Exam) (string, error) {
	if exam.ID == "" {
		exam.ID = uuid.NewString()
	}
	if exam.CreatedAt.IsZero() {
		exam.CreatedAt = time.Now().UTC()
	}
	audio, images, key, err := marshalMedia(exam)
	if err != nil {
		return "", err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO exams (`+examColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		exam.ID, exam.Name, exam.CreatedBy, audio, images, key,
		exam.Assigned, exam.EffectiveTimeLimit(), exam.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("insert exam: %w", err)
	}
	return exam.ID, nil
}

func (r *ExamRepository) Get(ctx context.Context, id string) (domain.Exam, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+examColumns+` FROM exams WHERE id = $1`, id)
	exam, err := scanExam(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Exam{}, domain.ErrExamNotFound
	}
	if err != nil {
		return domain.Exam{}, fmt.Errorf("load exam: %w", err)
	}
	return exam, nil
}

// List returns exams newest first.
func (r *ExamRepository) List(ctx context.Context, filter domain.ExamFilter) ([]domain.Exam, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+examColumns+` FROM exams
		WHERE ($1 = '' OR created_by = $1) AND (NOT $2 OR assigned)
		ORDER BY created_at DESC, id`,
		filter.CreatedBy, filter.AssignedOnly,
	)
	if err != nil {
		return nil, fmt.Errorf("list exams: %w", err)
	}
	defer rows.Close()

	exams := make([]domain.Exam, 0)
	for rows.Next() {
		exam, err := scanExam(rows)
		if err != nil {
			return nil, fmt.Errorf("scan exam: %w", err)
		}
		exams = append(exams, exam)
	}
	return exams, rows.Err()
}

func (r *ExamRepository) Update(ctx context.Context, id string, patch domain.ExamPatch) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE exams
		SET assigned = COALESCE($2::boolean, assigned),
		    time_limit_seconds = COALESCE($3::integer, time_limit_seconds)
		WHERE id = $1`,
		id, patch.Assigned, patch.TimeLimitSeconds,
	)
	if err != nil {
		return fmt.Errorf("update exam: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrExamNotFound
	}
	return nil
}

func (r *ExamRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM exams WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete exam: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrExamNotFound
	}
	return nil
}

func marshalMedia(exam domain.Exam) (audio, images, key []byte, err error) {
	if audio, err = json.Marshal(nonNilAudio(exam.Audio)); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal audio: %w", err)
	}
	if images, err = json.Marshal(nonNilImages(exam.Images)); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal images: %w", err)
	}
	if key, err = json.Marshal(exam.AnswerKey.Raw()); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal answer key: %w", err)
	}
	return audio, images, key, nil
}

func scanExam(row pgx.Row) (domain.Exam, error) {
	var (
		exam                    domain.Exam
		audio, images, keyBytes []byte
	)
	if err := row.Scan(
		&exam.ID, &exam.Name, &exam.CreatedBy, &audio, &images, &keyBytes,
		&exam.Assigned, &exam.TimeLimitSeconds, &exam.CreatedAt,
	); err != nil {
		return domain.Exam{}, err
	}
	if err := json.Unmarshal(audio, &exam.Audio); err != nil {
		return domain.Exam{}, fmt.Errorf("unmarshal audio: %w", err)
	}
	if err := json.Unmarshal(images, &exam.Images); err != nil {
		return domain.Exam{}, fmt.Errorf("unmarshal images: %w", err)
	}
	var raw map[string]string
	if err := json.Unmarshal(keyBytes, &raw); err != nil {
		return domain.Exam{}, fmt.Errorf("unmarshal answer key: %w", err)
	}
	key, err := domain.ValidateAnswerKey(raw, nil)
	if err != nil {
		return domain.Exam{}, err
	}
	exam.AnswerKey = key
	exam.CreatedAt = exam.CreatedAt.UTC()
	return exam, nil
}

func nonNilAudio(m map[int]domain.MediaRef) map[int]domain.MediaRef {
	if m == nil {
		return map[int]domain.MediaRef{}
	}
	return m
}

func nonNilImages(m map[int][]domain.MediaRef) map[int][]domain.MediaRef {
	if m == nil {
		return map[int][]domain.MediaRef{}
	}
	return m
}
