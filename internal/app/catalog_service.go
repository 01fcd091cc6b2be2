package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"exam-session-service/internal/bundle"
	"exam-session-service/internal/domain"
	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
)

// Upload is one media file sent by an author.
type Upload struct {
	Filename string
	Data     []byte
}

// ExamDraft is an exam as submitted by its author, before any media is stored.
type ExamDraft struct {
	Name             string
	CreatedBy        string
	AnswerKey        map[string]string
	TimeLimitSeconds int
	Audio            map[int]Upload
	Images           map[int][]Upload
}

// CatalogOptions configures exam authoring and package import.
type CatalogOptions struct {
	Layout         *domain.PartLayout
	MaxImportBytes int64
	Now            func() time.Time
}

// CatalogService manages exam definitions and their exchange packages. Exam
// deletion lives on SessionService because it may reset the live session.
type CatalogService struct {
	exams ExamRepository
	blobs BlobStore
	opts  CatalogOptions
	log   zerolog.Logger
}

func NewCatalogService(exams ExamRepository, blobs BlobStore, opts CatalogOptions, logger zerolog.Logger) *CatalogService {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &CatalogService{
		exams: exams,
		blobs: blobs,
		opts:  opts,
		log:   logger.With().Str("component", "catalog").Logger(),
	}
}

func (c *CatalogService) Get(ctx context.Context, id string) (domain.Exam, error) {
	exam, err := c.exams.Get(ctx, id)
	if err != nil {
		return domain.Exam{}, repoErr("get exam", err)
	}
	return exam, nil
}

func (c *CatalogService) List(ctx context.Context, filter domain.ExamFilter) ([]domain.Exam, error) {
	exams, err := c.exams.List(ctx, filter)
	if err != nil {
		return nil, repoErr("list exams", err)
	}
	return exams, nil
}

// Blob returns stored media bytes for ref.
func (c *CatalogService) Blob(ctx context.Context, ref string) ([]byte, error) {
	data, err := c.blobs.Get(ctx, ref)
	if errors.Is(err, domain.ErrBlobNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %w", domain.ErrBlobStore, ref, err)
	}
	return data, nil
}

// Create validates the draft, stores its media and saves the exam. Media
// already stored is removed again if a later step fails.
func (c *CatalogService) Create(ctx context.Context, draft ExamDraft) (exam domain.Exam, err error) {
	name := strings.TrimSpace(draft.Name)
	if name == "" {
		return domain.Exam{}, domain.ErrEmptyExamName
	}
	key, err := domain.ValidateAnswerKey(draft.AnswerKey, c.opts.Layout)
	if err != nil {
		return domain.Exam{}, err
	}
	if err := validateUploads(draft); err != nil {
		return domain.Exam{}, err
	}

	var stored []string
	defer func() {
		if err != nil {
			c.cleanup(ctx, stored)
		}
	}()

	exam = domain.Exam{
		Name:             name,
		CreatedBy:        strings.TrimSpace(draft.CreatedBy),
		AnswerKey:        key,
		TimeLimitSeconds: draft.TimeLimitSeconds,
		CreatedAt:        c.opts.Now().UTC(),
	}
	if exam.TimeLimitSeconds <= 0 {
		exam.TimeLimitSeconds = domain.DefaultTimeLimitSeconds
	}

	for part := 1; part <= domain.MaxAudioPart; part++ {
		up, ok := draft.Audio[part]
		if !ok {
			continue
		}
		ref, err := c.put(ctx, up)
		if err != nil {
			return domain.Exam{}, err
		}
		stored = append(stored, ref)
		if exam.Audio == nil {
			exam.Audio = make(map[int]domain.MediaRef)
		}
		exam.Audio[part] = domain.MediaRef{Ref: ref, Filename: up.Filename}
	}
	for part := 1; part <= domain.MaxImagePart; part++ {
		for _, up := range draft.Images[part] {
			ref, err := c.put(ctx, up)
			if err != nil {
				return domain.Exam{}, err
			}
			stored = append(stored, ref)
			if exam.Images == nil {
				exam.Images = make(map[int][]domain.MediaRef)
			}
			exam.Images[part] = append(exam.Images[part], domain.MediaRef{Ref: ref, Filename: up.Filename})
		}
	}

	id, err := c.exams.Create(ctx, exam)
	if err != nil {
		return domain.Exam{}, repoErr("create exam", err)
	}
	exam.ID = id
	c.log.Info().Str("exam_id", id).Str("name", name).Int("blobs", len(stored)).Msg("exam created")
	return exam, nil
}

// Export writes examID as a package archive to w.
func (c *CatalogService) Export(ctx context.Context, examID string, w io.Writer) (domain.Exam, error) {
	exam, err := c.exams.Get(ctx, examID)
	if err != nil {
		return domain.Exam{}, repoErr("get exam", err)
	}
	if err := bundle.Encode(ctx, w, exam, c.blobs); err != nil {
		return domain.Exam{}, err
	}
	c.log.Info().Str("exam_id", exam.ID).Msg("exam exported")
	return exam, nil
}

// Import decodes a package archive and saves it as a new, unassigned exam.
// A non-empty createdBy replaces the author recorded in the package.
func (c *CatalogService) Import(ctx context.Context, data []byte, createdBy string) (domain.Exam, error) {
	exam, err := bundle.Decode(ctx, data, c.blobs, bundle.Options{
		Layout:   c.opts.Layout,
		MaxBytes: c.opts.MaxImportBytes,
		Now:      c.opts.Now,
	})
	if err != nil {
		return domain.Exam{}, err
	}
	if by := strings.TrimSpace(createdBy); by != "" {
		exam.CreatedBy = by
	}

	id, err := c.exams.Create(ctx, exam)
	if err != nil {
		c.cleanup(ctx, exam.BlobRefs())
		return domain.Exam{}, repoErr("create exam", err)
	}
	exam.ID = id
	c.log.Info().Str("exam_id", id).Str("name", exam.Name).Msg("exam imported")
	return exam, nil
}

func (c *CatalogService) put(ctx context.Context, up Upload) (string, error) {
	ref, err := c.blobs.Put(ctx, up.Filename, up.Data)
	if err != nil {
		return "", fmt.Errorf("%w: put %s: %w", domain.ErrBlobStore, up.Filename, err)
	}
	return ref, nil
}

func (c *CatalogService) cleanup(ctx context.Context, refs []string) {
	ctx = context.WithoutCancel(ctx)
	for _, ref := range refs {
		if err := c.blobs.Delete(ctx, ref); err != nil {
			c.log.Warn().Err(err).Str("ref", ref).Msg("orphaned blob left behind")
		}
	}
}

func validateUploads(draft ExamDraft) error {
	for part, up := range draft.Audio {
		if err := domain.ValidatePart(part, domain.MaxAudioPart); err != nil {
			return err
		}
		if err := checkMedia(up, "audio/"); err != nil {
			return err
		}
	}
	for part, ups := range draft.Images {
		if err := domain.ValidatePart(part, domain.MaxImagePart); err != nil {
			return err
		}
		for _, up := range ups {
			if err := checkMedia(up, "image/"); err != nil {
				return err
			}
		}
	}
	return nil
}

// checkMedia sniffs the content; the declared file name is not trusted.
func checkMedia(up Upload, prefix string) error {
	mt := mimetype.Detect(up.Data)
	for m := mt; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), prefix) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s is %s", domain.ErrUnsupportedMedia, up.Filename, mt.String())
}
