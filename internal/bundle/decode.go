package bundle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"exam-session-service/internal/domain"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zip"
)

// Options tunes Decode. The zero value applies DefaultMaxBytes and no layout check.
type Options struct {
	// Layout, when set, requires the answer key to match the expected question ids.
	Layout *domain.PartLayout
	// MaxBytes bounds the total uncompressed bytes read from the archive.
	MaxBytes int64
	// Now stamps CreatedAt; defaults to time.Now.
	Now func() time.Time
}

type imageFile struct {
	order    int
	filename string
	file     *zip.File
}

// Decode parses an archive produced by Encode, stores every recognised media
// entry in blobs and returns the exam with a fresh id. The exam is not saved
// anywhere. On failure every blob written so far is deleted again.
func Decode(ctx context.Context, data []byte, blobs BlobWriter, opts Options) (exam domain.Exam, err error) {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return domain.Exam{}, fmt.Errorf("%w: %v", domain.ErrMalformedPackage, err)
	}

	budget := &readBudget{left: opts.MaxBytes}

	var meta *zip.File
	audio := make(map[int]*zip.File)
	images := make(map[int][]imageFile)
	for idx, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if unsafePath(f.Name) {
			return domain.Exam{}, fmt.Errorf("%w: unsafe entry %q", domain.ErrMalformedPackage, f.Name)
		}
		switch {
		case f.Name == manifestName:
			meta = f
		case audioEntry.MatchString(f.Name):
			m := audioEntry.FindStringSubmatch(f.Name)
			part, _ := strconv.Atoi(m[1])
			if domain.ValidatePart(part, domain.MaxAudioPart) != nil {
				continue
			}
			if _, dup := audio[part]; dup {
				return domain.Exam{}, fmt.Errorf("%w: duplicate audio for part %d", domain.ErrMalformedPackage, part)
			}
			audio[part] = f
		case imageEntry.MatchString(f.Name):
			m := imageEntry.FindStringSubmatch(f.Name)
			part, _ := strconv.Atoi(m[1])
			if domain.ValidatePart(part, domain.MaxImagePart) != nil {
				continue
			}
			img := imageFile{order: len(zr.File) + idx, filename: m[2], file: f}
			if o := ordinal.FindStringSubmatch(m[2]); o != nil {
				if n, convErr := strconv.Atoi(o[1]); convErr == nil {
					img.order = n
					img.filename = o[2]
				}
			}
			images[part] = append(images[part], img)
		}
	}

	if meta == nil {
		return domain.Exam{}, fmt.Errorf("%w: %s is missing", domain.ErrMalformedPackage, manifestName)
	}
	raw, err := budget.read(meta)
	if err != nil {
		return domain.Exam{}, err
	}
	var m manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return domain.Exam{}, fmt.Errorf("%w: parse %s: %v", domain.ErrMalformedPackage, manifestName, err)
	}
	key, err := domain.ValidateAnswerKey(m.AnswerKey, opts.Layout)
	if err != nil {
		return domain.Exam{}, err
	}

	exam = domain.Exam{
		ID:               uuid.NewString(),
		Name:             m.Name,
		CreatedBy:        m.CreatedBy,
		Audio:            make(map[int]domain.MediaRef),
		Images:           make(map[int][]domain.MediaRef),
		AnswerKey:        key,
		TimeLimitSeconds: m.TimeLimitSeconds,
		CreatedAt:        now().UTC(),
	}
	if exam.TimeLimitSeconds <= 0 {
		exam.TimeLimitSeconds = domain.DefaultTimeLimitSeconds
	}

	var written []string
	defer func() {
		if err == nil {
			return
		}
		for _, ref := range written {
			_ = blobs.Delete(context.WithoutCancel(ctx), ref)
		}
	}()

	store := func(f *zip.File, filename string) (domain.MediaRef, error) {
		data, err := budget.read(f)
		if err != nil {
			return domain.MediaRef{}, err
		}
		ref, err := blobs.Put(ctx, filename, data)
		if err != nil {
			return domain.MediaRef{}, fmt.Errorf("%w: store %s: %w", domain.ErrBlobStore, f.Name, err)
		}
		written = append(written, ref)
		return domain.MediaRef{Ref: ref, Filename: filename}, nil
	}

	for part := 1; part <= domain.MaxAudioPart; part++ {
		f, ok := audio[part]
		if !ok {
			continue
		}
		ext := audioEntry.FindStringSubmatch(f.Name)[2]
		media, err := store(f, fmt.Sprintf("part%d%s", part, ext))
		if err != nil {
			return domain.Exam{}, err
		}
		exam.Audio[part] = media
	}

	for part := 1; part <= domain.MaxImagePart; part++ {
		files := images[part]
		sort.SliceStable(files, func(i, j int) bool { return files[i].order < files[j].order })
		for _, img := range files {
			media, err := store(img.file, img.filename)
			if err != nil {
				return domain.Exam{}, err
			}
			exam.Images[part] = append(exam.Images[part], media)
		}
	}

	return exam, nil
}

type readBudget struct {
	left int64
}

var errTooLarge = errors.New("archive exceeds size limit")

func (b *readBudget) read(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", domain.ErrMalformedPackage, f.Name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, b.left+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", domain.ErrMalformedPackage, f.Name, err)
	}
	if int64(len(data)) > b.left {
		return nil, fmt.Errorf("%w: %w", domain.ErrMalformedPackage, errTooLarge)
	}
	b.left -= int64(len(data))
	return data, nil
}

func unsafePath(name string) bool {
	if strings.HasPrefix(name, "/") || strings.HasPrefix(name, `\`) {
		return true
	}
	for _, seg := range strings.FieldsFunc(name, func(r rune) bool { return r == '/' || r == '\\' }) {
		if seg == ".." {
			return true
		}
	}
	return false
}
