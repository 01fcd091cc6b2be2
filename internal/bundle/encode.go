package bundle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"exam-session-service/internal/domain"
	"github.com/klauspost/compress/zip"
)

// Encode writes exam and the blobs it references to w as a zip archive.
// Absent audio parts and empty image parts are simply left out.
func Encode(ctx context.Context, w io.Writer, exam domain.Exam, blobs BlobReader) error {
	zw := zip.NewWriter(w)
	modified := exam.CreatedAt
	if modified.IsZero() {
		modified = time.Now()
	}

	meta, err := json.MarshalIndent(manifest{
		Name:             exam.Name,
		CreatedBy:        exam.CreatedBy,
		AnswerKey:        exam.AnswerKey.Raw(),
		TimeLimitSeconds: exam.TimeLimitSeconds,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := writeEntry(zw, manifestName, zip.Deflate, modified, meta); err != nil {
		return err
	}

	for part := 1; part <= domain.MaxAudioPart; part++ {
		media, ok := exam.Audio[part]
		if !ok || media.Ref == "" {
			continue
		}
		data, err := blobs.Get(ctx, media.Ref)
		if err != nil {
			return fmt.Errorf("%w: read audio part %d: %w", domain.ErrBlobStore, part, err)
		}
		// Audio and image formats are already compressed.
		if err := writeEntry(zw, audioName(part, media.Filename, media.Ref), zip.Store, modified, data); err != nil {
			return err
		}
	}

	for part := 1; part <= domain.MaxImagePart; part++ {
		for i, media := range exam.Images[part] {
			if media.Ref == "" {
				continue
			}
			data, err := blobs.Get(ctx, media.Ref)
			if err != nil {
				return fmt.Errorf("%w: read image %d of part %d: %w", domain.ErrBlobStore, i, part, err)
			}
			if err := writeEntry(zw, imageName(part, i, media.Filename, media.Ref), zip.Store, modified, data); err != nil {
				return err
			}
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("close archive: %w", err)
	}
	return nil
}

func writeEntry(zw *zip.Writer, name string, method uint16, modified time.Time, data []byte) error {
	fw, err := zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   method,
		Modified: modified,
	})
	if err != nil {
		return fmt.Errorf("create entry %s: %w", name, err)
	}
	if _, err := fw.Write(data); err != nil {
		return fmt.Errorf("write entry %s: %w", name, err)
	}
	return nil
}
