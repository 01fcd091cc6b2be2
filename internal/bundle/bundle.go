// Package bundle encodes an exam and its media into a single zip archive and
// decodes such archives back into an unsaved exam.
//
// Archive layout:
//
//	exam.json                       name, createdBy, answerKey, timeLimitSeconds
//	audio/part<N><ext>              one entry per present audio part (1-4)
//	images/part<N>/<NNN>_<filename> images per part (1-7), NNN keeps upload order
//
// Any other entry is ignored when decoding.
package bundle

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"
)

const manifestName = "exam.json"

// DefaultMaxBytes bounds the total uncompressed size read from one archive.
const DefaultMaxBytes int64 = 512 << 20

// BlobReader is the part of a blob store Encode needs.
type BlobReader interface {
	Get(ctx context.Context, ref string) ([]byte, error)
}

// BlobWriter is the part of a blob store Decode needs.
type BlobWriter interface {
	Put(ctx context.Context, filename string, data []byte) (string, error)
	Delete(ctx context.Context, ref string) error
}

type manifest struct {
	Name             string            `json:"name"`
	CreatedBy        string            `json:"createdBy"`
	AnswerKey        map[string]string `json:"answerKey"`
	TimeLimitSeconds int               `json:"timeLimitSeconds,omitempty"`
}

var (
	audioEntry = regexp.MustCompile(`^audio/part([0-9]+)(\.[^/]*)?$`)
	imageEntry = regexp.MustCompile(`^images/part([0-9]+)/([^/]+)$`)
	ordinal    = regexp.MustCompile(`^([0-9]+)_(.+)$`)
)

func audioName(part int, filename, ref string) string {
	ext := path.Ext(filename)
	if ext == "" {
		ext = path.Ext(ref)
	}
	return fmt.Sprintf("audio/part%d%s", part, strings.ToLower(ext))
}

func imageName(part, index int, filename, ref string) string {
	name := filename
	if name == "" {
		name = path.Base(ref)
	}
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, `\`, "_")
	return fmt.Sprintf("images/part%d/%03d_%s", part, index, name)
}

// FileName suggests a download name for an exam archive.
func FileName(examName string) string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		case r == ' ':
			return '_'
		}
		return -1
	}, examName)
	if clean == "" {
		clean = "exam"
	}
	return clean + ".zip"
}
