package domain

import "time"

const (
	// DefaultTimeLimitSeconds applies to exams created without an explicit limit.
	DefaultTimeLimitSeconds = 7200

	// MaxAudioPart and MaxImagePart bound the part numbers an exam may carry media for.
	MaxAudioPart = 4
	MaxImagePart = 7
)

// MediaRef points at one blob and remembers the file name it was uploaded with.
type MediaRef struct {
	Ref      string `json:"ref"`
	Filename string `json:"filename"`
}

// Exam is a listening test: media per part plus the answer key.
type Exam struct {
	ID               string             `json:"id"`
	Name             string             `json:"name"`
	CreatedBy        string             `json:"createdBy"`
	Audio            map[int]MediaRef   `json:"audio"`
	Images           map[int][]MediaRef `json:"images"`
	AnswerKey        AnswerKey          `json:"answerKey"`
	Assigned         bool               `json:"assigned"`
	TimeLimitSeconds int                `json:"timeLimitSeconds"`
	CreatedAt        time.Time          `json:"createdAt"`
}

// BlobRefs lists every blob reference the exam owns, audio first then images by part.
func (e Exam) BlobRefs() []string {
	refs := make([]string, 0, len(e.Audio))
	for part := 1; part <= MaxAudioPart; part++ {
		if m, ok := e.Audio[part]; ok && m.Ref != "" {
			refs = append(refs, m.Ref)
		}
	}
	for part := 1; part <= MaxImagePart; part++ {
		for _, m := range e.Images[part] {
			if m.Ref != "" {
				refs = append(refs, m.Ref)
			}
		}
	}
	return refs
}

// EffectiveTimeLimit returns the exam's limit, falling back to the default.
func (e Exam) EffectiveTimeLimit() int {
	if e.TimeLimitSeconds > 0 {
		return e.TimeLimitSeconds
	}
	return DefaultTimeLimitSeconds
}

// ExamPatch carries the only fields an exam may change after creation.
type ExamPatch struct {
	Assigned         *bool
	TimeLimitSeconds *int
}

// ExamFilter narrows repository listings. Zero value lists everything.
type ExamFilter struct {
	CreatedBy    string
	AssignedOnly bool
}

// Submission is one participant's graded attempt.
type Submission struct {
	ID          string            `json:"id"`
	ExamID      string            `json:"examId"`
	Participant string            `json:"participant"`
	Answers     map[string]string `json:"answers"`
	Score       int               `json:"score"`
	SubmittedAt time.Time         `json:"submittedAt"`
}

// Summary drops the raw answers so the result can be broadcast.
func (s Submission) Summary() SubmissionSummary {
	return SubmissionSummary{
		ID:          s.ID,
		Participant: s.Participant,
		Score:       s.Score,
		SubmittedAt: s.SubmittedAt,
	}
}

// SubmissionSummary is the broadcast-safe projection of a Submission.
type SubmissionSummary struct {
	ID          string    `json:"id"`
	Participant string    `json:"participant"`
	Score       int       `json:"score"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// ValidatePart checks an audio or image part number.
func ValidatePart(part, max int) error {
	if part < 1 || part > max {
		return ErrInvalidPart
	}
	return nil
}

// Clone deep-copies the maps so callers cannot mutate a stored exam in place.
func (e Exam) Clone() Exam {
	out := e
	if e.Audio != nil {
		out.Audio = make(map[int]MediaRef, len(e.Audio))
		for k, v := range e.Audio {
			out.Audio[k] = v
		}
	}
	if e.Images != nil {
		out.Images = make(map[int][]MediaRef, len(e.Images))
		for k, v := range e.Images {
			out.Images[k] = append([]MediaRef(nil), v...)
		}
	}
	if e.AnswerKey != nil {
		out.AnswerKey = make(AnswerKey, len(e.AnswerKey))
		for k, v := range e.AnswerKey {
			out.AnswerKey[k] = v
		}
	}
	return out
}

// Apply returns a copy of e with the patch fields set.
func (p ExamPatch) Apply(e Exam) Exam {
	if p.Assigned != nil {
		e.Assigned = *p.Assigned
	}
	if p.TimeLimitSeconds != nil {
		e.TimeLimitSeconds = *p.TimeLimitSeconds
	}
	return e
}

// Matches reports whether e passes the filter.
func (f ExamFilter) Matches(e Exam) bool {
	if f.CreatedBy != "" && e.CreatedBy != f.CreatedBy {
		return false
	}
	if f.AssignedOnly && !e.Assigned {
		return false
	}
	return true
}

// Checkpoint is the part of the session that survives a restart. A running
// countdown is deliberately not part of it.
type Checkpoint struct {
	ActiveExamID     string `json:"activeExamId"`
	Assigned         bool   `json:"assigned"`
	TimeLimitSeconds int    `json:"timeLimitSeconds"`
}
