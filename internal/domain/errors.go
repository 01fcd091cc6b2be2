package domain

import "errors"

var (
	// ErrExamNotFound is returned when an exam id does not resolve in the repository.
	ErrExamNotFound = errors.New("exam not found")
	// ErrNoActiveExam is returned when a submission targets an exam that is not the active one.
	ErrNoActiveExam = errors.New("no active exam")
	// ErrInvalidAnswerKey indicates an answer key with an empty question id or an illegal choice.
	ErrInvalidAnswerKey = errors.New("invalid answer key")
	// ErrMalformedPackage indicates an exam package that cannot be decoded.
	ErrMalformedPackage = errors.New("malformed exam package")
	// ErrBlobStore wraps failures coming from the blob store.
	ErrBlobStore = errors.New("blob store failure")
	// ErrRepository wraps failures coming from the exam repository or submission store.
	ErrRepository = errors.New("repository failure")
	// ErrBlobNotFound is returned by blob stores for unknown references.
	ErrBlobNotFound = errors.New("blob not found")
	// ErrInvalidPart indicates a media part number outside the allowed range.
	ErrInvalidPart = errors.New("invalid media part")
	// ErrEmptyParticipant is returned when a submission or identify call carries no display name.
	ErrEmptyParticipant = errors.New("participant name is required")
	// ErrUnsupportedMedia indicates an upload whose content is not audio or image as declared.
	ErrUnsupportedMedia = errors.New("unsupported media type")
	// ErrEmptyExamName is returned when an exam is created without a name.
	ErrEmptyExamName = errors.New("exam name is required")
)
