package http

import (
	"errors"
	"net/http"

	"exam-session-service/internal/domain"
)

// ErrCode is the stable identifier clients switch on, over REST and websocket.
type ErrCode string

const (
	CodeExamNotFound     ErrCode = "EXAM_NOT_FOUND"
	CodeNoActiveExam     ErrCode = "NO_ACTIVE_EXAM"
	CodeInvalidAnswerKey ErrCode = "INVALID_ANSWER_KEY"
	CodeMalformedPackage ErrCode = "MALFORMED_PACKAGE"
	CodeBlobStore        ErrCode = "BLOB_STORE_FAILURE"
	CodeRepository       ErrCode = "REPOSITORY_FAILURE"
	CodeBlobNotFound     ErrCode = "BLOB_NOT_FOUND"
	CodeUnsupportedMedia ErrCode = "UNSUPPORTED_MEDIA"
	CodeInvalidPayload   ErrCode = "INVALID_PAYLOAD"
	CodeUnknownMessage   ErrCode = "UNKNOWN_MESSAGE"
	CodeInternal         ErrCode = "INTERNAL_ERROR"
)

// classify maps a service error onto an HTTP status and an ErrCode.
func classify(err error) (int, ErrCode) {
	switch {
	case errors.Is(err, domain.ErrExamNotFound):
		return http.StatusNotFound, CodeExamNotFound
	case errors.Is(err, domain.ErrBlobNotFound):
		return http.StatusNotFound, CodeBlobNotFound
	case errors.Is(err, domain.ErrNoActiveExam):
		return http.StatusConflict, CodeNoActiveExam
	case errors.Is(err, domain.ErrInvalidAnswerKey):
		return http.StatusUnprocessableEntity, CodeInvalidAnswerKey
	case errors.Is(err, domain.ErrMalformedPackage):
		return http.StatusUnprocessableEntity, CodeMalformedPackage
	case errors.Is(err, domain.ErrUnsupportedMedia):
		return http.StatusUnsupportedMediaType, CodeUnsupportedMedia
	case errors.Is(err, domain.ErrInvalidPart),
		errors.Is(err, domain.ErrEmptyParticipant),
		errors.Is(err, domain.ErrEmptyExamName):
		return http.StatusBadRequest, CodeInvalidPayload
	case errors.Is(err, domain.ErrBlobStore):
		return http.StatusBadGateway, CodeBlobStore
	case errors.Is(err, domain.ErrRepository):
		return http.StatusBadGateway, CodeRepository
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}
