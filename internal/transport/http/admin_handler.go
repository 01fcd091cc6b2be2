package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"exam-session-service/internal/app"
	"exam-session-service/internal/bundle"
	"exam-session-service/internal/domain"
	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// AdminHandler exposes the administrator actions over REST.
type AdminHandler struct {
	session  *app.SessionService
	catalog  *app.CatalogService
	maxBytes int64
	log      zerolog.Logger
}

// NewAdminHandler bounds multipart bodies (uploads and packages) by maxBytes.
func NewAdminHandler(session *app.SessionService, catalog *app.CatalogService, maxBytes int64, log zerolog.Logger) *AdminHandler {
	if maxBytes <= 0 {
		maxBytes = bundle.DefaultMaxBytes
	}
	return &AdminHandler{
		session:  session,
		catalog:  catalog,
		maxBytes: maxBytes,
		log:      log.With().Str("component", "admin_handler").Logger(),
	}
}

type examRequest struct {
	ExamID string `json:"examId" binding:"required"`
}

type assignRequest struct {
	ExamID           string `json:"examId" binding:"required"`
	TimeLimitSeconds int    `json:"timeLimitSeconds" binding:"gte=0"`
}

type startRequest struct {
	TimeLimitSeconds int `json:"timeLimitSeconds" binding:"gte=0"`
}

type deleteSubmissionsRequest struct {
	IDs []string `json:"ids" binding:"required,min=1,dive,required"`
}

// GET /api/v1/exams?createdBy=&assigned=true
func (h *AdminHandler) ListExams(c *gin.Context) {
	filter := domain.ExamFilter{
		CreatedBy:    c.Query("createdBy"),
		AssignedOnly: c.Query("assigned") == "true",
	}
	exams, err := h.catalog.List(c.Request.Context(), filter)
	if err != nil {
		h.fail(c, err)
		return
	}
	success(c, http.StatusOK, exams)
}

func (h *AdminHandler) GetExam(c *gin.Context) {
	exam, err := h.catalog.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	success(c, http.StatusOK, exam)
}

// CreateExam accepts multipart/form-data: name, createdBy, timeLimitSeconds,
// answerKey (JSON object), audio1..audio4 files and images1..images7 files.
func (h *AdminHandler) CreateExam(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes)
	form, err := c.MultipartForm()
	if err != nil {
		failCode(c, http.StatusBadRequest, CodeInvalidPayload, "expected multipart form")
		return
	}

	draft := app.ExamDraft{
		Name:      c.PostForm("name"),
		CreatedBy: c.PostForm("createdBy"),
	}
	if raw := c.PostForm("timeLimitSeconds"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			failCode(c, http.StatusBadRequest, CodeInvalidPayload, "timeLimitSeconds must be a non-negative integer")
			return
		}
		draft.TimeLimitSeconds = n
	}
	if raw := c.PostForm("answerKey"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &draft.AnswerKey); err != nil {
			failCode(c, http.StatusBadRequest, CodeInvalidAnswerKey, "answerKey must be a JSON object of question id to choice")
			return
		}
	}

	for part := 1; part <= domain.MaxAudioPart; part++ {
		files := form.File[fmt.Sprintf("audio%d", part)]
		if len(files) == 0 {
			continue
		}
		up, err := readUpload(files[0])
		if err != nil {
			failCode(c, http.StatusBadRequest, CodeInvalidPayload, err.Error())
			return
		}
		if draft.Audio == nil {
			draft.Audio = make(map[int]app.Upload)
		}
		draft.Audio[part] = up
	}
	for part := 1; part <= domain.MaxImagePart; part++ {
		for _, fh := range form.File[fmt.Sprintf("images%d", part)] {
			up, err := readUpload(fh)
			if err != nil {
				failCode(c, http.StatusBadRequest, CodeInvalidPayload, err.Error())
				return
			}
			if draft.Images == nil {
				draft.Images = make(map[int][]app.Upload)
			}
			draft.Images[part] = append(draft.Images[part], up)
		}
	}

	exam, err := h.catalog.Create(c.Request.Context(), draft)
	if err != nil {
		h.fail(c, err)
		return
	}
	success(c, http.StatusCreated, exam)
}

// ImportExam accepts a multipart "package" file and an optional createdBy.
func (h *AdminHandler) ImportExam(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes)
	fh, err := c.FormFile("package")
	if err != nil {
		failCode(c, http.StatusBadRequest, CodeInvalidPayload, "package file is required")
		return
	}
	up, err := readUpload(fh)
	if err != nil {
		failCode(c, http.StatusBadRequest, CodeInvalidPayload, err.Error())
		return
	}
	exam, err := h.catalog.Import(c.Request.Context(), up.Data, c.PostForm("createdBy"))
	if err != nil {
		h.fail(c, err)
		return
	}
	success(c, http.StatusCreated, exam)
}

// ExportExam streams the exam package as a zip attachment.
func (h *AdminHandler) ExportExam(c *gin.Context) {
	var buf bytes.Buffer
	exam, err := h.catalog.Export(c.Request.Context(), c.Param("id"), &buf)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, bundle.FileName(exam.Name)))
	c.Data(http.StatusOK, "application/zip", buf.Bytes())
}

func (h *AdminHandler) DeleteExam(c *gin.Context) {
	if err := h.session.DeleteExam(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GET /api/v1/exams/:id/submissions?order=newest
func (h *AdminHandler) ListSubmissions(c *gin.Context) {
	success(c, http.StatusOK, h.session.Summaries(c.Param("id"), c.Query("order") != "oldest"))
}

func (h *AdminHandler) DeleteSubmissions(c *gin.Context) {
	var req deleteSubmissionsRequest
	if !h.bind(c, &req) {
		return
	}
	if err := h.session.DeleteSubmissions(c.Request.Context(), req.IDs); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *AdminHandler) GetSession(c *gin.Context) {
	success(c, http.StatusOK, h.session.Snapshot())
}

func (h *AdminHandler) SelectExam(c *gin.Context) {
	var req examRequest
	if !h.bind(c, &req) {
		return
	}
	status, err := h.session.Select(c.Request.Context(), req.ExamID)
	if err != nil {
		h.fail(c, err)
		return
	}
	success(c, http.StatusOK, status)
}

func (h *AdminHandler) AssignExam(c *gin.Context) {
	var req assignRequest
	if !h.bind(c, &req) {
		return
	}
	status, err := h.session.Assign(c.Request.Context(), req.ExamID, req.TimeLimitSeconds)
	if err != nil {
		h.fail(c, err)
		return
	}
	success(c, http.StatusOK, status)
}

func (h *AdminHandler) StartExam(c *gin.Context) {
	var req startRequest
	if c.Request.ContentLength != 0 && !h.bind(c, &req) {
		return
	}
	success(c, http.StatusOK, h.session.Start(c.Request.Context(), req.TimeLimitSeconds))
}

func (h *AdminHandler) EndExam(c *gin.Context) {
	success(c, http.StatusOK, domain.End{Summaries: h.session.End(c.Request.Context())})
}

func (h *AdminHandler) ClearAll(c *gin.Context) {
	if err := h.session.ClearAll(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ServeBlob returns media bytes for references under prefix.
func (h *AdminHandler) ServeBlob(prefix string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ref := prefix + c.Param("name")
		data, err := h.catalog.Blob(c.Request.Context(), ref)
		if err != nil {
			h.fail(c, err)
			return
		}
		c.Header("Cache-Control", "public, max-age=31536000, immutable")
		c.Data(http.StatusOK, mimetype.Detect(data).String(), data)
	}
}

func (h *AdminHandler) bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		failCode(c, http.StatusBadRequest, CodeInvalidPayload, err.Error())
		return false
	}
	return true
}

func readUpload(fh *multipart.FileHeader) (app.Upload, error) {
	f, err := fh.Open()
	if err != nil {
		return app.Upload{}, fmt.Errorf("open %s: %w", fh.Filename, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return app.Upload{}, fmt.Errorf("read %s: %w", fh.Filename, err)
	}
	return app.Upload{Filename: strings.TrimSpace(fh.Filename), Data: data}, nil
}
