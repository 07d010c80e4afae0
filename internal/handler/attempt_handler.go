package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/algoprep/algoprep-backend/internal/middleware"
	"github.com/algoprep/algoprep-backend/internal/model"
	"github.com/algoprep/algoprep-backend/internal/repository"
	"github.com/algoprep/algoprep-backend/internal/response"
	"github.com/algoprep/algoprep-backend/internal/service"
	"github.com/algoprep/algoprep-backend/internal/validator"
)

// AttemptHandler handles the student-facing exam session endpoints.
type AttemptHandler struct {
	attemptService *service.AttemptService
}

// NewAttemptHandler creates a new AttemptHandler.
func NewAttemptHandler(attemptService *service.AttemptService) *AttemptHandler {
	return &AttemptHandler{attemptService: attemptService}
}

// Start godoc
// POST /api/v1/exams/:exam_id/attempts
// Starts an attempt, or resumes the caller's in-progress one.
func (h *AttemptHandler) Start(c *gin.Context) {
	claims := middleware.GetClaims(c)

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	state, err := h.attemptService.Start(c.Request.Context(), claims.UserID, examID)
	if err != nil {
		h.failSession(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": state})
}

// State godoc
// GET /api/v1/exams/:exam_id/attempts/active
// Returns the caller's resumable session state.
func (h *AttemptHandler) State(c *gin.Context) {
	claims := middleware.GetClaims(c)

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	state, err := h.attemptService.State(c.Request.Context(), claims.UserID, examID)
	if err != nil {
		h.failSession(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": state})
}

// ActiveExam godoc
// GET /api/v1/attempts/active
// Tells a reloading client which exam it is currently sitting, if any.
func (h *AttemptHandler) ActiveExam(c *gin.Context) {
	claims := middleware.GetClaims(c)

	examID, err := h.attemptService.ActiveExamID(c.Request.Context(), claims.UserID)
	if err != nil {
		h.failSession(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exam_id": examID})
}

// SaveDraft godoc
// PUT /api/v1/exams/:exam_id/attempts/active/questions/:question_id/draft
// Saves in-progress code without locking the question.
func (h *AttemptHandler) SaveDraft(c *gin.Context) {
	claims := middleware.GetClaims(c)

	examID, questionID, ok := h.sessionIDs(c)
	if !ok {
		return
	}

	var req model.SubmitCodeRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.attemptService.SaveDraft(c.Request.Context(), claims.UserID, examID, questionID, req.Code); err != nil {
		h.failSession(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"status": "saved"})
}

// Submit godoc
// POST /api/v1/exams/:exam_id/attempts/active/questions/:question_id/submit
// Locks in a question's final code. Irreversible.
func (h *AttemptHandler) Submit(c *gin.Context) {
	claims := middleware.GetClaims(c)

	examID, questionID, ok := h.sessionIDs(c)
	if !ok {
		return
	}

	var req model.SubmitCodeRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	sub, err := h.attemptService.SubmitQuestion(c.Request.Context(), claims.UserID, examID, questionID, req.Code)
	if err != nil {
		h.failSession(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"submission": gin.H{
		"question_id":  sub.QuestionID,
		"locked":       sub.Locked,
		"submitted_at": sub.UpdatedAt,
	}})
}

// Run godoc
// POST /api/v1/exams/:exam_id/attempts/active/run
// Executes code with custom stdin, without scoring.
func (h *AttemptHandler) Run(c *gin.Context) {
	claims := middleware.GetClaims(c)

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.RunCodeRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	result, err := h.attemptService.RunCode(c.Request.Context(), claims.UserID, examID, req.Code, req.Stdin)
	if err != nil {
		if errors.Is(err, service.ErrNoActiveAttempt) {
			response.Fail(c, http.StatusNotFound, response.ErrNoActiveAttempt)
			return
		}
		response.Fail(c, http.StatusBadGateway, response.ErrExecutionFailed)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"result": result})
}

// Finish godoc
// POST /api/v1/exams/:exam_id/attempts/active/finish
// Voluntarily submits the whole attempt. Remaining drafts are force-submitted
// and the attempt is queued for grading.
func (h *AttemptHandler) Finish(c *gin.Context) {
	claims := middleware.GetClaims(c)

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	result, err := h.attemptService.FinishByUser(c.Request.Context(), claims.UserID, examID)
	if err != nil {
		h.failSession(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"result": result})
}

// History godoc
// GET /api/v1/attempts?limit=
// Lists the caller's past attempts, newest first.
func (h *AttemptHandler) History(c *gin.Context) {
	claims := middleware.GetClaims(c)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	attempts, err := h.attemptService.History(c.Request.Context(), claims.UserID, limit)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempts": attempts})
}

func (h *AttemptHandler) sessionIDs(c *gin.Context) (examID, questionID uuid.UUID, ok bool) {
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, uuid.Nil, false
	}
	questionID, err = uuid.Parse(c.Param("question_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, uuid.Nil, false
	}
	return examID, questionID, true
}

func (h *AttemptHandler) failSession(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrExamNotPublished):
		response.Fail(c, http.StatusConflict, response.ErrExamNotAvailable)
	case errors.Is(err, service.ErrNoQuestions):
		response.Fail(c, http.StatusConflict, response.ErrExamNotAvailable)
	case errors.Is(err, service.ErrNoActiveAttempt):
		response.Fail(c, http.StatusNotFound, response.ErrNoActiveAttempt)
	case errors.Is(err, service.ErrQuestionNotInSet):
		response.Fail(c, http.StatusForbidden, response.ErrQuestionNotInSet)
	case errors.Is(err, service.ErrAttemptGraceLocked):
		response.Fail(c, http.StatusConflict, response.ErrAttemptGraceLocked)
	case errors.Is(err, repository.ErrSubmissionLocked):
		response.Fail(c, http.StatusConflict, response.ErrQuestionLocked)
	case errors.Is(err, pgx.ErrNoRows):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
