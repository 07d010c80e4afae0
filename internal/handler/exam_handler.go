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
	"github.com/algoprep/algoprep-backend/internal/response"
	"github.com/algoprep/algoprep-backend/internal/service"
	"github.com/algoprep/algoprep-backend/internal/validator"
)

// ExamHandler handles the public catalog and instructor authoring endpoints.
type ExamHandler struct {
	examService *service.ExamService
}

// NewExamHandler creates a new ExamHandler.
func NewExamHandler(examService *service.ExamService) *ExamHandler {
	return &ExamHandler{examService: examService}
}

// Catalog godoc
// GET /api/v1/exams?page=&per_page=
// Lists published exams.
func (h *ExamHandler) Catalog(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))

	exams, pagination, err := h.examService.Catalog(c.Request.Context(), page, perPage)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"exams": exams}, pagination)
}

// Get godoc
// GET /api/v1/exams/:exam_id
// Returns one published exam's metadata.
func (h *ExamHandler) Get(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	exam, err := h.examService.GetByID(c.Request.Context(), examID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}
	if exam.Status != model.ExamStatusPublished {
		claims := middleware.GetClaims(c)
		if claims == nil || claims.UserID != exam.AuthorID {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
	}

	response.Success(c, http.StatusOK, gin.H{"exam": exam})
}

// Create godoc
// POST /api/v1/instructor/exams
// Creates a new draft exam owned by the caller.
func (h *ExamHandler) Create(c *gin.Context) {
	claims := middleware.GetClaims(c)

	var req model.CreateExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	exam := &model.Exam{
		Title:           req.Title,
		AuthorID:        claims.UserID,
		Category:        req.Category,
		DurationMinutes: req.DurationMinutes,
		QuestionCount:   req.QuestionCount,
		ViolationLimit:  req.ViolationLimit,
		Language:        req.Language,
	}
	if err := h.examService.Create(c.Request.Context(), exam); err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"exam": exam})
}

// ListMine godoc
// GET /api/v1/instructor/exams
// Lists the caller's exams in every status.
func (h *ExamHandler) ListMine(c *gin.Context) {
	claims := middleware.GetClaims(c)

	exams, err := h.examService.ListByAuthor(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exams": exams})
}

// Update godoc
// PUT /api/v1/instructor/exams/:exam_id
// Edits one of the caller's draft exams.
func (h *ExamHandler) Update(c *gin.Context) {
	claims := middleware.GetClaims(c)

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.UpdateExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	exam, err := h.examService.Update(c.Request.Context(), examID, claims.UserID, &req)
	if err != nil {
		h.failAuthoring(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exam": exam})
}

// AddQuestion godoc
// POST /api/v1/instructor/exams/:exam_id/questions
// Appends a question to one of the caller's draft exams.
func (h *ExamHandler) AddQuestion(c *gin.Context) {
	claims := middleware.GetClaims(c)

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.AddQuestionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	question := &model.ExamQuestion{
		Title:        req.Title,
		Category:     req.Category,
		Marks:        req.Marks,
		StarterCode:  req.StarterCode,
		VisibleTests: req.VisibleTests,
		HiddenTests:  req.HiddenTests,
		OrderNum:     req.OrderNum,
	}
	if err := h.examService.AddQuestion(c.Request.Context(), examID, claims.UserID, question); err != nil {
		h.failAuthoring(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"question": question})
}

// ListQuestions godoc
// GET /api/v1/instructor/exams/:exam_id/questions
// Returns an exam's full questions, hidden tests included. Author only.
func (h *ExamHandler) ListQuestions(c *gin.Context) {
	claims := middleware.GetClaims(c)

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	exam, err := h.examService.GetByID(c.Request.Context(), examID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}
	if exam.AuthorID != claims.UserID {
		response.Fail(c, http.StatusForbidden, response.ErrForbidden)
		return
	}

	questions, err := h.examService.Questions(c.Request.Context(), examID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"questions": questions})
}

// Publish godoc
// POST /api/v1/instructor/exams/:exam_id/publish
// Publishes a draft exam, making it visible in the catalog.
func (h *ExamHandler) Publish(c *gin.Context) {
	claims := middleware.GetClaims(c)

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if err := h.examService.Publish(c.Request.Context(), examID, claims.UserID); err != nil {
		h.failAuthoring(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}

func (h *ExamHandler) failAuthoring(c *gin.Context, err error) {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, service.ErrNotExamAuthor):
		response.Fail(c, http.StatusForbidden, response.ErrForbidden)
	case errors.Is(err, service.ErrExamNotDraft):
		response.Fail(c, http.StatusConflict, response.ErrExamNotDraft)
	case errors.Is(err, service.ErrNoQuestions):
		response.Fail(c, http.StatusUnprocessableEntity, response.ErrNoQuestions)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
