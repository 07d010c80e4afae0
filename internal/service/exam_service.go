package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/algoprep/algoprep-backend/internal/config"
	"github.com/algoprep/algoprep-backend/internal/model"
	"github.com/algoprep/algoprep-backend/internal/repository"
	"github.com/algoprep/algoprep-backend/internal/response"
)

// Domain errors.
var (
	ErrNotExamAuthor = errors.New("not the author of this exam")
	ErrNoQuestions   = errors.New("exam has no questions, cannot publish")
	ErrExamNotDraft  = errors.New("exam status is not DRAFT")
)

// ExamService handles exam catalog and authoring logic.
type ExamService struct {
	examRepo     *repository.ExamRepository
	questionRepo *repository.QuestionRepository
	rdb          *redis.Client
	log          zerolog.Logger
}

// NewExamService creates a new ExamService.
func NewExamService(
	examRepo *repository.ExamRepository,
	questionRepo *repository.QuestionRepository,
	rdb *redis.Client,
	log zerolog.Logger,
) *ExamService {
	return &ExamService{
		examRepo:     examRepo,
		questionRepo: questionRepo,
		rdb:          rdb,
		log:          log.With().Str("component", "exam_service").Logger(),
	}
}

// GetByID retrieves an exam by its UUID.
func (s *ExamService) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	return s.examRepo.GetByID(ctx, id)
}

// catalogPage is the cached shape of one catalog page.
type catalogPage struct {
	Exams      []model.Exam         `json:"exams"`
	Pagination *response.Pagination `json:"pagination"`
}

const catalogCacheTTL = 30 * time.Second

// Catalog lists published exams with pagination. Pages are cached with a
// short TTL; a fresh publish can take up to the TTL to appear.
func (s *ExamService) Catalog(ctx context.Context, page, perPage int) ([]model.Exam, *response.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}
	if perPage > 100 {
		perPage = 100
	}

	cacheKey := config.CacheKey.ExamCatalogKey(page, perPage)
	if raw, err := s.rdb.Get(ctx, cacheKey).Result(); err == nil {
		var cached catalogPage
		if err := json.Unmarshal([]byte(raw), &cached); err == nil {
			return cached.Exams, cached.Pagination, nil
		}
	}

	exams, total, err := s.examRepo.ListPublished(ctx, perPage, (page-1)*perPage)
	if err != nil {
		return nil, nil, err
	}
	if exams == nil {
		exams = []model.Exam{}
	}

	pagination := &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: total,
		TotalPages: (total + perPage - 1) / perPage,
	}

	if raw, err := json.Marshal(catalogPage{Exams: exams, Pagination: pagination}); err == nil {
		if err := s.rdb.Set(ctx, cacheKey, raw, catalogCacheTTL).Err(); err != nil {
			s.log.Warn().Err(err).Msg("Catalog cache write failed")
		}
	}
	return exams, pagination, nil
}

// Create inserts a new exam as DRAFT.
func (s *ExamService) Create(ctx context.Context, exam *model.Exam) error {
	exam.Status = model.ExamStatusDraft
	if exam.ViolationLimit <= 0 {
		exam.ViolationLimit = 3
	}
	return s.examRepo.Create(ctx, exam)
}

// Update applies partial edits to a draft exam owned by the author. Zero
// values in req leave the corresponding field untouched.
func (s *ExamService) Update(ctx context.Context, examID uuid.UUID, authorID int, req *model.UpdateExamRequest) (*model.Exam, error) {
	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}
	if exam.AuthorID != authorID {
		return nil, ErrNotExamAuthor
	}
	if exam.Status != model.ExamStatusDraft {
		return nil, ErrExamNotDraft
	}

	if req.Title != "" {
		exam.Title = req.Title
	}
	if req.Category != "" {
		exam.Category = req.Category
	}
	if req.DurationMinutes > 0 {
		exam.DurationMinutes = req.DurationMinutes
	}
	if req.QuestionCount != nil {
		exam.QuestionCount = *req.QuestionCount
	}
	if req.ViolationLimit != nil {
		exam.ViolationLimit = *req.ViolationLimit
	}
	if req.Language != "" {
		exam.Language = req.Language
	}

	if err := s.examRepo.Update(ctx, exam); err != nil {
		return nil, fmt.Errorf("update exam: %w", err)
	}
	return exam, nil
}

// AddQuestion appends a question to a draft exam owned by the author.
func (s *ExamService) AddQuestion(ctx context.Context, examID uuid.UUID, authorID int, q *model.ExamQuestion) error {
	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return fmt.Errorf("get exam: %w", err)
	}
	if exam.AuthorID != authorID {
		return ErrNotExamAuthor
	}
	if exam.Status != model.ExamStatusDraft {
		return ErrExamNotDraft
	}

	q.ExamID = examID
	return s.questionRepo.Add(ctx, q)
}

// Publish transitions a draft exam to PUBLISHED, making it startable.
func (s *ExamService) Publish(ctx context.Context, examID uuid.UUID, authorID int) error {
	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return fmt.Errorf("get exam: %w", err)
	}

	if exam.AuthorID != authorID {
		return ErrNotExamAuthor
	}
	if exam.Status != model.ExamStatusDraft {
		return ErrExamNotDraft
	}

	questions, err := s.questionRepo.ListByExam(ctx, examID)
	if err != nil {
		return fmt.Errorf("list questions: %w", err)
	}
	if len(questions) == 0 {
		return ErrNoQuestions
	}

	if err := s.examRepo.UpdateStatus(ctx, examID, model.ExamStatusPublished); err != nil {
		return fmt.Errorf("update status: %w", err)
	}

	s.log.Info().Str("exam_id", examID.String()).Int("questions", len(questions)).Msg("Exam published")
	return nil
}

// Questions retrieves an exam's questions in ordinal order.
func (s *ExamService) Questions(ctx context.Context, examID uuid.UUID) ([]model.ExamQuestion, error) {
	return s.questionRepo.ListByExam(ctx, examID)
}

// ListByAuthor retrieves an instructor's exams.
func (s *ExamService) ListByAuthor(ctx context.Context, authorID int) ([]model.Exam, error) {
	exams, err := s.examRepo.ListByAuthor(ctx, authorID)
	if err != nil {
		return nil, err
	}
	if exams == nil {
		exams = []model.Exam{}
	}
	return exams, nil
}
