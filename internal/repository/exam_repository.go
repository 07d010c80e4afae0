package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/algoprep/algoprep-backend/internal/model"
)

// ExamRepository handles exam definition data access.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

const examColumns = `id, title, author_id, category, duration_minutes,
	question_count, violation_limit, language, status, created_at, updated_at`

func scanExam(row interface{ Scan(...any) error }) (*model.Exam, error) {
	e := &model.Exam{}
	err := row.Scan(&e.ID, &e.Title, &e.AuthorID, &e.Category, &e.DurationMinutes,
		&e.QuestionCount, &e.ViolationLimit, &e.Language, &e.Status, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// GetByID retrieves an exam by its UUID.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	return scanExam(r.pool.QueryRow(ctx,
		`SELECT `+examColumns+` FROM exams WHERE id = $1`, id))
}

// Create inserts a new exam.
func (r *ExamRepository) Create(ctx context.Context, e *model.Exam) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO exams (title, author_id, category, duration_minutes,
		   question_count, violation_limit, language, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, created_at, updated_at`,
		e.Title, e.AuthorID, e.Category, e.DurationMinutes,
		e.QuestionCount, e.ViolationLimit, e.Language, e.Status,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
}

// Update rewrites the mutable columns of a draft exam.
func (r *ExamRepository) Update(ctx context.Context, e *model.Exam) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE exams
		 SET title = $1, category = $2, duration_minutes = $3, question_count = $4,
		     violation_limit = $5, language = $6, updated_at = NOW()
		 WHERE id = $7`,
		e.Title, e.Category, e.DurationMinutes, e.QuestionCount,
		e.ViolationLimit, e.Language, e.ID)
	return err
}

// UpdateStatus transitions an exam's lifecycle status.
func (r *ExamRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.ExamStatus) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE exams SET status = $1, updated_at = NOW() WHERE id = $2`, status, id)
	return err
}

// ListPublished retrieves the catalog of published exams, newest first.
func (r *ExamRepository) ListPublished(ctx context.Context, limit, offset int) ([]model.Exam, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM exams WHERE status = $1`, model.ExamStatusPublished,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+examColumns+` FROM exams
		 WHERE status = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`,
		model.ExamStatusPublished, limit, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var exams []model.Exam
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			return nil, 0, err
		}
		exams = append(exams, *e)
	}
	return exams, total, rows.Err()
}

// ListByAuthor retrieves all exams created by an instructor, newest first.
func (r *ExamRepository) ListByAuthor(ctx context.Context, authorID int) ([]model.Exam, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+examColumns+` FROM exams
		 WHERE author_id = $1
		 ORDER BY created_at DESC`, authorID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exams []model.Exam
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			return nil, err
		}
		exams = append(exams, *e)
	}
	return exams, rows.Err()
}
