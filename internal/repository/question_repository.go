package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/algoprep/algoprep-backend/internal/model"
)

// QuestionRepository handles exam question data access. Test cases are stored
// as JSONB columns, visible and hidden separately.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// Add inserts a question into an exam.
func (r *QuestionRepository) Add(ctx context.Context, q *model.ExamQuestion) error {
	visible, err := json.Marshal(q.VisibleTests)
	if err != nil {
		return fmt.Errorf("marshal visible tests: %w", err)
	}
	hidden, err := json.Marshal(q.HiddenTests)
	if err != nil {
		return fmt.Errorf("marshal hidden tests: %w", err)
	}

	return r.pool.QueryRow(ctx,
		`INSERT INTO exam_questions
		   (exam_id, order_num, title, category, marks, starter_code, visible_tests, hidden_tests)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id`,
		q.ExamID, q.OrderNum, q.Title, q.Category, q.Marks, q.StarterCode, visible, hidden,
	).Scan(&q.ID)
}

// ListByExam retrieves an exam's questions in ordinal order.
func (r *QuestionRepository) ListByExam(ctx context.Context, examID uuid.UUID) ([]model.ExamQuestion, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, exam_id, order_num, title, category, marks, starter_code, visible_tests, hidden_tests
		 FROM exam_questions
		 WHERE exam_id = $1
		 ORDER BY order_num ASC`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.ExamQuestion
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, *q)
	}
	return questions, rows.Err()
}

func scanQuestion(row interface{ Scan(...any) error }) (*model.ExamQuestion, error) {
	q := &model.ExamQuestion{}
	var visible, hidden []byte

	err := row.Scan(&q.ID, &q.ExamID, &q.OrderNum, &q.Title, &q.Category,
		&q.Marks, &q.StarterCode, &visible, &hidden)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(visible, &q.VisibleTests); err != nil {
		return nil, fmt.Errorf("unmarshal visible tests: %w", err)
	}
	if err := json.Unmarshal(hidden, &q.HiddenTests); err != nil {
		return nil, fmt.Errorf("unmarshal hidden tests: %w", err)
	}
	return q, nil
}
