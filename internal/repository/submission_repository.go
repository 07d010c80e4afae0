package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/algoprep/algoprep-backend/internal/model"
)

// ErrSubmissionLocked is returned when a write targets a question that has
// already been submitted and locked.
var ErrSubmissionLocked = errors.New("submission is locked")

// SubmissionRepository handles per-(attempt, question) submission rows.
type SubmissionRepository struct {
	pool *pgxpool.Pool
}

// NewSubmissionRepository creates a new SubmissionRepository.
func NewSubmissionRepository(pool *pgxpool.Pool) *SubmissionRepository {
	return &SubmissionRepository{pool: pool}
}

// Upsert writes a submission last-write-wins, keyed on (attempt, question).
// Resubmission before lock updates the existing row; a duplicate-insert race
// therefore recovers into an update instead of surfacing a conflict. Once a
// row is locked it is immutable and Upsert returns ErrSubmissionLocked.
// Setting lock=true locks the row as part of the same write.
func (r *SubmissionRepository) Upsert(ctx context.Context, s *model.ExamSubmission, lock bool) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO exam_submissions (attempt_id, question_id, code, locked)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (attempt_id, question_id) DO UPDATE
		 SET code = EXCLUDED.code,
		     locked = exam_submissions.locked OR EXCLUDED.locked,
		     updated_at = NOW()
		 WHERE exam_submissions.locked = FALSE
		 RETURNING id, locked, created_at, updated_at`,
		s.AttemptID, s.QuestionID, s.Code, lock,
	).Scan(&s.ID, &s.Locked, &s.CreatedAt, &s.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		// The conflict row exists but is locked; the guarded update matched
		// nothing.
		return ErrSubmissionLocked
	}
	return err
}

// ListByAttempt retrieves all submissions of an attempt keyed by question id.
func (r *SubmissionRepository) ListByAttempt(ctx context.Context, attemptID uuid.UUID) (map[uuid.UUID]*model.ExamSubmission, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, attempt_id, question_id, code, locked, score, breakdown, created_at, updated_at
		 FROM exam_submissions
		 WHERE attempt_id = $1`, attemptID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	submissions := make(map[uuid.UUID]*model.ExamSubmission)
	for rows.Next() {
		s := &model.ExamSubmission{}
		var breakdown []byte
		if err := rows.Scan(&s.ID, &s.AttemptID, &s.QuestionID, &s.Code, &s.Locked,
			&s.Score, &breakdown, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		if len(breakdown) > 0 {
			s.Breakdown = &model.GradeBreakdown{}
			if err := json.Unmarshal(breakdown, s.Breakdown); err != nil {
				return nil, fmt.Errorf("unmarshal breakdown: %w", err)
			}
		}
		submissions[s.QuestionID] = s
	}
	return submissions, rows.Err()
}

// SetGrade persists a graded submission's score and rubric breakdown.
func (r *SubmissionRepository) SetGrade(ctx context.Context, id uuid.UUID, breakdown *model.GradeBreakdown) error {
	raw, err := json.Marshal(breakdown)
	if err != nil {
		return fmt.Errorf("marshal breakdown: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`UPDATE exam_submissions
		 SET score = $1, breakdown = $2, updated_at = NOW()
		 WHERE id = $3`,
		breakdown.Score, raw, id)
	return err
}
