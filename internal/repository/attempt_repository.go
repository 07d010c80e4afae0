package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/algoprep/algoprep-backend/internal/model"
)

// AttemptRepository handles exam attempt data access. At most one IN_PROGRESS
// attempt per (exam, user) is enforced by a partial unique index.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

// CreateActive inserts a new in-progress attempt. A concurrent start of the
// same exam by the same user conflicts on the partial unique index and
// surfaces as pgx.ErrNoRows; callers recover by fetching the existing attempt.
func (r *AttemptRepository) CreateActive(ctx context.Context, a *model.ExamAttempt) error {
	questionIDs, err := json.Marshal(a.QuestionIDs)
	if err != nil {
		return fmt.Errorf("marshal question ids: %w", err)
	}

	return r.pool.QueryRow(ctx,
		`INSERT INTO exam_attempts (exam_id, user_id, status, question_ids)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (exam_id, user_id) WHERE status = 'IN_PROGRESS' DO NOTHING
		 RETURNING id, started_at`,
		a.ExamID, a.UserID, model.AttemptStatusInProgress, questionIDs,
	).Scan(&a.ID, &a.StartedAt)
}

const attemptColumns = `id, exam_id, user_id, status, question_ids, started_at,
	submitted_at, submit_reason, elapsed_minutes, violation_counts, final_score`

// qualify prefixes every column in a comma-separated list with a table alias.
func qualify(columns, alias string) string {
	parts := strings.Split(columns, ",")
	for i := range parts {
		parts[i] = alias + "." + strings.TrimSpace(parts[i])
	}
	return strings.Join(parts, ", ")
}

func scanAttempt(row interface{ Scan(...any) error }) (*model.ExamAttempt, error) {
	a := &model.ExamAttempt{}
	var questionIDs, violations []byte

	err := row.Scan(&a.ID, &a.ExamID, &a.UserID, &a.Status, &questionIDs,
		&a.StartedAt, &a.SubmittedAt, &a.SubmitReason, &a.ElapsedMinutes,
		&violations, &a.FinalScore)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(questionIDs, &a.QuestionIDs); err != nil {
		return nil, fmt.Errorf("unmarshal question ids: %w", err)
	}
	if len(violations) > 0 {
		if err := json.Unmarshal(violations, &a.ViolationCounts); err != nil {
			return nil, fmt.Errorf("unmarshal violation counts: %w", err)
		}
	}
	return a, nil
}

// GetByID retrieves an attempt by id.
func (r *AttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ExamAttempt, error) {
	return scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM exam_attempts WHERE id = $1`, id))
}

// GetActive retrieves the in-progress attempt for an (exam, user) pair.
func (r *AttemptRepository) GetActive(ctx context.Context, examID uuid.UUID, userID int) (*model.ExamAttempt, error) {
	return scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM exam_attempts
		 WHERE exam_id = $1 AND user_id = $2 AND status = 'IN_PROGRESS'`,
		examID, userID))
}

// Finalize transitions an in-progress attempt to a terminal submission status,
// recording elapsed minutes and the final violation counters. The status guard
// makes the transition fire exactly once: a second finalize is a no-op and
// returns false.
func (r *AttemptRepository) Finalize(
	ctx context.Context,
	id uuid.UUID,
	status model.AttemptStatus,
	reason model.SubmitReason,
	elapsedMinutes int,
	violationCounts map[model.ViolationKind]int,
) (bool, error) {
	violations, err := json.Marshal(violationCounts)
	if err != nil {
		return false, fmt.Errorf("marshal violation counts: %w", err)
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE exam_attempts
		 SET status = $1, submit_reason = $2, submitted_at = NOW(),
		     elapsed_minutes = $3, violation_counts = $4
		 WHERE id = $5 AND status = 'IN_PROGRESS'`,
		status, reason, elapsedMinutes, violations, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// CountViolationsByKind aggregates the attempt's persisted violation events
// into per-kind counters. The returned map is never nil.
func (r *AttemptRepository) CountViolationsByKind(ctx context.Context, attemptID uuid.UUID) (map[model.ViolationKind]int, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT kind, COUNT(*) FROM attempt_violations
		 WHERE attempt_id = $1
		 GROUP BY kind`, attemptID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[model.ViolationKind]int)
	for rows.Next() {
		var kind model.ViolationKind
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, err
		}
		counts[kind] = n
	}
	return counts, rows.Err()
}

// SetGraded stores the aggregate score and moves the attempt to GRADED.
func (r *AttemptRepository) SetGraded(ctx context.Context, id uuid.UUID, finalScore float64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE exam_attempts
		 SET status = $1, final_score = $2
		 WHERE id = $3`,
		model.AttemptStatusGraded, finalScore, id)
	return err
}

// ListExpired retrieves in-progress attempts whose exam duration has fully
// elapsed, along with each exam's duration. Used by the deadline sweeper.
func (r *AttemptRepository) ListExpired(ctx context.Context, limit int) ([]model.ExamAttempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+qualify(attemptColumns, "a")+`
		 FROM exam_attempts a
		 JOIN exams e ON a.exam_id = e.id
		 WHERE a.status = 'IN_PROGRESS'
		   AND a.started_at + make_interval(mins => e.duration_minutes) < NOW()
		 ORDER BY a.started_at ASC
		 LIMIT $1`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []model.ExamAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, *a)
	}
	return attempts, rows.Err()
}

// ListByUser retrieves a user's attempts, newest first.
func (r *AttemptRepository) ListByUser(ctx context.Context, userID int, limit int) ([]model.ExamAttempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+attemptColumns+` FROM exam_attempts
		 WHERE user_id = $1
		 ORDER BY started_at DESC
		 LIMIT $2`, userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []model.ExamAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, *a)
	}
	return attempts, rows.Err()
}
