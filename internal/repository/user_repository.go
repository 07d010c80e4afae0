package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/algoprep/algoprep-backend/internal/model"
)

// UserRepository handles user and exam-aggregate data access.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// Create inserts a new user.
func (r *UserRepository) Create(ctx context.Context, u *model.User) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO users (name, email, password_hash, role)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		u.Name, u.Email, u.PasswordHash, u.Role,
	).Scan(&u.ID, &u.CreatedAt)
}

// GetByEmail retrieves a user by email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	u := &model.User{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, email, password_hash, role, created_at
		 FROM users WHERE email = $1`, email,
	).Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// GetByID retrieves a user by id.
func (r *UserRepository) GetByID(ctx context.Context, id int) (*model.User, error) {
	u := &model.User{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, email, password_hash, role, created_at
		 FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// GetExamStats retrieves a user's cumulative exam aggregates.
func (r *UserRepository) GetExamStats(ctx context.Context, userID int) (*model.ExamStats, error) {
	s := &model.ExamStats{UserID: userID}
	err := r.pool.QueryRow(ctx,
		`SELECT lifetime_total, attempt_count, best_score
		 FROM users WHERE id = $1`, userID,
	).Scan(&s.LifetimeTotal, &s.AttemptCount, &s.BestScore)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// ApplyGradedAttempt folds one graded attempt's final score into the user's
// aggregates: lifetime total is additive, attempt count increments by exactly
// one, best score is a running maximum.
func (r *UserRepository) ApplyGradedAttempt(ctx context.Context, userID int, finalScore float64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE users
		 SET lifetime_total = lifetime_total + $1,
		     attempt_count = attempt_count + 1,
		     best_score = GREATEST(best_score, $1)
		 WHERE id = $2`,
		finalScore, userID)
	return err
}

// Leaderboard retrieves the top users ordered by best single-attempt score,
// ties broken by lifetime total.
func (r *UserRepository) Leaderboard(ctx context.Context, limit int) ([]model.LeaderboardEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, best_score, lifetime_total, attempt_count
		 FROM users
		 WHERE attempt_count > 0
		 ORDER BY best_score DESC, lifetime_total DESC, name ASC
		 LIMIT $1`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.LeaderboardEntry
	for rows.Next() {
		var e model.LeaderboardEntry
		if err := rows.Scan(&e.UserID, &e.Name, &e.BestScore, &e.LifetimeTotal, &e.AttemptCount); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
